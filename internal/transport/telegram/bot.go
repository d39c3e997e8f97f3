// Package telegram connects the delivery orchestrator to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/delivery"
	"github.com/KeremKalyoncu/medyan-bot/internal/errors"
)

const langCallbackPrefix = "lang:"

// API is the subset of *tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler processes one link message
type Handler interface {
	Handle(ctx context.Context, msg delivery.Message, conv delivery.Conversation) error
}

// Config holds bot settings
type Config struct {
	PollTimeout  int // seconds
	MaxFileBytes int64
}

// Bot receives updates and hands every message to its own goroutine
type Bot struct {
	api     API
	handler Handler
	cfg     Config
	logger  *zap.Logger

	langs sync.Map // chat id -> delivery.Language
	wg    sync.WaitGroup
}

// NewBotAPI authorizes against the Bot API with token
func NewBotAPI(token string, debugMode bool, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating bot: %w", err)
	}
	api.Debug = debugMode
	logger.Info("Authorized on account", zap.String("username", api.Self.UserName))
	return api, nil
}

// New creates a bot around api
func New(api API, handler Handler, cfg Config, logger *zap.Logger) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = delivery.DefaultMaxFileBytes
	}
	return &Bot{api: api, handler: handler, cfg: cfg, logger: logger}
}

func commands(lang delivery.Language) []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "start", Description: delivery.T(lang, delivery.MsgCommandStart)},
		{Command: "help", Description: delivery.T(lang, delivery.MsgCommandHelp)},
		{Command: "language", Description: delivery.T(lang, delivery.MsgCommandLanguage)},
	}
}

// RegisterCommands publishes the command menu in every supported language
func (b *Bot) RegisterCommands() error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands(delivery.LangEnglish)...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	scope := tgbotapi.NewBotCommandScopeDefault()
	ru := tgbotapi.NewSetMyCommandsWithScopeAndLanguage(scope, string(delivery.LangRussian), commands(delivery.LangRussian)...)
	if _, err := b.api.Request(ru); err != nil {
		return fmt.Errorf("set commands (ru): %w", err)
	}
	return nil
}

// Run polls for updates until ctx is done, then waits for in-flight
// messages to finish
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot is polling for updates")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Stopped receiving updates")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	var fn func()
	switch {
	case update.CallbackQuery != nil:
		fn = func() { b.handleCallback(update.CallbackQuery) }
	case update.Message != nil:
		fn = func() { b.handleMessage(ctx, update.Message) }
	default:
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic while handling update",
					zap.Int("update_id", update.UpdateID),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		fn()
	}()
}

// language returns the chat's chosen language, else the client's
func (b *Bot) language(chatID int64, from *tgbotapi.User) delivery.Language {
	if v, ok := b.langs.Load(chatID); ok {
		return v.(delivery.Language)
	}
	if from != nil {
		return delivery.ParseLanguage(from.LanguageCode)
	}
	return delivery.LangEnglish
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	lang := b.language(chatID, msg.From)

	if msg.IsCommand() {
		b.handleCommand(msg, lang)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	conv := newConversation(b.api, chatID, msg.MessageID)
	err := b.handler.Handle(ctx, delivery.Message{
		Text:     text,
		UserID:   userID,
		ChatID:   chatID,
		Language: lang,
	}, conv)
	if err != nil {
		switch errors.GetErrorCode(err) {
		case errors.ErrNoMatch.Code, errors.ErrRateLimited.Code:
			b.logger.Debug("Message not processed", zap.Int64("chat_id", chatID), zap.Error(err))
		default:
			b.logger.Info("Message handling ended with error", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message, lang delivery.Language) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.send(tgbotapi.NewMessage(chatID, delivery.T(lang, delivery.MsgWelcome)))
		b.sendLanguagePicker(chatID, lang)
	case "help":
		b.send(tgbotapi.NewMessage(chatID, delivery.T(lang, delivery.MsgHelp, b.cfg.MaxFileBytes>>20)))
	case "language":
		b.sendLanguagePicker(chatID, lang)
	default:
		b.send(tgbotapi.NewMessage(chatID, delivery.T(lang, delivery.MsgUnsupportedCommand)))
	}
}

func (b *Bot) sendLanguagePicker(chatID int64, lang delivery.Language) {
	msg := tgbotapi.NewMessage(chatID, delivery.T(lang, delivery.MsgChooseLanguage))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("English", langCallbackPrefix+string(delivery.LangEnglish)),
			tgbotapi.NewInlineKeyboardButtonData("Русский", langCallbackPrefix+string(delivery.LangRussian)),
		),
	)
	b.send(msg)
}

func (b *Bot) handleCallback(q *tgbotapi.CallbackQuery) {
	if !strings.HasPrefix(q.Data, langCallbackPrefix) || q.Message == nil || q.Message.Chat == nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
		return
	}

	lang := delivery.ParseLanguage(strings.TrimPrefix(q.Data, langCallbackPrefix))
	chatID := q.Message.Chat.ID
	b.langs.Store(chatID, lang)

	confirmation := delivery.T(lang, delivery.MsgLanguageSet)
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, confirmation)); err != nil {
		b.logger.Warn("Failed to answer callback query", zap.Error(err))
	}
	b.send(tgbotapi.NewEditMessageText(chatID, q.Message.MessageID, confirmation))
	b.logger.Debug("Language selected", zap.Int64("chat_id", chatID), zap.String("lang", string(lang)))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err))
	}
}
