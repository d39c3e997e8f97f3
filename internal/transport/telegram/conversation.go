package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/KeremKalyoncu/medyan-bot/internal/delivery"
)

// conversation answers in one chat and owns at most one status message
type conversation struct {
	api     API
	chatID  int64
	replyTo int

	mu       sync.Mutex
	statusID int
}

func newConversation(api API, chatID int64, replyTo int) *conversation {
	return &conversation{api: api, chatID: chatID, replyTo: replyTo}
}

// Status implements delivery.Conversation
func (c *conversation) Status(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.statusID == 0 {
		msg := tgbotapi.NewMessage(c.chatID, text)
		msg.ReplyToMessageID = c.replyTo
		sent, err := c.api.Send(msg)
		if err != nil {
			return fmt.Errorf("send status: %w", err)
		}
		c.statusID = sent.MessageID
		return nil
	}

	if _, err := c.api.Send(tgbotapi.NewEditMessageText(c.chatID, c.statusID, text)); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit status: %w", err)
	}
	return nil
}

// ClearStatus implements delivery.Conversation
func (c *conversation) ClearStatus(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.statusID == 0 {
		return nil
	}
	id := c.statusID
	c.statusID = 0
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(c.chatID, id)); err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	return nil
}

// SendMedia implements delivery.Conversation
func (c *conversation) SendMedia(ctx context.Context, path string, kind delivery.MediaType) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file := tgbotapi.FilePath(path)
	var msg tgbotapi.Chattable
	switch kind {
	case delivery.MediaPhoto:
		msg = tgbotapi.NewPhoto(c.chatID, file)
	case delivery.MediaDocument:
		msg = tgbotapi.NewDocument(c.chatID, file)
	default:
		video := tgbotapi.NewVideo(c.chatID, file)
		video.SupportsStreaming = true
		msg = video
	}

	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

// Reply implements delivery.Conversation
func (c *conversation) Reply(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ReplyToMessageID = c.replyTo
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
