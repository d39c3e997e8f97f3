package delivery

import "fmt"

// Language is a supported reply language
type Language string

const (
	LangEnglish Language = "en"
	LangRussian Language = "ru"
)

// ParseLanguage maps a client language code to a supported language,
// defaulting to English
func ParseLanguage(code string) Language {
	if len(code) >= 2 && code[:2] == "ru" {
		return LangRussian
	}
	return LangEnglish
}

// MessageKey names a user-facing message
type MessageKey string

const (
	MsgWelcome            MessageKey = "welcome"
	MsgHelp               MessageKey = "help"
	MsgChooseLanguage     MessageKey = "choose_language"
	MsgLanguageSet        MessageKey = "language_set"
	MsgNoLink             MessageKey = "no_link"
	MsgCooldown           MessageKey = "cooldown"
	MsgDownloading        MessageKey = "downloading"
	MsgUploading          MessageKey = "uploading"
	MsgInstagramFailed    MessageKey = "instagram_failed"
	MsgTikTokFailed       MessageKey = "tiktok_failed"
	MsgTooLarge           MessageKey = "too_large"
	MsgDeliveryFailed     MessageKey = "delivery_failed"
	MsgInternalError      MessageKey = "internal_error"
	MsgCommandStart       MessageKey = "command_start"
	MsgCommandHelp        MessageKey = "command_help"
	MsgCommandLanguage    MessageKey = "command_language"
	MsgUnsupportedCommand MessageKey = "unsupported_command"
)

var catalog = map[Language]map[MessageKey]string{
	LangEnglish: {
		MsgWelcome:            "Hi! Send me a TikTok or Instagram link and I will send the media back.",
		MsgHelp:               "Paste a link to a TikTok video or an Instagram post, reel or carousel.\nFiles larger than %d MB cannot be sent.",
		MsgChooseLanguage:     "Choose your language:",
		MsgLanguageSet:        "Language set to English.",
		MsgNoLink:             "Please send a valid TikTok or Instagram link.",
		MsgCooldown:           "Please wait %d seconds before your next Instagram request.",
		MsgDownloading:        "Downloading...",
		MsgUploading:          "Uploading...",
		MsgInstagramFailed:    "Could not fetch this post. It may be private or require login.",
		MsgTikTokFailed:       "Could not download this TikTok video.",
		MsgTooLarge:           "The file is too large (%.1f MB). The limit is %d MB.",
		MsgDeliveryFailed:     "Failed to send the media: %s",
		MsgInternalError:      "Something went wrong: %s",
		MsgCommandStart:       "Start the bot",
		MsgCommandHelp:        "How to use the bot",
		MsgCommandLanguage:    "Change language",
		MsgUnsupportedCommand: "Unknown command. Send /help for usage.",
	},
	LangRussian: {
		MsgWelcome:            "Привет! Отправь мне ссылку на TikTok или Instagram, и я пришлю медиа.",
		MsgHelp:               "Вставь ссылку на видео TikTok или пост, рилс или карусель Instagram.\nФайлы больше %d МБ отправить нельзя.",
		MsgChooseLanguage:     "Выбери язык:",
		MsgLanguageSet:        "Язык изменён на русский.",
		MsgNoLink:             "Отправь корректную ссылку на TikTok или Instagram.",
		MsgCooldown:           "Подожди %d сек. перед следующим запросом к Instagram.",
		MsgDownloading:        "Загружаю...",
		MsgUploading:          "Отправляю...",
		MsgInstagramFailed:    "Не удалось получить пост. Возможно, он закрыт или требует входа.",
		MsgTikTokFailed:       "Не удалось скачать видео TikTok.",
		MsgTooLarge:           "Файл слишком большой (%.1f МБ). Лимит %d МБ.",
		MsgDeliveryFailed:     "Не удалось отправить медиа: %s",
		MsgInternalError:      "Что-то пошло не так: %s",
		MsgCommandStart:       "Запустить бота",
		MsgCommandHelp:        "Как пользоваться ботом",
		MsgCommandLanguage:    "Сменить язык",
		MsgUnsupportedCommand: "Неизвестная команда. Отправь /help.",
	},
}

// T returns the message for key in lang, formatted with args. Missing
// translations fall back to English.
func T(lang Language, key MessageKey, args ...interface{}) string {
	text, ok := catalog[lang][key]
	if !ok {
		text = catalog[LangEnglish][key]
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}
