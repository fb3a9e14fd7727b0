package telegrambot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chatrelay/chatrelay/internal/config"
)

const (
	maxMessageLength = 4096
	maxCaptionLength = 1024
)

// Adapter owns the bot-channel connection. It delivers outbound messages to
// agents and feeds inbound updates into the relay, via long polling or the
// webhook route depending on configuration.
type Adapter struct {
	logger  *slog.Logger
	cfg     config.TelegramConfig
	bot     *tgbotapi.BotAPI
	fileURL func(fileID string) (string, error)
	cancel  context.CancelFunc
	updates tgbotapi.UpdatesChannel
}

func NewAdapter(log *slog.Logger, cfg config.TelegramConfig) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		logger:  log.With(slog.String("service", "telegram")),
		cfg:     cfg,
		bot:     bot,
		fileURL: bot.GetFileDirectURL,
	}, nil
}

// SendText delivers a text message to an agent's chat.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, truncateText(sanitizeText(text), maxMessageLength))
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// SendEnvelope delivers a forwarded customer message to an agent's chat.
// Media arrives as a native upload with the envelope as caption; either way
// the message carries a reply button addressing the thread.
func (a *Adapter) SendEnvelope(ctx context.Context, chatID int64, threadID, mediaURL, mediaType, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := a.bot.Send(buildEnvelopeMessage(chatID, threadID, mediaURL, mediaType, text)); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	return nil
}

func buildEnvelopeMessage(chatID int64, threadID, mediaURL, mediaType, text string) tgbotapi.Chattable {
	keyboard := replyKeyboard(threadID)
	if mediaURL == "" {
		msg := tgbotapi.NewMessage(chatID, truncateText(sanitizeText(text), maxMessageLength))
		msg.ReplyMarkup = keyboard
		return msg
	}
	switch media := buildMediaMessage(chatID, mediaURL, mediaType, text).(type) {
	case tgbotapi.PhotoConfig:
		media.ReplyMarkup = keyboard
		return media
	case tgbotapi.VideoConfig:
		media.ReplyMarkup = keyboard
		return media
	case tgbotapi.AudioConfig:
		media.ReplyMarkup = keyboard
		return media
	case tgbotapi.DocumentConfig:
		media.ReplyMarkup = keyboard
		return media
	default:
		return media
	}
}

func replyKeyboard(threadID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reply", replyCallbackPrefix+threadID),
		),
	)
}

func buildMediaMessage(chatID int64, mediaURL, mediaType, caption string) tgbotapi.Chattable {
	file := tgbotapi.FileURL(mediaURL)
	caption = truncateText(sanitizeText(caption), maxCaptionLength)
	switch normalizeMediaType(mediaType) {
	case "image":
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		return photo
	case "video":
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		return video
	case "audio":
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = caption
		return audio
	default:
		document := tgbotapi.NewDocument(chatID, file)
		document.Caption = caption
		return document
	}
}

func normalizeMediaType(mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image", "photo":
		return "image"
	case "video":
		return "video"
	case "audio", "voice":
		return "audio"
	default:
		return "file"
	}
}

// sanitizeText strips invalid byte sequences so the platform API does not
// reject the request.
func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateText cuts text at limit on a rune boundary, appending "..." when
// truncation occurs.
func truncateText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	const suffix = "..."
	cut := limit - len(suffix)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + suffix
}
