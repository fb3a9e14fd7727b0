package telegrambot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chatrelay/chatrelay/internal/routing"
)

// replyCallbackPrefix marks inline-button callback data that addresses a
// thread.
const replyCallbackPrefix = "reply:"

// Relay is the coordinator surface the adapter feeds. Both transport modes,
// polling and webhook, converge on it through ProcessUpdate.
type Relay interface {
	RelayAgentMessage(ctx context.Context, in routing.Inbound) error
	ReplyCallback(ctx context.Context, chatID int64, threadID string)
}

// Start brings the inbound side up in the configured mode. In webhook mode
// it registers the webhook URL and returns; updates then arrive through the
// HTTP route. In polling mode it clears any stale webhook and starts the
// long-poll loop.
func (a *Adapter) Start(ctx context.Context, relay Relay) error {
	if a.cfg.WebhookMode() {
		wh, err := tgbotapi.NewWebhook(a.cfg.WebhookURL)
		if err != nil {
			return fmt.Errorf("build webhook config: %w", err)
		}
		if _, err := a.bot.Request(wh); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		a.logger.Info("webhook registered", slog.String("url", a.cfg.WebhookURL))
		return nil
	}

	// A leftover webhook blocks getUpdates with a conflict error.
	if _, err := a.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		a.logger.Warn("delete webhook failed", slog.String("error", err.Error()))
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	a.updates = a.bot.GetUpdatesChan(updateConfig)

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	go func() {
		a.logger.Info("polling started")
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-a.updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				a.ProcessUpdate(pollCtx, update, relay)
			}
		}
	}()
	return nil
}

// Stop shuts the polling loop down. The updates channel is drained so the
// library's long-poll goroutine can finish; otherwise the in-flight
// getUpdates session lingers and conflicts with the next start.
func (a *Adapter) Stop(_ context.Context) error {
	if a.cancel == nil {
		return nil
	}
	a.bot.StopReceivingUpdates()
	a.cancel()
	for range a.updates {
	}
	a.logger.Info("polling stopped")
	return nil
}

// ProcessUpdate routes one platform update into the relay. The webhook
// handler calls this directly; the polling loop calls it per update.
func (a *Adapter) ProcessUpdate(ctx context.Context, update tgbotapi.Update, relay Relay) {
	if cb := update.CallbackQuery; cb != nil {
		a.handleCallback(ctx, cb, relay)
		return
	}
	if update.Message == nil {
		return
	}

	in, ok := a.parseInbound(update.Message)
	if !ok {
		return
	}
	if err := relay.RelayAgentMessage(ctx, in); err != nil {
		a.logger.Error("relay inbound failed",
			slog.Int64("user_id", in.TelegramUserID),
			slog.String("error", err.Error()))
	}
}

func (a *Adapter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, relay Relay) {
	if a.bot != nil {
		if _, err := a.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			a.logger.Debug("answer callback failed", slog.String("error", err.Error()))
		}
	}
	threadID, ok := strings.CutPrefix(cb.Data, replyCallbackPrefix)
	if !ok || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	relay.ReplyCallback(ctx, cb.Message.Chat.ID, threadID)
}

// parseInbound flattens a platform message into the relay's inbound shape.
// It reports false for updates with no usable content.
func (a *Adapter) parseInbound(msg *tgbotapi.Message) (routing.Inbound, bool) {
	if msg.From == nil || msg.Chat == nil {
		return routing.Inbound{}, false
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	mediaURL, mediaType := a.resolveMedia(msg)
	if text == "" && mediaURL == "" {
		return routing.Inbound{}, false
	}

	return routing.Inbound{
		TelegramUserID:   msg.From.ID,
		ChatID:           msg.Chat.ID,
		Text:             text,
		MediaURL:         mediaURL,
		MediaType:        mediaType,
		ReplyContextText: replyContextText(msg),
	}, true
}

func (a *Adapter) resolveMedia(msg *tgbotapi.Message) (url, mediaType string) {
	fileID := ""
	switch {
	case len(msg.Photo) > 0:
		fileID = pickPhoto(msg.Photo).FileID
		mediaType = "image"
	case msg.Video != nil:
		fileID = msg.Video.FileID
		mediaType = "video"
	case msg.Voice != nil:
		fileID = msg.Voice.FileID
		mediaType = "audio"
	case msg.Audio != nil:
		fileID = msg.Audio.FileID
		mediaType = "audio"
	case msg.Document != nil:
		fileID = msg.Document.FileID
		mediaType = "file"
	default:
		return "", ""
	}

	resolved, err := a.fileURL(fileID)
	if err != nil {
		a.logger.Warn("resolve file url failed", slog.String("error", err.Error()))
		return "", ""
	}
	return resolved, mediaType
}

// replyContextText extracts the text of the message being replied to, so the
// resolver can read the thread tag out of a quoted envelope.
func replyContextText(msg *tgbotapi.Message) string {
	reply := msg.ReplyToMessage
	if reply == nil {
		return ""
	}
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		text = strings.TrimSpace(reply.Caption)
	}
	return text
}

func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
