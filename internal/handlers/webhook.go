package handlers

import (
	"context"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/telegrambot"
)

// UpdateProcessor is the adapter entry point shared with the polling loop.
type UpdateProcessor interface {
	ProcessUpdate(ctx context.Context, update tgbotapi.Update, relay telegrambot.Relay)
}

// WebhookHandler receives pushed bot-channel updates. It feeds them through
// the same ProcessUpdate path the polling loop uses, so transport mode never
// changes relay behavior.
type WebhookHandler struct {
	processor UpdateProcessor
	relay     telegrambot.Relay
	logger    *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, processor UpdateProcessor, relay telegrambot.Relay) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		relay:     relay,
		logger:    log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/webhook/telegram", h.Receive)
	e.GET("/api/v1/webhook/telegram", h.Status)
}

// Receive always answers 200 once the payload decodes; the platform retries
// on other statuses and a relay failure should not trigger redelivery of an
// already handled update.
func (h *WebhookHandler) Receive(c echo.Context) error {
	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		h.logger.Warn("malformed webhook payload", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update payload")
	}
	h.processor.ProcessUpdate(c.Request().Context(), update, h.relay)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
