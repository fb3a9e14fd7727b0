package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/routing"
	"github.com/chatrelay/chatrelay/internal/telegrambot"
)

type recordingProcessor struct {
	updates []tgbotapi.Update
}

func (p *recordingProcessor) ProcessUpdate(_ context.Context, update tgbotapi.Update, _ telegrambot.Relay) {
	p.updates = append(p.updates, update)
}

type nopRelay struct{}

func (nopRelay) RelayAgentMessage(context.Context, routing.Inbound) error { return nil }
func (nopRelay) ReplyCallback(context.Context, int64, string)             {}

func TestWebhookReceive(t *testing.T) {
	e := echo.New()
	e.Validator = NewValidator()
	processor := &recordingProcessor{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewWebhookHandler(log, processor, nopRelay{}).Register(e)

	body := `{"update_id":42,"message":{"message_id":1,"text":"#a1b2c3d4 hi","from":{"id":777},"chat":{"id":777}}}`
	rec := doJSON(e, http.MethodPost, "/api/v1/webhook/telegram", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, processor.updates, 1)
	assert.Equal(t, 42, processor.updates[0].UpdateID)
	require.NotNil(t, processor.updates[0].Message)
	assert.Equal(t, "#a1b2c3d4 hi", processor.updates[0].Message.Text)
}

func TestWebhookStatus(t *testing.T) {
	e := echo.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewWebhookHandler(log, &recordingProcessor{}, nopRelay{}).Register(e)

	rec := doJSON(e, http.MethodGet, "/api/v1/webhook/telegram", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
