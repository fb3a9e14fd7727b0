package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/auth"
	"github.com/chatrelay/chatrelay/internal/routing"
	"github.com/chatrelay/chatrelay/internal/store"
)

// ChatService is the coordinator surface the widget endpoints use.
type ChatService interface {
	StartThread(ctx context.Context, in routing.StartInput) (routing.StartResult, error)
	RelayCustomerMessage(ctx context.Context, threadID string, in routing.MessageInput) (store.Message, error)
	CloseThread(ctx context.Context, threadID string) error
}

// ChatHistoryStore reads thread history for the widget.
type ChatHistoryStore interface {
	GetThread(ctx context.Context, id string) (store.Thread, error)
	ListMessages(ctx context.Context, threadID string, limit, offset int32) ([]store.Message, error)
}

// ChatHandler serves the public widget API. Thread-scoped chat tokens issued
// at start authorize every later call.
type ChatHandler struct {
	chat    ChatService
	history ChatHistoryStore
	auth    *auth.Service
	logger  *slog.Logger
}

func NewChatHandler(log *slog.Logger, chat ChatService, history ChatHistoryStore, authService *auth.Service) *ChatHandler {
	return &ChatHandler{
		chat:    chat,
		history: history,
		auth:    authService,
		logger:  log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/api/v1/chat")
	group.POST("/start", h.Start)
	group.POST("/message", h.Message)
	group.POST("/close", h.Close)
	group.GET("/messages/:thread_id", h.Messages)
	group.GET("/thread/:thread_id", h.Thread)
}

type startChatRequest struct {
	Username   string         `json:"username"`
	SiteOrigin string         `json:"site_origin" validate:"required"`
	CategoryID string         `json:"category_id" validate:"required,uuid"`
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Email      string         `json:"email" validate:"omitempty,email"`
	Metadata   map[string]any `json:"metadata"`
}

type startChatResponse struct {
	ThreadID   string            `json:"thread_id"`
	CustomerID string            `json:"customer_id"`
	Username   string            `json:"username"`
	Status     string            `json:"status"`
	Agent      *routing.AgentRef `json:"agent,omitempty"`
	Notice     string            `json:"notice,omitempty"`
	ChatToken  string            `json:"chat_token"`
}

func (h *ChatHandler) Start(c echo.Context) error {
	var req startChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	in := routing.StartInput{
		Username:   strings.TrimSpace(req.Username),
		SiteOrigin: strings.TrimSpace(req.SiteOrigin),
		CategoryID: req.CategoryID,
	}
	if req.ExternalID != "" {
		in.External = &routing.ExternalIdentity{
			ID:       req.ExternalID,
			Name:     strings.TrimSpace(req.Name),
			Email:    strings.TrimSpace(req.Email),
			Metadata: req.Metadata,
		}
	}

	result, err := h.chat.StartThread(c.Request().Context(), in)
	if err != nil {
		return mapError(err)
	}

	token, err := h.auth.GenerateChatToken(result.CustomerID, result.ThreadID, result.Username)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "issue chat token")
	}

	return c.JSON(http.StatusOK, startChatResponse{
		ThreadID:   result.ThreadID,
		CustomerID: result.CustomerID,
		Username:   result.Username,
		Status:     result.Status,
		Agent:      result.Agent,
		Notice:     result.Notice,
		ChatToken:  token,
	})
}

type chatMessageRequest struct {
	ThreadID  string `json:"thread_id" validate:"required,uuid"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url" validate:"omitempty,url"`
	MediaType string `json:"media_type"`
}

func (h *ChatHandler) Message(c echo.Context) error {
	var req chatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	claims, err := h.requireChatToken(c, req.ThreadID)
	if err != nil {
		return err
	}

	msg, err := h.chat.RelayCustomerMessage(c.Request().Context(), req.ThreadID, routing.MessageInput{
		SenderID:  claims.CustomerID,
		Content:   req.Content,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

type closeChatRequest struct {
	ThreadID string `json:"thread_id" validate:"required,uuid"`
}

func (h *ChatHandler) Close(c echo.Context) error {
	var req closeChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.requireChatToken(c, req.ThreadID); err != nil {
		return err
	}

	if err := h.chat.CloseThread(c.Request().Context(), req.ThreadID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "closed"})
}

func (h *ChatHandler) Messages(c echo.Context) error {
	threadID := c.Param("thread_id")
	if _, err := h.requireChatToken(c, threadID); err != nil {
		return err
	}

	limit := queryInt32(c, "limit", 50)
	offset := queryInt32(c, "offset", 0)
	messages, err := h.history.ListMessages(c.Request().Context(), threadID, limit, offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": messages})
}

func (h *ChatHandler) Thread(c echo.Context) error {
	threadID := c.Param("thread_id")
	if _, err := h.requireChatToken(c, threadID); err != nil {
		return err
	}

	thread, err := h.history.GetThread(c.Request().Context(), threadID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, thread)
}

// requireChatToken verifies the widget's token and checks it is scoped to
// the requested thread.
func (h *ChatHandler) requireChatToken(c echo.Context, threadID string) (auth.ChatClaims, error) {
	raw := bearerToken(c)
	if raw == "" {
		raw = c.QueryParam("token")
	}
	if raw == "" {
		return auth.ChatClaims{}, echo.NewHTTPError(http.StatusUnauthorized, "chat token required")
	}
	claims, err := h.auth.ParseChatToken(raw)
	if err != nil {
		return auth.ChatClaims{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid chat token")
	}
	if claims.ThreadID != threadID {
		return auth.ChatClaims{}, echo.NewHTTPError(http.StatusForbidden, "token is not valid for this thread")
	}
	return claims, nil
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func queryInt32(c echo.Context, name string, fallback int32) int32 {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || value < 0 {
		return fallback
	}
	return int32(value)
}
