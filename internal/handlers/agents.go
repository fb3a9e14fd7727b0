package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/store"
)

// AgentStore is the persistence surface for agent administration.
type AgentStore interface {
	ListAgents(ctx context.Context) ([]store.Agent, error)
	GetAgent(ctx context.Context, id string) (store.Agent, error)
	CreateAgent(ctx context.Context, params store.CreateAgentParams) (store.Agent, error)
	UpdateAgent(ctx context.Context, id string, params store.UpdateAgentParams) (store.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
	SetAgentOnline(ctx context.Context, id string, online bool) (store.Agent, error)
	RecordAgentActivity(ctx context.Context, agentID, eventType string) error
}

// AgentsHandler manages the agent roster. All routes sit behind the admin
// JWT middleware.
type AgentsHandler struct {
	agents AgentStore
	logger *slog.Logger
}

func NewAgentsHandler(log *slog.Logger, agents AgentStore) *AgentsHandler {
	return &AgentsHandler{
		agents: agents,
		logger: log.With(slog.String("handler", "agents")),
	}
}

func (h *AgentsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/v1/agents")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.POST("/:id/availability", h.SetAvailability)
}

func (h *AgentsHandler) List(c echo.Context) error {
	agents, err := h.agents.ListAgents(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": agents})
}

func (h *AgentsHandler) Get(c echo.Context) error {
	agent, err := h.agents.GetAgent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

type createAgentRequest struct {
	TelegramUserID int64  `json:"telegram_user_id" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"omitempty,email"`
}

func (h *AgentsHandler) Create(c echo.Context) error {
	var req createAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	agent, err := h.agents.CreateAgent(c.Request().Context(), store.CreateAgentParams{
		TelegramUserID: req.TelegramUserID,
		Name:           req.Name,
		Email:          req.Email,
	})
	if err != nil {
		return mapError(err)
	}
	h.logger.Info("agent created", slog.String("agent_id", agent.ID))
	return c.JSON(http.StatusCreated, agent)
}

type updateAgentRequest struct {
	Name           *string `json:"name"`
	Email          *string `json:"email"`
	TelegramUserID *int64  `json:"telegram_user_id"`
}

func (h *AgentsHandler) Update(c echo.Context) error {
	var req updateAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	agent, err := h.agents.UpdateAgent(c.Request().Context(), c.Param("id"), store.UpdateAgentParams{
		Name:           req.Name,
		Email:          req.Email,
		TelegramUserID: req.TelegramUserID,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

func (h *AgentsHandler) Delete(c echo.Context) error {
	if err := h.agents.DeleteAgent(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type setAvailabilityRequest struct {
	Online bool `json:"online"`
}

// SetAvailability flips the online flag. Only online agents participate in
// assignment; existing assignments survive going offline.
func (h *AgentsHandler) SetAvailability(c echo.Context) error {
	var req setAvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	agent, err := h.agents.SetAgentOnline(c.Request().Context(), c.Param("id"), req.Online)
	if err != nil {
		return mapError(err)
	}

	event := store.ActivityOffline
	if req.Online {
		event = store.ActivityOnline
	}
	if err := h.agents.RecordAgentActivity(c.Request().Context(), agent.ID, event); err != nil {
		h.logger.Warn("activity log write failed", slog.String("error", err.Error()))
	}
	return c.JSON(http.StatusOK, agent)
}
