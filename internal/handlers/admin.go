package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/routing"
	"github.com/chatrelay/chatrelay/internal/store"
)

type AdminStatsStore interface {
	AgentWorkloadStats(ctx context.Context) ([]store.AgentWorkload, error)
}

// ThreadAdminService is the coordinator surface for operator interventions.
type ThreadAdminService interface {
	ReassignThread(ctx context.Context, threadID string) (routing.AgentRef, error)
	CloseThread(ctx context.Context, threadID string) error
}

// AdminHandler serves operator endpoints: workload inspection and manual
// thread intervention. All routes sit behind the admin JWT middleware.
type AdminHandler struct {
	stats   AdminStatsStore
	threads ThreadAdminService
	logger  *slog.Logger
}

func NewAdminHandler(log *slog.Logger, stats AdminStatsStore, threads ThreadAdminService) *AdminHandler {
	return &AdminHandler{
		stats:   stats,
		threads: threads,
		logger:  log.With(slog.String("handler", "admin")),
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	group := e.Group("/api/v1/admin")
	group.GET("/stats", h.Stats)
	group.POST("/threads/:id/reassign", h.Reassign)
	group.POST("/threads/:id/close", h.Close)
}

// Stats reports each agent's workload counter next to its actual open-thread
// count, so counter drift is visible.
func (h *AdminHandler) Stats(c echo.Context) error {
	stats, err := h.stats.AgentWorkloadStats(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": stats})
}

// Reassign moves an open thread to the least loaded other online agent, for
// when the assigned agent is unresponsive.
func (h *AdminHandler) Reassign(c echo.Context) error {
	agent, err := h.threads.ReassignThread(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	h.logger.Info("thread reassigned",
		slog.String("thread_id", c.Param("id")),
		slog.String("agent_id", agent.ID))
	return c.JSON(http.StatusOK, map[string]any{"agent": agent})
}

func (h *AdminHandler) Close(c echo.Context) error {
	if err := h.threads.CloseThread(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "closed"})
}
