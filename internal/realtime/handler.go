package realtime

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/auth"
)

// Handler upgrades widget connections and hands them to the hub.
type Handler struct {
	hub      *Hub
	auth     *auth.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(log *slog.Logger, hub *Hub, authService *auth.Service, allowedOrigins []string) *Handler {
	h := &Handler{
		hub:    hub,
		auth:   authService,
		logger: log.With(slog.String("service", "realtime")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.serve)
}

func (h *Handler) serve(c echo.Context) error {
	userID := ""
	if token := c.QueryParam("token"); token != "" {
		claims, err := h.auth.ParseChatToken(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid chat token")
		}
		userID = claims.CustomerID
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return nil
	}

	client := newClient(h.hub, conn, userID, h.logger)
	client.run()
	return nil
}

// originChecker allows any origin when the allowlist is empty, otherwise
// exact matches only. The widget is embedded on third-party sites, so an
// empty list is the permissive default.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(strings.ToLower(origin), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := strings.TrimRight(strings.ToLower(r.Header.Get("Origin")), "/")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
