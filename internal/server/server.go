package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chatrelay/chatrelay/internal/auth"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/handlers"
)

// Handler is anything that registers routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

func New(log *slog.Logger, cfg config.ServerConfig, authService *auth.Service, routeHandlers []Handler) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	logger := log.With(slog.String("service", "server"))
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(corsConfig(cfg.AllowedOrigins)))
	e.Use(authService.Middleware(publicRoute))

	for _, h := range routeHandlers {
		h.Register(e)
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: logger,
	}
}

// publicRoute marks the unauthenticated surface: health checks, the widget
// API (guarded by thread-scoped chat tokens instead), the bot webhook, the
// WebSocket upgrade, admin login, and the category listing.
func publicRoute(c echo.Context) bool {
	path := c.Request().URL.Path
	switch path {
	case "/ping", "/health", "/ws", "/api/v1/admin/login":
		return true
	}
	if strings.HasPrefix(path, "/api/v1/chat") {
		return true
	}
	if strings.HasPrefix(path, "/api/v1/webhook") {
		return true
	}
	if path == "/api/v1/categories" && c.Request().Method == http.MethodGet {
		return true
	}
	return false
}

func corsConfig(allowedOrigins []string) middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig
	if len(allowedOrigins) > 0 {
		cfg.AllowOrigins = allowedOrigins
	}
	return cfg
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				log.LogAttrs(c.Request().Context(), slog.LevelWarn, "request", attrs...)
				return nil
			}
			log.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	})
}

func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
