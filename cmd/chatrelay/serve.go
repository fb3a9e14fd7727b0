package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/chatrelay/internal/auth"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/db"
	"github.com/chatrelay/chatrelay/internal/handlers"
	"github.com/chatrelay/chatrelay/internal/logger"
	"github.com/chatrelay/chatrelay/internal/realtime"
	"github.com/chatrelay/chatrelay/internal/retention"
	"github.com/chatrelay/chatrelay/internal/routing"
	"github.com/chatrelay/chatrelay/internal/server"
	"github.com/chatrelay/chatrelay/internal/store"
	"github.com/chatrelay/chatrelay/internal/telegrambot"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Run: func(_ *cobra.Command, _ []string) {
			runServe()
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			store.New,
			provideAuthService,
			realtime.NewHub,
			provideBotAdapter,
			provideCoordinator,
			provideRetentionService,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(provideChatHandler),
			provideServerHandler(provideAgentsHandler),
			provideServerHandler(provideCategoriesHandler),
			provideServerHandler(provideAdminHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideRealtimeHandler),
			provideServer,
		),
		fx.Invoke(
			startBot,
			startRetention,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideAuthService(log *slog.Logger, cfg config.Config) (*auth.Service, error) {
	return auth.NewService(log, cfg.Auth)
}

func provideBotAdapter(log *slog.Logger, cfg config.Config) (*telegrambot.Adapter, error) {
	return telegrambot.NewAdapter(log, cfg.Telegram)
}

func provideCoordinator(log *slog.Logger, st *store.Store, hub *realtime.Hub, adapter *telegrambot.Adapter) *routing.Coordinator {
	return routing.NewCoordinator(log, st, hub, adapter)
}

func provideRetentionService(log *slog.Logger, cfg config.Config, st *store.Store) *retention.Service {
	return retention.NewService(log, cfg.Retention, st)
}

func provideAuthHandler(log *slog.Logger, authService *auth.Service, cfg config.Config) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, authService, cfg.Admin)
}

func provideChatHandler(log *slog.Logger, coordinator *routing.Coordinator, st *store.Store, authService *auth.Service) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, coordinator, st, authService)
}

func provideAgentsHandler(log *slog.Logger, st *store.Store) *handlers.AgentsHandler {
	return handlers.NewAgentsHandler(log, st)
}

func provideCategoriesHandler(log *slog.Logger, st *store.Store) *handlers.CategoriesHandler {
	return handlers.NewCategoriesHandler(log, st)
}

func provideAdminHandler(log *slog.Logger, st *store.Store, coordinator *routing.Coordinator) *handlers.AdminHandler {
	return handlers.NewAdminHandler(log, st, coordinator)
}

func provideWebhookHandler(log *slog.Logger, adapter *telegrambot.Adapter, coordinator *routing.Coordinator) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, adapter, coordinator)
}

func provideRealtimeHandler(log *slog.Logger, hub *realtime.Hub, authService *auth.Service, cfg config.Config) *realtime.Handler {
	return realtime.NewHandler(log, hub, authService, cfg.Server.AllowedOrigins)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Auth     *auth.Service
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server, params.Auth, params.Handlers)
}

func startBot(lc fx.Lifecycle, adapter *telegrambot.Adapter, coordinator *routing.Coordinator) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return adapter.Start(ctx, coordinator) },
		OnStop:  adapter.Stop,
	})
}

func startRetention(lc fx.Lifecycle, svc *retention.Service) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return svc.Start() },
		OnStop:  svc.Stop,
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
