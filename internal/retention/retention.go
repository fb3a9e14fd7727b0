package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatrelay/chatrelay/internal/config"
)

// Store is the persistence surface the sweep needs.
type Store interface {
	CloseThreadsIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service runs the scheduled retention sweep: idle open threads get closed
// and old messages get deleted.
type Service struct {
	store  Store
	cfg    config.RetentionConfig
	cron   *cron.Cron
	logger *slog.Logger
}

func NewService(log *slog.Logger, cfg config.RetentionConfig, store Store) *Service {
	return &Service{
		store:  store,
		cfg:    cfg,
		cron:   cron.New(),
		logger: log.With(slog.String("service", "retention")),
	}
}

// Start schedules the sweep. Disabled retention is a no-op.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("retention disabled")
		return nil
	}
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.Run(context.Background()); err != nil {
			s.logger.Error("sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("retention scheduled", slog.String("schedule", s.cfg.Schedule))
	return nil
}

// Run performs one sweep. Threads are closed before messages are deleted so
// a thread never loses history while it is still open.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.ThreadIdleDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.ThreadIdleDays)
		closed, err := s.store.CloseThreadsIdleSince(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("close idle threads: %w", err)
		}
		if closed > 0 {
			s.logger.Info("idle threads closed", slog.Int64("count", closed))
		}
	}

	if s.cfg.MessageDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.MessageDays)
		deleted, err := s.store.DeleteMessagesBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("delete old messages: %w", err)
		}
		if deleted > 0 {
			s.logger.Info("old messages deleted", slog.Int64("count", deleted))
		}
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
