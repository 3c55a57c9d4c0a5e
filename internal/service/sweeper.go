package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/josh-kwaku/umrah-va-gateway/internal/queue"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type idempotencyCleaner interface {
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

type queueStats interface {
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// Sweeper runs the periodic housekeeping: expiring VAs, dropping stale
// idempotency entries and refreshing the queue gauges.
type Sweeper struct {
	vas         expirySweeper
	idempotency idempotencyCleaner
	queue       queueStats
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewSweeper(vas expirySweeper, idempotency idempotencyCleaner, q queueStats, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		vas:         vas,
		idempotency: idempotency,
		queue:       q,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval)
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep. Each step logs its own failure and the rest
// still run.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.now()

	if _, err := s.vas.SweepExpired(ctx, now); err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	}

	if s.idempotency != nil {
		if n, err := s.idempotency.CleanExpired(ctx, now); err != nil {
			s.logger.Error("idempotency cleanup failed", "error", err)
		} else if n > 0 {
			s.logger.Debug("idempotency entries removed", "count", n)
		}
	}

	if s.queue != nil {
		stats, err := s.queue.Stats(ctx)
		if err != nil {
			s.logger.Error("queue stats failed", "error", err)
			return
		}
		if stats[queue.StatusDead] > 0 {
			s.logger.Warn("dead-lettered notification jobs pending review", "count", stats[queue.StatusDead], "alert", true)
		}
	}
}
