package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pushfleet/broadcast-engine/internal/observability"
	"github.com/pushfleet/broadcast-engine/internal/repository"
)

const (
	defaultTickScanInterval = 5 * time.Second
	defaultTickScanLimit    = 100
)

// BroadcastTicker is the runner's view of the scheduler.
type BroadcastTicker interface {
	Tick(ctx context.Context, notificationID string) error
}

// TickRunner is the built-in periodic trigger: it scans for broadcasts that
// still need work and ticks each one. Deployments that bring their own
// scheduler (cron, task queue, manual calls against the tick endpoint) can
// run without it; the lease keeps the two drivers from stepping on each
// other.
type TickRunner struct {
	notifications repository.NotificationRepository
	ticker        BroadcastTicker
	logger        *zap.Logger
	interval      time.Duration
	limit         int
}

func NewTickRunner(
	notifications repository.NotificationRepository,
	ticker BroadcastTicker,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*TickRunner, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if ticker == nil {
		return nil, fmt.Errorf("broadcast ticker is required")
	}
	if interval <= 0 {
		interval = defaultTickScanInterval
	}
	if limit <= 0 {
		limit = defaultTickScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TickRunner{
		notifications: notifications,
		ticker:        ticker,
		logger:        logger,
		interval:      interval,
		limit:         limit,
	}, nil
}

func (r *TickRunner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so pending broadcasts do not wait for the first
	// ticker edge.
	if err := r.scan(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("tick runner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("tick runner scan failed", zap.Error(err))
			}
		}
	}
}

func (r *TickRunner) scan(ctx context.Context) error {
	ids, err := r.notifications.ListTickable(ctx, r.limit)
	if err != nil {
		return fmt.Errorf("failed to list tickable broadcasts: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return nil
		}

		tickCtx := observability.WithBroadcastID(ctx, id)
		if err := r.ticker.Tick(tickCtx, id); err != nil {
			// Tick degrades to retry-later on its own; just surface it.
			r.logger.Warn("tick failed",
				zap.String("notificationId", id),
				zap.Error(err),
			)
		}
	}

	return nil
}
