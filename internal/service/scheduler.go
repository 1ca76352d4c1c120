package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pushfleet/broadcast-engine/internal/domain"
	"github.com/pushfleet/broadcast-engine/internal/observability"
	"github.com/pushfleet/broadcast-engine/internal/repository"
)

const (
	defaultBatchSize       = 50
	defaultLeaseTTL        = 60 * time.Second
	defaultMaxTickFailures = 3
)

// BatchExecutor is the scheduler's view of the delivery executor.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, n *domain.Notification, subscribers []domain.Subscriber) (*BatchReport, error)
}

// Scheduler advances one broadcast by at most one batch per Tick. It owns no
// timer; ticks arrive from the HTTP tick endpoint, the internal tick runner,
// or both, at whatever cadence the deployment provides. The notification's
// lease makes overlapping ticks safe: exactly one does send work, the rest
// skip.
type Scheduler struct {
	notifications   repository.NotificationRepository
	subscribers     repository.SubscriberRepository
	executor        BatchExecutor
	logger          *zap.Logger
	metrics         *observability.Metrics
	batchSize       int
	leaseTTL        time.Duration
	maxTickFailures int
	now             func() time.Time
	newToken        func() string
}

func NewScheduler(
	notifications repository.NotificationRepository,
	subscribers repository.SubscriberRepository,
	executor BatchExecutor,
	batchSize int,
	leaseTTL time.Duration,
	maxTickFailures int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if subscribers == nil {
		return nil, fmt.Errorf("subscriber repository is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("batch executor is required")
	}
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	if maxTickFailures < 1 {
		maxTickFailures = defaultMaxTickFailures
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		notifications:   notifications,
		subscribers:     subscribers,
		executor:        executor,
		logger:          logger,
		batchSize:       batchSize,
		leaseTTL:        leaseTTL,
		maxTickFailures: maxTickFailures,
		now:             time.Now,
		newToken:        uuid.NewString,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Tick performs at most one delivery batch for the notification and commits
// the progress durably before returning. Calling Tick on a terminal
// notification is a no-op; a tick that loses the lease race is a silent skip.
func (s *Scheduler) Tick(ctx context.Context, notificationID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveTickDuration(s.now().Sub(start))
		}
	}()

	logger := observability.WithContextLogger(s.logger, ctx).
		With(zap.String("notificationId", notificationID))

	token := s.newToken()
	n, err := s.notifications.AcquireLease(ctx, notificationID, token, s.leaseTTL)
	switch {
	case errors.Is(err, domain.ErrLeaseHeld):
		if s.metrics != nil {
			s.metrics.IncLeaseContention()
		}
		logger.Debug("tick skipped, lease held by another tick")
		return nil
	case errors.Is(err, domain.ErrConflict):
		// Terminal (or still draft): nothing to do.
		return nil
	case err != nil:
		return fmt.Errorf("failed to acquire broadcast lease: %w", err)
	}

	// If the context dies before release, the lease TTL reopens the
	// notification for the next tick.
	defer func() {
		if err := s.notifications.ReleaseLease(ctx, notificationID, token); err != nil {
			logger.Warn("failed to release broadcast lease", zap.Error(err))
		}
	}()

	if n.Status == domain.StatusScheduled {
		total, err := s.subscribers.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count subscribers: %w", err)
		}
		if err := s.notifications.MarkRunning(ctx, n.ID, int(total)); err != nil {
			return fmt.Errorf("failed to start broadcast: %w", err)
		}
		n.Status = domain.StatusRunning
		n.TotalAtStart = int(total)
		n.Cursor = domain.CursorStart
		logger.Info("broadcast started", zap.Int("totalSubscribers", n.TotalAtStart))
	}

	page, err := s.subscribers.Page(ctx, n.Cursor, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch subscriber page: %w", err)
	}
	if len(page) == 0 {
		return s.complete(ctx, logger, n)
	}

	report, err := s.executor.ExecuteBatch(ctx, n, page)
	if err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	commit := repository.BatchCommit{
		Cursor:   page[len(page)-1].ID,
		Sent:     report.Sent,
		Failed:   report.Failed(),
		Outcomes: report.Outcomes,
	}
	if err := s.notifications.CommitBatch(ctx, n.ID, token, commit); err != nil {
		return s.handleCommitFailure(ctx, logger, n.ID, err)
	}
	if s.metrics != nil {
		s.metrics.IncBatchCommitted()
	}

	logger.Info("batch committed",
		zap.Int64("cursor", commit.Cursor),
		zap.Int("sent", report.Sent),
		zap.Int("retryableFailed", report.RetryableFailed),
		zap.Int("permanentFailed", len(report.PermanentFailed)),
	)

	processed := n.SentCount + n.FailedCount + commit.Sent + commit.Failed
	if len(page) < s.batchSize || (n.TotalAtStart > 0 && processed >= n.TotalAtStart) {
		return s.complete(ctx, logger, n)
	}

	return nil
}

func (s *Scheduler) complete(ctx context.Context, logger *zap.Logger, n *domain.Notification) error {
	if err := s.notifications.MarkCompleted(ctx, n.ID); err != nil {
		return fmt.Errorf("failed to complete broadcast: %w", err)
	}
	logger.Info("broadcast completed")
	return nil
}

// handleCommitFailure applies the bounded retry budget for store-level commit
// failures. The cursor was not advanced, so the next tick redoes the same
// page; subscribers in it may receive the notification twice, which is the
// accepted at-least-once contract.
func (s *Scheduler) handleCommitFailure(ctx context.Context, logger *zap.Logger, notificationID string, commitErr error) error {
	if s.metrics != nil {
		s.metrics.IncCommitFailure()
	}

	failures, err := s.notifications.RecordTickFailure(ctx, notificationID)
	if err != nil {
		logger.Error("failed to record tick failure", zap.Error(err))
		return fmt.Errorf("failed to commit batch: %w", commitErr)
	}

	if failures >= s.maxTickFailures {
		if err := s.notifications.MarkFailed(ctx, notificationID); err != nil {
			logger.Error("failed to mark broadcast as failed", zap.Error(err))
		} else {
			logger.Error("broadcast failed, commit retry budget exhausted",
				zap.Int("tickFailures", failures),
			)
		}
	} else {
		logger.Warn("batch commit failed, will retry on next tick",
			zap.Int("tickFailures", failures),
			zap.Error(commitErr),
		)
	}

	return fmt.Errorf("failed to commit batch: %w", commitErr)
}
