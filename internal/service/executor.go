package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pushfleet/broadcast-engine/internal/domain"
	"github.com/pushfleet/broadcast-engine/internal/observability"
	"github.com/pushfleet/broadcast-engine/internal/provider"
	"github.com/pushfleet/broadcast-engine/internal/ratelimit"
	"github.com/pushfleet/broadcast-engine/internal/repository"
)

const (
	minSendConcurrency = 1
	defaultSendTimeout = 10 * time.Second

	// sendRateScope is the shared rate-limit bucket for all outbound pushes.
	sendRateScope = "webpush"
)

// BatchReport aggregates one batch's classified send results.
type BatchReport struct {
	Sent            int
	RetryableFailed int
	PermanentFailed []int64
	Outcomes        []domain.BatchOutcome
}

// Failed returns the total failure count the broadcast's counter advances by.
func (r *BatchReport) Failed() int {
	if r == nil {
		return 0
	}
	return r.RetryableFailed + len(r.PermanentFailed)
}

// Executor performs the per-subscriber sends for one batch. Sends run on a
// bounded worker pool whose size is independent of the batch size, each
// bounded by its own timeout. Per-subscriber failures never abort the batch;
// they are classified and aggregated.
type Executor struct {
	subscribers repository.SubscriberRepository
	provider    provider.Provider
	limiter     ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	sendTimeout time.Duration
	now         func() time.Time
}

func NewExecutor(
	subscribers repository.SubscriberRepository,
	pushProvider provider.Provider,
	limiter ratelimit.RateLimiter,
	concurrency int,
	sendTimeout time.Duration,
	logger *zap.Logger,
) (*Executor, error) {
	if subscribers == nil {
		return nil, fmt.Errorf("subscriber repository is required")
	}
	if pushProvider == nil {
		return nil, fmt.Errorf("push provider is required")
	}
	if concurrency < minSendConcurrency {
		concurrency = minSendConcurrency
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		subscribers: subscribers,
		provider:    pushProvider,
		limiter:     limiter,
		logger:      logger,
		concurrency: concurrency,
		sendTimeout: sendTimeout,
		now:         time.Now,
	}, nil
}

func (e *Executor) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

type sendResult struct {
	result domain.OutcomeResult
	status int
}

// ExecuteBatch sends the notification's payload to every subscriber in the
// page and returns the classified report. Permanently failed subscribers are
// removed from the registry before the report is returned; removal is
// idempotent and best-effort.
func (e *Executor) ExecuteBatch(ctx context.Context, n *domain.Notification, subscribers []domain.Subscriber) (*BatchReport, error) {
	if n == nil {
		return nil, fmt.Errorf("notification is required")
	}
	if len(n.Payload) == 0 {
		return nil, fmt.Errorf("notification %s has no payload", n.ID)
	}
	if len(subscribers) == 0 {
		return &BatchReport{}, nil
	}

	results := make([]sendResult, len(subscribers))

	g := &errgroup.Group{}
	g.SetLimit(e.concurrency)
	for i := range subscribers {
		i := i
		sub := subscribers[i]
		g.Go(func() error {
			results[i] = e.sendOne(ctx, sub, n.Payload)
			return nil
		})
	}
	_ = g.Wait()

	recordedAt := e.now().UTC()
	report := &BatchReport{
		Outcomes: make([]domain.BatchOutcome, 0, len(subscribers)),
	}

	for i := range subscribers {
		sub := subscribers[i]
		res := results[i]

		report.Outcomes = append(report.Outcomes, domain.BatchOutcome{
			NotificationID:  n.ID,
			SubscriberID:    sub.ID,
			Result:          res.result,
			TransportStatus: res.status,
			CreatedAt:       recordedAt,
		})
		if e.metrics != nil {
			e.metrics.IncSend(strings.ToLower(res.result.String()))
		}

		switch res.result {
		case domain.OutcomeSuccess:
			report.Sent++
			if err := e.subscribers.RecordSuccess(ctx, sub.ID, recordedAt); err != nil {
				e.logger.Warn("failed to record subscriber success",
					zap.Int64("subscriberId", sub.ID),
					zap.Error(err),
				)
			}
		case domain.OutcomeRetryable:
			report.RetryableFailed++
			if err := e.subscribers.RecordFailure(ctx, sub.ID); err != nil {
				e.logger.Warn("failed to record subscriber failure",
					zap.Int64("subscriberId", sub.ID),
					zap.Error(err),
				)
			}
		case domain.OutcomePermanent:
			report.PermanentFailed = append(report.PermanentFailed, sub.ID)
		}
	}

	e.pruneSubscribers(ctx, n.ID, report.PermanentFailed)

	return report, nil
}

func (e *Executor) sendOne(ctx context.Context, sub domain.Subscriber, payload []byte) sendResult {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, sendRateScope); err != nil {
			// The send never left the process, so nothing proved the endpoint
			// is gone. Always retryable, whatever the limiter failed with.
			e.logger.Debug("rate limiter rejected send",
				zap.Int64("subscriberId", sub.ID),
				zap.Error(err),
			)
			return sendResult{result: domain.OutcomeRetryable}
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	if e.metrics != nil {
		e.metrics.IncSendsInflight()
		defer e.metrics.DecSendsInflight()
	}

	start := e.now()
	resp, err := e.provider.Send(sendCtx, sub, payload)
	if e.metrics != nil {
		e.metrics.ObserveSendDuration(e.now().Sub(start))
	}

	result, status := provider.Classify(resp, err)
	if result != domain.OutcomeSuccess {
		e.logger.Debug("push send did not succeed",
			zap.Int64("subscriberId", sub.ID),
			zap.String("result", result.String()),
			zap.Int("transportStatus", status),
			zap.Error(err),
		)
	}
	return sendResult{result: result, status: status}
}

// pruneSubscribers removes permanently failed endpoints so later pages and
// later notifications never contact them again. Re-removing an id that is
// already gone is a no-op.
func (e *Executor) pruneSubscribers(ctx context.Context, notificationID string, ids []int64) {
	for _, id := range ids {
		if err := e.subscribers.DeleteByID(ctx, id); err != nil {
			e.logger.Warn("failed to prune subscriber",
				zap.String("notificationId", notificationID),
				zap.Int64("subscriberId", id),
				zap.Error(err),
			)
			continue
		}
		if e.metrics != nil {
			e.metrics.IncSubscriberPruned()
		}
		e.logger.Info("pruned permanently failed subscriber",
			zap.String("notificationId", notificationID),
			zap.Int64("subscriberId", id),
		)
	}
}
