package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pushfleet/broadcast-engine/internal/domain"
	"github.com/pushfleet/broadcast-engine/internal/repository"
)

// BroadcastService is the synchronous edge of the engine: it creates
// scheduled broadcasts, maintains the subscription registry, and serves the
// reporting reads. Delivery itself happens tick by tick in the Scheduler.
type BroadcastService struct {
	notifications   repository.NotificationRepository
	subscribers     repository.SubscriberRepository
	outcomes        repository.OutcomeRepository
	logger          *zap.Logger
	payloadMaxBytes int
}

// ScheduleRequest is the explicit command object for scheduling a broadcast;
// the engine reads no ambient state.
type ScheduleRequest struct {
	Title     string
	Body      string
	ImageURL  string
	TargetURL string
}

func NewBroadcastService(
	notifications repository.NotificationRepository,
	subscribers repository.SubscriberRepository,
	outcomes repository.OutcomeRepository,
	payloadMaxBytes int,
	logger *zap.Logger,
) (*BroadcastService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if subscribers == nil {
		return nil, fmt.Errorf("subscriber repository is required")
	}
	if outcomes == nil {
		return nil, fmt.Errorf("outcome repository is required")
	}
	if payloadMaxBytes <= 0 {
		payloadMaxBytes = domain.DefaultMaxPayloadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BroadcastService{
		notifications:   notifications,
		subscribers:     subscribers,
		outcomes:        outcomes,
		logger:          logger,
		payloadMaxBytes: payloadMaxBytes,
	}, nil
}

// Schedule creates the broadcast in scheduled state and returns immediately;
// delivery happens over later ticks. Payload construction problems (empty
// content, oversized beyond truncation) surface here, synchronously, before
// anything is persisted.
func (s *BroadcastService) Schedule(ctx context.Context, req ScheduleRequest) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := domain.BuildPayload(req.Title, req.Body, req.ImageURL, req.TargetURL, s.payloadMaxBytes)
	if err != nil {
		return nil, err
	}

	n := &domain.Notification{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
		ImageURL:  strings.TrimSpace(req.ImageURL),
		TargetURL: strings.TrimSpace(req.TargetURL),
		Payload:   payload,
		Status:    domain.StatusScheduled,
		Cursor:    domain.CursorStart,
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create broadcast: %w", err)
	}

	s.logger.Info("broadcast scheduled",
		zap.String("notificationId", n.ID),
		zap.Int("payloadBytes", len(payload)),
	)

	return n, nil
}

// RegisterSubscription upserts a subscriber keyed on its endpoint. A repeat
// registration, with the same or rotated keys, succeeds and never duplicates.
func (s *BroadcastService) RegisterSubscription(ctx context.Context, endpoint, p256dh, auth string) (*domain.Subscriber, error) {
	sub := &domain.Subscriber{
		Endpoint: strings.TrimSpace(endpoint),
		P256dh:   strings.TrimSpace(p256dh),
		Auth:     strings.TrimSpace(auth),
	}

	if err := s.subscribers.Upsert(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Debug("subscription registered", zap.Int64("subscriberId", sub.ID))
	return sub, nil
}

// Unsubscribe removes the endpoint's subscription; absent endpoints are a
// silent no-op.
func (s *BroadcastService) Unsubscribe(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", domain.ErrValidation)
	}
	return s.subscribers.DeleteByEndpoint(ctx, endpoint)
}

func (s *BroadcastService) SubscriberCount(ctx context.Context) (int64, error) {
	return s.subscribers.Count(ctx)
}

func (s *BroadcastService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

func (s *BroadcastService) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	return s.notifications.List(ctx, params)
}

// Cancel stops a scheduled or running broadcast. Ticks already in flight
// finish their current batch; no later tick will do send work.
func (s *BroadcastService) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if err := s.notifications.Cancel(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logger.Info("broadcast cancelled", zap.String("notificationId", id))
	return nil
}

func (s *BroadcastService) ListOutcomes(ctx context.Context, notificationID string, limit int) ([]domain.BatchOutcome, error) {
	if strings.TrimSpace(notificationID) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.outcomes.ListByNotification(ctx, strings.TrimSpace(notificationID), limit)
}
