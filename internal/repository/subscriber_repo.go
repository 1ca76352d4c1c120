package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

// SubscriberRepository is the durable subscription registry. Pagination is
// keyset-based on the id so the order stays stable while other callers
// register or prune subscribers.
type SubscriberRepository interface {
	Upsert(ctx context.Context, s *domain.Subscriber) error
	GetByEndpoint(ctx context.Context, endpoint string) (*domain.Subscriber, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	DeleteByID(ctx context.Context, id int64) error
	Page(ctx context.Context, afterID int64, limit int) ([]domain.Subscriber, error)
	Count(ctx context.Context) (int64, error)
	RecordSuccess(ctx context.Context, id int64, at time.Time) error
	RecordFailure(ctx context.Context, id int64) error
}

type GormSubscriberRepo struct {
	db *gorm.DB
}

func NewGormSubscriberRepo(db *gorm.DB) *GormSubscriberRepo {
	return &GormSubscriberRepo{db: db}
}

// Upsert registers a subscriber keyed on endpoint. A re-subscribe with
// rotated keys updates the stored key material instead of inserting a
// duplicate; failure counters reset because the new keys are untested.
func (r *GormSubscriberRepo) Upsert(ctx context.Context, s *domain.Subscriber) error {
	if err := s.Validate(); err != nil {
		return err
	}

	model := subscriberModelFromDomain(s)
	model.ID = 0
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.Assignments(map[string]any{
				"p256dh":               model.P256dh,
				"auth":                 model.Auth,
				"consecutive_failures": 0,
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	// The conflict path does not report the surviving row's id; read it back.
	var stored SubscriberModel
	if err := r.db.WithContext(ctx).First(&stored, "endpoint = ?", model.Endpoint).Error; err != nil {
		return err
	}
	*s = *subscriberModelToDomain(&stored)
	return nil
}

func (r *GormSubscriberRepo) GetByEndpoint(ctx context.Context, endpoint string) (*domain.Subscriber, error) {
	var model SubscriberModel
	err := r.db.WithContext(ctx).First(&model, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return subscriberModelToDomain(&model), nil
}

// DeleteByEndpoint removes a subscription if present; deleting an unknown
// endpoint is a no-op.
func (r *GormSubscriberRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	return r.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&SubscriberModel{}).Error
}

// DeleteByID prunes a permanently failed subscriber. Idempotent: removing an
// already-removed id succeeds.
func (r *GormSubscriberRepo) DeleteByID(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&SubscriberModel{}).Error
}

// Page returns up to limit subscribers with id strictly greater than afterID,
// id ascending.
func (r *GormSubscriberRepo) Page(ctx context.Context, afterID int64, limit int) ([]domain.Subscriber, error) {
	if limit < 1 {
		limit = 1
	}

	var models []SubscriberModel
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	subscribers := make([]domain.Subscriber, 0, len(models))
	for i := range models {
		subscribers = append(subscribers, *subscriberModelToDomain(&models[i]))
	}

	return subscribers, nil
}

func (r *GormSubscriberRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&SubscriberModel{}).Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *GormSubscriberRepo) RecordSuccess(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&SubscriberModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"consecutive_failures": 0,
			"last_success_at":      at,
		}).Error
}

func (r *GormSubscriberRepo) RecordFailure(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&SubscriberModel{}).
		Where("id = ?", id).
		Update("consecutive_failures", gorm.Expr("consecutive_failures + 1")).Error
}
