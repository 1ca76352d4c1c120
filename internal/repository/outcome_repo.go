package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

// OutcomeRepository reads the append-only audit trail. Writes happen inside
// NotificationRepository.CommitBatch so they share the cursor's transaction.
type OutcomeRepository interface {
	ListByNotification(ctx context.Context, notificationID string, limit int) ([]domain.BatchOutcome, error)
}

type GormOutcomeRepo struct {
	db *gorm.DB
}

func NewGormOutcomeRepo(db *gorm.DB) *GormOutcomeRepo {
	return &GormOutcomeRepo{db: db}
}

func (r *GormOutcomeRepo) ListByNotification(ctx context.Context, notificationID string, limit int) ([]domain.BatchOutcome, error) {
	if limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var models []BatchOutcomeModel
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.BatchOutcome, 0, len(models))
	for i := range models {
		outcomes = append(outcomes, *outcomeModelToDomain(&models[i]))
	}

	return outcomes, nil
}
