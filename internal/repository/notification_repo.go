package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

type ListParams struct {
	Status   *domain.Status
	Page     int
	PageSize int
}

// BatchCommit is the durable result of one tick: the cursor advance, counter
// deltas, and the audit rows, applied in a single transaction.
type BatchCommit struct {
	Cursor   int64
	Sent     int
	Failed   int
	Outcomes []domain.BatchOutcome
}

// NotificationRepository persists broadcast notifications and their delivery
// progress. Lease operations are conditional updates; the row's lease fields
// are the only mutual-exclusion point in the system.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	ListTickable(ctx context.Context, limit int) ([]string, error)
	AcquireLease(ctx context.Context, id string, token string, ttl time.Duration) (*domain.Notification, error)
	ReleaseLease(ctx context.Context, id string, token string) error
	MarkRunning(ctx context.Context, id string, totalAtStart int) error
	CommitBatch(ctx context.Context, id string, token string, commit BatchCommit) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	RecordTickFailure(ctx context.Context, id string) (int, error)
}

type GormNotificationRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db, now: time.Now}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

// ListTickable returns ids of notifications that still need ticks, oldest
// first, for the internal tick runner.
func (r *GormNotificationRepo) ListTickable(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("status IN ?", []domain.Status{domain.StatusScheduled, domain.StatusRunning}).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AcquireLease claims the notification for one tick. The conditional update
// succeeds only when the notification is still tickable and no unexpired
// lease is held, so two concurrent ticks cannot both win. Returns
// ErrLeaseHeld when another tick is in progress and ErrConflict when the
// notification is terminal.
func (r *GormNotificationRepo) AcquireLease(ctx context.Context, id string, token string, ttl time.Duration) (*domain.Notification, error) {
	now := r.now().UTC()
	expiresAt := now.Add(ttl)

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ? AND (lease_expires_at IS NULL OR lease_expires_at <= ?)",
			id,
			[]domain.Status{domain.StatusScheduled, domain.StatusRunning},
			now,
		).
		Updates(map[string]any{
			"lease_token":      token,
			"lease_expires_at": expiresAt,
		})
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status.IsTerminal() || current.Status == domain.StatusDraft {
			return nil, domain.ErrConflict
		}
		return nil, domain.ErrLeaseHeld
	}

	return r.GetByID(ctx, id)
}

// ReleaseLease clears the lease if the caller still owns it. Releasing a
// lease already taken over by someone else is a no-op.
func (r *GormNotificationRepo) ReleaseLease(ctx context.Context, id string, token string) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND lease_token = ?", id, token).
		Updates(map[string]any{
			"lease_token":      "",
			"lease_expires_at": nil,
		}).Error
}

func (r *GormNotificationRepo) MarkRunning(ctx context.Context, id string, totalAtStart int) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusScheduled).
		Updates(map[string]any{
			"status":         domain.StatusRunning,
			"total_at_start": totalAtStart,
			"cursor":         domain.CursorStart,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// CommitBatch advances the cursor, adds the counter deltas, appends the audit
// rows, and clears the tick-failure streak, all in one transaction. The lease
// token guard means a tick that lost its lease mid-flight cannot commit over
// someone else's progress. The cursor guard keeps it monotonic.
func (r *GormNotificationRepo) CommitBatch(ctx context.Context, id string, token string, commit BatchCommit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&NotificationModel{}).
			Where("id = ? AND status = ? AND lease_token = ? AND cursor <= ?",
				id, domain.StatusRunning, token, commit.Cursor,
			).
			Updates(map[string]any{
				"cursor":        commit.Cursor,
				"sent_count":    gorm.Expr("sent_count + ?", commit.Sent),
				"failed_count":  gorm.Expr("failed_count + ?", commit.Failed),
				"tick_failures": 0,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrConflict
		}

		if len(commit.Outcomes) == 0 {
			return nil
		}

		models := make([]BatchOutcomeModel, 0, len(commit.Outcomes))
		for i := range commit.Outcomes {
			models = append(models, *outcomeModelFromDomain(&commit.Outcomes[i]))
		}
		return tx.CreateInBatches(&models, 100).Error
	})
}

func (r *GormNotificationRepo) MarkCompleted(ctx context.Context, id string) error {
	return r.transitionTo(ctx, id, domain.StatusCompleted, []domain.Status{domain.StatusRunning})
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string) error {
	return r.transitionTo(ctx, id, domain.StatusFailed, []domain.Status{domain.StatusRunning})
}

func (r *GormNotificationRepo) Cancel(ctx context.Context, id string) error {
	return r.transitionTo(ctx, id, domain.StatusCancelled, []domain.Status{domain.StatusScheduled, domain.StatusRunning})
}

func (r *GormNotificationRepo) transitionTo(ctx context.Context, id string, next domain.Status, from []domain.Status) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", next)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

// RecordTickFailure bumps the consecutive commit-failure counter and returns
// the new value so the scheduler can apply the retry budget.
func (r *GormNotificationRepo) RecordTickFailure(ctx context.Context, id string) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("tick_failures", gorm.Expr("tick_failures + 1")).Error
	if err != nil {
		return 0, err
	}

	var model NotificationModel
	if err := r.db.WithContext(ctx).Select("tick_failures").First(&model, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return model.TickFailures, nil
}
