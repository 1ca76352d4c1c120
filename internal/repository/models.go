package repository

import (
	"time"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

// SubscriberModel is the persistence model for the subscribers table.
// The bigserial primary key doubles as the broadcast cursor ordering:
// ids only grow, and deletions never renumber survivors.
type SubscriberModel struct {
	ID                  int64   `gorm:"primaryKey;autoIncrement"`
	Endpoint            string  `gorm:"type:text;not null;uniqueIndex:idx_subscribers_endpoint"`
	P256dh              string  `gorm:"type:text;not null"`
	Auth                string  `gorm:"type:text;not null"`
	ConsecutiveFailures int     `gorm:"not null;default:0"`
	LastSuccessAt       *time.Time
	CreatedAt           time.Time
}

func (SubscriberModel) TableName() string {
	return "subscribers"
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID             string        `gorm:"type:uuid;primaryKey"`
	Title          string        `gorm:"type:text;not null"`
	Body           string        `gorm:"type:text;not null"`
	ImageURL       string        `gorm:"type:text;not null;default:''"`
	TargetURL      string        `gorm:"type:text;not null;default:''"`
	Payload        []byte        `gorm:"type:bytea;not null"`
	Status         domain.Status `gorm:"type:varchar(20);not null"`
	Cursor         int64         `gorm:"not null;default:0"`
	TotalAtStart   int           `gorm:"not null;default:0"`
	SentCount      int           `gorm:"not null;default:0"`
	FailedCount    int           `gorm:"not null;default:0"`
	TickFailures   int           `gorm:"not null;default:0"`
	LeaseToken     string        `gorm:"type:varchar(36);not null;default:''"`
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// BatchOutcomeModel is the persistence model for batch_outcomes. Rows are
// append-only audit records; they are never updated.
type BatchOutcomeModel struct {
	ID              int64                `gorm:"primaryKey;autoIncrement"`
	NotificationID  string               `gorm:"type:uuid;not null"`
	SubscriberID    int64                `gorm:"not null"`
	Result          domain.OutcomeResult `gorm:"type:varchar(20);not null"`
	TransportStatus int                  `gorm:"not null;default:0"`
	CreatedAt       time.Time
}

func (BatchOutcomeModel) TableName() string {
	return "batch_outcomes"
}

func subscriberModelFromDomain(s *domain.Subscriber) *SubscriberModel {
	if s == nil {
		return nil
	}

	return &SubscriberModel{
		ID:                  s.ID,
		Endpoint:            s.Endpoint,
		P256dh:              s.P256dh,
		Auth:                s.Auth,
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastSuccessAt:       s.LastSuccessAt,
		CreatedAt:           s.CreatedAt,
	}
}

func subscriberModelToDomain(m *SubscriberModel) *domain.Subscriber {
	if m == nil {
		return nil
	}

	return &domain.Subscriber{
		ID:                  m.ID,
		Endpoint:            m.Endpoint,
		P256dh:              m.P256dh,
		Auth:                m.Auth,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastSuccessAt:       m.LastSuccessAt,
		CreatedAt:           m.CreatedAt,
	}
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:             n.ID,
		Title:          n.Title,
		Body:           n.Body,
		ImageURL:       n.ImageURL,
		TargetURL:      n.TargetURL,
		Payload:        n.Payload,
		Status:         n.Status,
		Cursor:         n.Cursor,
		TotalAtStart:   n.TotalAtStart,
		SentCount:      n.SentCount,
		FailedCount:    n.FailedCount,
		TickFailures:   n.TickFailures,
		LeaseToken:     n.LeaseToken,
		LeaseExpiresAt: n.LeaseExpiresAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:             m.ID,
		Title:          m.Title,
		Body:           m.Body,
		ImageURL:       m.ImageURL,
		TargetURL:      m.TargetURL,
		Payload:        m.Payload,
		Status:         m.Status,
		Cursor:         m.Cursor,
		TotalAtStart:   m.TotalAtStart,
		SentCount:      m.SentCount,
		FailedCount:    m.FailedCount,
		TickFailures:   m.TickFailures,
		LeaseToken:     m.LeaseToken,
		LeaseExpiresAt: m.LeaseExpiresAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func outcomeModelFromDomain(o *domain.BatchOutcome) *BatchOutcomeModel {
	if o == nil {
		return nil
	}

	return &BatchOutcomeModel{
		ID:              o.ID,
		NotificationID:  o.NotificationID,
		SubscriberID:    o.SubscriberID,
		Result:          o.Result,
		TransportStatus: o.TransportStatus,
		CreatedAt:       o.CreatedAt,
	}
}

func outcomeModelToDomain(m *BatchOutcomeModel) *domain.BatchOutcome {
	if m == nil {
		return nil
	}

	return &domain.BatchOutcome{
		ID:              m.ID,
		NotificationID:  m.NotificationID,
		SubscriberID:    m.SubscriberID,
		Result:          m.Result,
		TransportStatus: m.TransportStatus,
		CreatedAt:       m.CreatedAt,
	}
}
