package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a broadcast notification.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further tick may mutate the notification.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the broadcast state machine. Transitions are
// monotonic; only cancel may jump from a non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusScheduled || next == StatusCancelled
	case StatusScheduled:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// CursorStart is the sentinel a broadcast's cursor begins at; subscriber ids
// are strictly positive, so the first page starts after it.
const CursorStart int64 = 0

// Notification is one authored broadcast and its durable delivery progress.
type Notification struct {
	ID             string
	Title          string
	Body           string
	ImageURL       string
	TargetURL      string
	Payload        []byte
	Status         Status
	Cursor         int64
	TotalAtStart   int
	SentCount      int
	FailedCount    int
	TickFailures   int
	LeaseToken     string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (n *Notification) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", ErrValidation)
	}
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Body) == "" {
		return fmt.Errorf("%w: notification needs a title or a body", ErrValidation)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	if n.Cursor < CursorStart {
		return fmt.Errorf("%w: cursor must not regress below the start sentinel", ErrValidation)
	}
	return nil
}

// LeaseActive reports whether the lease guards the notification at the given
// instant.
func (n *Notification) LeaseActive(now time.Time) bool {
	if n == nil || n.LeaseToken == "" || n.LeaseExpiresAt == nil {
		return false
	}
	return n.LeaseExpiresAt.After(now)
}
