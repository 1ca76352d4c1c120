package domain

import "time"

// OutcomeResult classifies one per-subscriber send.
type OutcomeResult string

const (
	// OutcomeSuccess is a 2xx from the push service.
	OutcomeSuccess OutcomeResult = "SUCCESS"
	// OutcomeRetryable is a transient failure; the subscriber stays registered.
	OutcomeRetryable OutcomeResult = "RETRYABLE_FAILURE"
	// OutcomePermanent means the endpoint will never succeed again and the
	// subscriber must be pruned.
	OutcomePermanent OutcomeResult = "PERMANENT_FAILURE"
)

func (r OutcomeResult) String() string { return string(r) }

func (r OutcomeResult) IsValid() bool {
	switch r {
	case OutcomeSuccess, OutcomeRetryable, OutcomePermanent:
		return true
	}
	return false
}

// BatchOutcome is one append-only audit row for a send performed during a
// batch. TransportStatus is zero when the send never reached the push service.
type BatchOutcome struct {
	ID              int64
	NotificationID  string
	SubscriberID    int64
	Result          OutcomeResult
	TransportStatus int
	CreatedAt       time.Time
}
