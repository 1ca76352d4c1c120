package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Subscriber is one browser push subscription: the provider-issued endpoint
// plus the key material needed to encrypt payloads for it. The endpoint is
// globally unique; registration upserts on it.
type Subscriber struct {
	ID                  int64
	Endpoint            string
	P256dh              string
	Auth                string
	CreatedAt           time.Time
	LastSuccessAt       *time.Time
	ConsecutiveFailures int
}

func (s *Subscriber) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: subscriber is required", ErrValidation)
	}
	endpoint := strings.TrimSpace(s.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrValidation)
	}
	parsed, err := url.ParseRequestURI(endpoint)
	if err != nil || parsed.Scheme != "https" {
		return fmt.Errorf("%w: endpoint must be an https URL", ErrValidation)
	}
	if strings.TrimSpace(s.P256dh) == "" {
		return fmt.Errorf("%w: p256dh key is required", ErrValidation)
	}
	if strings.TrimSpace(s.Auth) == "" {
		return fmt.Errorf("%w: auth secret is required", ErrValidation)
	}
	return nil
}
