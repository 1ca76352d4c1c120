package provider

import (
	"context"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

// Provider is the outbound push delivery port. Send delivers one pre-built
// payload to one subscriber's endpoint.
type Provider interface {
	Send(ctx context.Context, subscriber domain.Subscriber, payload []byte) (*Response, error)
}

// Response stores the push service's answer for classification and audit.
type Response struct {
	StatusCode int
}
