package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-resty/resty/v2"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

const (
	defaultSendTimeout = 10 * time.Second
	// defaultPushTTL is how long the push service may hold an undelivered
	// message for an offline browser.
	defaultPushTTL = 48 * 3600
)

// VAPIDConfig carries the server identification keys for Web Push.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	// Subscriber is the contact URI (mailto:) sent in the VAPID claims.
	Subscriber string
}

// WebPushProvider encrypts payloads per subscriber and posts them to the
// subscriber's push service endpoint.
type WebPushProvider struct {
	options webpush.Options
}

func NewWebPushProvider(vapid VAPIDConfig, timeout time.Duration) (*WebPushProvider, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewWebPushProviderWithClient(vapid, client)
}

func NewWebPushProviderWithClient(vapid VAPIDConfig, client *resty.Client) (*WebPushProvider, error) {
	if strings.TrimSpace(vapid.PublicKey) == "" || strings.TrimSpace(vapid.PrivateKey) == "" {
		return nil, fmt.Errorf("vapid key pair is required")
	}
	if strings.TrimSpace(vapid.Subscriber) == "" {
		return nil, fmt.Errorf("vapid subscriber contact is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &WebPushProvider{
		options: webpush.Options{
			HTTPClient:      client.GetClient(),
			Subscriber:      strings.TrimSpace(vapid.Subscriber),
			VAPIDPublicKey:  strings.TrimSpace(vapid.PublicKey),
			VAPIDPrivateKey: strings.TrimSpace(vapid.PrivateKey),
			TTL:             defaultPushTTL,
		},
	}, nil
}

func (p *WebPushProvider) Send(ctx context.Context, subscriber domain.Subscriber, payload []byte) (*Response, error) {
	if p == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := subscriber.Validate(); err != nil {
		return nil, fmt.Errorf("invalid subscriber: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("payload is required")
	}

	sub := &webpush.Subscription{
		Endpoint: subscriber.Endpoint,
		Keys: webpush.Keys{
			P256dh: subscriber.P256dh,
			Auth:   subscriber.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &p.options)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &ProviderError{
			Message:   "push service returned empty response",
			Transient: true,
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return &Response{StatusCode: resp.StatusCode}, nil
}
