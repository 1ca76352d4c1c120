package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

// ProviderError classifies push service call failures.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "push provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Classify maps a send result onto the delivery outcome taxonomy:
//
//	2xx                          -> success
//	404 / 410                    -> permanent (endpoint gone, prune)
//	429 / 5xx                    -> retryable (provider pressure)
//	other 4xx                    -> permanent (malformed subscription)
//	timeout / connection error   -> retryable
//	non-network error            -> permanent (bad key material)
//
// The returned status is what reached the wire, zero when nothing did.
func Classify(resp *Response, err error) (domain.OutcomeResult, int) {
	if err != nil {
		var providerErr *ProviderError
		if errors.As(err, &providerErr) {
			if providerErr.Transient {
				return domain.OutcomeRetryable, providerErr.StatusCode
			}
			return domain.OutcomePermanent, providerErr.StatusCode
		}

		if isNetworkError(err) {
			return domain.OutcomeRetryable, 0
		}

		// Encryption or request construction failed before any network I/O;
		// the subscription's key material is unusable.
		return domain.OutcomePermanent, 0
	}

	if resp == nil {
		return domain.OutcomeRetryable, 0
	}

	status := resp.StatusCode
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return domain.OutcomeSuccess, status
	case status == http.StatusNotFound || status == http.StatusGone:
		return domain.OutcomePermanent, status
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return domain.OutcomeRetryable, status
	default:
		return domain.OutcomePermanent, status
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
