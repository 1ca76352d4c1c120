package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultMaxPayloadBytes bounds the serialized payload under the ~4 KB limit
// push services enforce, with headroom for the encryption overhead.
const DefaultMaxPayloadBytes = 3800

const truncationSuffix = "…"

// Payload is the canonical wire format delivered to every subscriber of a
// broadcast. It is built once per notification, never per subscriber.
type Payload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Image     string `json:"image,omitempty"`
	URLToOpen string `json:"urlToOpen"`
}

// BuildPayload serializes the notification content, truncating the body
// deterministically when the result would exceed maxBytes. Title and
// urlToOpen are never dropped; they drive the click behavior. Returns a
// validation error when both title and body are empty.
func BuildPayload(title, body, imageURL, targetURL string, maxBytes int) ([]byte, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" && body == "" {
		return nil, fmt.Errorf("%w: notification needs a title or a body", ErrValidation)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}

	p := Payload{
		Title:     title,
		Body:      body,
		Image:     strings.TrimSpace(imageURL),
		URLToOpen: strings.TrimSpace(targetURL),
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	if len(raw) <= maxBytes {
		return raw, nil
	}

	// Shave the body rune by rune until the serialized form fits. The cut is
	// at least the byte excess per round, so this terminates quickly even for
	// very long bodies.
	runes := []rune(body)
	for len(runes) > 0 {
		cut := len(raw) - maxBytes
		if cut < 1 {
			cut = 1
		}
		if cut > len(runes) {
			cut = len(runes)
		}
		runes = runes[:len(runes)-cut]

		p.Body = strings.TrimRight(string(runes), " ") + truncationSuffix
		raw, err = json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize payload: %w", err)
		}
		if len(raw) <= maxBytes {
			return raw, nil
		}
	}

	return nil, fmt.Errorf("%w: payload exceeds %d bytes even with an empty body", ErrValidation, maxBytes)
}
