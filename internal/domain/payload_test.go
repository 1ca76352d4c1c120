package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestBuildPayloadWithinLimit(t *testing.T) {
	t.Parallel()

	raw, err := BuildPayload("Release day", "Version 2.0 is out", "https://cdn.example.com/banner.png", "https://example.com/blog/release", DefaultMaxPayloadBytes)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("payload should be valid JSON: %v", err)
	}
	if p.Title != "Release day" {
		t.Fatalf("title = %q, want %q", p.Title, "Release day")
	}
	if p.Body != "Version 2.0 is out" {
		t.Fatalf("body = %q, want untouched", p.Body)
	}
	if p.URLToOpen != "https://example.com/blog/release" {
		t.Fatalf("urlToOpen = %q, want target url intact", p.URLToOpen)
	}
}

func TestBuildPayloadTruncatesLongBody(t *testing.T) {
	t.Parallel()

	longBody := strings.Repeat("a", 10_000)
	raw, err := BuildPayload("Weekly digest", longBody, "", "https://example.com/digest", DefaultMaxPayloadBytes)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if len(raw) > DefaultMaxPayloadBytes {
		t.Fatalf("payload size = %d, want <= %d", len(raw), DefaultMaxPayloadBytes)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("payload should be valid JSON: %v", err)
	}
	if p.Title != "Weekly digest" {
		t.Fatal("title must survive truncation")
	}
	if p.URLToOpen != "https://example.com/digest" {
		t.Fatal("target url must survive truncation")
	}
	if !strings.HasSuffix(p.Body, "…") {
		t.Fatalf("truncated body should carry the ellipsis suffix, got tail %q", p.Body[max(0, len(p.Body)-8):])
	}
	if len(p.Body) >= len(longBody) {
		t.Fatal("body should have been shortened")
	}
}

func TestBuildPayloadTruncationIsDeterministic(t *testing.T) {
	t.Parallel()

	longBody := strings.Repeat("push all the things ", 600)
	first, err := BuildPayload("t", longBody, "", "https://example.com", 1024)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	second, err := BuildPayload("t", longBody, "", "https://example.com", 1024)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("same input should truncate to the same payload")
	}
}

func TestBuildPayloadRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	_, err := BuildPayload("", "   ", "", "https://example.com", DefaultMaxPayloadBytes)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestBuildPayloadBodyOnlyIsAllowed(t *testing.T) {
	t.Parallel()

	raw, err := BuildPayload("", "body without a title", "", "https://example.com", DefaultMaxPayloadBytes)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("payload should be valid JSON: %v", err)
	}
	if p.Body != "body without a title" {
		t.Fatalf("body = %q", p.Body)
	}
}

func TestBuildPayloadMultibyteBodyStaysValidUTF8(t *testing.T) {
	t.Parallel()

	longBody := strings.Repeat("übergrößenträger ", 500)
	raw, err := BuildPayload("t", longBody, "", "https://example.com", 512)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if len(raw) > 512 {
		t.Fatalf("payload size = %d, want <= 512", len(raw))
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("payload should be valid JSON: %v", err)
	}
}
