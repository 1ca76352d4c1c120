package observability

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestBroadcastID_ContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithBroadcastID(context.Background(), "n-123")
	notificationID, ok := BroadcastIDFromContext(ctx)
	if !ok {
		t.Fatal("expected broadcast id to exist")
	}
	if notificationID != "n-123" {
		t.Fatalf("broadcast id=%q, want=%q", notificationID, "n-123")
	}
}

func TestBroadcastID_MissingFromContext(t *testing.T) {
	t.Parallel()

	if _, ok := BroadcastIDFromContext(context.Background()); ok {
		t.Fatal("expected no broadcast id on a bare context")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("info")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plain := WithContextLogger(logger, context.Background())
	if plain == nil {
		t.Fatal("logger should pass through without a broadcast id")
	}

	enriched := WithContextLogger(logger, WithBroadcastID(context.Background(), "n-9"))
	if enriched == nil {
		t.Fatal("enriched logger should not be nil")
	}
}
