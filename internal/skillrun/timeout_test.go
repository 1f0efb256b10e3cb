package skillrun

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCallWithTimeout_DeadlineExceededBecomesRetryableText(t *testing.T) {
	_, err := callWithTimeout(context.Background(), 0, 10*time.Millisecond, func(callCtx context.Context) (map[string]any, error) {
		<-callCtx.Done()
		return nil, callCtx.Err()
	})
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected error text to contain %q for the retry marker to match, got %q", "timed out", err.Error())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the wrapped error to unwrap to context.DeadlineExceeded")
	}
}

func TestCallWithTimeout_PassesThroughFastCall(t *testing.T) {
	raw, err := callWithTimeout(context.Background(), 0, time.Second, func(callCtx context.Context) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw["ok"] != true {
		t.Fatalf("expected passthrough result, got %v", raw)
	}
}

func TestCallWithTimeout_TimeoutSecOverridesFallback(t *testing.T) {
	start := time.Now()
	_, err := callWithTimeout(context.Background(), 1, time.Hour, func(callCtx context.Context) (map[string]any, error) {
		<-callCtx.Done()
		return nil, callCtx.Err()
	})
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected the 1s override to apply instead of the 1h fallback, took %s", elapsed)
	}
}
