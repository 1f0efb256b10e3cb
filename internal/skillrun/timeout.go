package skillrun

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default per-call Skill timeouts (§5): "Each provider call has a hard
// timeout, default 180s aggregation / 90s per session".
const (
	DefaultSessionTimeout     = 90 * time.Second
	DefaultIncrementalTimeout = 180 * time.Second
)

// callWithTimeout bounds one Provider.Infer call with timeoutSec seconds
// (falling back to fallback when timeoutSec is zero), and turns a
// deadline-exceeded failure into an error whose text matches the retry
// package's "timed out" marker so it raises a retryable error (§5) instead
// of being classified permanent.
func callWithTimeout(ctx context.Context, timeoutSec int, fallback time.Duration, call func(context.Context) (map[string]any, error)) (map[string]any, error) {
	timeout := fallback
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := call(callCtx)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("provider call timed out after %s: %w", timeout, err)
		}
		return nil, err
	}
	return raw, nil
}
