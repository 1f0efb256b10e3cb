package skillrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/retry"
)

// SessionRunOptions configures a batch dispatch of SessionDigests to a
// single Provider.
type SessionRunOptions struct {
	RunID       string
	Provider    Provider
	Model       string
	SkillPrompt string
	// Engine is stamped into generated_by ("api" for every current
	// backend; kept as a field so a future local/offline engine has
	// somewhere to put its own label).
	Engine string
	// Workers bounds concurrent in-flight Infer calls. 1 runs serially.
	Workers int
	// TimeoutSec bounds each Infer call; 0 uses DefaultSessionTimeout (§5).
	TimeoutSec int
}

// SessionError records one digest that failed inference after retries.
type SessionError struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// RunSessions dispatches digests to opts.Provider, retrying transient
// failures, and returns normalized SessionMechanismV1 payloads in the same
// order the digests were given — a bounded worker pool still preserves
// input order in its output, unlike a naive fan-in over a channel.
func RunSessions(ctx context.Context, digests []mechanism.SessionDigest, opts SessionRunOptions) ([]map[string]any, []SessionError, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	type slot struct {
		result map[string]any
		err    *SessionError
	}
	slots := make([]slot, len(digests))

	indices := make(chan int, len(digests))
	for i := range digests {
		indices <- i
	}
	close(indices)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				digest := digests[i]
				raw, err := inferSessionWithRetry(ctx, opts, digest)
				if err != nil {
					slots[i].err = &SessionError{SessionID: digest.SessionID, Error: err.Error()}
					continue
				}
				slots[i].result = NormalizeSessionOutput(raw, digest, opts.RunID, opts.Provider.Name(), opts.Model, opts.Engine)
			}
		}()
	}
	wg.Wait()

	results := make([]map[string]any, 0, len(digests))
	var errs []SessionError
	for _, s := range slots {
		if s.err != nil {
			errs = append(errs, *s.err)
			continue
		}
		results = append(results, s.result)
	}
	return results, errs, nil
}

func inferSessionWithRetry(ctx context.Context, opts SessionRunOptions, digest mechanism.SessionDigest) (map[string]any, error) {
	config := retry.Exponential(3, time.Second, 4*time.Second)
	config.Jitter = false

	value, result := retry.DoWithValue(ctx, config, func() (map[string]any, error) {
		raw, err := callWithTimeout(ctx, opts.TimeoutSec, DefaultSessionTimeout, func(callCtx context.Context) (map[string]any, error) {
			return opts.Provider.Infer(callCtx, opts.Model, opts.SkillPrompt, digest)
		})
		if err != nil {
			return nil, retry.WrapSkillError(err)
		}
		return raw, nil
	})
	if result.Err != nil {
		return nil, fmt.Errorf("session %s: %w", digest.SessionID, result.Err)
	}
	return value, nil
}
