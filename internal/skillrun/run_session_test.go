package skillrun

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/mechanismctl/diagnose/internal/mechanism"
)

type fakeProvider struct {
	name       string
	calls      int32
	failFirstN int32
	fixedErr   error
	response   map[string]any
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.fixedErr != nil {
		return nil, f.fixedErr
	}
	if n <= f.failFirstN {
		return nil, errors.New("timed out waiting for model")
	}
	return f.response, nil
}

// hangingProvider blocks past the caller's deadline on its first N calls
// (simulating a provider that never responds), then answers immediately.
type hangingProvider struct {
	name     string
	hangFor  int32
	calls    int32
	response map[string]any
}

func (p *hangingProvider) Name() string { return p.name }

func (p *hangingProvider) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if n <= p.hangFor {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.response, nil
}

func digestsOfLen(n int) []mechanism.SessionDigest {
	out := make([]mechanism.SessionDigest, n)
	for i := range out {
		out[i] = mechanism.SessionDigest{SessionID: fmt.Sprintf("s-%d", i)}
	}
	return out
}

func TestRunSessions_PreservesOrder(t *testing.T) {
	digests := digestsOfLen(10)
	provider := &fakeProvider{name: "fake", response: map[string]any{"summary": "ok"}}

	results, errs, err := RunSessions(context.Background(), digests, SessionRunOptions{
		RunID: "run-1", Provider: provider, Model: "m", SkillPrompt: "skill", Engine: "api", Workers: 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no failures, got %v", errs)
	}
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if r["session_id"] != fmt.Sprintf("s-%d", i) {
			t.Fatalf("expected session order preserved at index %d, got %v", i, r["session_id"])
		}
	}
}

func TestRunSessions_RetriesTransientFailures(t *testing.T) {
	digests := digestsOfLen(1)
	provider := &fakeProvider{name: "fake", failFirstN: 1, response: map[string]any{"summary": "ok"}}

	results, errs, err := RunSessions(context.Background(), digests, SessionRunOptions{
		RunID: "run-1", Provider: provider, Model: "m", SkillPrompt: "skill", Engine: "api", Workers: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected eventual success after retries, got errors: %v", errs)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestRunSessions_TimedOutCallsRetryThenSucceed(t *testing.T) {
	digests := digestsOfLen(1)
	provider := &hangingProvider{name: "fake", hangFor: 2, response: map[string]any{"summary": "ok"}}

	results, errs, err := RunSessions(context.Background(), digests, SessionRunOptions{
		RunID: "run-1", Provider: provider, Model: "m", SkillPrompt: "skill", Engine: "api", Workers: 1,
		TimeoutSec: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected eventual success after two timeouts, got errors: %v", errs)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if provider.calls != 3 {
		t.Fatalf("expected 2 timed-out calls plus 1 success, got %d calls", provider.calls)
	}
}

func TestRunSessions_NonRetryableFailsFast(t *testing.T) {
	digests := digestsOfLen(1)
	provider := &fakeProvider{name: "fake", fixedErr: errors.New("invalid API key")}

	_, errs, err := RunSessions(context.Background(), digests, SessionRunOptions{
		RunID: "run-1", Provider: provider, Model: "m", SkillPrompt: "skill", Engine: "api", Workers: 1,
	})
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 session failure, got %v", errs)
	}
	if atomic.LoadInt32(&provider.calls) != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable error, got %d", provider.calls)
	}
}
