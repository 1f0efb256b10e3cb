package orchestrate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mechanismctl/diagnose/internal/skillrun"
	"github.com/mechanismctl/diagnose/internal/store"
)

type fixedResponseProvider struct {
	name     string
	response map[string]any
}

func (p *fixedResponseProvider) Name() string { return p.name }

func (p *fixedResponseProvider) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	return p.response, nil
}

func validSessionMechanismResponse() map[string]any {
	return map[string]any{
		"what_happened": []any{"the build broke"},
		"why": []any{
			map[string]any{
				"hypothesis": "stale cache caused the failure",
				"confidence": 0.7,
				"evidence": []any{
					map[string]any{"session_id": "s-1", "turn_id": 1.0, "snippet": "the cache was stale"},
				},
			},
		},
		"how_to_improve": []any{
			map[string]any{
				"trigger": "cache miss", "action": "invalidate cache",
				"expected_gain": "fewer retries", "validation_window": "next 10 runs",
			},
		},
		"summary": "stale cache broke the build",
	}
}

func writeConvFixture(t *testing.T, layout store.Layout, sessionID, createdAt string) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"source":     "claude_code",
		"created_at": createdAt,
		"turns": []any{
			map[string]any{
				"turn_id":            1,
				"user_message":       map[string]any{"content": "why did it fail"},
				"assistant_response": map[string]any{"content": "let me check"},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal conversation fixture: %v", err)
	}
	path := layout.ConversationPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write conversation fixture: %v", err)
	}
}

func writeGoodSidecarFixture(t *testing.T, layout store.Layout, sessionID string) {
	t.Helper()
	raw := validSessionMechanismResponse()
	raw["schema_version"] = "session-mechanism.v1"
	raw["session_id"] = sessionID
	raw["created_at"] = "2026-07-01T00:00:00Z"
	raw["generated_by"] = map[string]any{
		"engine": "api", "provider": "fake", "model": "m",
		"run_id": "prior-run", "generated_at": "2026-07-01T00:00:00Z",
	}
	if err := store.WriteJSON(layout.SessionInsightPath(sessionID), raw); err != nil {
		t.Fatalf("write sidecar fixture: %v", err)
	}
}

var backfillNow = time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

func TestBackfill_DryRunWritesOnlyBundle(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	writeConvFixture(t, layout, "s-1", "2026-07-20T00:00:00Z")

	result, err := Backfill(context.Background(), BackfillOptions{
		Layout: layout, Window: "30d", DryRun: true, Now: backfillNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Targeted != 1 {
		t.Fatalf("expected 1 target, got %d", result.Targeted)
	}
	if result.BundlePath == "" {
		t.Fatalf("expected run bundle path to be recorded")
	}
	if _, err := os.Stat(result.BundlePath); err != nil {
		t.Errorf("expected run bundle to exist on disk: %v", err)
	}
	if _, err := os.Stat(layout.SessionInsightPath("s-1")); !os.IsNotExist(err) {
		t.Errorf("expected no sidecar written on dry run")
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestBackfill_AppliesValidResult(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	writeConvFixture(t, layout, "s-1", "2026-07-20T00:00:00Z")
	provider := &fixedResponseProvider{name: "fake", response: validSessionMechanismResponse()}

	result, err := Backfill(context.Background(), BackfillOptions{
		Layout: layout, Window: "30d", RunID: "run-test",
		Provider: provider, Model: "m", Engine: "api", Workers: 1,
		SkillPrompt: "skill", Now: backfillNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.Created != 1 {
		t.Fatalf("expected 1 created sidecar, got %d", result.Created)
	}
	if _, err := os.Stat(layout.SessionInsightPath("s-1")); err != nil {
		t.Errorf("expected sidecar file to exist: %v", err)
	}
}

func TestBackfill_SkipsSessionWithExistingGoodSidecar(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	writeConvFixture(t, layout, "s-1", "2026-07-20T00:00:00Z")
	writeGoodSidecarFixture(t, layout, "s-1")

	result, err := Backfill(context.Background(), BackfillOptions{
		Layout: layout, Window: "30d", DryRun: true, Now: backfillNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Targeted != 0 {
		t.Fatalf("expected 0 targets for an up-to-date sidecar, got %d", result.Targeted)
	}
}

func TestBackfill_ForceRefreshOverridesExistingGoodSidecar(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	writeConvFixture(t, layout, "s-1", "2026-07-20T00:00:00Z")
	writeGoodSidecarFixture(t, layout, "s-1")

	result, err := Backfill(context.Background(), BackfillOptions{
		Layout: layout, Window: "30d", DryRun: true, ForceRefresh: true, Now: backfillNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Targeted != 1 {
		t.Fatalf("expected force-refresh to retarget the session, got %d", result.Targeted)
	}
}

func TestBackfill_NoAllowPartialBlocksWriteOnFailure(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	writeConvFixture(t, layout, "s-1", "2026-07-20T00:00:00Z")
	// skillrunFailingProvider always fails, non-retryable.
	provider := &skillrunFailingProvider{err: errInvalidKey}

	result, err := Backfill(context.Background(), BackfillOptions{
		Layout: layout, Window: "30d", RunID: "run-test",
		Provider: provider, Model: "m", Engine: "api", Workers: 1,
		SkillPrompt: "skill", Now: backfillNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 1 {
		t.Fatalf("expected exit code 1 without allow-partial, got %d", result.ExitCode)
	}
	if _, err := os.Stat(layout.SessionInsightPath("s-1")); !os.IsNotExist(err) {
		t.Errorf("expected no sidecar written when a failure is disallowed")
	}
}

type skillrunFailingProvider struct {
	err error
}

func (p *skillrunFailingProvider) Name() string { return "fake" }

func (p *skillrunFailingProvider) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	return nil, p.err
}

var errInvalidKey = &staticErr{"invalid API key"}

type staticErr struct{ msg string }

func (e *staticErr) Error() string { return e.msg }

var _ skillrun.Provider = (*skillrunFailingProvider)(nil)
