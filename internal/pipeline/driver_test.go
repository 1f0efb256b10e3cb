package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/mechanismctl/diagnose/internal/store"
)

// fakeStageRunner is the fake StageRunner SPEC_FULL.md calls for in tests,
// recording every stage it was asked to run instead of shelling out.
type fakeStageRunner struct {
	ran  []string
	fail map[string]bool
}

func (f *fakeStageRunner) RunStage(ctx context.Context, stage string, args []string) error {
	f.ran = append(f.ran, stage)
	if f.fail[stage] {
		return errStageFailed
	}
	return nil
}

var errStageFailed = &stageError{"stage failed"}

type stageError struct{ msg string }

func (e *stageError) Error() string { return e.msg }

type fixedProvider struct {
	name     string
	response map[string]any
}

func (p *fixedProvider) Name() string { return p.name }

func (p *fixedProvider) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	return p.response, nil
}

func writeConvFixture(t *testing.T, layout store.Layout, sessionID, createdAt string) {
	t.Helper()
	fixture := map[string]any{
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
	}
	if err := store.WriteJSON(layout.ConversationPath(sessionID), fixture); err != nil {
		t.Fatalf("write conversation fixture: %v", err)
	}
}

func validSessionResponse() map[string]any {
	return map[string]any{
		"what_happened": []any{"the build broke"},
		"why": []any{
			map[string]any{
				"dimension": "session-root-cause", "layer": "L2",
				"hypothesis": "a stale cache entry was reused",
				"evidence":   []any{map[string]any{"turn_id": 1, "quote": "why did it fail"}},
			},
		},
	}
}

var driverNow = time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

func TestDriver_RunSkipsIngestEnrichAndNotionWhenFlagged(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	writeConvFixture(t, layout, "s-1", "2026-07-20T00:00:00Z")

	sessionProvider := &fixedProvider{name: "fake", response: validSessionResponse()}
	stages := &fakeStageRunner{}

	driver := &Driver{Layout: layout, Stages: stages}

	backfillOpts := RunOptions{
		Window: "30d", RunID: "run-1", Now: driverNow,
		SkipIngest: true, SkipEnrich: true, NoNotion: true,
		Provider: sessionProvider, Model: "m", Engine: "api", SkillPrompt: "skill",
	}

	result, err := driver.Run(context.Background(), backfillOpts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IngestRan || result.EnrichRan {
		t.Fatalf("expected ingest/enrich to be skipped, got %+v", result)
	}
	if len(stages.ran) != 0 {
		t.Fatalf("expected no external stages invoked, got %v", stages.ran)
	}
}

func TestDriver_RunHaltsWhenBackfillStageErrors(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	// An invalid window makes the backfill stage return an error, which
	// must halt the chain before any later stage runs.
	stages := &fakeStageRunner{}
	driver := &Driver{Layout: layout, Stages: stages}

	opts := RunOptions{
		Window: "not-a-window", RunID: "run-2", Now: driverNow,
		SkipIngest: true, SkipEnrich: true, NoNotion: true,
	}
	_, err := driver.Run(context.Background(), opts)
	if err == nil {
		t.Fatalf("expected an error for an invalid window expression")
	}
}

func TestDriver_DoctorDelegatesToDoctorReport(t *testing.T) {
	base := t.TempDir()
	layout := store.NewLayout(base)
	driver := &Driver{Layout: layout, ConfigPath: "/does/not/exist.yaml"}

	report := driver.Doctor()
	if report.Healthy {
		t.Fatalf("expected an unhealthy doctor report for a missing config and data dirs")
	}
}

func TestDriver_TestRunsCompileCheckThenSegmentedTargets(t *testing.T) {
	stages := &fakeStageRunner{}
	driver := &Driver{Stages: stages}

	result, err := driver.Test(context.Background(), TestModeSegmented)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stages.ran) != 2 || stages.ran[0] != "compile_check" || stages.ran[1] != "test_run" {
		t.Fatalf("expected compile_check then test_run, got %v", stages.ran)
	}
	if len(result.Targets) != len(defaultSegmentedTestTargets) {
		t.Fatalf("expected the fixed segmented target set, got %v", result.Targets)
	}
}

func TestDriver_TestFullModeUsesWholeTestsScope(t *testing.T) {
	stages := &fakeStageRunner{}
	driver := &Driver{Stages: stages}

	result, err := driver.Test(context.Background(), TestModeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Targets) != 1 || result.Targets[0] != "..." {
		t.Fatalf("expected full mode to target the whole tests scope, got %v", result.Targets)
	}
}

func TestDriver_TestPropagatesCompileCheckFailure(t *testing.T) {
	stages := &fakeStageRunner{fail: map[string]bool{"compile_check": true}}
	driver := &Driver{Stages: stages}

	if _, err := driver.Test(context.Background(), TestModeSegmented); err == nil {
		t.Fatalf("expected the compile check failure to propagate")
	}
}
