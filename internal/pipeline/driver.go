// Package pipeline implements the Pipeline Driver (C8): the serial
// run/doctor/test entry points a `diagnose` CLI subcommand dispatches
// into, composing the orchestrator (C6), the report synchronizer (C7),
// and the out-of-scope external stages behind a StageRunner.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/notiondb"
	"github.com/mechanismctl/diagnose/internal/orchestrate"
	"github.com/mechanismctl/diagnose/internal/reportsync"
	"github.com/mechanismctl/diagnose/internal/skillrun"
	"github.com/mechanismctl/diagnose/internal/store"
)

// Driver wires the Local Store, the Skill Runtime provider, an optional
// Notion client, and an external StageRunner into the fixed stage chain
// spec.md §4.8 describes for the `run` subcommand.
type Driver struct {
	Layout     store.Layout
	ConfigPath string
	Stages     StageRunner
	NotionDB   *notiondb.Client
	NotionDBID string
	Logger     *slog.Logger
}

// RunOptions mirrors the `run` subcommand's flags (§6.1).
type RunOptions struct {
	Mode     string // "incremental" or "full"
	Window   string
	Since    string
	Until    string
	RunID    string
	DryRun   bool
	NoNotion bool

	SkipIngest   bool
	SkipEnrich   bool
	SkipBackfill bool
	EnrichLimit  int

	Provider     skillrun.Provider
	ProviderName string
	Model        string
	Engine       string
	SkillPrompt  string
	TimeoutSec   int
	MaxWorkers   int

	BackfillLimit        int
	BackfillForceRefresh bool
	AllowPartialBackfill bool

	ReportLimit int
	PeriodID    string

	Now time.Time
}

// RunResult reports what each stage of a `run` invocation did.
type RunResult struct {
	ExitCode     int
	IngestRan    bool
	EnrichRan    bool
	Backfill     *orchestrate.BackfillResult
	Incremental  *orchestrate.IncrementalResult
	Sync         *reportsync.Result
	DashboardRan bool
}

// Run executes the fixed serial chain: ingest, enrich, backfill,
// incremental (with sync-report), stats sync, dashboard render. Each
// stage's failure halts the chain, matching the spec's "each stage's
// failure halts" rule (§4.8).
func (d *Driver) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	logger := d.logger()
	result := RunResult{}

	if !opts.SkipIngest {
		if err := d.runExternalStage(ctx, "ingest", opts); err != nil {
			return result, fmt.Errorf("ingest stage: %w", err)
		}
		result.IngestRan = true
	}

	if !opts.SkipEnrich {
		if err := d.runExternalStage(ctx, "enrich", opts); err != nil {
			return result, fmt.Errorf("enrich stage: %w", err)
		}
		result.EnrichRan = true
	}

	if !opts.SkipBackfill {
		backfillResult, err := orchestrate.Backfill(ctx, orchestrate.BackfillOptions{
			Layout:       d.Layout,
			Window:       opts.Window,
			Since:        opts.Since,
			Until:        opts.Until,
			Limit:        opts.BackfillLimit,
			RunID:        opts.RunID,
			ForceRefresh: opts.BackfillForceRefresh,
			AllowPartial: opts.AllowPartialBackfill,
			DryRun:       opts.DryRun,
			Provider:     opts.Provider,
			Model:        opts.Model,
			Engine:       opts.Engine,
			Workers:      opts.MaxWorkers,
			SkillPrompt:  opts.SkillPrompt,
			TimeoutSec:   opts.TimeoutSec,
			Now:          opts.Now,
			Logger:       logger,
		})
		if err != nil {
			return result, fmt.Errorf("backfill stage: %w", err)
		}
		result.Backfill = &backfillResult
		if backfillResult.ExitCode != 0 && !opts.AllowPartialBackfill {
			result.ExitCode = 1
			return result, nil
		}
	}

	incResult, err := orchestrate.Incremental(ctx, orchestrate.IncrementalOptions{
		Layout:      d.Layout,
		Window:      opts.Window,
		Since:       opts.Since,
		Until:       opts.Until,
		PeriodID:    opts.PeriodID,
		RunID:       opts.RunID,
		Provider:    opts.Provider,
		Model:       opts.Model,
		Engine:      opts.Engine,
		SkillPrompt: opts.SkillPrompt,
		TimeoutSec:  opts.TimeoutSec,
		Now:         opts.Now,
		Logger:      logger,
	}, nil)
	if err != nil {
		return result, fmt.Errorf("incremental stage: %w", err)
	}
	result.Incremental = &incResult
	if incResult.ExitCode != 0 {
		result.ExitCode = 1
		return result, nil
	}

	if !opts.NoNotion {
		syncResult, err := d.syncReports(ctx, incResult.PeriodID, opts.DryRun)
		if err != nil {
			return result, fmt.Errorf("sync-report stage: %w", err)
		}
		result.Sync = &syncResult
		if syncResult.ExitCode != 0 {
			result.ExitCode = 1
			return result, nil
		}

		if err := d.runExternalStage(ctx, "stats_sync", opts); err != nil {
			return result, fmt.Errorf("stats sync stage: %w", err)
		}
	}

	if err := d.runExternalStage(ctx, "dashboard", opts); err != nil {
		return result, fmt.Errorf("dashboard stage: %w", err)
	}
	result.DashboardRan = true

	return result, nil
}

// syncReports loads periodID's stored IncrementalMechanismV1 sidecar and
// hands it to the Report Synchronizer (C7), mirroring `--sync-report`'s
// effect on the `incremental` subcommand (§6.2).
func (d *Driver) syncReports(ctx context.Context, periodID string, dryRun bool) (reportsync.Result, error) {
	var raw mechanism.RawObject
	if err := store.ReadJSON(d.Layout.IncrementalInsightPath(periodID), &raw); err != nil {
		return reportsync.Result{}, fmt.Errorf("read incremental sidecar for %s: %w", periodID, err)
	}

	env, err := decodeIncrementalMechanism(raw)
	if err != nil {
		return reportsync.Result{}, fmt.Errorf("decode incremental sidecar for %s: %w", periodID, err)
	}

	return reportsync.SyncReports(ctx, d.NotionDB, d.NotionDBID, raw, env, dryRun, d.logger())
}

func decodeIncrementalMechanism(raw mechanism.RawObject) (mechanism.IncrementalMechanism, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return mechanism.IncrementalMechanism{}, err
	}
	var env mechanism.IncrementalMechanism
	if err := json.Unmarshal(data, &env); err != nil {
		return mechanism.IncrementalMechanism{}, err
	}
	return env, nil
}

func (d *Driver) runExternalStage(ctx context.Context, stage string, opts RunOptions) error {
	if d.Stages == nil {
		return fmt.Errorf("no stage runner configured for external stage %q", stage)
	}
	args := []string{"--run-id", opts.RunID}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	return d.Stages.RunStage(ctx, stage, args)
}

// Doctor reports the Local Store's health without mutating anything
// (§4.8's `doctor` subcommand).
func (d *Driver) Doctor() DoctorReport {
	return Doctor(d.Layout, d.ConfigPath)
}

// TestMode selects the `test` subcommand's scope.
type TestMode string

const (
	TestModeSegmented TestMode = "segmented"
	TestModeFull      TestMode = "full"
)

// TestResult reports which target set a `test` invocation ran.
type TestResult struct {
	Mode    TestMode
	Targets []string
}

// defaultSegmentedTestTargets is the fixed target set the segmented test
// mode runs, as opposed to full mode's "whole tests directory" scope
// (§4.8).
var defaultSegmentedTestTargets = []string{
	"internal/mechanism",
	"internal/orchestrate",
	"internal/skillrun",
	"internal/reportsync",
}

// Test runs the external scripts directory's compile check followed by
// either the segmented target set or the whole tests directory, via the
// configured StageRunner — the Go-equivalent of the spec's
// py_compile-then-test-runner shape (§4.8), since this driver cannot
// invoke `go vet`/`go test` on itself.
func (d *Driver) Test(ctx context.Context, mode TestMode) (TestResult, error) {
	if mode == "" {
		mode = TestModeSegmented
	}

	if err := d.runStage(ctx, "compile_check", nil); err != nil {
		return TestResult{}, fmt.Errorf("compile check stage: %w", err)
	}

	targets := defaultSegmentedTestTargets
	if mode == TestModeFull {
		targets = []string{"..."}
	}

	if err := d.runStage(ctx, "test_run", targets); err != nil {
		return TestResult{Mode: mode, Targets: targets}, fmt.Errorf("test run stage: %w", err)
	}

	return TestResult{Mode: mode, Targets: targets}, nil
}

func (d *Driver) runStage(ctx context.Context, stage string, args []string) error {
	if d.Stages == nil {
		return fmt.Errorf("no stage runner configured for stage %q", stage)
	}
	return d.Stages.RunStage(ctx, stage, args)
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
