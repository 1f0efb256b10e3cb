package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/skillrun"
	"github.com/mechanismctl/diagnose/internal/store"
)

// IncrementalOptions configures one `diagnose incremental` invocation
// (§4.6.2).
type IncrementalOptions struct {
	Layout store.Layout

	Window   string
	Since    string
	Until    string
	PeriodID string

	// ResultFile, when non-empty, is a path to a pre-computed
	// IncrementalMechanismV1 (or an envelope wrapping one under an
	// "incremental" key) supplied in place of a live Skill call — the
	// same escape hatch diagnose_helper.py's --result-file offers for
	// replaying a previously captured aggregation response.
	ResultFile string

	RunID string

	Provider    skillrun.Provider
	Model       string
	Engine      string
	SkillPrompt string
	TimeoutSec  int

	Now    time.Time
	Logger *slog.Logger
}

// IncrementalResult summarizes what an incremental run did.
type IncrementalResult struct {
	PeriodID     string
	SessionsUsed int
	ExitCode     int
	SidecarPath  string
	Written      bool
}

// Incremental aggregates a period's session sidecars into one
// IncrementalMechanismV1 report set (§4.6.2).
func Incremental(ctx context.Context, opts IncrementalOptions, loadResultFile func(string) (mechanism.RawObject, error)) (IncrementalResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	since, until, err := ResolveWindow(opts.Window, opts.Since, opts.Until, now)
	if err != nil {
		return IncrementalResult{ExitCode: 2}, err
	}
	periodID := BuildPeriodID(opts.Since, opts.Until, opts.Window, opts.PeriodID)
	result := IncrementalResult{PeriodID: periodID}

	conversations, err := store.LoadConversations(opts.Layout.ConversationsDir(), store.ConversationFilter{
		Since: since, Until: until,
	}, logger)
	if err != nil {
		return result, fmt.Errorf("load conversations: %w", err)
	}

	rawSidecars, err := store.LoadRawJSONDir(opts.Layout.SessionInsightsDir(), logger)
	if err != nil {
		return result, fmt.Errorf("load session sidecars: %w", err)
	}
	var validSidecars []mechanism.RawObject
	for _, raw := range rawSidecars {
		if errs := mechanism.ValidateSessionMechanism(raw); len(errs) == 0 {
			validSidecars = append(validSidecars, raw)
		}
	}
	filtered := FilterSessionsByPeriod(validSidecars, since, until)

	runID := opts.RunID
	if runID == "" {
		runID = "incremental-" + now.UTC().Format("20060102T150405Z")
	}

	var payload mechanism.RawObject
	if opts.ResultFile != "" {
		load := loadResultFile
		if load == nil {
			load = defaultLoadResultFile
		}
		raw, err := load(opts.ResultFile)
		if err != nil {
			return result, fmt.Errorf("load result file: %w", err)
		}
		payload = coerceIncrementalPayload(raw)
		if payload == nil {
			return IncrementalResult{PeriodID: periodID, ExitCode: 1}, fmt.Errorf("result file does not contain an incremental-mechanism.v1 payload")
		}
	} else {
		sessions := make([]mechanism.SessionRef, len(filtered))
		for i, raw := range filtered {
			sessions[i] = CompactSessionForIncremental(raw)
		}
		input := mechanism.IncrementalInput{
			PeriodID: periodID,
			Since:    since,
			Until:    until,
			Coverage: mechanism.Coverage{
				SessionsTotal:         len(conversations),
				SessionsWithMechanism: len(filtered),
			},
			Sessions: sessions,
		}

		var chunkDir string
		raw, err := skillrun.RunIncremental(ctx, input, skillrun.IncrementalRunOptions{
			RunID: runID, Provider: opts.Provider, Model: opts.Model,
			SkillPrompt: opts.SkillPrompt, Engine: opts.Engine,
			TimeoutSec: opts.TimeoutSec,
			OnChunk: func(chunkIndex, totalChunks int, chunkResult map[string]any) {
				if chunkDir == "" {
					chunkDir = opts.Layout.RunDir(runID)
				}
				name := fmt.Sprintf("incremental_chunk_%02d_of_%02d.json", chunkIndex, totalChunks)
				if werr := store.WriteJSON(filepath.Join(chunkDir, name), chunkResult); werr != nil {
					logger.Warn("failed to persist incremental chunk artifact", "chunk", chunkIndex, "error", werr)
				}
			},
		})
		if err != nil {
			return result, fmt.Errorf("skill runtime: %w", err)
		}
		payload = mechanism.RawObject(raw)
	}

	result.SessionsUsed = len(filtered)
	fillIncrementalDefaults(payload, periodID, runID, since, until, len(conversations), len(filtered), now)

	if err := sortReportsInPayload(payload); err != nil {
		return result, fmt.Errorf("sort reports: %w", err)
	}

	if errs := mechanism.ValidateIncrementalMechanism(payload); len(errs) > 0 {
		logger.Warn("incremental payload failed contract validation", "period_id", periodID, "errors", errs)
		result.ExitCode = 1
		return result, nil
	}

	path := opts.Layout.IncrementalInsightPath(periodID)
	status, err := store.ApplyJSON(path, payload)
	if err != nil {
		return result, fmt.Errorf("write incremental sidecar: %w", err)
	}
	result.SidecarPath = path
	result.Written = status != store.WriteUnchanged
	logger.Info("incremental run complete", "period_id", periodID, "sessions_used", len(filtered), "status", status)
	return result, nil
}

func defaultLoadResultFile(path string) (mechanism.RawObject, error) {
	var raw mechanism.RawObject
	if err := store.ReadJSON(path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// coerceIncrementalPayload accepts either a bare IncrementalMechanismV1 or
// an envelope wrapping one under an "incremental" key, mirroring
// diagnose_helper.py's --result-file handling. Returns nil if neither shape
// matches.
func coerceIncrementalPayload(raw mechanism.RawObject) mechanism.RawObject {
	if raw == nil {
		return nil
	}
	if sv, ok := raw["schema_version"].(string); ok && sv == mechanism.IncrementalMechanismSchemaVersion {
		return raw
	}
	if inc, ok := raw["incremental"].(map[string]any); ok {
		return inc
	}
	return nil
}

// fillIncrementalDefaults applies the envelope's setdefault-style fallbacks
// (§4.6.2 step 5): only fields absent from payload are filled in, matching
// diagnose_helper.py's cmd_incremental exactly so a Skill-supplied value is
// never clobbered.
func fillIncrementalDefaults(payload mechanism.RawObject, periodID, runID, since, until string, sessionsTotal, sessionsWithMechanism int, now time.Time) {
	setDefault(payload, "schema_version", mechanism.IncrementalMechanismSchemaVersion)
	setDefault(payload, "period_id", periodID)
	setDefault(payload, "week", periodID)
	setDefault(payload, "source_run_id", runID)
	setDefault(payload, "generated_at", now.UTC().Format(time.RFC3339))

	period, ok := payload["period"].(map[string]any)
	if !ok {
		period = map[string]any{}
		payload["period"] = period
	}
	if since != "" {
		setDefault(period, "since", since)
	}
	if until != "" {
		setDefault(period, "until", until)
	}

	coverage, ok := payload["coverage"].(map[string]any)
	if !ok {
		coverage = map[string]any{}
		payload["coverage"] = coverage
	}
	setDefault(coverage, "sessions_total", float64(sessionsTotal))
	setDefault(coverage, "sessions_with_mechanism", float64(sessionsWithMechanism))
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// sortReportsInPayload decodes payload["reports"] into typed Reports, sorts
// them in canonical (rank, period, date, title) order, and re-encodes them
// back into the raw payload so downstream contract validation and the
// on-disk sidecar see the sorted order.
func sortReportsInPayload(payload mechanism.RawObject) error {
	items, ok := payload["reports"].([]any)
	if !ok {
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	var reports []mechanism.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return err
	}

	env := mechanism.IncrementalMechanism{}
	if v, ok := payload["period_id"].(string); ok {
		env.PeriodID = v
	}
	if v, ok := payload["week"].(string); ok {
		env.Week = v
	}
	mechanism.SortReports(env, reports)

	sortedData, err := json.Marshal(reports)
	if err != nil {
		return err
	}
	var sortedItems []any
	if err := json.Unmarshal(sortedData, &sortedItems); err != nil {
		return err
	}
	payload["reports"] = sortedItems
	return nil
}
