package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mechanismctl/diagnose/internal/digest"
	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/skillrun"
	"github.com/mechanismctl/diagnose/internal/store"
)

// BackfillOptions configures one `diagnose backfill` invocation (§4.6.1).
type BackfillOptions struct {
	Layout store.Layout

	Window string
	Since  string
	Until  string
	Source string
	Limit  int

	RunID        string
	ForceRefresh bool
	AllowPartial bool
	DryRun       bool

	Provider    skillrun.Provider
	Model       string
	Engine      string
	Workers     int
	SkillPrompt string
	TimeoutSec  int

	Now    time.Time
	Logger *slog.Logger
}

// BackfillResult summarizes what a backfill run did.
type BackfillResult struct {
	RunID         string
	Checked       int
	Targeted      int
	Created       int
	Updated       int
	InvalidCount  int
	FailedCount   int
	ExitCode      int
	BundlePath    string
	ErrorsPath    string
	InvalidPath   string
}

// sessionErrorsFile is the output/skill_jobs/<run_id>/api_<provider>_errors.json
// artifact recording sessions that failed inference after retries (§6.3).
type sessionErrorsFile struct {
	SchemaVersion string                  `json:"schema_version"`
	RunID         string                  `json:"run_id"`
	Provider      string                  `json:"provider"`
	GeneratedAt   string                  `json:"generated_at"`
	ErrorCount    int                     `json:"error_count"`
	Errors        []skillrun.SessionError `json:"errors"`
}

// Backfill brings session sidecars up to date for a window (§4.6.1).
func Backfill(ctx context.Context, opts BackfillOptions) (BackfillResult, error) {
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
		return BackfillResult{ExitCode: 2}, err
	}

	source := opts.Source
	if source == "all" {
		source = ""
	}

	conversations, err := store.LoadConversations(opts.Layout.ConversationsDir(), store.ConversationFilter{
		Since: since, Until: until, Source: source,
	}, logger)
	if err != nil {
		return BackfillResult{ExitCode: 2}, fmt.Errorf("load conversations: %w", err)
	}
	if opts.Limit > 0 && len(conversations) > opts.Limit {
		conversations = conversations[:opts.Limit]
	}

	var targets []mechanism.Conversation
	for _, conv := range conversations {
		if conv.SessionID == "" {
			continue
		}
		sidecarPath := opts.Layout.SessionInsightPath(conv.SessionID)
		raw, exists := readRawSidecar(sidecarPath)
		if SessionNeedsBackfill(raw, exists, opts.ForceRefresh) {
			targets = append(targets, conv)
		}
	}

	result := BackfillResult{Checked: len(conversations), Targeted: len(targets)}
	if len(targets) == 0 {
		logger.Info("backfill found no target sessions", "checked", len(conversations), "window", opts.Window)
		return result, nil
	}

	runID := opts.RunID
	if runID == "" {
		runID = "backfill-" + now.UTC().Format("20060102T150405Z")
	}
	result.RunID = runID

	digests := make([]mechanism.SessionDigest, len(targets))
	digestAny := make([]any, len(targets))
	for i, conv := range targets {
		d := digest.Build(conv)
		digests[i] = d
		digestAny[i] = d
	}

	limit := opts.Limit
	var limitPtr *int
	if limit > 0 {
		limitPtr = &limit
	}
	bundlePath, err := store.WriteSessionDigestBundle(opts.Layout, runID, store.SessionDigestBundle{
		SchemaVersion: "diagnose-run.v1",
		RunID:         runID,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		Window:        opts.Window,
		Source:        opts.Source,
		Limit:         limitPtr,
		SessionCount:  len(digests),
		Sessions:      digestAny,
	})
	if err != nil {
		return result, fmt.Errorf("write run bundle: %w", err)
	}
	result.BundlePath = bundlePath

	logger.Info("backfill prepared run", "run_id", runID, "targets", len(targets), "checked", len(conversations))

	if opts.DryRun {
		return result, nil
	}

	rawResults, sessionErrs, err := skillrun.RunSessions(ctx, digests, skillrun.SessionRunOptions{
		RunID: runID, Provider: opts.Provider, Model: opts.Model,
		SkillPrompt: opts.SkillPrompt, Engine: opts.Engine, Workers: opts.Workers,
		TimeoutSec: opts.TimeoutSec,
	})
	if err != nil {
		return result, fmt.Errorf("skill runtime: %w", err)
	}
	result.FailedCount = len(sessionErrs)

	if len(sessionErrs) > 0 {
		errorsPath, err := writeSessionErrors(opts.Layout, runID, opts.Provider.Name(), now, sessionErrs)
		if err != nil {
			return result, fmt.Errorf("write session errors: %w", err)
		}
		result.ErrorsPath = errorsPath
		if !opts.AllowPartial {
			result.ExitCode = 1
			return result, nil
		}
	}

	applied, err := applySessionResults(opts.Layout, runID, now, rawResults, opts.AllowPartial)
	if err != nil {
		return result, err
	}
	result.Created = applied.Created
	result.Updated = applied.Updated
	result.InvalidCount = applied.InvalidCount
	result.InvalidPath = applied.InvalidPath
	result.ExitCode = applied.ExitCode
	return result, nil
}

func readRawSidecar(path string) (mechanism.RawObject, bool) {
	var raw mechanism.RawObject
	if err := store.ReadJSON(path, &raw); err != nil {
		return nil, false
	}
	return raw, true
}

func writeSessionErrors(layout store.Layout, runID, provider string, now time.Time, errs []skillrun.SessionError) (string, error) {
	path := filepath.Join(layout.RunDir(runID), "api_"+provider+"_errors.json")
	file := sessionErrorsFile{
		SchemaVersion: "diagnose-session-errors.v1",
		RunID:         runID,
		Provider:      provider,
		GeneratedAt:   now.UTC().Format(time.RFC3339),
		ErrorCount:    len(errs),
		Errors:        errs,
	}
	if err := store.WriteJSON(path, file); err != nil {
		return "", err
	}
	return path, nil
}

type applyOutcome struct {
	Created      int
	Updated      int
	InvalidCount int
	InvalidPath  string
	ExitCode     int
}

// applySessionResults validates and persists a batch of normalized
// SessionMechanismV1 candidates, mirroring _apply_session_results (§4.6.1
// step 6).
func applySessionResults(layout store.Layout, runID string, now time.Time, results []map[string]any, allowPartial bool) (applyOutcome, error) {
	var valid []mechanism.RawObject
	var invalidRecords []store.InvalidRecord

	for i, record := range results {
		errs := mechanism.ValidateSessionMechanism(record)
		if len(errs) > 0 {
			sessionID, _ := record["session_id"].(string)
			invalidRecords = append(invalidRecords, store.InvalidRecord{
				Index: i, SessionID: sessionID, Errors: errs,
			})
			continue
		}
		valid = append(valid, record)
	}

	if len(invalidRecords) > 0 && !allowPartial {
		return applyOutcome{InvalidCount: len(invalidRecords), ExitCode: 1}, nil
	}

	var outcome applyOutcome
	if len(invalidRecords) > 0 {
		invalidPath, err := store.WriteInvalidSessionMechanisms(layout, runID, store.InvalidSessionMechanisms{
			SchemaVersion: "diagnose-invalid-session-mechanisms.v1",
			RunID:         runID,
			GeneratedAt:   now.UTC().Format(time.RFC3339),
			InvalidCount:  len(invalidRecords),
			Records:       invalidRecords,
		})
		if err != nil {
			return outcome, fmt.Errorf("write invalid session mechanisms: %w", err)
		}
		outcome.InvalidPath = invalidPath
		outcome.InvalidCount = len(invalidRecords)
	}

	if len(valid) == 0 {
		outcome.ExitCode = 1
		return outcome, nil
	}

	for _, record := range valid {
		sessionID, _ := record["session_id"].(string)
		path := layout.SessionInsightPath(sessionID)
		status, err := store.ApplyJSON(path, record)
		if err != nil {
			return outcome, fmt.Errorf("write session mechanism %s: %w", sessionID, err)
		}
		switch status {
		case store.WriteCreated:
			outcome.Created++
		case store.WriteUpdated:
			outcome.Updated++
		}
	}

	if _, err := store.WriteApplySummary(layout, runID, store.ApplySummary{
		SchemaVersion:  "diagnose-apply-summary.v1",
		RunID:          runID,
		AppliedAt:      now.UTC().Format(time.RFC3339),
		RecordsValid:   len(valid),
		RecordsInvalid: len(invalidRecords),
		Created:        outcome.Created,
		Updated:        outcome.Updated,
	}); err != nil {
		return outcome, fmt.Errorf("write apply summary: %w", err)
	}

	return outcome, nil
}
