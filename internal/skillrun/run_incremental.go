package skillrun

import (
	"context"
	"fmt"
	"time"

	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/retry"
)

// IncrementalChunkSize is the session-count threshold above which an
// incremental input is split into per-chunk calls plus a final merge call,
// so a single provider call never has to hold an unbounded session count in
// its context window.
const IncrementalChunkSize = 24

// IncrementalRunOptions configures a single incremental dispatch.
type IncrementalRunOptions struct {
	RunID       string
	Provider    Provider
	Model       string
	SkillPrompt string
	Engine      string
	// OnChunk, when set, is called with each chunk's raw result as it
	// completes — the orchestrator uses this to persist
	// incremental_chunk_NN_of_MM.json debug artifacts.
	OnChunk func(chunkIndex, totalChunks int, chunkResult map[string]any)
	// TimeoutSec bounds each Infer call; 0 uses DefaultIncrementalTimeout (§5).
	TimeoutSec int
}

// RunIncremental dispatches one IncrementalInput to opts.Provider. When the
// input holds more than IncrementalChunkSize sessions, it is split into
// fixed-size chunks, each diagnosed independently, then merged with a final
// call that sees only the chunk reports — never the raw per-session data —
// and is responsible for global dedup and layer convergence.
func RunIncremental(ctx context.Context, input mechanism.IncrementalInput, opts IncrementalRunOptions) (map[string]any, error) {
	if len(input.Sessions) <= IncrementalChunkSize {
		raw, err := inferIncrementalWithRetry(ctx, opts, opts.SkillPrompt, input)
		if err != nil {
			return nil, err
		}
		return stampIncrementalEnvelope(raw, opts), nil
	}

	totalChunks := (len(input.Sessions) + IncrementalChunkSize - 1) / IncrementalChunkSize
	chunkPrompt := opts.SkillPrompt + ChunkPostamble

	var chunkReports []mechanism.ChunkReport
	for chunkIdx := 0; chunkIdx < totalChunks; chunkIdx++ {
		start := chunkIdx * IncrementalChunkSize
		end := start + IncrementalChunkSize
		if end > len(input.Sessions) {
			end = len(input.Sessions)
		}

		chunkInput := input
		chunkInput.Sessions = input.Sessions[start:end]
		chunkInput.ChunkReports = nil
		chunkInput.Coverage.SessionsWithMechanism = len(chunkInput.Sessions)

		raw, err := inferIncrementalWithRetry(ctx, opts, chunkPrompt, chunkInput)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", chunkIdx+1, totalChunks, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("chunk %d/%d returned empty payload", chunkIdx+1, totalChunks)
		}

		if opts.OnChunk != nil {
			opts.OnChunk(chunkIdx+1, totalChunks, raw)
		}

		chunkReports = append(chunkReports, ChunkReportFromRaw(chunkIdx+1, raw))
	}

	mergeInput := input
	mergeInput.Sessions = nil
	mergeInput.ChunkReports = chunkReports
	mergePrompt := opts.SkillPrompt + MergePostamble

	raw, err := inferIncrementalWithRetry(ctx, opts, mergePrompt, mergeInput)
	if err != nil {
		return nil, fmt.Errorf("merge call: %w", err)
	}
	return stampIncrementalEnvelope(raw, opts), nil
}

// ChunkReportFromRaw extracts the coverage/reports subset of a chunk's raw
// result into the shape the merge call's chunk_reports field expects.
func ChunkReportFromRaw(chunkID int, raw map[string]any) mechanism.ChunkReport {
	cr := mechanism.ChunkReport{ChunkID: chunkID}
	if cov, ok := raw["coverage"].(map[string]any); ok {
		if v, ok := cov["sessions_total"].(float64); ok {
			cr.Coverage.SessionsTotal = int(v)
		}
		if v, ok := cov["sessions_with_mechanism"].(float64); ok {
			cr.Coverage.SessionsWithMechanism = int(v)
		}
	}
	if reportsRaw, ok := raw["reports"].([]any); ok {
		for _, r := range reportsRaw {
			if m, ok := r.(map[string]any); ok {
				cr.Reports = append(cr.Reports, reportFromRaw(m))
			}
		}
	}
	return cr
}

func reportFromRaw(m map[string]any) mechanism.Report {
	r := mechanism.Report{}
	if v, ok := m["dimension"].(string); ok {
		r.Dimension = v
	}
	if v, ok := m["layer"].(string); ok {
		r.Layer = v
	}
	if v, ok := m["period"].(string); ok {
		r.Period = v
	}
	if v, ok := m["date"].(string); ok {
		r.Date = v
	}
	if v, ok := m["title"].(string); ok {
		r.Title = v
	}
	if v, ok := m["key_insights"].(string); ok {
		r.KeyInsights = v
	}
	if v, ok := m["detail_text"].(string); ok {
		r.DetailText = v
	}
	if lines, ok := m["detail_lines"].([]any); ok {
		for _, l := range lines {
			if s, ok := l.(string); ok {
				r.DetailLines = append(r.DetailLines, s)
			}
		}
	}
	return r
}

func inferIncrementalWithRetry(ctx context.Context, opts IncrementalRunOptions, prompt string, input mechanism.IncrementalInput) (map[string]any, error) {
	config := retry.Exponential(3, time.Second, 4*time.Second)
	config.Jitter = false

	value, result := retry.DoWithValue(ctx, config, func() (map[string]any, error) {
		raw, err := callWithTimeout(ctx, opts.TimeoutSec, DefaultIncrementalTimeout, func(callCtx context.Context) (map[string]any, error) {
			return opts.Provider.Infer(callCtx, opts.Model, prompt, input)
		})
		if err != nil {
			return nil, retry.WrapSkillError(err)
		}
		return raw, nil
	})
	if result.Err != nil {
		return nil, result.Err
	}
	return value, nil
}

func stampIncrementalEnvelope(raw map[string]any, opts IncrementalRunOptions) map[string]any {
	out := cloneMap(raw)
	out["schema_version"] = mechanism.IncrementalMechanismSchemaVersion
	out["generated_by"] = BuildGeneratedBy(opts.Engine, opts.Provider.Name(), opts.Model, opts.RunID)
	return out
}
