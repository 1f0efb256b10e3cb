package store

import (
	"os"
	"path/filepath"
)

// SessionDigestBundle is the debug artifact the Orchestrator drops under
// output/skill_jobs/<run_id>/ before dispatching a batch of SessionDigests
// to the Skill Runtime. It exists for post-mortem inspection, never for
// normal read access.
type SessionDigestBundle struct {
	SchemaVersion string `json:"schema_version"`
	RunID         string `json:"run_id"`
	CreatedAt     string `json:"created_at"`
	Window        string `json:"window"`
	Source        string `json:"source,omitempty"`
	Limit         *int   `json:"limit,omitempty"`
	SessionCount  int    `json:"session_count"`
	Sessions      []any  `json:"sessions"`
}

const readmeBody = `# Diagnose Run (Internal Debug Bundle)

This directory exists for troubleshooting, not day-to-day use.

## Recommended entry point

Run the pipeline driver instead of inspecting this bundle directly:

  diagnose run --mode full
`

// WriteSessionDigestBundle writes the debug bundle and an accompanying
// README, returning the bundle file's path.
func WriteSessionDigestBundle(layout Layout, runID string, bundle SessionDigestBundle) (string, error) {
	runDir := layout.RunDir(runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	bundlePath := filepath.Join(runDir, "session_digests.json")
	if err := WriteJSON(bundlePath, bundle); err != nil {
		return "", err
	}

	readmePath := filepath.Join(runDir, "README.md")
	if err := os.WriteFile(readmePath, []byte(readmeBody), 0o644); err != nil {
		return "", err
	}
	return bundlePath, nil
}

// InvalidRecord captures one session mechanism payload that failed
// structural validation during apply, kept alongside the run for
// troubleshooting when --allow-partial let the run proceed anyway.
type InvalidRecord struct {
	Index     int      `json:"index"`
	SessionID string   `json:"session_id"`
	Errors    []string `json:"errors"`
}

// InvalidSessionMechanisms is written to invalid_session_mechanisms.json
// when a backfill run is allowed to partially apply.
type InvalidSessionMechanisms struct {
	SchemaVersion string          `json:"schema_version"`
	RunID         string          `json:"run_id"`
	GeneratedAt   string          `json:"generated_at"`
	InvalidCount  int             `json:"invalid_count"`
	Records       []InvalidRecord `json:"invalid_records"`
}

func WriteInvalidSessionMechanisms(layout Layout, runID string, payload InvalidSessionMechanisms) (string, error) {
	path := filepath.Join(layout.RunDir(runID), "invalid_session_mechanisms.json")
	if err := WriteJSON(path, payload); err != nil {
		return "", err
	}
	return path, nil
}

// ApplySummary records the outcome of applying a batch of validated session
// mechanisms to their sidecar files.
type ApplySummary struct {
	SchemaVersion  string `json:"schema_version"`
	RunID          string `json:"run_id"`
	AppliedAt      string `json:"applied_at"`
	ResultFile     string `json:"result_file"`
	RecordsValid   int    `json:"records_valid"`
	RecordsInvalid int    `json:"records_invalid"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
}

func WriteApplySummary(layout Layout, runID string, summary ApplySummary) (string, error) {
	path := filepath.Join(layout.RunDir(runID), "apply_summary.json")
	if err := WriteJSON(path, summary); err != nil {
		return "", err
	}
	return path, nil
}
