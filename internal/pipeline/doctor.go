package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/store"
)

// CheckResult is one doctor health check's outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// DoctorReport aggregates every check plus the conversation/sidecar counts
// the spec's doctor subcommand reports (§4.8).
type DoctorReport struct {
	Checks                  []CheckResult `json:"checks"`
	ConversationCount       int           `json:"conversation_count"`
	ConversationMalformed   int           `json:"conversation_malformed"`
	ConversationSchemaV12   int           `json:"conversation_schema_v1_2"`
	ConversationWithLLMMeta int           `json:"conversation_with_llm_metadata"`
	SessionSidecarCount     int           `json:"session_sidecar_count"`
	SessionSidecarInvalid   int           `json:"session_sidecar_invalid"`
	IncrementalSidecarCount int           `json:"incremental_sidecar_count"`
	IncrementalInvalid      int           `json:"incremental_sidecar_invalid"`
	Healthy                 bool          `json:"healthy"`
}

// normalizedConversationSchemaVersion is the schema_version stamp the
// upstream ingest stage writes onto every normalized conversation file
// (§4.8's "how many have schema v1.2").
const normalizedConversationSchemaVersion = "1.2"

// Doctor runs every health check against layout and configPath, in a
// fixed order, then collects the result — the same iterate/collect/sort/
// emit shape the teacher's channel health probe uses, generalized from
// "is this channel adapter reachable" to "is this on-disk store usable".
func Doctor(layout store.Layout, configPath string) DoctorReport {
	var checks []CheckResult

	checks = append(checks, checkConfigPresent(configPath))
	checks = append(checks, checkDirPresent("conversations directory", layout.ConversationsDir()))
	checks = append(checks, checkDirPresent("session insights directory", layout.SessionInsightsDir()))
	checks = append(checks, checkDirPresent("incremental insights directory", layout.IncrementalInsightsDir()))

	sort.SliceStable(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	report := DoctorReport{Checks: checks}

	convStats := countConversations(layout.ConversationsDir())
	report.ConversationCount = convStats.total
	report.ConversationMalformed = convStats.malformed
	report.ConversationSchemaV12 = convStats.schemaV12
	report.ConversationWithLLMMeta = convStats.withLLMMetadata

	sessions, err := store.LoadRawJSONDir(layout.SessionInsightsDir(), nil)
	if err == nil {
		report.SessionSidecarCount = len(sessions)
		for _, raw := range sessions {
			if errs := mechanism.ValidateSessionMechanism(raw); len(errs) > 0 {
				report.SessionSidecarInvalid++
			}
		}
	}

	incrementals, err := store.LoadRawJSONDir(layout.IncrementalInsightsDir(), nil)
	if err == nil {
		report.IncrementalSidecarCount = len(incrementals)
		for _, raw := range incrementals {
			if errs := mechanism.ValidateIncrementalMechanism(raw); len(errs) > 0 {
				report.IncrementalInvalid++
			}
		}
	}

	report.Healthy = allHealthy(checks)
	return report
}

func allHealthy(checks []CheckResult) bool {
	for _, c := range checks {
		if !c.Healthy {
			return false
		}
	}
	return true
}

func checkConfigPresent(path string) CheckResult {
	if path == "" {
		return CheckResult{Name: "config file", Healthy: false, Detail: "no config path configured"}
	}
	if _, err := os.Stat(path); err != nil {
		return CheckResult{Name: "config file", Healthy: false, Detail: err.Error()}
	}
	return CheckResult{Name: "config file", Healthy: true}
}

func checkDirPresent(name, path string) CheckResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Name: name, Healthy: false, Detail: "directory does not exist: " + path}
		}
		return CheckResult{Name: name, Healthy: false, Detail: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Name: name, Healthy: false, Detail: path + " is not a directory"}
	}
	return CheckResult{Name: name, Healthy: true}
}

// conversationStats tallies the counts §4.8's doctor subcommand reports
// over the conversations directory.
type conversationStats struct {
	total           int
	malformed       int
	schemaV12       int
	withLLMMetadata int
}

// countConversations counts *.json files directly under dir, how many
// fail to parse, how many are stamped with schema_version "1.2", and how
// many carry an llm_metadata key, without surfacing parse errors
// themselves (the doctor report only needs the counts, not the
// file-by-file detail the Local Store's own loaders already warn on).
func countConversations(dir string) conversationStats {
	var stats conversationStats
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) < 6 || name[len(name)-5:] != ".json" {
			continue
		}
		stats.total++
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			stats.malformed++
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			stats.malformed++
			continue
		}
		if v, ok := raw["schema_version"].(string); ok && v == normalizedConversationSchemaVersion {
			stats.schemaV12++
		}
		if _, ok := raw["llm_metadata"]; ok {
			stats.withLLMMetadata++
		}
	}
	return stats
}
