package orchestrate

import (
	"time"

	"github.com/mechanismctl/diagnose/internal/mechanism"
)

// sessionHasMechanismSignal reports whether a decoded session sidecar
// carries at least one non-placeholder hypothesis backed by at least one
// concrete evidence item (non-placeholder snippet, positive turn_id,
// non-empty session_id). A sidecar can pass structural validation yet
// still fail this check if every hypothesis is technically well-formed
// but vacuous — this is the "present-but-low-quality" half of the
// needs-backfill test (§4.6.1 step 3).
func sessionHasMechanismSignal(raw mechanism.RawObject) bool {
	if generatedBy, ok := asObject(raw["generated_by"]); ok {
		if blockedGeneratedBy(generatedBy) {
			return false
		}
	}

	if summary, ok := raw["summary"].(string); ok && mechanism.HasPlaceholderToken(summary) {
		return false
	}

	whyItems, ok := raw["why"].([]any)
	if !ok {
		return false
	}
	for _, item := range whyItems {
		entry, ok := asObject(item)
		if !ok {
			continue
		}
		hypothesis, _ := entry["hypothesis"].(string)
		if hypothesis == "" || mechanism.HasPlaceholderToken(hypothesis) {
			continue
		}
		evidence, ok := entry["evidence"].([]any)
		if !ok {
			continue
		}
		for _, ev := range evidence {
			evEntry, ok := asObject(ev)
			if !ok {
				continue
			}
			if hasValidEvidenceItem(evEntry) {
				return true
			}
		}
	}
	return false
}

func hasValidEvidenceItem(item mechanism.RawObject) bool {
	sessionID, _ := item["session_id"].(string)
	if sessionID == "" || sessionID == "n/a" || sessionID == "unknown" {
		return false
	}
	turnID, ok := asPositiveInt(item["turn_id"])
	if !ok || turnID <= 0 {
		return false
	}
	snippet, _ := item["snippet"].(string)
	if snippet == "" || mechanism.HasPlaceholderToken(snippet) {
		return false
	}
	return true
}

func asObject(v any) (mechanism.RawObject, bool) {
	m, ok := v.(mechanism.RawObject)
	return m, ok
}

func asPositiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return int(n), true
		}
	case int:
		if n > 0 {
			return n, true
		}
	}
	return 0, false
}

var blockedGeneratedByEngines = map[string]bool{
	mechanism.EngineManual:   true,
	mechanism.EngineMock:     true,
	mechanism.EngineTemplate: true,
}

var blockedGeneratedByProviders = map[string]bool{
	"skill-manual": true,
	"manual":       true,
	"mock":         true,
	"api-mock":     true,
	"template":     true,
}

func blockedGeneratedBy(generatedBy mechanism.RawObject) bool {
	if engine, ok := generatedBy["engine"].(string); ok && blockedGeneratedByEngines[engine] {
		return true
	}
	if provider, ok := generatedBy["provider"].(string); ok && blockedGeneratedByProviders[provider] {
		return true
	}
	return false
}

// SessionNeedsBackfill decides whether sidecar (possibly nil, meaning the
// file is missing) requires a fresh SessionMechanismV1: a missing sidecar,
// one that fails structural validation, or one that lacks usable mechanism
// signal all count. forceRefresh short-circuits to true.
func SessionNeedsBackfill(sidecar mechanism.RawObject, sidecarExists bool, forceRefresh bool) bool {
	if forceRefresh {
		return true
	}
	if !sidecarExists {
		return true
	}
	if errs := mechanism.ValidateSessionMechanism(sidecar); len(errs) > 0 {
		return true
	}
	return !sessionHasMechanismSignal(sidecar)
}

// parseCreatedAt parses a conversation/sidecar created_at timestamp,
// tolerating RFC3339 with or without sub-second precision and a bare
// "Z" suffix. An unparseable or empty timestamp yields the zero time.
func parseCreatedAt(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// FilterSessionsByPeriod keeps only sidecars whose created_at falls
// within [since, until] inclusive (until treated as end-of-day), mirroring
// diagnose_helper.py's _filter_sessions_by_period.
func FilterSessionsByPeriod(sessions []mechanism.RawObject, since, until string) []mechanism.RawObject {
	var sinceDt, untilDt time.Time
	if since != "" {
		sinceDt, _ = time.Parse("2006-01-02", since)
	}
	if until != "" {
		if t, err := time.Parse("2006-01-02", until); err == nil {
			untilDt = t.Add(24 * time.Hour)
		}
	}

	out := make([]mechanism.RawObject, 0, len(sessions))
	for _, item := range sessions {
		createdAt, ok := item["created_at"].(string)
		if !ok || createdAt == "" {
			continue
		}
		createdDt := parseCreatedAt(createdAt)
		if createdDt.IsZero() {
			continue
		}
		if !sinceDt.IsZero() && createdDt.Before(sinceDt) {
			continue
		}
		if !untilDt.IsZero() && createdDt.After(untilDt) {
			continue
		}
		out = append(out, item)
	}
	return out
}
