package mechanism

import (
	"fmt"
	"strings"
)

// ValidateSessionMechanism structurally and semantically validates a
// decoded SessionMechanismV1 candidate and returns every violation found
// (an empty slice means valid). It never panics and never short-circuits
// except where a missing/wrong-typed parent makes deeper checks on that
// branch meaningless.
func ValidateSessionMechanism(raw RawObject) []string {
	var errs []string
	if raw == nil {
		return []string{"payload is not an object"}
	}

	if v, ok := getString(raw, "schema_version"); !ok || v != SessionMechanismSchemaVersion {
		errs = append(errs, fmt.Sprintf("schema_version must equal %q", SessionMechanismSchemaVersion))
	}

	if v, ok := getString(raw, "session_id"); !ok || v == "" {
		errs = append(errs, "session_id must be a non-empty string")
	}
	if v, ok := getString(raw, "created_at"); !ok || v == "" {
		errs = append(errs, "created_at must be a non-empty string")
	}

	errs = append(errs, validateWhatHappened(raw)...)
	errs = append(errs, validateWhy(raw)...)
	errs = append(errs, validateHowToImprove(raw)...)

	if v, ok := getString(raw, "summary"); !ok || v == "" {
		errs = append(errs, "summary must be a non-empty string")
	}

	errs = append(errs, validateGeneratedBy(raw)...)
	errs = append(errs, scanPlaceholders(raw)...)

	return errs
}

func validateWhatHappened(raw RawObject) []string {
	items, ok := getSlice(raw, "what_happened")
	if !ok || len(items) == 0 {
		return []string{"what_happened must be a non-empty sequence of strings"}
	}
	var errs []string
	for i, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			errs = append(errs, fmt.Sprintf("what_happened[%d] must be a non-empty string", i))
		}
	}
	return errs
}

func validateWhy(raw RawObject) []string {
	items, ok := getSlice(raw, "why")
	if !ok || len(items) == 0 {
		return []string{"why must be a non-empty sequence"}
	}
	var errs []string
	for i, item := range items {
		entry, ok := item.(RawObject)
		if !ok {
			entry2, ok2 := item.(map[string]interface{})
			if !ok2 {
				errs = append(errs, fmt.Sprintf("why[%d] must be an object", i))
				continue
			}
			entry = entry2
		}
		if v, ok := getString(entry, "hypothesis"); !ok || v == "" {
			errs = append(errs, fmt.Sprintf("why[%d].hypothesis must be a non-empty string", i))
		}
		evidence, ok := getSlice(entry, "evidence")
		if !ok || len(evidence) == 0 {
			errs = append(errs, fmt.Sprintf("why[%d].evidence must be a non-empty sequence", i))
			continue
		}
		for j, ev := range evidence {
			errs = append(errs, validateEvidence(i, j, ev)...)
		}
	}
	return errs
}

func validateEvidence(whyIdx, evIdx int, raw any) []string {
	entry, ok := raw.(RawObject)
	if !ok {
		entry2, ok2 := raw.(map[string]interface{})
		if !ok2 {
			return []string{fmt.Sprintf("why[%d].evidence[%d] must be an object", whyIdx, evIdx)}
		}
		entry = entry2
	}

	var errs []string
	if v, ok := getString(entry, "session_id"); !ok || v == "" {
		errs = append(errs, fmt.Sprintf("why[%d].evidence[%d].session_id must be a non-empty string", whyIdx, evIdx))
	}
	if v, ok := entry["turn_id"]; !ok {
		errs = append(errs, fmt.Sprintf("why[%d].evidence[%d].turn_id must be a positive integer", whyIdx, evIdx))
	} else if _, ok := asPositiveInt(v); !ok {
		errs = append(errs, fmt.Sprintf("why[%d].evidence[%d].turn_id must be a positive integer", whyIdx, evIdx))
	}
	if v, ok := getString(entry, "snippet"); !ok || trimEmpty(v) {
		errs = append(errs, fmt.Sprintf("why[%d].evidence[%d].snippet must be non-empty after trim", whyIdx, evIdx))
	}
	if v, ok := getString(entry, "tier"); ok && v != "" && v != EvidenceTierPrimary && v != EvidenceTierSupporting {
		errs = append(errs, fmt.Sprintf("why[%d].evidence[%d].tier must be one of 'primary', 'supporting'", whyIdx, evIdx))
	}
	return errs
}

func validateHowToImprove(raw RawObject) []string {
	items, ok := getSlice(raw, "how_to_improve")
	if !ok || len(items) == 0 {
		return []string{"how_to_improve must be a non-empty sequence"}
	}
	var errs []string
	for i, item := range items {
		entry, ok := item.(RawObject)
		if !ok {
			entry2, ok2 := item.(map[string]interface{})
			if !ok2 {
				errs = append(errs, fmt.Sprintf("how_to_improve[%d] must be an object", i))
				continue
			}
			entry = entry2
		}
		for _, field := range []string{"trigger", "action", "expected_gain", "validation_window"} {
			if v, ok := getString(entry, field); !ok || v == "" {
				errs = append(errs, fmt.Sprintf("how_to_improve[%d].%s must be a non-empty string", i, field))
			}
		}
	}
	return errs
}

func validateGeneratedBy(raw RawObject) []string {
	entry, ok := getMap(raw, "generated_by")
	if !ok {
		return []string{"generated_by must be an object"}
	}
	var errs []string
	for _, field := range []string{"engine", "provider", "model", "run_id", "generated_at"} {
		if v, ok := getString(entry, field); !ok || v == "" {
			errs = append(errs, fmt.Sprintf("generated_by.%s must be a non-empty string", field))
		}
	}

	if engine, ok := getString(entry, "engine"); ok && blockedEngines[engine] {
		errs = append(errs, fmt.Sprintf("generated_by is blocked: engine %q is not allowed", engine))
	}
	if provider, ok := getString(entry, "provider"); ok && blockedProviders[provider] {
		errs = append(errs, fmt.Sprintf("generated_by is blocked: provider %q is not allowed", provider))
	}
	if runID, ok := getString(entry, "run_id"); ok {
		for _, bad := range blockedRunIDSubstrings {
			if strings.Contains(runID, bad) {
				errs = append(errs, fmt.Sprintf("generated_by is blocked: run_id contains %q", bad))
				break
			}
		}
	}
	return errs
}

// scanPlaceholders walks every required string field and rejects any that
// contains a placeholder token after lowercasing.
func scanPlaceholders(raw RawObject) []string {
	var errs []string
	check := func(path, value string) {
		if HasPlaceholderToken(value) {
			errs = append(errs, fmt.Sprintf("%s contains a placeholder token", path))
		}
	}

	if v, ok := getString(raw, "summary"); ok {
		check("summary", v)
	}
	if items, ok := getSlice(raw, "what_happened"); ok {
		for i, item := range items {
			if s, ok := item.(string); ok {
				check(fmt.Sprintf("what_happened[%d]", i), s)
			}
		}
	}
	if items, ok := getSlice(raw, "why"); ok {
		for i, item := range items {
			entry, ok := asObject(item)
			if !ok {
				continue
			}
			if v, ok := getString(entry, "hypothesis"); ok {
				check(fmt.Sprintf("why[%d].hypothesis", i), v)
			}
		}
	}
	if items, ok := getSlice(raw, "how_to_improve"); ok {
		for i, item := range items {
			entry, ok := asObject(item)
			if !ok {
				continue
			}
			for _, field := range []string{"trigger", "action", "expected_gain", "validation_window"} {
				if v, ok := getString(entry, field); ok {
					check(fmt.Sprintf("how_to_improve[%d].%s", i, field), v)
				}
			}
		}
	}
	return errs
}

func asObject(v any) (RawObject, bool) {
	if m, ok := v.(RawObject); ok {
		return m, true
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m, true
	}
	return nil, false
}

func trimEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
