package skillrun

import (
	"strconv"
	"strings"
	"time"

	"github.com/mechanismctl/diagnose/internal/mechanism"
)

// SanitizeSessionOutput best-effort-reshapes whatever JSON object a model
// returned into the SessionMechanismV1 field names, accepting a handful of
// synonyms a model might reach for instead of the contracted keys. It never
// rejects a payload — that's ValidateSessionMechanism's job once this has
// run.
func SanitizeSessionOutput(raw map[string]any) map[string]any {
	item := cloneMap(raw)

	whatHappened := asStringSlice(item["what_happened"])
	if len(whatHappened) == 0 {
		for _, key := range []string{"event", "outcome", "observed_behavior", "observation", "phenomenon"} {
			if text := asNonEmptyText(item[key]); text != "" {
				whatHappened = append(whatHappened, text)
			}
		}
		if text := asNonEmptyText(item["snippet"]); text != "" {
			whatHappened = append(whatHappened, text)
		}
	}
	item["what_happened"] = whatHappened

	summary := asNonEmptyText(item["summary"])
	if summary == "" && len(whatHappened) > 0 {
		summary = whatHappened[0]
	}
	item["summary"] = summary

	item["why"] = normalizeWhy(item)
	item["how_to_improve"] = normalizeActions(item)
	item["labels"] = normalizeLabels(item["labels"])

	return item
}

func normalizeWhy(item map[string]any) []map[string]any {
	var source []map[string]any
	switch v := item["why"].(type) {
	case []any:
		for _, entry := range v {
			if m, ok := entry.(map[string]any); ok {
				source = append(source, m)
			}
		}
	case map[string]any:
		source = append(source, v)
	}

	if len(source) == 0 && asNonEmptyText(item["hypothesis"]) != "" {
		source = append(source, map[string]any{
			"hypothesis": item["hypothesis"],
			"confidence": item["confidence"],
			"evidence":   item["evidence"],
		})
	}

	whyItems := make([]map[string]any, 0, len(source))
	for _, entry := range source {
		hypothesis := firstNonEmptyText(entry, "hypothesis", "root_cause", "reasoning")
		evidence := normalizeEvidenceList(entry["evidence"])
		if len(evidence) == 0 {
			if raw, ok := item["evidence"]; ok {
				evidence = normalizeEvidenceList(raw)
			}
		}
		whyItem := map[string]any{"hypothesis": hypothesis, "evidence": evidence}
		if conf, ok := asFloat(entry["confidence"]); ok {
			whyItem["confidence"] = conf
		}
		whyItems = append(whyItems, whyItem)
	}
	return whyItems
}

func normalizeEvidenceList(value any) []map[string]any {
	var entries []map[string]any
	switch v := value.(type) {
	case map[string]any:
		entries = append(entries, v)
	case []any:
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				entries = append(entries, m)
			}
		}
	}

	normalized := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		sessionID := asNonEmptyText(entry["session_id"])
		turnID, ok := asPositiveInt(entry["turn_id"])
		snippet := asNonEmptyText(entry["snippet"])
		if sessionID == "" || !ok || snippet == "" {
			continue
		}
		item := map[string]any{
			"session_id": sessionID,
			"turn_id":    turnID,
			"snippet":    snippet,
		}
		if tier := asNonEmptyText(entry["tier"]); tier == mechanism.EvidenceTierPrimary || tier == mechanism.EvidenceTierSupporting {
			item["tier"] = tier
		}
		normalized = append(normalized, item)
	}
	return normalized
}

func normalizeActions(item map[string]any) []map[string]string {
	actions := extractActions(item["how_to_improve"])
	if len(actions) == 0 {
		for _, key := range []string{"interventions", "recommendations", "actions"} {
			if actions = extractActions(item[key]); len(actions) > 0 {
				break
			}
		}
	}
	return actions
}

func extractActions(value any) []map[string]string {
	var items []map[string]any
	switch v := value.(type) {
	case map[string]any:
		items = append(items, v)
	case []any:
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				items = append(items, m)
			}
		}
	}

	normalized := make([]map[string]string, 0, len(items))
	for _, item := range items {
		normalized = append(normalized, map[string]string{
			"trigger":           firstNonEmptyText(item, "trigger", "when", "condition"),
			"action":            firstNonEmptyText(item, "action", "do", "step"),
			"expected_gain":     firstNonEmptyText(item, "expected_gain", "expect", "benefit", "outcome"),
			"validation_window": firstNonEmptyText(item, "validation_window", "validate", "window"),
		})
	}
	return normalized
}

func normalizeLabels(value any) []string {
	switch v := value.(type) {
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return []string{trimmed}
		}
		return []string{}
	case []any:
		labels := make([]string, 0, len(v))
		for _, l := range v {
			if text := asNonEmptyText(l); text != "" {
				labels = append(labels, text)
			}
		}
		return labels
	default:
		return []string{}
	}
}

// BuildGeneratedBy stamps the generated_by envelope every SessionMechanismV1
// and IncrementalMechanismV1 payload must carry before it reaches the
// validator, identifying which engine/provider/model/run produced it.
func BuildGeneratedBy(engine, provider, model, runID string) map[string]any {
	return map[string]any{
		"engine":       engine,
		"provider":     provider,
		"model":        model,
		"run_id":       runID,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
}

// NormalizeSessionOutput wraps a sanitized model output in the
// SessionMechanismV1 envelope fields that come from the digest rather than
// the model: session_id, created_at, week, period_id, and generated_by.
func NormalizeSessionOutput(raw map[string]any, digest mechanism.SessionDigest, runID, provider, model, engine string) map[string]any {
	item := SanitizeSessionOutput(raw)
	item["schema_version"] = mechanism.SessionMechanismSchemaVersion
	item["session_id"] = digest.SessionID
	item["created_at"] = digest.CreatedAt
	if digest.Week != "" {
		item["week"] = digest.Week
		item["period_id"] = digest.Week
	}
	item["generated_by"] = BuildGeneratedBy(engine, provider, model, runID)
	return item
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func asStringSlice(value any) []string {
	v, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if text := asNonEmptyText(item); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func asNonEmptyText(value any) string {
	if value == nil {
		return ""
	}
	text := strings.TrimSpace(strings.Join(strings.Fields(stringify(value)), " "))
	return text
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func firstNonEmptyText(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if text := asNonEmptyText(entry[key]); text != "" {
			return text
		}
	}
	return ""
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asPositiveInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return int(v), true
		}
	case int:
		if v > 0 {
			return v, true
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		n, err := strconv.Atoi(trimmed)
		if err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
