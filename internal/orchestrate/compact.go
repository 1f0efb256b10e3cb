package orchestrate

import (
	"fmt"
	"strings"

	"github.com/mechanismctl/diagnose/internal/mechanism"
)

const (
	incrementalHypothesisChars = 28
	incrementalActionChars     = 14
)

// CompactSessionForIncremental reduces a session sidecar to the SessionRef
// shape the incremental aggregation Skill receives (§4.6.2 step 4): only a
// compacted first hypothesis with at most one evidence reference, and at
// most one label/action, so the aggregation prompt scales with session
// count rather than with each session's full mechanism detail.
func CompactSessionForIncremental(raw mechanism.RawObject) mechanism.SessionRef {
	ref := mechanism.SessionRef{
		SessionID: compactText(stringField(raw, "session_id"), 0),
		CreatedAt: stringField(raw, "created_at"),
	}

	if labels, ok := raw["labels"].([]any); ok {
		for _, l := range labels {
			if s, ok := l.(string); ok && strings.TrimSpace(s) != "" {
				ref.Labels = []string{strings.TrimSpace(s)}
				break
			}
		}
	}

	if whyItems, ok := raw["why"].([]any); ok {
		for _, item := range whyItems {
			entry, ok := asObject(item)
			if !ok {
				continue
			}
			hypothesis := strings.TrimSpace(stringField(entry, "hypothesis"))
			if hypothesis == "" {
				continue
			}
			mref := &mechanism.MechanismRef{
				Hypothesis: compactText(hypothesis, incrementalHypothesisChars),
			}
			if evidenceRaw, ok := entry["evidence"].([]any); ok {
				mref.EvidenceRefs = firstValidEvidenceRef(evidenceRaw)
			}
			ref.Mechanism = mref
			break
		}
	}

	if actions, ok := raw["how_to_improve"].([]any); ok {
		for _, item := range actions {
			entry, ok := asObject(item)
			if !ok {
				continue
			}
			action := strings.TrimSpace(stringField(entry, "action"))
			if action == "" {
				continue
			}
			ref.ActionRef = compactText(action, incrementalActionChars)
			break
		}
	}

	return ref
}

// firstValidEvidenceRef returns the first concrete evidence item formatted
// as "<session_id>#T<turn_id>", in input order with no preference by
// session (the incremental compaction keeps at most one ref).
func firstValidEvidenceRef(evidence []any) []string {
	for _, ev := range evidence {
		entry, ok := asObject(ev)
		if !ok {
			continue
		}
		if !hasValidEvidenceItem(entry) {
			continue
		}
		sessionID, _ := entry["session_id"].(string)
		turnID, _ := asPositiveInt(entry["turn_id"])
		return []string{fmt.Sprintf("%s#T%d", sessionID, turnID)}
	}
	return nil
}

func stringField(raw mechanism.RawObject, key string) string {
	s, _ := raw[key].(string)
	return s
}

func compactText(s string, limit int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if limit <= 0 || len(collapsed) <= limit {
		return collapsed
	}
	return collapsed[:limit]
}
