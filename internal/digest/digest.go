// Package digest builds a bounded SessionDigest from a full Conversation
// (C4), the only input shape the Skill Runtime ever sends to an inference
// provider for the per-session pass.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/mechanismctl/diagnose/internal/mechanism"
)

const (
	maxTimelineItems    = 12
	userSnippetCap      = 140
	assistantSnippetCap = 120
)

// Build compresses conv into a SessionDigest. Pure, no I/O.
func Build(conv mechanism.Conversation) mechanism.SessionDigest {
	d := mechanism.SessionDigest{
		SessionID: conv.SessionID,
		Source:    conv.Source,
		CreatedAt: conv.CreatedAt,
		Week:      weekLabel(conv.CreatedAt),
		TurnCount: len(conv.Turns),
		ToolCount: countTools(conv.Turns),
		Timeline:  buildTimeline(conv.Turns),
	}

	if conv.Metadata != nil {
		if lang, ok := conv.Metadata["primary_language"].(string); ok {
			d.PrimaryLanguage = lang
		}
		if domains, ok := conv.Metadata["domains"].([]any); ok {
			for _, dom := range domains {
				if s, ok := dom.(string); ok {
					d.Domains = append(d.Domains, s)
				}
			}
		}
		d.LLMMetadata = extractLLMMetadata(conv.Metadata)
	}

	return d
}

func countTools(turns []mechanism.Turn) int {
	n := 0
	for _, t := range turns {
		n += len(t.AssistantResponse.ToolUses)
	}
	return n
}

// weekLabel renders an ISO week label ("YYYY-Www") from an ISO-8601
// timestamp. An unparseable timestamp yields an empty label rather than
// an error — the digest is a best-effort compression, not a validator.
func weekLabel(createdAt string) string {
	t, err := parseTimestamp(createdAt)
	if err != nil {
		return ""
	}
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

// buildTimeline selects up to 12 representative turns: all of them when
// there are 12 or fewer, otherwise the first 6 and last 6, deduplicated by
// turn_id keeping the first occurrence (§4.4).
func buildTimeline(turns []mechanism.Turn) []mechanism.TimelineItem {
	selected := selectTurns(turns)

	items := make([]mechanism.TimelineItem, 0, len(selected))
	for _, t := range selected {
		items = append(items, mechanism.TimelineItem{
			TurnID:           t.TurnID,
			UserSnippet:      collapseAndTruncate(t.UserMessage.Content, userSnippetCap),
			AssistantSnippet: collapseAndTruncate(t.AssistantResponse.Content, assistantSnippetCap),
			CorrectionCount:  len(t.Corrections),
			ToolNames:        toolNames(t.AssistantResponse.ToolUses),
		})
	}
	return items
}

func selectTurns(turns []mechanism.Turn) []mechanism.Turn {
	if len(turns) <= maxTimelineItems {
		return turns
	}

	half := maxTimelineItems / 2
	candidates := make([]mechanism.Turn, 0, maxTimelineItems)
	candidates = append(candidates, turns[:half]...)
	candidates = append(candidates, turns[len(turns)-(maxTimelineItems-half):]...)

	seen := make(map[int]bool, len(candidates))
	deduped := make([]mechanism.Turn, 0, len(candidates))
	for _, t := range candidates {
		if seen[t.TurnID] {
			continue
		}
		seen[t.TurnID] = true
		deduped = append(deduped, t)
	}
	return deduped
}

func toolNames(uses []mechanism.ToolUse) []string {
	if len(uses) == 0 {
		return nil
	}
	names := make([]string, len(uses))
	for i, u := range uses {
		names[i] = u.ToolName
	}
	return names
}

func collapseAndTruncate(text string, capLen int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if len(collapsed) <= capLen {
		return collapsed
	}
	return collapsed[:capLen]
}

func extractLLMMetadata(metadata map[string]any) *mechanism.LLMMetadata {
	raw, ok := metadata["llm_metadata"].(map[string]any)
	if !ok {
		return nil
	}
	out := &mechanism.LLMMetadata{}
	if v, ok := raw["task_type"].(string); ok {
		out.TaskType = v
	}
	if v, ok := raw["outcome"].(string); ok {
		out.Outcome = v
	}
	if v, ok := raw["difficulty"].(float64); ok {
		out.Difficulty = int(v)
	}
	if pq, ok := raw["prompt_quality"].(map[string]any); ok {
		if score, ok := pq["score"].(float64); ok {
			out.PromptQuality = &mechanism.PromptQuality{Score: int(score)}
		}
	}
	return out
}
