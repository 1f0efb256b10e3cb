package mechanism

import "strings"

// PlaceholderTokens is the shared, case-insensitive placeholder-token set
// referenced by both the Contract Validator (C1, envelope-level) and the
// Report Synchronizer's quality gate (C7, content-level). The duplication
// of concern across those two call sites is intentional per the design
// notes: C1 must accept any valid payload regardless of source, while C7
// enforces a stricter bar before publishing to the external DB. Keeping a
// single token list here is what makes that duplication safe.
var PlaceholderTokens = []string{
	"placeholder",
	"insufficient-evidence",
	"no validated",
	"need more session mechanism outputs",
	"collect-more-session-insights",
	"tbd",
	"trigger-missing",
	"action-missing",
	"root-cause-missing",
	"gain-missing",
	"window-missing",
}

// HasPlaceholderToken reports whether text contains any placeholder token,
// case-insensitively.
func HasPlaceholderToken(text string) bool {
	lower := strings.ToLower(text)
	for _, token := range PlaceholderTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// MechanismLanguageTokens is the advisory "mechanism language" probe token
// set (§4.1): a quality signal that the text actually discusses causes,
// triggers, and interventions rather than being generic filler. Currently
// only emitted by the C7 quality gate, not the core validator.
var MechanismLanguageTokens = []string{
	"机制", "根因", "导致", "因为", "动作", "验证", "改善", "干预",
	"hypothesis", "root cause", "trigger", "action", "validation",
}

// HasMechanismLanguage reports whether text contains at least one
// mechanism-language token. CJK tokens require an exact-character
// substring match (no case folding applies to non-Latin scripts); Latin
// tokens are matched case-insensitively. This pins the open question in
// spec.md §9 about full-width punctuation: full-width punctuation
// adjacent to a CJK token does not prevent the match, since the check is
// a plain substring test over the token runes themselves, not over any
// punctuation boundary.
func HasMechanismLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, token := range MechanismLanguageTokens {
		if isASCII(token) {
			if strings.Contains(lower, token) {
				return true
			}
			continue
		}
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
