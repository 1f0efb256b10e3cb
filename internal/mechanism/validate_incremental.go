package mechanism

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mechanismctl/diagnose/internal/dimension"
)

// evidenceDumpPattern flags detail_lines that look like raw per-session
// evidence rather than aggregated mechanism-level insight (§3.4).
var evidenceDumpPattern = regexp.MustCompile(`(#t\d+|session[_-]?id|主证据[:：]|辅助证据[:：])`)

// ValidateIncrementalMechanism structurally and semantically validates a
// decoded IncrementalMechanismV1 candidate and returns every violation
// found (an empty slice means valid).
func ValidateIncrementalMechanism(raw RawObject) []string {
	var errs []string
	if raw == nil {
		return []string{"payload is not an object"}
	}

	if v, ok := getString(raw, "schema_version"); !ok || v != IncrementalMechanismSchemaVersion {
		errs = append(errs, fmt.Sprintf("schema_version must equal %q", IncrementalMechanismSchemaVersion))
	}

	periodID, hasPeriodID := getString(raw, "period_id")
	week, hasWeek := getString(raw, "week")
	if (!hasPeriodID || periodID == "") && (!hasWeek || week == "") {
		errs = append(errs, "either period_id or week must be a non-empty string")
	}

	errs = append(errs, validateCoverage(raw)...)
	errs = append(errs, validateReports(raw)...)

	return errs
}

func validateCoverage(raw RawObject) []string {
	coverage, ok := getMap(raw, "coverage")
	if !ok {
		return []string{"coverage must be an object"}
	}
	var errs []string

	total, totalOK := asNonNegativeInt(coverage["sessions_total"])
	if !totalOK {
		errs = append(errs, "coverage.sessions_total must be a non-negative integer")
	}
	withMechanism, withOK := asNonNegativeInt(coverage["sessions_with_mechanism"])
	if !withOK {
		errs = append(errs, "coverage.sessions_with_mechanism must be a non-negative integer")
	}
	if totalOK && withOK && withMechanism > total {
		errs = append(errs, "coverage.sessions_with_mechanism cannot exceed coverage.sessions_total")
	}
	return errs
}

func asNonNegativeInt(v any) (int, bool) {
	f, ok := getNumber(v)
	if !ok {
		return 0, false
	}
	n := int(f)
	if float64(n) != f || n < 0 {
		return 0, false
	}
	return n, true
}

func validateReports(raw RawObject) []string {
	items, ok := getSlice(raw, "reports")
	if !ok || len(items) == 0 {
		return []string{"reports must be a non-empty sequence"}
	}

	var errs []string
	type key struct{ dimension, period string }
	seen := make(map[key]bool)

	envPeriod, _ := getString(raw, "period_id")
	if envPeriod == "" {
		envPeriod, _ = getString(raw, "week")
	}

	for i, item := range items {
		entry, ok := asObject(item)
		if !ok {
			errs = append(errs, fmt.Sprintf("reports[%d] must be an object", i))
			continue
		}
		errs = append(errs, validateReport(i, entry)...)

		dim, _ := getString(entry, "dimension")
		period, hasPeriod := getString(entry, "period")
		if !hasPeriod || period == "" {
			period = envPeriod
		}
		k := key{dim, period}
		if seen[k] {
			errs = append(errs, fmt.Sprintf("reports[%d] duplicates (dimension, period) = (%q, %q)", i, dim, period))
		}
		seen[k] = true
	}
	return errs
}

func validateReport(i int, entry RawObject) []string {
	var errs []string

	dim, ok := getString(entry, "dimension")
	if !ok || dim == "" {
		errs = append(errs, fmt.Sprintf("reports[%d].dimension must be a non-empty string", i))
	} else if !dimension.IsSupported(dim) {
		errs = append(errs, fmt.Sprintf("reports[%d].dimension must be one of %s", i, strings.Join(dimension.Names(), ", ")))
	}

	layer, hasLayer := getString(entry, "layer")
	if !hasLayer || layer == "" {
		errs = append(errs, fmt.Sprintf("reports[%d].layer must be a non-empty string", i))
	} else if ok && dimension.IsSupported(dim) {
		expected, _ := dimension.ExpectedLayer(dim)
		if layer != string(expected) {
			errs = append(errs, fmt.Sprintf("reports[%d].layer must be '%s'", i, expected))
		}
	}

	if v, ok := getString(entry, "title"); !ok || v == "" {
		errs = append(errs, fmt.Sprintf("reports[%d].title must be a non-empty string", i))
	}
	if v, ok := getString(entry, "key_insights"); !ok || v == "" {
		errs = append(errs, fmt.Sprintf("reports[%d].key_insights must be a non-empty string", i))
	}

	detailLines, hasLines := getSlice(entry, "detail_lines")
	detailText, hasText := getString(entry, "detail_text")
	if (!hasLines || len(detailLines) == 0) && (!hasText || detailText == "") {
		errs = append(errs, fmt.Sprintf("reports[%d] must have non-empty detail_lines or detail_text", i))
	}

	if hasLines && len(detailLines) > 0 {
		if len(detailLines) > 80 {
			errs = append(errs, fmt.Sprintf("reports[%d].detail_lines must have at most 80 entries", i))
		}
		var lines []string
		for j, l := range detailLines {
			s, ok := l.(string)
			if !ok || s == "" {
				errs = append(errs, fmt.Sprintf("reports[%d].detail_lines[%d] must be a non-empty string", i, j))
				continue
			}
			lines = append(lines, s)
		}
		if len(lines) >= 20 {
			matches := 0
			for _, l := range lines {
				if evidenceDumpPattern.MatchString(l) {
					matches++
				}
			}
			if float64(matches)/float64(len(lines)) >= 0.70 {
				errs = append(errs, fmt.Sprintf("reports[%d]: per-session evidence dump; aggregate into mechanism-level insights", i))
			}
		}
	}

	return errs
}
