package mechanism

import (
	"sort"

	"github.com/mechanismctl/diagnose/internal/dimension"
)

// SortReports sorts reports in place by the Dimension Registry's canonical
// (rank, period, date, title) order (§3.5), using env to resolve each
// report's effective period when the report itself doesn't set one.
func SortReports(env IncrementalMechanism, reports []Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		ra, rb := dimension.Rank(a.Dimension), dimension.Rank(b.Dimension)
		if ra != rb {
			return ra < rb
		}
		pa, pb := env.EffectivePeriod(a), env.EffectivePeriod(b)
		if pa != pb {
			return pa < pb
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Title < b.Title
	})
}
