// Package dimension holds the canonical, ordered set of incremental-report
// dimensions (C2): each dimension's fixed layer, its sort rank, and the
// sort function downstream consumers rely on for a stable report order.
package dimension

import "sort"

// Layer is the fixed depth tag a dimension's reports must carry.
type Layer string

const (
	LayerL2 Layer = "L2"
	LayerL3 Layer = "L3"
)

// entry is one row of the registry.
type entry struct {
	name  string
	layer Layer
}

// registry is the fixed, ordered dimension list. Rank is its index here.
var registry = []entry{
	{"incremental-trigger-chains", LayerL2},
	{"incremental-first-pass-diagnostics", LayerL2},
	{"incremental-coverage-gap", LayerL2},
	{"incremental-task-stratification", LayerL2},
	{"incremental-root-causes", LayerL3},
	{"incremental-change-delta", LayerL3},
	{"incremental-interventions", LayerL3},
	{"incremental-intervention-impact", LayerL3},
	{"incremental-validation-loop", LayerL3},
	{"incremental-reuse-assets", LayerL3},
	{"incremental-compounding", LayerL3},
}

var rankOf = func() map[string]int {
	m := make(map[string]int, len(registry))
	for i, e := range registry {
		m[e.name] = i
	}
	return m
}()

var layerOf = func() map[string]Layer {
	m := make(map[string]Layer, len(registry))
	for _, e := range registry {
		m[e.name] = e.layer
	}
	return m
}()

// unknownRank sorts after every registered dimension.
const unknownRank = 1 << 30

// Names returns the registry's dimensions in canonical rank order.
func Names() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.name
	}
	return out
}

// IsSupported reports whether dim is one of the 11 registered dimensions.
func IsSupported(dim string) bool {
	_, ok := rankOf[dim]
	return ok
}

// ExpectedLayer returns dim's fixed layer and whether dim is registered.
func ExpectedLayer(dim string) (Layer, bool) {
	l, ok := layerOf[dim]
	return l, ok
}

// Rank returns dim's sort rank, or unknownRank if dim is not registered.
func Rank(dim string) int {
	if r, ok := rankOf[dim]; ok {
		return r
	}
	return unknownRank
}

// SortKey captures the (rank, period, date, title) ordering key a report
// is sorted by (§3.5).
type SortKey struct {
	Dimension string
	Period    string
	Date      string
	Title     string
}

// SortKeys sorts keys in place by (rank, period, date, title); unknown
// dimensions sort last.
func SortKeys(keys []SortKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		ra, rb := Rank(a.Dimension), Rank(b.Dimension)
		if ra != rb {
			return ra < rb
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Title < b.Title
	})
}
