// Package orchestrate implements the Diagnose Orchestrator (C6): resolving
// a backfill/incremental window into concrete since/until dates, deciding
// which sessions need a fresh SessionMechanismV1, dispatching digests to
// the Skill Runtime, and applying validated results back to the Local
// Store.
package orchestrate

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var windowPattern = regexp.MustCompile(`^(\d+)d$`)

// ParseWindowToSince converts a window expression ("30d", "", "all",
// "all-time") into a since-date (YYYY-MM-DD), or "" for an unbounded
// window. An explicit --since/--until pair always takes priority over
// --window at the call site; this only resolves the window string itself.
func ParseWindowToSince(window string, now time.Time) (string, error) {
	value := window
	switch value {
	case "", "all", "all-time":
		return "", nil
	}

	m := windowPattern.FindStringSubmatch(value)
	if m == nil {
		return "", fmt.Errorf("window must be like '30d' or 'all-time', got %q", window)
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days <= 0 {
		return "", fmt.Errorf("window days must be positive, got %q", window)
	}

	since := now.UTC().AddDate(0, 0, -days)
	return since.Format("2006-01-02"), nil
}

// ResolveWindow turns the --window/--since/--until flag combination into a
// concrete (since, until) pair. An explicit since or until always wins; a
// window is only applied when neither is set, and a resolved window stamps
// until with today's UTC date.
func ResolveWindow(window, since, until string, now time.Time) (resolvedSince, resolvedUntil string, err error) {
	if since != "" || until != "" {
		return since, until, nil
	}
	if window == "" {
		return "", "", nil
	}

	parsedSince, err := ParseWindowToSince(window, now)
	if err != nil {
		return "", "", err
	}
	if parsedSince == "" {
		return "", "", nil
	}
	return parsedSince, now.UTC().Format("2006-01-02"), nil
}

// BuildPeriodID derives the deterministic incremental period identifier:
// an explicit id wins, then an explicit since/until range, then a rolling
// window label, falling back to the default 30-day rolling window.
func BuildPeriodID(since, until, window, explicitPeriodID string) string {
	if explicitPeriodID != "" {
		return explicitPeriodID
	}
	if since != "" || until != "" {
		s := since
		if s == "" {
			s = "open"
		}
		u := until
		if u == "" {
			u = "today"
		}
		return fmt.Sprintf("%s_to_%s", s, u)
	}
	if window != "" {
		return "rolling_" + window
	}
	return "rolling_30d"
}
