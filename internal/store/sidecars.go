package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadRawJSONDir reads every *.json file directly under dir and decodes it
// into a generic map, skipping (and logging) any file that fails to parse.
// Session and incremental insight sidecars are validated structurally by
// the mechanism package rather than by a fixed Go struct, so callers that
// need to run them through the Contract Validator load them this way
// instead of through a typed unmarshal.
func LoadRawJSONDir(dir string, logger *slog.Logger) ([]map[string]any, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable sidecar file", "path", path, "error", err)
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			logger.Warn("skipping malformed sidecar file", "path", path, "error", err)
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
