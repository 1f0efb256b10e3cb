package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON marshals v as indented JSON with a trailing newline and writes it
// to path atomically: the payload lands in a sibling ".tmp" file first, which
// is then renamed over the destination so readers never observe a partial
// write. If the destination already holds byte-identical content, WriteJSON
// skips the write entirely so mtimes (and sync-detection logic layered on
// top of them) stay stable across no-op runs.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file into %s: %w", path, err)
	}
	return nil
}

// ReadJSON unmarshals the file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WriteStatus reports what ApplyJSON actually did, so a batch-apply caller
// can report created/updated counts the way the backfill run summary does.
type WriteStatus int

const (
	WriteUnchanged WriteStatus = iota
	WriteCreated
	WriteUpdated
)

// ApplyJSON is WriteJSON plus a status report distinguishing a brand new
// file from an overwrite of an existing, differing one.
func ApplyJSON(path string, v any) (WriteStatus, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return WriteUnchanged, fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	if existed {
		if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
			return WriteUnchanged, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteUnchanged, fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return WriteUnchanged, fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return WriteUnchanged, fmt.Errorf("rename temp file into %s: %w", path, err)
	}

	if existed {
		return WriteUpdated, nil
	}
	return WriteCreated, nil
}
