package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	type payload struct {
		Name string `json:"name"`
	}

	if err := WriteJSON(path, payload{Name: "alpha"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var got payload
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Name != "alpha" {
		t.Errorf("expected name 'alpha', got %q", got.Name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Errorf("expected trailing newline")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be removed after rename")
	}
}

func TestWriteJSON_SkipsIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	type payload struct {
		Name string `json:"name"`
	}

	if err := WriteJSON(path, payload{Name: "alpha"}); err != nil {
		t.Fatalf("first WriteJSON failed: %v", err)
	}
	info1, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	if err := WriteJSON(path, payload{Name: "alpha"}); err != nil {
		t.Fatalf("second WriteJSON failed: %v", err)
	}
	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	if info1.ModTime() != info2.ModTime() {
		t.Errorf("expected no-op write to leave mtime unchanged")
	}
}
