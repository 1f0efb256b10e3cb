package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mechanismctl/diagnose/internal/store"
)

func newTestLayout(t *testing.T) store.Layout {
	t.Helper()
	base := t.TempDir()
	layout := store.NewLayout(base)
	for _, dir := range []string{layout.ConversationsDir(), layout.SessionInsightsDir(), layout.IncrementalInsightsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return layout
}

func TestDoctor_HealthyWhenEverythingPresent(t *testing.T) {
	layout := newTestLayout(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("store: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	report := Doctor(layout, configPath)
	if !report.Healthy {
		t.Fatalf("expected a healthy report, got %+v", report)
	}
	for _, check := range report.Checks {
		if !check.Healthy {
			t.Fatalf("expected check %q to be healthy, detail=%q", check.Name, check.Detail)
		}
	}
}

func TestDoctor_UnhealthyWhenConfigMissing(t *testing.T) {
	layout := newTestLayout(t)
	report := Doctor(layout, filepath.Join(t.TempDir(), "missing.yaml"))
	if report.Healthy {
		t.Fatalf("expected an unhealthy report when the config file is missing")
	}
}

func TestDoctor_UnhealthyWhenDirectoryMissing(t *testing.T) {
	base := t.TempDir()
	layout := store.NewLayout(base)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("store: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	report := Doctor(layout, configPath)
	if report.Healthy {
		t.Fatalf("expected an unhealthy report when the data directories do not exist")
	}
}

func TestDoctor_CountsMalformedConversationFiles(t *testing.T) {
	layout := newTestLayout(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("store: {}\n"), 0o644)

	os.WriteFile(filepath.Join(layout.ConversationsDir(), "good.json"), []byte(`{"session_id":"s1"}`), 0o644)
	os.WriteFile(filepath.Join(layout.ConversationsDir(), "bad.json"), []byte(`not json`), 0o644)

	report := Doctor(layout, configPath)
	if report.ConversationCount != 2 {
		t.Fatalf("expected 2 conversation files counted, got %d", report.ConversationCount)
	}
	if report.ConversationMalformed != 1 {
		t.Fatalf("expected 1 malformed conversation file, got %d", report.ConversationMalformed)
	}
}

func TestDoctor_CountsSchemaV12AndLLMMetadataConversations(t *testing.T) {
	layout := newTestLayout(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("store: {}\n"), 0o644)

	os.WriteFile(filepath.Join(layout.ConversationsDir(), "a.json"),
		[]byte(`{"session_id":"s1","schema_version":"1.2","llm_metadata":{"task_type":"debug"}}`), 0o644)
	os.WriteFile(filepath.Join(layout.ConversationsDir(), "b.json"),
		[]byte(`{"session_id":"s2","schema_version":"1.1"}`), 0o644)

	report := Doctor(layout, configPath)
	if report.ConversationCount != 2 {
		t.Fatalf("expected 2 conversation files counted, got %d", report.ConversationCount)
	}
	if report.ConversationSchemaV12 != 1 {
		t.Fatalf("expected 1 conversation on schema v1.2, got %d", report.ConversationSchemaV12)
	}
	if report.ConversationWithLLMMeta != 1 {
		t.Fatalf("expected 1 conversation with llm_metadata, got %d", report.ConversationWithLLMMeta)
	}
}

func TestDoctor_CountsInvalidSessionSidecars(t *testing.T) {
	layout := newTestLayout(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("store: {}\n"), 0o644)

	os.WriteFile(filepath.Join(layout.SessionInsightsDir(), "invalid.json"), []byte(`{}`), 0o644)

	report := Doctor(layout, configPath)
	if report.SessionSidecarCount != 1 {
		t.Fatalf("expected 1 session sidecar counted, got %d", report.SessionSidecarCount)
	}
	if report.SessionSidecarInvalid != 1 {
		t.Fatalf("expected the empty sidecar to be counted invalid, got %d", report.SessionSidecarInvalid)
	}
}
