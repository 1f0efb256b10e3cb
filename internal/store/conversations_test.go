package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConvFile(t *testing.T, dir, sessionID, createdAt, source string) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"created_at": createdAt,
		"source":     source,
		"turns":      []any{},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(dir, sessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestLoadConversations_SortsDescendingAndSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeConvFile(t, dir, "s-old", "2026-01-01T00:00:00Z", "chatgpt")
	writeConvFile(t, dir, "s-new", "2026-02-01T00:00:00Z", "claude_code")
	if err := os.WriteFile(filepath.Join(dir, "s-bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write malformed fixture: %v", err)
	}

	convs, err := LoadConversations(dir, ConversationFilter{}, nil)
	if err != nil {
		t.Fatalf("LoadConversations failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations (malformed skipped), got %d", len(convs))
	}
	if convs[0].SessionID != "s-new" {
		t.Errorf("expected newest conversation first, got %s", convs[0].SessionID)
	}
}

func TestLoadConversations_FiltersBySourceAndDate(t *testing.T) {
	dir := t.TempDir()
	writeConvFile(t, dir, "s-1", "2026-01-15T00:00:00Z", "chatgpt")
	writeConvFile(t, dir, "s-2", "2026-01-20T00:00:00Z", "claude_code")
	writeConvFile(t, dir, "s-3", "2026-02-01T00:00:00Z", "claude_code")

	convs, err := LoadConversations(dir, ConversationFilter{
		Since:  "2026-01-16",
		Until:  "2026-01-31",
		Source: "claude_code",
	}, nil)
	if err != nil {
		t.Fatalf("LoadConversations failed: %v", err)
	}
	if len(convs) != 1 || convs[0].SessionID != "s-2" {
		t.Fatalf("expected only s-2 to survive filtering, got %+v", convs)
	}
}

func TestLoadConversations_MissingDirReturnsEmpty(t *testing.T) {
	convs, err := LoadConversations(filepath.Join(t.TempDir(), "missing"), ConversationFilter{}, nil)
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("expected empty slice, got %d conversations", len(convs))
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	if _, ok := GetConversation(t.TempDir(), "nope"); ok {
		t.Errorf("expected ok=false for missing session")
	}
}
