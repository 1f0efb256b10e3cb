package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mechanismctl/diagnose/internal/mechanism"
)

// ConversationFilter narrows LoadConversations to a date window and/or source.
// Since/Until compare against the ISO date prefix of created_at, inclusive on
// both ends, matching the local_loader semantics this is grounded on.
type ConversationFilter struct {
	Since  string
	Until  string
	Source string
}

// LoadConversations reads every *.json file directly under dir, skipping
// files that fail to parse, and returns the surviving conversations sorted
// by created_at descending.
func LoadConversations(dir string, filter ConversationFilter, logger *slog.Logger) ([]mechanism.Conversation, error) {
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

	convs := make([]mechanism.Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable conversation file", "path", path, "error", err)
			continue
		}
		var conv mechanism.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			logger.Warn("skipping malformed conversation file", "path", path, "error", err)
			continue
		}

		if filter.Source != "" && string(conv.Source) != filter.Source {
			continue
		}
		created := createdDatePrefix(conv.CreatedAt)
		if filter.Since != "" && created < filter.Since {
			continue
		}
		if filter.Until != "" && created > filter.Until {
			continue
		}
		convs = append(convs, conv)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].CreatedAt > convs[j].CreatedAt
	})
	return convs, nil
}

// GetConversation loads a single conversation by session ID, returning
// (zero-value, false) if the file is missing or malformed.
func GetConversation(dir, sessionID string) (mechanism.Conversation, bool) {
	path := filepath.Join(dir, sessionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return mechanism.Conversation{}, false
	}
	var conv mechanism.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return mechanism.Conversation{}, false
	}
	return conv, true
}

func createdDatePrefix(createdAt string) string {
	if len(createdAt) < 10 {
		return createdAt
	}
	return createdAt[:10]
}
