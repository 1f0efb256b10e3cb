package skillrun

import (
	"fmt"
	"os"
	"strings"
)

const (
	baseSkillPromptMaxChars      = 1400
	extensionSkillPromptMaxChars = 180
)

// LoadSkillPrompt composes the incremental Skill text from a base prompt
// file and one or more extension skill files, concatenated in order. Each
// file is trimmed to its non-empty lines, then truncated to its char
// budget (1400 for the base prompt, 180 per extension) before joining —
// both files must exist, since a missing Skill file is a fatal config
// error (§4.5).
func LoadSkillPrompt(basePromptPath string, extensionPromptPaths []string) (string, error) {
	if basePromptPath == "" {
		return "", fmt.Errorf("skill base prompt path is required")
	}
	if len(extensionPromptPaths) == 0 {
		return "", fmt.Errorf("at least one skill extension prompt path is required")
	}

	base, err := readTrimmedSkillFile(basePromptPath, baseSkillPromptMaxChars)
	if err != nil {
		return "", fmt.Errorf("load base skill prompt %s: %w", basePromptPath, err)
	}

	parts := []string{base}
	for _, path := range extensionPromptPaths {
		ext, err := readTrimmedSkillFile(path, extensionSkillPromptMaxChars)
		if err != nil {
			return "", fmt.Errorf("load extension skill prompt %s: %w", path, err)
		}
		parts = append(parts, ext)
	}
	return strings.Join(parts, "\n\n"), nil
}

func readTrimmedSkillFile(path string, maxChars int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	text := strings.Join(lines, "\n")
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}
