package skillrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	execsafety "github.com/mechanismctl/diagnose/internal/exec"
	"github.com/mechanismctl/diagnose/internal/mechanism"
)

// LocalCLIA wraps a claude-style local inference CLI: invoked with -p, a
// JSON stdout envelope, and a system prompt flag. It relies on the caller
// already being authenticated (local subscription/session), so it never
// handles API keys.
type LocalCLIA struct {
	// Binary is the executable name or path, validated before every exec.
	Binary string
}

func NewLocalCLIA() *LocalCLIA {
	return &LocalCLIA{Binary: "claude"}
}

func (p *LocalCLIA) Name() string { return ProviderLocalCLIA }

func (p *LocalCLIA) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	inputName, schema := inputShape(input)
	userPrompt, err := BuildUserPrompt(skillPrompt, inputName, input, schema)
	if err != nil {
		return nil, err
	}

	flags := []string{
		"-p",
		"--output-format", "json",
		"--no-session-persistence",
		"--model", model,
		"--system-prompt", RuntimeSystemPrompt,
	}
	if err := validateCLIArgs(flags); err != nil {
		return nil, err
	}
	args := append(flags, userPrompt)

	binary := p.Binary
	if binary == "" {
		binary = "claude"
	}
	if err := execsafety.ValidateProviderBinary(binary); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("claude_cli failed rc=%s: %s", exitCodeOf(err), truncate(stderr.String(), 500))
	}
	return ExtractCLIJSONResponse(stdout.String())
}

// LocalCLIB wraps a codex-style local inference CLI: invoked via `exec`,
// writes its final message to a file via --output-last-message instead of
// stdout, and runs inside an isolated temp workdir so repository-level agent
// instructions in the caller's own tree don't leak into the prompt.
type LocalCLIB struct {
	Binary string
}

func NewLocalCLIB() *LocalCLIB {
	return &LocalCLIB{Binary: "codex"}
}

func (p *LocalCLIB) Name() string { return ProviderLocalCLIB }

const codexReasoningEffort = "medium"

func (p *LocalCLIB) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	inputName, schema := inputShape(input)
	userPrompt, err := BuildUserPrompt(skillPrompt, inputName, input, schema)
	if err != nil {
		return nil, err
	}

	workdir, err := codexWorkdir()
	if err != nil {
		return nil, err
	}

	outputFile, err := os.CreateTemp("", "codex-last-msg-*.txt")
	if err != nil {
		return nil, fmt.Errorf("create codex output file: %w", err)
	}
	outputPath := outputFile.Name()
	outputFile.Close()
	defer os.Remove(outputPath)

	flags := []string{
		"exec",
		"--skip-git-repo-check",
		"-C", workdir,
		"--sandbox", "workspace-write",
		"--model", model,
		"-c", fmt.Sprintf("model_reasoning_effort=%q", codexReasoningEffort),
		"--output-last-message", outputPath,
	}
	if err := validateCLIArgs(flags); err != nil {
		return nil, err
	}
	args := append(flags, userPrompt)

	binary := p.Binary
	if binary == "" {
		binary = "codex"
	}
	if err := execsafety.ValidateProviderBinary(binary); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		hint := strings.TrimSpace(stderr.String())
		if hint == "" {
			hint = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("codex_cli failed rc=%s: %s", exitCodeOf(err), truncate(hint, 500))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("codex_cli finished without output-last-message file: %w", err)
	}
	return ExtractJSONObject(string(data))
}

func codexWorkdir() (string, error) {
	dir := filepath.Join(os.TempDir(), "diagnose-codex-runtime")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create codex workdir: %w", err)
	}
	return dir, nil
}

func validateCLIArgs(args []string) error {
	_, err := execsafety.SanitizeArguments(args)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func exitCodeOf(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("%d", exitErr.ExitCode())
	}
	return "unknown"
}

func inputShape(input any) (name string, schema string) {
	switch input.(type) {
	case mechanism.SessionDigest:
		return "SessionDigestV1", "SessionMechanismV1"
	default:
		return "IncrementalInputV1", "IncrementalMechanismV1"
	}
}
