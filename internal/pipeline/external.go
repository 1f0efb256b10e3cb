package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	execsafety "github.com/mechanismctl/diagnose/internal/exec"
)

// StageRunner invokes one out-of-scope external pipeline stage (ingest,
// enrich, dashboard render), identified by name, with the arguments the
// pipeline Driver assembles for it. Implementations communicate with the
// stage only through the filesystem (JSON files under the Local Store's
// layout) and their exit status — the Driver never inspects stage
// internals, mirroring diagnose_helper.py's pipeline.py subprocess calls.
type StageRunner interface {
	RunStage(ctx context.Context, stage string, args []string) error
}

// ScriptStageRunner shells out to a configured script path per stage,
// validating the script path and arguments with internal/exec the same
// way the Skill Runtime's local-CLI providers guard subprocess arguments.
type ScriptStageRunner struct {
	// Scripts maps a stage name (e.g. "ingest", "enrich", "dashboard") to
	// the executable path that implements it.
	Scripts map[string]string
}

func (r ScriptStageRunner) RunStage(ctx context.Context, stage string, args []string) error {
	script, ok := r.Scripts[stage]
	if !ok || script == "" {
		return fmt.Errorf("no script configured for stage %q", stage)
	}
	sanitizedScript, err := execsafety.SanitizeExecutableValue(script)
	if err != nil {
		return fmt.Errorf("unsafe stage script for %q: %w", stage, err)
	}
	sanitizedArgs, err := execsafety.SanitizeArguments(args)
	if err != nil {
		return fmt.Errorf("unsafe arguments for stage %q: %w", stage, err)
	}

	cmd := exec.CommandContext(ctx, sanitizedScript, sanitizedArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("stage %q failed: %w: %s", stage, err, stderr.String())
	}
	return nil
}

var _ StageRunner = ScriptStageRunner{}
