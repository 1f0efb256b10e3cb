// Command diagnose runs the skill-first incremental diagnosis pipeline:
// ingest, enrich, backfill, incremental aggregation, and Notion report
// sync, plus standalone backfill/incremental/doctor/test entry points.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd assembles the diagnose CLI's command tree, kept separate
// from main() so tests can exercise flag parsing without calling os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Skill-first incremental diagnosis pipeline",
		Long: `diagnose turns LLM conversation logs into per-session and
per-period diagnosis reports, using an LLM Skill contract dispatched
across local CLI and HTTP API provider backends, and syncs validated
reports to an external document database.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ./config.yaml)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildBackfillCmd(),
		buildIncrementalCmd(),
		buildDoctorCmd(),
		buildTestCmd(),
	)

	return rootCmd
}

// resolveConfigPath falls back to config.yaml in the working directory
// when --config is not set.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return "config.yaml"
}

// exitCodeFor maps an invocation error to the exit code family spec.md
// §6.1 defines: 2 for bad-invocation errors this package tags via
// invocationError, 1 for every other application failure.
func exitCodeFor(err error) int {
	var invErr *invocationError
	if asInvocationError(err, &invErr) {
		return 2
	}
	return 1
}
