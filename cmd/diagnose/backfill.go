package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/orchestrate"
	"github.com/mechanismctl/diagnose/internal/skillrun"
	"github.com/mechanismctl/diagnose/internal/store"
)

func buildBackfillCmd() *cobra.Command {
	var (
		window       string
		since        string
		until        string
		source       string
		limit        int
		runID        string
		providerFlag string
		model        string
		timeoutSec   int
		maxWorkers   int
		forceRefresh bool
		allowPartial bool
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Bring session sidecars up to date for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return newInvocationError(fmt.Errorf("load config: %w", err))
			}

			provider, _, err := buildProvider(providerFlag, cfg.Provider)
			if err != nil {
				return newInvocationError(err)
			}
			if model == "" {
				model = cfg.Provider.Model
			}
			if maxWorkers == 0 {
				maxWorkers = cfg.Provider.MaxWorkers
			}
			if timeoutSec == 0 {
				timeoutSec = cfg.Provider.TimeoutSec
			}

			skillPrompt, err := skillrun.LoadSkillPrompt(cfg.Skill.BasePromptPath, cfg.Skill.ExtensionPromptPaths)
			if err != nil {
				return newInvocationError(fmt.Errorf("load skill prompt: %w", err))
			}

			layout := store.NewLayout(cfg.Store.BaseDir)

			result, err := orchestrate.Backfill(cmd.Context(), orchestrate.BackfillOptions{
				Layout:       layout,
				Window:       window,
				Since:        since,
				Until:        until,
				Source:       source,
				Limit:        limit,
				RunID:        resolveRunID(runID),
				ForceRefresh: forceRefresh,
				AllowPartial: allowPartial,
				DryRun:       dryRun,
				Provider:     provider,
				Model:        model,
				Engine:       "api",
				Workers:      maxWorkers,
				SkillPrompt:  skillPrompt,
				TimeoutSec:   timeoutSec,
				Now:          time.Now().UTC(),
			})
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			data, marshalErr := json.MarshalIndent(result, "", "  ")
			if marshalErr != nil {
				return fmt.Errorf("marshal backfill result: %w", marshalErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			if result.ExitCode != 0 {
				return fmt.Errorf("backfill ended with exit code %d", result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&window, "window", "", "window expression, e.g. 30d or all-time")
	cmd.Flags().StringVar(&since, "since", "", "override window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "override window end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&source, "source", "all", "all, chatgpt, claude_code, codex, gemini, or claude_web")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap sessions considered")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: generated)")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "localCLI-A, localCLI-B, httpAPI-A, or httpAPI-B")
	cmd.Flags().StringVar(&model, "model", "", "model name override")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 0, "per-call Skill timeout in seconds")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "concurrent Skill calls")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "recompute sidecars that already exist")
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "exit 0 even if some sessions failed inference")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write sidecars")
	cmd.MarkFlagRequired("window")

	return cmd
}
