package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/notiondb"
	"github.com/mechanismctl/diagnose/internal/pipeline"
	"github.com/mechanismctl/diagnose/internal/skillrun"
	"github.com/mechanismctl/diagnose/internal/store"
)

func buildRunCmd() *cobra.Command {
	var (
		mode                 string
		window               string
		since                string
		runID                string
		dryRun               bool
		noNotion             bool
		output               string
		reportLimit          int
		skipIngest           bool
		skipEnrich           bool
		enrichLimit          int
		skipBackfill         bool
		skillProvider        string
		skillModel           string
		skillTimeoutSec      int
		skillMaxWorkers      int
		backfillLimit        int
		backfillForceRefresh bool
		allowPartialBackfill bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full ingest-through-report-sync pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return newInvocationError(fmt.Errorf("load config: %w", err))
			}

			provider, providerID, err := buildProvider(skillProvider, cfg.Provider)
			if err != nil {
				return newInvocationError(err)
			}
			model := skillModel
			if model == "" {
				model = cfg.Provider.Model
			}
			if skillTimeoutSec == 0 {
				skillTimeoutSec = cfg.Provider.TimeoutSec
			}
			if skillMaxWorkers == 0 {
				skillMaxWorkers = cfg.Provider.MaxWorkers
			}

			skillPrompt, err := skillrun.LoadSkillPrompt(cfg.Skill.BasePromptPath, cfg.Skill.ExtensionPromptPaths)
			if err != nil {
				return newInvocationError(fmt.Errorf("load skill prompt: %w", err))
			}

			layout := store.NewLayout(cfg.Store.BaseDir)

			var notionClient *notiondb.Client
			if !noNotion && cfg.Notion.APIKey != "" {
				notionClient = notiondb.NewClient(cfg.Notion.APIKey, cfg.Notion.BaseURL)
			}

			driver := &pipeline.Driver{
				Layout:     layout,
				ConfigPath: resolveConfigPath(),
				Stages:     newConfiguredStageRunner(cfg),
				NotionDB:   notionClient,
				NotionDBID: cfg.Notion.DatabaseID,
			}

			result, err := driver.Run(cmd.Context(), pipeline.RunOptions{
				Mode:                 mode,
				Window:               window,
				Since:                since,
				RunID:                resolveRunID(runID),
				DryRun:               dryRun,
				NoNotion:             noNotion,
				SkipIngest:           skipIngest,
				SkipEnrich:           skipEnrich,
				EnrichLimit:          enrichLimit,
				SkipBackfill:         skipBackfill,
				Provider:             provider,
				ProviderName:         providerID,
				Model:                model,
				Engine:               "api",
				SkillPrompt:          skillPrompt,
				TimeoutSec:           skillTimeoutSec,
				MaxWorkers:           skillMaxWorkers,
				BackfillLimit:        backfillLimit,
				BackfillForceRefresh: backfillForceRefresh,
				AllowPartialBackfill: allowPartialBackfill,
				ReportLimit:          reportLimit,
				Now:                  time.Now().UTC(),
			})
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			if err := emitRunResult(cmd, output, result); err != nil {
				return err
			}
			if result.ExitCode != 0 {
				return fmt.Errorf("pipeline run ended with a partial failure")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "incremental", "incremental or full")
	cmd.Flags().StringVar(&window, "window", "7d", "window expression, e.g. 30d or all-time")
	cmd.Flags().StringVar(&since, "since", "", "override window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: generated)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write sidecars or sync reports")
	cmd.Flags().BoolVar(&noNotion, "no-notion", false, "skip report sync and stats sync")
	cmd.Flags().StringVar(&output, "output", "", "write a JSON run summary to this path")
	cmd.Flags().IntVar(&reportLimit, "report-limit", 0, "cap the number of reports synced")
	cmd.Flags().BoolVar(&skipIngest, "skip-ingest", false, "skip the external ingest stage")
	cmd.Flags().BoolVar(&skipEnrich, "skip-enrich", false, "skip the external heuristic enrich stage")
	cmd.Flags().IntVar(&enrichLimit, "enrich-limit", 0, "cap conversations considered by enrich")
	cmd.Flags().BoolVar(&skipBackfill, "skip-backfill", false, "skip the backfill stage")
	cmd.Flags().StringVar(&skillProvider, "skill-provider", "", "localCLI-A, localCLI-B, httpAPI-A, or httpAPI-B")
	cmd.Flags().StringVar(&skillModel, "skill-model", "", "model name override")
	cmd.Flags().IntVar(&skillTimeoutSec, "skill-timeout-sec", 0, "per-call Skill timeout in seconds")
	cmd.Flags().IntVar(&skillMaxWorkers, "skill-max-workers", 0, "concurrent Skill calls")
	cmd.Flags().IntVar(&backfillLimit, "backfill-limit", 0, "cap sessions considered by backfill")
	cmd.Flags().BoolVar(&backfillForceRefresh, "backfill-force-refresh", false, "recompute sidecars that already exist")
	cmd.Flags().BoolVar(&allowPartialBackfill, "allow-partial-backfill", false, "continue to incremental even if backfill had failures")

	return cmd
}

func emitRunResult(cmd *cobra.Command, output string, result pipeline.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}
	if output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	return os.WriteFile(output, data, 0o644)
}
