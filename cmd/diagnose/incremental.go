package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/notiondb"
	"github.com/mechanismctl/diagnose/internal/orchestrate"
	"github.com/mechanismctl/diagnose/internal/reportsync"
	"github.com/mechanismctl/diagnose/internal/skillrun"
	"github.com/mechanismctl/diagnose/internal/store"
)

func buildIncrementalCmd() *cobra.Command {
	var (
		periodID     string
		window       string
		since        string
		until        string
		resultFile   string
		runID        string
		providerFlag string
		model        string
		timeoutSec   int
		syncReport   bool
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "incremental",
		Short: "Aggregate a period's session sidecars into a diagnosis report set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return newInvocationError(fmt.Errorf("load config: %w", err))
			}

			var provider skillrun.Provider
			if resultFile == "" {
				provider, _, err = buildProvider(providerFlag, cfg.Provider)
				if err != nil {
					return newInvocationError(err)
				}
			}
			if model == "" {
				model = cfg.Provider.Model
			}
			if timeoutSec == 0 {
				timeoutSec = cfg.Provider.TimeoutSec
			}

			var skillPrompt string
			if resultFile == "" {
				skillPrompt, err = skillrun.LoadSkillPrompt(cfg.Skill.BasePromptPath, cfg.Skill.ExtensionPromptPaths)
				if err != nil {
					return newInvocationError(fmt.Errorf("load skill prompt: %w", err))
				}
			}

			layout := store.NewLayout(cfg.Store.BaseDir)

			result, err := orchestrate.Incremental(cmd.Context(), orchestrate.IncrementalOptions{
				Layout:      layout,
				Window:      window,
				Since:       since,
				Until:       until,
				PeriodID:    periodID,
				ResultFile:  resultFile,
				RunID:       resolveRunID(runID),
				Provider:    provider,
				Model:       model,
				Engine:      "api",
				SkillPrompt: skillPrompt,
				TimeoutSec:  timeoutSec,
				Now:         time.Now().UTC(),
			}, nil)
			if err != nil {
				return fmt.Errorf("incremental: %w", err)
			}

			data, marshalErr := json.MarshalIndent(result, "", "  ")
			if marshalErr != nil {
				return fmt.Errorf("marshal incremental result: %w", marshalErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			if result.ExitCode != 0 {
				return fmt.Errorf("incremental ended with exit code %d", result.ExitCode)
			}

			if syncReport {
				if err := runSyncReport(cmd, cfg, layout, result.PeriodID, dryRun); err != nil {
					return fmt.Errorf("sync-report: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&periodID, "period-id", "", "period identifier override")
	cmd.Flags().StringVar(&window, "window", "", "window expression, e.g. 7d")
	cmd.Flags().StringVar(&since, "since", "", "override window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "override window end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&resultFile, "result-file", "", "replay a pre-computed aggregation result instead of calling the Skill")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: generated)")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "localCLI-A, localCLI-B, httpAPI-A, or httpAPI-B")
	cmd.Flags().StringVar(&model, "model", "", "model name override")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 0, "per-call Skill timeout in seconds")
	cmd.Flags().BoolVar(&syncReport, "sync-report", false, "sync the resulting reports to Notion")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write sidecars or sync reports")
	cmd.MarkFlagRequired("window")

	return cmd
}

func runSyncReport(cmd *cobra.Command, cfg *config.Config, layout store.Layout, periodID string, dryRun bool) error {
	if cfg.Notion.APIKey == "" {
		return fmt.Errorf("notion.api_key is required for --sync-report")
	}

	var raw mechanism.RawObject
	if err := store.ReadJSON(layout.IncrementalInsightPath(periodID), &raw); err != nil {
		return fmt.Errorf("read incremental sidecar for %s: %w", periodID, err)
	}
	env, err := decodeIncrementalMechanismForSync(raw)
	if err != nil {
		return fmt.Errorf("decode incremental sidecar for %s: %w", periodID, err)
	}

	client := notiondb.NewClient(cfg.Notion.APIKey, cfg.Notion.BaseURL)
	syncResult, err := reportsync.SyncReports(cmd.Context(), client, cfg.Notion.DatabaseID, raw, env, dryRun, nil)
	if err != nil {
		return err
	}

	data, marshalErr := json.MarshalIndent(syncResult, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("marshal sync result: %w", marshalErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func decodeIncrementalMechanismForSync(raw mechanism.RawObject) (mechanism.IncrementalMechanism, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return mechanism.IncrementalMechanism{}, err
	}
	var env mechanism.IncrementalMechanism
	if err := json.Unmarshal(data, &env); err != nil {
		return mechanism.IncrementalMechanism{}, err
	}
	return env, nil
}
