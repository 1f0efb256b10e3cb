package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/pipeline"
	"github.com/mechanismctl/diagnose/internal/store"
)

func buildDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report on the Local Store's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg, err := config.Load(path)
			var layout store.Layout
			if err == nil {
				layout = store.NewLayout(cfg.Store.BaseDir)
			}

			report := pipeline.Doctor(layout, path)

			if jsonOutput {
				data, marshalErr := json.MarshalIndent(report, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("marshal doctor report: %w", marshalErr)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				for _, check := range report.Checks {
					status := "ok"
					if !check.Healthy {
						status = "FAIL"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s %s\n", status, check.Name, check.Detail)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "conversations: %d (%d malformed)\n", report.ConversationCount, report.ConversationMalformed)
				fmt.Fprintf(cmd.OutOrStdout(), "session sidecars: %d (%d invalid)\n", report.SessionSidecarCount, report.SessionSidecarInvalid)
				fmt.Fprintf(cmd.OutOrStdout(), "incremental sidecars: %d (%d invalid)\n", report.IncrementalSidecarCount, report.IncrementalInvalid)
			}

			if !report.Healthy {
				return fmt.Errorf("one or more doctor checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the report as JSON")
	return cmd
}
