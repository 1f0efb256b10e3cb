package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/pipeline"
)

func buildTestCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Compile-check and test the pipeline's scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return newInvocationError(fmt.Errorf("load config: %w", err))
			}

			driver := &pipeline.Driver{Stages: newConfiguredStageRunner(cfg)}

			result, err := driver.Test(cmd.Context(), pipeline.TestMode(mode))
			if err != nil {
				return fmt.Errorf("test: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mode=%s targets=%v\n", result.Mode, result.Targets)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "segmented", "segmented or full")
	return cmd
}
