package main

import (
	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/pipeline"
)

// newConfiguredStageRunner maps the pipeline's external stage names onto
// the scripts cfg.Pipeline configures for them.
func newConfiguredStageRunner(cfg *config.Config) pipeline.ScriptStageRunner {
	return pipeline.ScriptStageRunner{
		Scripts: map[string]string{
			"ingest":        cfg.Pipeline.IngestScript,
			"enrich":        cfg.Pipeline.EnrichScript,
			"stats_sync":    cfg.Pipeline.StatsSyncScript,
			"dashboard":     cfg.Pipeline.DashboardScript,
			"compile_check": cfg.Pipeline.CompileCheckScript,
			"test_run":      cfg.Pipeline.TestRunScript,
		},
	}
}
