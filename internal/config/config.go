// Package config loads the pipeline's config.yaml: store paths, skill
// runtime defaults, provider credentials, and the Notion database id, the
// same root-Config-aggregating-section-structs shape the teacher's edge
// config loader uses.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StoreConfig locates the Local Store's base directory.
type StoreConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// SkillConfig holds the Skill Runtime's prompt-composition inputs: the
// base incremental prompt and the extension skill files appended to it
// (§4.5's "base prompt plus one or more extension skill files").
type SkillConfig struct {
	BasePromptPath       string   `yaml:"base_prompt_path"`
	ExtensionPromptPaths []string `yaml:"extension_prompt_paths"`
}

// ProviderConfig holds per-backend defaults and credentials for the four
// Skill Runtime providers (§4.5).
type ProviderConfig struct {
	Default       string `yaml:"default"`
	Model         string `yaml:"model"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	MaxWorkers    int    `yaml:"max_workers"`
	LocalCLIABin  string `yaml:"local_cli_a_bin"`
	LocalCLIBBin  string `yaml:"local_cli_b_bin"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	AnthropicKey  string `yaml:"anthropic_api_key"`
}

// NotionConfig holds the Report Synchronizer's external database
// credentials (§4.6.3).
type NotionConfig struct {
	APIKey     string `yaml:"api_key"`
	DatabaseID string `yaml:"database_id"`
	BaseURL    string `yaml:"base_url"`
}

// PipelineConfig holds the external stage scripts the Pipeline Driver
// shells out to for the out-of-scope ingest/enrich/dashboard stages
// (§4.7), via internal/pipeline's StageRunner.
type PipelineConfig struct {
	IngestScript       string `yaml:"ingest_script"`
	EnrichScript       string `yaml:"enrich_script"`
	StatsSyncScript    string `yaml:"stats_sync_script"`
	DashboardScript    string `yaml:"dashboard_script"`
	CompileCheckScript string `yaml:"compile_check_script"`
	TestRunScript      string `yaml:"test_run_script"`
}

// Config is the full on-disk configuration document.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Skill    SkillConfig    `yaml:"skill"`
	Provider ProviderConfig `yaml:"provider"`
	Notion   NotionConfig   `yaml:"notion"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	LogLevel string         `yaml:"log_level"`
}

// Load reads and parses path into a Config. A missing base_prompt_path or
// empty extension_prompt_paths is not checked here — the Skill Runtime
// itself raises the fatal config error §4.5 requires ("Both must exist;
// missing files are a fatal config error") when it actually opens them.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
