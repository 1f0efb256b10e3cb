package main

import (
	"fmt"

	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/skillrun"
)

// cliProviderFlags maps the CLI surface's provider names (§6.1) to the
// Skill Runtime's internal provider identifiers.
var cliProviderFlags = map[string]string{
	"localCLI-A": skillrun.ProviderLocalCLIA,
	"localCLI-B": skillrun.ProviderLocalCLIB,
	"httpAPI-A":  skillrun.ProviderHTTPAPIA,
	"httpAPI-B":  skillrun.ProviderHTTPAPIB,
}

// buildProvider resolves a --skill-provider flag value (or the config
// file's default) into a concrete Skill Runtime Provider, failing with an
// invocation error (exit code 2, §6.1) for an unrecognized name or a
// missing required credential.
func buildProvider(flagValue string, cfg config.ProviderConfig) (skillrun.Provider, string, error) {
	name := flagValue
	if name == "" {
		name = cfg.Default
	}
	internalID, ok := cliProviderFlags[name]
	if !ok {
		return nil, "", fmt.Errorf("unknown skill provider %q", name)
	}

	switch internalID {
	case skillrun.ProviderLocalCLIA:
		return skillrun.NewLocalCLIA(), internalID, nil
	case skillrun.ProviderLocalCLIB:
		return skillrun.NewLocalCLIB(), internalID, nil
	case skillrun.ProviderHTTPAPIA:
		if cfg.OpenAIAPIKey == "" {
			return nil, "", fmt.Errorf("httpAPI-A requires an openai_api_key in config")
		}
		return skillrun.NewHTTPAPIA(cfg.OpenAIAPIKey), internalID, nil
	case skillrun.ProviderHTTPAPIB:
		if cfg.AnthropicKey == "" {
			return nil, "", fmt.Errorf("httpAPI-B requires an anthropic_api_key in config")
		}
		return skillrun.NewHTTPAPIB(cfg.AnthropicKey), internalID, nil
	default:
		return nil, "", fmt.Errorf("unhandled skill provider %q", internalID)
	}
}
