package main

import (
	"testing"

	"github.com/mechanismctl/diagnose/internal/config"
	"github.com/mechanismctl/diagnose/internal/skillrun"
)

func TestBuildProvider_LocalCLIRequiresNoCredential(t *testing.T) {
	provider, id, err := buildProvider("localCLI-A", config.ProviderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != skillrun.ProviderLocalCLIA {
		t.Fatalf("expected %s, got %s", skillrun.ProviderLocalCLIA, id)
	}
	if provider == nil {
		t.Fatalf("expected a non-nil provider")
	}
}

func TestBuildProvider_HTTPAPIARequiresAPIKey(t *testing.T) {
	if _, _, err := buildProvider("httpAPI-A", config.ProviderConfig{}); err == nil {
		t.Fatalf("expected an error for a missing openai_api_key")
	}
	provider, id, err := buildProvider("httpAPI-A", config.ProviderConfig{OpenAIAPIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != skillrun.ProviderHTTPAPIA || provider == nil {
		t.Fatalf("expected a configured httpAPI-A provider")
	}
}

func TestBuildProvider_UnknownNameIsAnError(t *testing.T) {
	if _, _, err := buildProvider("bogus-provider", config.ProviderConfig{}); err == nil {
		t.Fatalf("expected an error for an unrecognized provider name")
	}
}

func TestBuildProvider_FallsBackToConfigDefault(t *testing.T) {
	_, id, err := buildProvider("", config.ProviderConfig{Default: "localCLI-B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != skillrun.ProviderLocalCLIB {
		t.Fatalf("expected %s, got %s", skillrun.ProviderLocalCLIB, id)
	}
}
