package skillrun

import "context"

// Provider identifiers, matching the four backends the original skill
// runtime dispatches across.
const (
	ProviderLocalCLIA = "claude_cli"
	ProviderLocalCLIB = "codex_cli"
	ProviderHTTPAPIA  = "openai"
	ProviderHTTPAPIB  = "anthropic"
)

// DefaultModel returns the provider's default model when the caller didn't
// pin one explicitly.
func DefaultModel(provider string) (string, bool) {
	switch provider {
	case ProviderHTTPAPIB:
		return "claude-3-5-sonnet-latest", true
	case ProviderHTTPAPIA:
		return "gpt-4o-mini", true
	case ProviderLocalCLIA:
		return "sonnet", true
	case ProviderLocalCLIB:
		return "gpt-5-codex", true
	default:
		return "", false
	}
}

// Provider is the interface every backend satisfies: given an assembled
// skill prompt and a JSON-shaped input payload, it returns the model's
// decoded JSON response. Implementations own their own transport and
// response-unwrapping and honour ctx; callers own the per-call timeout
// (applied through ctx), retry and concurrency.
type Provider interface {
	Name() string
	Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error)
}
