package skillrun

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 2000

type anthropicMessagesClient interface {
	send(ctx context.Context, model, systemPrompt, userPrompt string) (map[string]any, error)
}

type anthropicClient struct {
	client anthropic.Client
}

// NewHTTPAPIB builds an Anthropic-backed Provider from an API key.
func NewHTTPAPIB(apiKey string) *HTTPAPIB {
	return &HTTPAPIB{
		client: &anthropicClient{
			client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		},
	}
}

func (c *anthropicClient) send(ctx context.Context, model, systemPrompt, userPrompt string) (map[string]any, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message create: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return ExtractJSONObject(text)
}
