package skillrun

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// HTTPAPIA calls an OpenAI-compatible Chat Completions endpoint, forcing
// JSON-object output via response_format so the model never wraps its
// answer in prose.
type HTTPAPIA struct {
	client *openai.Client
}

func NewHTTPAPIA(apiKey string) *HTTPAPIA {
	return &HTTPAPIA{client: openai.NewClient(apiKey)}
}

func (p *HTTPAPIA) Name() string { return ProviderHTTPAPIA }

func (p *HTTPAPIA) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	inputName, schema := inputShape(input)
	userPrompt, err := BuildUserPrompt(skillPrompt, inputName, input, schema)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: RuntimeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response missing choices")
	}
	return ExtractJSONObject(resp.Choices[0].Message.Content)
}

// HTTPAPIB calls the Anthropic Messages API directly, without the response
// going through a streaming channel — the Skill Runtime only needs the
// finished text, never partial tokens.
type HTTPAPIB struct {
	client anthropicMessagesClient
}

func (p *HTTPAPIB) Name() string { return ProviderHTTPAPIB }

func (p *HTTPAPIB) Infer(ctx context.Context, model, skillPrompt string, input any) (map[string]any, error) {
	inputName, schema := inputShape(input)
	userPrompt, err := BuildUserPrompt(skillPrompt, inputName, input, schema)
	if err != nil {
		return nil, err
	}
	return p.client.send(ctx, model, RuntimeSystemPrompt, userPrompt)
}
