package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/enhub-AU/enquiry-partner/internal/config"
)

// OpenAIGenerator is the cloud generation tier, keyed by a provisioned API key.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIGenerator creates the cloud tier, or nil if no API key is
// configured (the fallback chain skips nil tiers).
func NewOpenAIGenerator(cfg *config.Config) *OpenAIGenerator {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(cfg.OpenAIAPIKey),
		model:       cfg.OpenAIModel,
		temperature: float32(cfg.AITemperature),
		maxTokens:   cfg.AIMaxTokens,
	}
}

// Generate implements Generator via the chat completions API.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai returned empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
