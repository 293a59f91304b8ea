package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/enhub-AU/enquiry-partner/internal/config"
)

// OllamaGenerator is the locally reachable generation tier. Any failure
// (network, timeout, non-2xx, empty content) is returned to the caller so the
// fallback chain can move on to the cloud tier.
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaGenerator creates the local tier from configuration.
func NewOllamaGenerator(cfg *config.Config) *OllamaGenerator {
	return &OllamaGenerator{
		baseURL:    cfg.OllamaURL,
		model:      cfg.OllamaModel,
		httpClient: &http.Client{Timeout: cfg.OllamaTimeout},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

// Generate implements Generator against the Ollama /api/chat endpoint.
func (g *OllamaGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := ollamaChatRequest{
		Model: g.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse ollama response: %w", err)
	}
	if chatResp.Message.Content == "" {
		return "", errors.New("ollama returned empty response")
	}
	return chatResp.Message.Content, nil
}
