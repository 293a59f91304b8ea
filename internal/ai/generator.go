package ai

import (
	"context"
	"errors"
	"log"

	"github.com/enhub-AU/enquiry-partner/internal/config"
)

// ErrNoBackendAvailable is returned when every generation tier failed.
var ErrNoBackendAvailable = errors.New("no AI backend available")

// Generator maps a system/user prompt pair to free text. Implementations are
// fallible; callers decide whether a failure is recoverable.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// FallbackGenerator tries each tier in order and returns the first success.
// If every tier fails it returns ErrNoBackendAvailable wrapping nothing; the
// per-tier errors are logged, not surfaced, since the caller only cares that
// no backend produced text.
type FallbackGenerator struct {
	tiers []Generator
}

// NewFallbackGenerator composes generators into a try-in-order chain.
// Nil entries are skipped so callers can pass optional tiers directly.
func NewFallbackGenerator(tiers ...Generator) *FallbackGenerator {
	f := &FallbackGenerator{}
	for _, t := range tiers {
		if t != nil {
			f.tiers = append(f.tiers, t)
		}
	}
	return f
}

// NewGenerator builds the standard two-tier chain: local Ollama first, then
// OpenAI if an API key is configured.
func NewGenerator(cfg *config.Config) Generator {
	tiers := []Generator{NewOllamaGenerator(cfg)}
	if cloud := NewOpenAIGenerator(cfg); cloud != nil {
		tiers = append(tiers, cloud)
	}
	return NewFallbackGenerator(tiers...)
}

// Generate implements Generator.
func (f *FallbackGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	for _, tier := range f.tiers {
		text, err := tier.Generate(ctx, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		log.Printf("AI tier failed, trying next: %v", err)
	}
	return "", ErrNoBackendAvailable
}
