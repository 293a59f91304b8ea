package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/enhub-AU/enquiry-partner/internal/models"
)

// Classification is the structured judgment over one inbound email.
type Classification struct {
	Category            models.EnquiryCategory `json:"category"`
	Temperature         string                 `json:"temperature"`
	IsInspectionRequest bool                   `json:"isInspectionRequest"`
	IsOfferIntent       bool                   `json:"isOfferIntent"`
}

// DefaultClassification is the fail-safe result: route the message to the
// least-aggressive handling path instead of blocking ingestion.
func DefaultClassification() Classification {
	return Classification{
		Category:            models.CategoryOther,
		Temperature:         "cold",
		IsInspectionRequest: false,
		IsOfferIntent:       false,
	}
}

const classifierSystemPrompt = `You are a real estate email classifier. Analyze the email and return ONLY valid JSON with these fields:
- category: "price_only" | "inspection" | "multi_question" | "other"
- temperature: "hot" | "warm" | "cold"
- isInspectionRequest: boolean
- isOfferIntent: boolean

Classification rules:
- "hot": Mentions inspection, open home, offer, contract, or shows strong buying intent
- "warm": Asks follow-up questions, requests more info, shows continued interest
- "cold": Generic first enquiry, price-only request, no engagement signals
- isInspectionRequest: true if they explicitly ask to inspect or attend open home
- isOfferIntent: true if they mention making an offer or discuss price negotiation`

// Classifier wraps a Generator with the classification prompt and the
// fail-safe parsing policy.
type Classifier struct {
	gen Generator
}

// NewClassifier creates a classifier on top of the given backend.
func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify judges one inbound email in the context of its thread history.
// It never returns an error: generation or parse failures degrade to
// DefaultClassification.
func (c *Classifier) Classify(ctx context.Context, body string, threadHistory []string) Classification {
	response, err := c.gen.Generate(ctx, classifierSystemPrompt, userPromptWithHistory(body, threadHistory))
	if err != nil {
		log.Printf("Classification failed, using safe default: %v", err)
		return DefaultClassification()
	}

	result, err := ParseClassification(response)
	if err != nil {
		log.Printf("Classifier output unparseable, using safe default: %v", err)
		return DefaultClassification()
	}
	return result
}

var codeFenceRe = regexp.MustCompile("```(?:json)?\n?")

// ParseClassification parses the model's JSON output, stripping code-fence
// wrapping if present. Unknown category or temperature values are rejected so
// a hallucinated label cannot leak into the store.
func ParseClassification(raw string) (Classification, error) {
	cleaned := strings.TrimSpace(codeFenceRe.ReplaceAllString(raw, ""))

	var result Classification
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return Classification{}, fmt.Errorf("invalid classification JSON: %w", err)
	}
	if !models.ValidCategory(string(result.Category)) {
		return Classification{}, fmt.Errorf("unknown category %q", result.Category)
	}
	switch result.Temperature {
	case "hot", "warm", "cold":
	default:
		return Classification{}, fmt.Errorf("unknown temperature %q", result.Temperature)
	}
	return result, nil
}

func userPromptWithHistory(body string, threadHistory []string) string {
	historyContext := ""
	if len(threadHistory) > 0 {
		historyContext = fmt.Sprintf("\nPrevious messages in thread:\n%s\n", strings.Join(threadHistory, "\n---\n"))
	}
	return fmt.Sprintf("%s\nNew email:\n%s", historyContext, body)
}
