package ai

import (
	"context"
	"fmt"
	"strings"
)

// Drafter produces a suggested reply for an inbound enquiry. Unlike the
// classifier there is no safe default: an undraftable reply surfaces as an
// error so the caller can report a pipeline fault (the client's message has
// already been persisted by then).
type Drafter struct {
	gen Generator
}

// NewDrafter creates a drafter on top of the given backend.
func NewDrafter(gen Generator) *Drafter {
	return &Drafter{gen: gen}
}

// DraftReply writes a concise signed reply in the agent's name. Property
// address and price guide are optional context.
func (d *Drafter) DraftReply(ctx context.Context, body string, threadHistory []string, agentName, propertyAddress, priceGuide string) (string, error) {
	var propertyLines []string
	if propertyAddress != "" {
		propertyLines = append(propertyLines, "Property: "+propertyAddress)
	}
	if priceGuide != "" {
		propertyLines = append(propertyLines, "Price guide: "+priceGuide)
	}

	systemPrompt := fmt.Sprintf(`You are a helpful real estate agent assistant. Draft a professional, friendly email reply.
Keep it concise (2-4 short paragraphs). Be warm but professional.
Sign off as %q.`, agentName)
	if len(propertyLines) > 0 {
		systemPrompt += "\n\nProperty details:\n" + strings.Join(propertyLines, "\n")
	}
	systemPrompt += "\nDo NOT include a subject line. Just the body text."

	userPrompt := ""
	if len(threadHistory) > 0 {
		userPrompt = fmt.Sprintf("\nPrevious messages in thread:\n%s\n", strings.Join(threadHistory, "\n---\n"))
	}
	userPrompt += "\nNew email to reply to:\n" + body

	reply, err := d.gen.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to draft reply: %w", err)
	}
	return reply, nil
}
