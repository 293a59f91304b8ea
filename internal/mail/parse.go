package mail

import (
	"fmt"
	"io"
	"strings"

	gomail "github.com/emersion/go-message/mail"
)

// InboundEmail is one raw mailbox message reduced to the fields the ingestion
// pipeline cares about.
type InboundEmail struct {
	UID             uint32
	MessageIDHeader string
	InReplyTo       string
	References      []string
	FromName        string
	FromEmail       string
	Subject         string
	Body            string
}

// ThreadKey derives the conversation key for an email: the root of the
// References chain when present, otherwise In-Reply-To. An empty key means
// the message starts a new thread.
func (e *InboundEmail) ThreadKey() string {
	if len(e.References) > 0 {
		return e.References[0]
	}
	return e.InReplyTo
}

// LedgerMessageID is the idempotency key for the processed-email ledger.
// Messages without a Message-Id header fall back to a per-mailbox UID key.
func (e *InboundEmail) LedgerMessageID() string {
	if e.MessageIDHeader != "" {
		return e.MessageIDHeader
	}
	return fmt.Sprintf("uid-%d", e.UID)
}

// ParseInbound parses a raw RFC 822 message. Missing headers degrade to
// placeholders rather than failing the whole message.
func ParseInbound(uid uint32, raw []byte) (*InboundEmail, error) {
	reader, err := gomail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message uid %d: %w", uid, err)
	}
	defer reader.Close()

	header := reader.Header
	email := &InboundEmail{
		UID:             uid,
		MessageIDHeader: strings.TrimSpace(header.Get("Message-Id")),
		InReplyTo:       strings.TrimSpace(header.Get("In-Reply-To")),
		References:      splitReferences(header.Get("References")),
		Subject:         "(no subject)",
		FromName:        "Unknown",
		FromEmail:       "unknown",
	}

	if subject, err := header.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		email.Subject = strings.TrimSpace(subject)
	}

	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		from := addrs[0]
		if from.Address != "" {
			email.FromEmail = from.Address
		}
		if from.Name != "" {
			email.FromName = from.Name
		} else if at := strings.Index(from.Address, "@"); at > 0 {
			email.FromName = from.Address[:at]
		}
	}

	email.Body = extractTextBody(reader)
	return email, nil
}

// splitReferences tokenizes a References header into its message ids,
// preserving order. Angle brackets are kept so keys stay byte-comparable
// with Message-Id and In-Reply-To values.
func splitReferences(header string) []string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return nil
	}
	refs := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			refs = append(refs, f)
		}
	}
	return refs
}

// extractTextBody walks the MIME parts and returns the first text/plain part,
// falling back to a stripped-down text/html part.
func extractTextBody(reader *gomail.Reader) string {
	var htmlFallback string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := inline.ContentType()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			return strings.TrimSpace(string(content))
		case "text/html":
			if htmlFallback == "" {
				htmlFallback = stripTags(string(content))
			}
		}
	}
	return htmlFallback
}

// stripTags is a crude HTML-to-text conversion, enough for AI prompts.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
