package email

import (
	"fmt"
	"strings"
	"time"
)

// ReplyHeaders carries the threading context for an outbound reply so the
// client's mail app files it into the right conversation.
type ReplyHeaders struct {
	From      string
	To        string
	Subject   string
	InReplyTo string
	References []string
}

// BuildReply assembles a complete RFC 822 reply message. The subject gets a
// "Re: " prefix unless one is already there.
func BuildReply(h ReplyHeaders, body string) (subject string, raw []byte) {
	subject = h.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", h.From)
	fmt.Fprintf(&b, "To: %s\r\n", h.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	if h.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", h.InReplyTo)
	}
	if len(h.References) > 0 {
		fmt.Fprintf(&b, "References: %s\r\n", strings.Join(h.References, " "))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	return subject, []byte(b.String())
}
