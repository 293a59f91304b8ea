package email

import (
	"context"
	"fmt"
	"strings"
)

// CompositeSender fans a reply out to multiple Senders, typically the real
// SMTP sender plus a Redis mirror in development.
type CompositeSender struct {
	senders []Sender
}

// NewCompositeSender creates a CompositeSender. The concrete type is returned
// so AddSender can be called during wiring.
func NewCompositeSender(senders ...Sender) *CompositeSender {
	return &CompositeSender{senders: senders}
}

// AddSender appends a sender. Nil senders are ignored.
func (cs *CompositeSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send calls every registered sender and aggregates their failures: one
// broken channel does not stop the others from delivering.
func (cs *CompositeSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(cs.senders) == 0 {
		return fmt.Errorf("no senders configured in CompositeSender")
	}

	var allErrors []string
	for _, sender := range cs.senders {
		if err := sender.Send(ctx, to, subject, rawMessage); err != nil {
			allErrors = append(allErrors, err.Error())
		}
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("composite send failed: [ %s ]", strings.Join(allErrors, "; "))
	}
	return nil
}
