package email

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
)

// Sender delivers an outbound reply. The rawMessage contains the full email,
// headers included.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// SMTPSender delivers via a single SMTP endpoint, either an agent mailbox's
// own SMTP settings or the global fallback relay.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender creates a sender for the given SMTP endpoint. With no host
// configured it degrades to a LoggingSender so development setups still see
// what would have gone out.
func NewSMTPSender(host string, port int, username, password, from string) Sender {
	if host == "" {
		log.Println("SMTP host not configured, using logging email sender.")
		return &LoggingSender{from: from}
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: smtp.PlainAuth("", username, password, host),
		from: from,
	}
}

// Send delivers the raw message over SMTP.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		log.Printf("Failed to send reply via SMTP to %v: %v", to, err)
		return fmt.Errorf("smtp error: %w", err)
	}
	log.Printf("Reply sent via SMTP to %v (Subject: %s)", to, subject)
	return nil
}

// LoggingSender logs the reply instead of delivering it.
type LoggingSender struct {
	from string
}

// Send logs the reply details.
func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.Printf("--- Outbound Reply (Logged) ---")
	log.Printf("From: %s", s.from)
	log.Printf("To: %v", to)
	log.Printf("Subject: %s", subject)
	log.Println(string(rawMessage))
	log.Println("--- End Reply ---")
	return nil
}
