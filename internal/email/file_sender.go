package email

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSender appends outbound replies to a local file, a poor man's outbox
// for environments with neither SMTP nor Redis.
type FileSender struct {
	filePath string
}

// NewFileSender creates a FileSender, ensuring the log directory exists.
func NewFileSender(filePath string) (Sender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("reply log file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for reply log '%s': %w", filePath, err)
	}
	return &FileSender{filePath: filePath}, nil
}

// Send appends the raw reply to the log file.
func (s *FileSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open reply log file: %w", err)
	}
	defer file.Close()

	entry := fmt.Sprintf("--- Reply logged at %s (To: %v, Subject: %s) ---\n", time.Now().Format(time.RFC3339Nano), to, subject)
	entry += string(rawMessage)
	entry += "--- End reply ---\n\n"

	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("failed to write reply to log file: %w", err)
	}

	log.Printf("Reply to %v (Subject: %s) logged to %s", to, subject, s.filePath)
	return nil
}
