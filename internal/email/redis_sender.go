package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const outboxTTL = 30 * time.Minute

// RedisSender mirrors outbound replies into Redis instead of (or alongside)
// real delivery. Development and end-to-end tests read the mirror to assert
// what went out without a live SMTP server.
type RedisSender struct {
	client *redis.Client
	from   string
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, from string) Sender {
	return &RedisSender{client: client, from: from}
}

// Send stores a JSON snapshot of the reply under outbox:<recipient>, with a
// TTL so the mirror never accumulates.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	snapshot := map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.from,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox snapshot: %w", err)
	}

	key := fmt.Sprintf("outbox:%s", primaryTo)
	if err := s.client.Set(ctx, key, jsonData, outboxTTL).Err(); err != nil {
		return fmt.Errorf("failed to store reply in Redis key '%s': %w", key, err)
	}

	log.Printf("Reply mirrored to Redis key '%s' (To: %s, Subject: %s)", key, strings.Join(to, ", "), subject)
	return nil
}
