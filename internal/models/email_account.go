package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthMethod selects how the scanner authenticates against a mailbox.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthOAuth    AuthMethod = "oauth"
)

// EmailAccount is a monitored mailbox belonging to an agent. Credentials are
// stored encrypted (see internal/secure); LastScanAt is the ingestion watermark.
type EmailAccount struct {
	ID                        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AgentID                   primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	Label                     string             `bson:"label" json:"label"`
	Provider                  string             `bson:"provider" json:"provider"`
	ImapHost                  string             `bson:"imap_host" json:"imap_host"`
	ImapPort                  int                `bson:"imap_port" json:"imap_port"`
	ImapUser                  string             `bson:"imap_user" json:"imap_user"`
	ImapPasswordEncrypted     string             `bson:"imap_password_encrypted,omitempty" json:"-"`
	AuthMethod                AuthMethod         `bson:"auth_method" json:"auth_method"`
	OAuthRefreshTokenEncrypted string            `bson:"oauth_refresh_token_encrypted,omitempty" json:"-"`
	SmtpHost                  string             `bson:"smtp_host,omitempty" json:"smtp_host,omitempty"`
	SmtpPort                  int                `bson:"smtp_port,omitempty" json:"smtp_port,omitempty"`
	SmtpUser                  string             `bson:"smtp_user,omitempty" json:"smtp_user,omitempty"`
	SmtpPasswordEncrypted     string             `bson:"smtp_password_encrypted,omitempty" json:"-"`
	IsActive                  bool               `bson:"is_active" json:"is_active"`
	LastScanAt                *time.Time         `bson:"last_scan_at,omitempty" json:"last_scan_at,omitempty"`
	LastScanError             string             `bson:"last_scan_error,omitempty" json:"last_scan_error,omitempty"`
	CreatedAt                 time.Time          `bson:"created_at" json:"created_at"`
}

// ProcessedEmail is the idempotency and thread-linkage ledger: one row per raw
// source message, keyed by (account, Message-Id header). A given pair is
// processed at most once, enforced by a unique index.
type ProcessedEmail struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	EmailAccountID  primitive.ObjectID `bson:"email_account_id" json:"email_account_id"`
	MessageIDHeader string             `bson:"message_id_header" json:"message_id_header"`
	UID             uint32             `bson:"uid" json:"uid"`
	ThreadID        string             `bson:"thread_id" json:"thread_id"`
	EnquiryID       primitive.ObjectID `bson:"enquiry_id,omitempty" json:"enquiry_id,omitempty"`
	FromEmail       string             `bson:"from_email" json:"from_email"`
	Subject         string             `bson:"subject" json:"subject"`
	ProcessedAt     time.Time          `bson:"processed_at" json:"processed_at"`
}
