package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Agent is a real-estate agent account that owns enquiries, contacts and mailboxes.
type Agent struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email        string             `bson:"email" json:"email"`
	FullName     string             `bson:"full_name" json:"full_name"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// AIMode governs whether AI-drafted replies require approval before sending.
type AIMode string

const (
	AIModeDraft AIMode = "draft" // every draft waits for approval
	AIModeSafe  AIMode = "safe"  // price-only enquiries auto-send on creation
	AIModeFull  AIMode = "full"  // everything auto-sends
)

// ValidAIMode reports whether s is a recognised AI mode value.
func ValidAIMode(s string) bool {
	switch AIMode(s) {
	case AIModeDraft, AIModeSafe, AIModeFull:
		return true
	}
	return false
}

// AgentSettings is the per-agent policy record. It is read-only input to the
// processing pipeline and only mutated through the settings endpoint.
type AgentSettings struct {
	ID                      primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AgentID                 primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	AIMode                  AIMode             `bson:"ai_mode" json:"ai_mode"`
	NotifyHotLead           bool               `bson:"notify_hot_lead" json:"notify_hot_lead"`
	NotifyStaleLead         bool               `bson:"notify_stale_lead" json:"notify_stale_lead"`
	NotifyWarmReply         bool               `bson:"notify_warm_reply" json:"notify_warm_reply"`
	NotifyInspectionRequest bool               `bson:"notify_inspection_request" json:"notify_inspection_request"`
	StaleLeadMinutes        int                `bson:"stale_lead_minutes" json:"stale_lead_minutes"`
	DeliveryPush            bool               `bson:"delivery_push" json:"delivery_push"`
	DeliveryEmail           bool               `bson:"delivery_email" json:"delivery_email"`
	DeliverySms             bool               `bson:"delivery_sms" json:"delivery_sms"`
	PriceTemplate           string             `bson:"price_template,omitempty" json:"price_template,omitempty"`
	UpdatedAt               time.Time          `bson:"updated_at" json:"updated_at"`
}

// DefaultAgentSettings returns the settings applied when an agent has no
// stored settings row yet.
func DefaultAgentSettings(agentID primitive.ObjectID) *AgentSettings {
	return &AgentSettings{
		AgentID:                 agentID,
		AIMode:                  AIModeDraft,
		NotifyHotLead:           true,
		NotifyStaleLead:         true,
		NotifyWarmReply:         true,
		NotifyInspectionRequest: true,
		StaleLeadMinutes:        120,
		DeliveryPush:            true,
	}
}
