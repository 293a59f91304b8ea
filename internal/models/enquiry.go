package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EnquiryStatus is the urgency classification of an enquiry.
type EnquiryStatus string

const (
	StatusNew            EnquiryStatus = "new"
	StatusNeedsAttention EnquiryStatus = "needs_attention"
	StatusHot            EnquiryStatus = "hot"
	StatusAutoHandled    EnquiryStatus = "auto_handled"
)

// EnquiryCategory is the classified intent of the first message of a thread.
type EnquiryCategory string

const (
	CategoryPriceOnly     EnquiryCategory = "price_only"
	CategoryInspection    EnquiryCategory = "inspection"
	CategoryMultiQuestion EnquiryCategory = "multi_question"
	CategoryOther         EnquiryCategory = "other"
)

// ValidCategory reports whether s is a recognised enquiry category.
func ValidCategory(s string) bool {
	switch EnquiryCategory(s) {
	case CategoryPriceOnly, CategoryInspection, CategoryMultiQuestion, CategoryOther:
		return true
	}
	return false
}

// Contact is a client identity, unique per owning agent by email.
// It is shared by all enquiries from the same client.
type Contact struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AgentID   primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Source    string             `bson:"source,omitempty" json:"source,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Enquiry is one lead conversation. Status only advances toward "hot" via the
// promotion rule; nothing downgrades a hot enquiry automatically.
type Enquiry struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AgentID            primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	ContactID          primitive.ObjectID `bson:"contact_id" json:"contact_id"`
	Subject            string             `bson:"subject" json:"subject"`
	Status             EnquiryStatus      `bson:"status" json:"status"`
	Category           EnquiryCategory    `bson:"category,omitempty" json:"category,omitempty"`
	PropertyAddress    string             `bson:"property_address,omitempty" json:"property_address,omitempty"`
	PropertyPriceGuide string             `bson:"property_price_guide,omitempty" json:"property_price_guide,omitempty"`
	PromotionReason    string             `bson:"promotion_reason,omitempty" json:"promotion_reason,omitempty"`
	IsRead             bool               `bson:"is_read" json:"is_read"`
	LastActivityAt     time.Time          `bson:"last_activity_at" json:"last_activity_at"`
	StaleNotifiedAt    *time.Time         `bson:"stale_notified_at,omitempty" json:"-"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
}

// MessageSender identifies who authored a conversation turn.
type MessageSender string

const (
	SenderClient MessageSender = "client"
	SenderAI     MessageSender = "ai"
	SenderAgent  MessageSender = "agent"
)

// MessageStatus is the delivery state of a message. Client messages carry no
// status; AI drafts move pending_approval -> sent (or edited in between).
type MessageStatus string

const (
	MessageStatusPendingApproval MessageStatus = "pending_approval"
	MessageStatusSent            MessageStatus = "sent"
	MessageStatusEdited          MessageStatus = "edited"
	MessageStatusFailed          MessageStatus = "failed"
)

// Message is one turn in an enquiry's conversation. Immutable once sent,
// except the explicit edit-in-place of a pending AI draft.
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	EnquiryID primitive.ObjectID `bson:"enquiry_id" json:"enquiry_id"`
	Sender    MessageSender      `bson:"sender" json:"sender"`
	Content   string             `bson:"content" json:"content"`
	Channel   string             `bson:"channel" json:"channel"`
	Status    MessageStatus      `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
