package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType classifies an alert event emitted by the pipeline.
type NotificationType string

const (
	NotificationHotLead           NotificationType = "hot_lead"
	NotificationInspectionRequest NotificationType = "inspection_request"
	NotificationStaleLead         NotificationType = "stale_lead"
	NotificationWarmReply         NotificationType = "warm_reply"
)

// Notification is one alert event for an agent. Created by the pipeline,
// read/unread is flipped by the UI.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AgentID   primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	EnquiryID primitive.ObjectID `bson:"enquiry_id,omitempty" json:"enquiry_id,omitempty"`
	Type      NotificationType   `bson:"type" json:"type"`
	Title     string             `bson:"title" json:"title"`
	Body      string             `bson:"body" json:"body"`
	IsRead    bool               `bson:"is_read" json:"is_read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
