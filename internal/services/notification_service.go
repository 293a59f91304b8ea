package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/enhub-AU/enquiry-partner/internal/models"
)

// ErrNotificationNotFound is returned when the notification does not exist or
// belongs to another agent.
var ErrNotificationNotFound = errors.New("notification not found")

// INotificationService is the pipeline's notification sink plus the read-side
// operations used by the UI endpoints.
type INotificationService interface {
	Notify(ctx context.Context, agentID, enquiryID primitive.ObjectID, typ models.NotificationType, title, body string) error
	List(ctx context.Context, agentID primitive.ObjectID) ([]models.Notification, error)
	MarkRead(ctx context.Context, agentID, notificationID primitive.ObjectID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, agentID primitive.ObjectID) error
}

const notificationsCollection = "notifications"

const notificationListLimit = 50

// notificationService implements INotificationService.
type notificationService struct {
	db       *mongo.Database
	agentSvc IAgentService
}

// NewNotificationService creates a new NotificationService. The agent service
// is consulted for per-type notification toggles.
func NewNotificationService(db *mongo.Database, agentSvc IAgentService) INotificationService {
	return &notificationService{db: db, agentSvc: agentSvc}
}

// Notify inserts one alert event, unless the agent has switched that
// notification type off. A settings lookup failure does not suppress the
// notification; losing an alert is worse than an extra one.
func (s *notificationService) Notify(ctx context.Context, agentID, enquiryID primitive.ObjectID, typ models.NotificationType, title, body string) error {
	settings, err := s.agentSvc.GetSettings(ctx, agentID)
	if err != nil {
		log.Printf("Notification settings lookup failed for agent %s, emitting anyway: %v", agentID.Hex(), err)
	} else if !notificationEnabled(settings, typ) {
		return nil
	}

	notification := models.Notification{
		AgentID:   agentID,
		EnquiryID: enquiryID,
		Type:      typ,
		Title:     title,
		Body:      body,
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.Collection(notificationsCollection).InsertOne(ctx, notification); err != nil {
		return fmt.Errorf("error inserting %s notification: %w", typ, err)
	}
	return nil
}

func notificationEnabled(settings *models.AgentSettings, typ models.NotificationType) bool {
	switch typ {
	case models.NotificationHotLead:
		return settings.NotifyHotLead
	case models.NotificationInspectionRequest:
		return settings.NotifyInspectionRequest
	case models.NotificationStaleLead:
		return settings.NotifyStaleLead
	case models.NotificationWarmReply:
		return settings.NotifyWarmReply
	}
	return true
}

// List returns the agent's most recent notifications, newest first.
func (s *notificationService) List(ctx context.Context, agentID primitive.ObjectID) ([]models.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(notificationListLimit)
	cursor, err := s.db.Collection(notificationsCollection).Find(ctx, bson.M{"agent_id": agentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("error decoding notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flips one notification to read, scoped to the owning agent.
func (s *notificationService) MarkRead(ctx context.Context, agentID, notificationID primitive.ObjectID) (*models.Notification, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var notification models.Notification
	err := s.db.Collection(notificationsCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": notificationID, "agent_id": agentID},
		bson.M{"$set": bson.M{"is_read": true}},
		opts,
	).Decode(&notification)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("error marking notification read: %w", err)
	}
	return &notification, nil
}

// MarkAllRead flips every unread notification for the agent.
func (s *notificationService) MarkAllRead(ctx context.Context, agentID primitive.ObjectID) error {
	_, err := s.db.Collection(notificationsCollection).UpdateMany(
		ctx,
		bson.M{"agent_id": agentID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return fmt.Errorf("error marking notifications read: %w", err)
	}
	return nil
}
