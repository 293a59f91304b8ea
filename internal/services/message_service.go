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

// ErrMessageNotFound is returned when a message does not exist or is not in
// a state the operation accepts.
var ErrMessageNotFound = errors.New("message not found")

// ReplyDispatcher hands an approved reply off for asynchronous delivery.
type ReplyDispatcher interface {
	EnqueueReplyDelivery(messageID primitive.ObjectID) error
}

// IMessageService manages the turns of an enquiry conversation, including the
// AI draft approval workflow.
type IMessageService interface {
	ListByEnquiry(ctx context.Context, agentID, enquiryID primitive.ObjectID) ([]models.Message, error)
	AppendAgentMessage(ctx context.Context, agentID, enquiryID primitive.ObjectID, content string) (*models.Message, error)
	EditDraft(ctx context.Context, agentID, messageID primitive.ObjectID, content string) (*models.Message, error)
	ApproveDraft(ctx context.Context, agentID, messageID primitive.ObjectID) (*models.Message, error)
	FindByID(ctx context.Context, messageID primitive.ObjectID) (*models.Message, error)
	MarkDeliveryFailed(ctx context.Context, messageID primitive.ObjectID) error
}

type messageService struct {
	db         *mongo.Database
	dispatcher ReplyDispatcher
}

// NewMessageService creates a new MessageService. dispatcher may be nil, in
// which case approved drafts are stored but not delivered.
func NewMessageService(database *mongo.Database, dispatcher ReplyDispatcher) IMessageService {
	return &messageService{db: database, dispatcher: dispatcher}
}

// ListByEnquiry returns the conversation in chronological order, scoped to
// the owning agent.
func (s *messageService) ListByEnquiry(ctx context.Context, agentID, enquiryID primitive.ObjectID) ([]models.Message, error) {
	if err := s.checkOwnership(ctx, agentID, enquiryID); err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(messagesCollection).Find(
		ctx,
		bson.M{"enquiry_id": enquiryID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("error decoding messages: %w", err)
	}
	return messages, nil
}

// AppendAgentMessage stores a manual agent reply as sent and bumps the
// enquiry's activity timestamp. The reply is queued for outbound delivery.
func (s *messageService) AppendAgentMessage(ctx context.Context, agentID, enquiryID primitive.ObjectID, content string) (*models.Message, error) {
	if err := s.checkOwnership(ctx, agentID, enquiryID); err != nil {
		return nil, err
	}

	message := models.Message{
		EnquiryID: enquiryID,
		Sender:    models.SenderAgent,
		Content:   content,
		Channel:   "email",
		Status:    models.MessageStatusSent,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.Collection(messagesCollection).InsertOne(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to insert agent message: %w", err)
	}
	message.ID = res.InsertedID.(primitive.ObjectID)

	if _, err := s.db.Collection(enquiriesCollection).UpdateOne(
		ctx,
		bson.M{"_id": enquiryID},
		bson.M{"$set": bson.M{"last_activity_at": time.Now().UTC()}},
	); err != nil {
		return nil, fmt.Errorf("failed to bump enquiry activity: %w", err)
	}

	s.dispatch(message.ID)
	return &message, nil
}

// EditDraft replaces the content of an AI draft and marks it edited. Pending
// and already-edited drafts can be reworked any number of times; a draft that
// has gone out cannot.
func (s *messageService) EditDraft(ctx context.Context, agentID, messageID primitive.ObjectID, content string) (*models.Message, error) {
	message, err := s.findOwnedDraft(ctx, agentID, messageID)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Message
	err = s.db.Collection(messagesCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": message.ID, "status": bson.M{"$in": []models.MessageStatus{
			models.MessageStatusPendingApproval,
			models.MessageStatusEdited,
		}}},
		bson.M{"$set": bson.M{"content": content, "status": models.MessageStatusEdited}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to edit draft %s: %w", messageID.Hex(), err)
	}
	return &updated, nil
}

// ApproveDraft marks a pending or edited AI draft as sent and queues it for
// outbound delivery.
func (s *messageService) ApproveDraft(ctx context.Context, agentID, messageID primitive.ObjectID) (*models.Message, error) {
	message, err := s.findOwnedDraft(ctx, agentID, messageID)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Message
	err = s.db.Collection(messagesCollection).FindOneAndUpdate(
		ctx,
		bson.M{
			"_id":    message.ID,
			"status": bson.M{"$in": []models.MessageStatus{models.MessageStatusPendingApproval, models.MessageStatusEdited}},
		},
		bson.M{"$set": bson.M{"status": models.MessageStatusSent}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to approve draft %s: %w", messageID.Hex(), err)
	}

	s.dispatch(updated.ID)
	return &updated, nil
}

// FindByID returns a message without ownership scoping. Used by the delivery
// worker, which holds no agent context.
func (s *messageService) FindByID(ctx context.Context, messageID primitive.ObjectID) (*models.Message, error) {
	var message models.Message
	err := s.db.Collection(messagesCollection).FindOne(ctx, bson.M{"_id": messageID}).Decode(&message)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("error finding message %s: %w", messageID.Hex(), err)
	}
	return &message, nil
}

// MarkDeliveryFailed flags a message whose outbound send could not complete.
func (s *messageService) MarkDeliveryFailed(ctx context.Context, messageID primitive.ObjectID) error {
	_, err := s.db.Collection(messagesCollection).UpdateOne(
		ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"status": models.MessageStatusFailed}},
	)
	if err != nil {
		return fmt.Errorf("error marking message delivery failed: %w", err)
	}
	return nil
}

// findOwnedDraft loads an AI message and verifies the requesting agent owns
// its enquiry. Non-AI messages are not drafts.
func (s *messageService) findOwnedDraft(ctx context.Context, agentID, messageID primitive.ObjectID) (*models.Message, error) {
	message, err := s.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Sender != models.SenderAI {
		return nil, ErrMessageNotFound
	}
	if err := s.checkOwnership(ctx, agentID, message.EnquiryID); err != nil {
		return nil, err
	}
	return message, nil
}

func (s *messageService) checkOwnership(ctx context.Context, agentID, enquiryID primitive.ObjectID) error {
	err := s.db.Collection(enquiriesCollection).FindOne(
		ctx,
		bson.M{"_id": enquiryID, "agent_id": agentID},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrEnquiryNotFound
		}
		return fmt.Errorf("error checking enquiry ownership: %w", err)
	}
	return nil
}

func (s *messageService) dispatch(messageID primitive.ObjectID) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.EnqueueReplyDelivery(messageID); err != nil {
		log.Printf("Failed to enqueue reply delivery for message %s: %v", messageID.Hex(), err)
	}
}
