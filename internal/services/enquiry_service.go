package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/enhub-AU/enquiry-partner/internal/db"
	"github.com/enhub-AU/enquiry-partner/internal/models"
)

// ErrEnquiryNotFound is returned when the referenced enquiry does not exist.
var ErrEnquiryNotFound = errors.New("enquiry not found")

// NewEnquiryInput carries everything needed to open a new lead conversation.
// Exactly one of AgentID / AgentEmail must identify the owning agent.
type NewEnquiryInput struct {
	AgentID            primitive.ObjectID
	AgentEmail         string
	ClientName         string
	ClientEmail        string
	ClientPhone        string
	Subject            string
	Body               string
	Category           models.EnquiryCategory
	PropertyAddress    string
	PropertyPriceGuide string
	Source             string
	AIDraft            string
}

// NewEnquiryResult reports what was created. AIMessageStatus is empty when no
// draft was supplied.
type NewEnquiryResult struct {
	EnquiryID       primitive.ObjectID
	ContactID       primitive.ObjectID
	Status          models.EnquiryStatus
	AIMessageStatus models.MessageStatus
}

// EnquiryUpdateInput carries one new turn on an existing conversation.
type EnquiryUpdateInput struct {
	EnquiryID           primitive.ObjectID
	Sender              models.MessageSender // defaults to client when empty
	Content             string
	AIDraft             string
	IsInspectionRequest bool
	IsOfferIntent       bool
}

// EnquiryUpdateResult reports the promotion outcome of an update.
type EnquiryUpdateResult struct {
	EnquiryID       primitive.ObjectID
	Promoted        bool
	PromotionReason string
}

// EnquiryThread is an enquiry joined with its contact and ordered messages.
type EnquiryThread struct {
	Enquiry  models.Enquiry
	Contact  *models.Contact
	Messages []models.Message
}

// InboxStats are the dashboard counters for one agent.
type InboxStats struct {
	AutoHandled  int64 `json:"autoHandled"`
	PromotedHot  int64 `json:"promotedHot"`
	WaitingReply int64 `json:"waitingReply"`
}

// IEnquiryService is the enquiry lifecycle engine plus the inbox read side.
type IEnquiryService interface {
	ProcessNewEnquiry(ctx context.Context, input NewEnquiryInput) (*NewEnquiryResult, error)
	ProcessUpdate(ctx context.Context, input EnquiryUpdateInput) (*EnquiryUpdateResult, error)
	ListEnquiries(ctx context.Context, agentID primitive.ObjectID, status models.EnquiryStatus) ([]EnquiryThread, error)
	GetEnquiry(ctx context.Context, agentID, enquiryID primitive.ObjectID) (*EnquiryThread, error)
	Thread(ctx context.Context, enquiryID primitive.ObjectID) (*EnquiryThread, error)
	MarkRead(ctx context.Context, agentID, enquiryID primitive.ObjectID) error
	ThreadHistory(ctx context.Context, enquiryID primitive.ObjectID, limit int) ([]string, error)
	Stats(ctx context.Context, agentID primitive.ObjectID) (*InboxStats, error)
	FindStale(ctx context.Context, agentID primitive.ObjectID, cutoff time.Time) ([]models.Enquiry, error)
	MarkStaleNotified(ctx context.Context, enquiryID primitive.ObjectID) error
}

const (
	contactsCollection  = "contacts"
	enquiriesCollection = "enquiries"
	messagesCollection  = "messages"
)

// enquiryService implements IEnquiryService.
//
// Lifecycle operations issue their store writes sequentially without a
// cross-step transaction; a mid-sequence failure aborts the remaining steps
// but does not roll back the applied ones. Contact upserts are retried on
// duplicate-key races so partial application there is self-healing.
type enquiryService struct {
	db              *mongo.Database
	agentSvc        IAgentService
	notificationSvc INotificationService
}

// NewEnquiryService creates a new EnquiryService.
func NewEnquiryService(database *mongo.Database, agentSvc IAgentService, notificationSvc INotificationService) IEnquiryService {
	return &enquiryService{db: database, agentSvc: agentSvc, notificationSvc: notificationSvc}
}

// ProcessNewEnquiry opens a new lead conversation: resolves the agent,
// upserts the contact, computes the initial status, stores the client's
// message and (optionally) the AI draft with its auto-send decision.
func (s *enquiryService) ProcessNewEnquiry(ctx context.Context, input NewEnquiryInput) (*NewEnquiryResult, error) {
	// 1. Resolve the owning agent.
	agentID := input.AgentID
	if agentID.IsZero() {
		if input.AgentEmail == "" {
			return nil, errors.New("either agent id or agent email must be provided")
		}
		agent, err := s.agentSvc.FindByEmail(ctx, input.AgentEmail)
		if err != nil {
			return nil, err
		}
		agentID = agent.ID
	}

	// 2. Agent AI mode drives the status and auto-send decisions below.
	settings, err := s.agentSvc.GetSettings(ctx, agentID)
	if err != nil {
		return nil, err
	}
	aiMode := settings.AIMode

	// 3. Upsert the contact by (agent, email). Last write wins on name/phone.
	contactID, err := s.upsertContact(ctx, agentID, input)
	if err != nil {
		return nil, err
	}

	// 4. Initial status from the rule table.
	status := InitialStatus(input.Category, aiMode)

	// 5. Create the enquiry.
	now := time.Now().UTC()
	enquiry := models.Enquiry{
		AgentID:            agentID,
		ContactID:          contactID,
		Subject:            input.Subject,
		Status:             status,
		Category:           input.Category,
		PropertyAddress:    input.PropertyAddress,
		PropertyPriceGuide: input.PropertyPriceGuide,
		IsRead:             false,
		LastActivityAt:     now,
		CreatedAt:          now,
	}
	insertRes, err := s.db.Collection(enquiriesCollection).InsertOne(ctx, enquiry)
	if err != nil {
		return nil, fmt.Errorf("failed to create enquiry: %w", err)
	}
	enquiryID := insertRes.InsertedID.(primitive.ObjectID)

	// 6. The client's message is always stored as sent.
	if err := s.insertMessage(ctx, enquiryID, models.SenderClient, input.Body, models.MessageStatusSent); err != nil {
		return nil, err
	}

	// 7. Optional AI draft with the creation-path auto-send rule.
	result := &NewEnquiryResult{
		EnquiryID: enquiryID,
		ContactID: contactID,
		Status:    status,
	}
	if input.AIDraft != "" {
		aiStatus := models.MessageStatusPendingApproval
		if AutoSendOnCreate(input.Category, aiMode) {
			aiStatus = models.MessageStatusSent
		}
		if err := s.insertMessage(ctx, enquiryID, models.SenderAI, input.AIDraft, aiStatus); err != nil {
			return nil, err
		}
		result.AIMessageStatus = aiStatus
	}

	return result, nil
}

// ProcessUpdate appends one turn to an existing conversation, evaluates the
// hot-lead promotion rule, emits notifications and handles an optional AI
// draft with the update-path auto-send rule.
func (s *enquiryService) ProcessUpdate(ctx context.Context, input EnquiryUpdateInput) (*EnquiryUpdateResult, error) {
	// 1. Load the enquiry with contact and message history.
	thread, err := s.loadThread(ctx, input.EnquiryID)
	if err != nil {
		return nil, err
	}
	enquiry := thread.Enquiry

	sender := input.Sender
	if sender == "" {
		sender = models.SenderClient
	}

	// 2. Append the reply message. This happens before the AI draft is even
	// considered so a draft failure can never lose the inbound message.
	if err := s.insertMessage(ctx, enquiry.ID, sender, input.Content, models.MessageStatusSent); err != nil {
		return nil, err
	}

	// 3. Every update marks the enquiry unread and bumps activity.
	updates := bson.M{
		"last_activity_at": time.Now().UTC(),
		"is_read":          false,
	}

	// 4. Hot-lead promotion: only for client turns on a non-hot enquiry.
	promoted := false
	promotionReason := ""
	fromClient := sender == models.SenderClient
	if enquiry.Status != models.StatusHot && fromClient {
		clientMessageCount := countClientMessages(thread.Messages) + 1
		promoted, promotionReason = PromotionDecision(input.IsInspectionRequest, input.IsOfferIntent, clientMessageCount)
		if promoted {
			updates["status"] = models.StatusHot
			updates["promotion_reason"] = promotionReason
		}
	}

	if _, err := s.db.Collection(enquiriesCollection).UpdateOne(ctx, bson.M{"_id": enquiry.ID}, bson.M{"$set": updates}); err != nil {
		return nil, fmt.Errorf("failed to update enquiry %s: %w", enquiry.ID.Hex(), err)
	}

	// 5. Notifications. Inspection requests always alert; hot_lead and
	// warm_reply are mutually exclusive for a given update.
	contactName := "A lead"
	if thread.Contact != nil && thread.Contact.Name != "" {
		contactName = thread.Contact.Name
	}
	if promoted {
		body := fmt.Sprintf("%s — %s", contactName, promotionReason)
		if err := s.notificationSvc.Notify(ctx, enquiry.AgentID, enquiry.ID, models.NotificationHotLead, "New hot lead", body); err != nil {
			return nil, err
		}
	}
	if input.IsInspectionRequest {
		body := fmt.Sprintf("%s requested an inspection", contactName)
		if err := s.notificationSvc.Notify(ctx, enquiry.AgentID, enquiry.ID, models.NotificationInspectionRequest, "Inspection requested", body); err != nil {
			return nil, err
		}
	}
	if fromClient && !promoted {
		body := fmt.Sprintf("%s replied to %q", contactName, enquiry.Subject)
		if err := s.notificationSvc.Notify(ctx, enquiry.AgentID, enquiry.ID, models.NotificationWarmReply, "New reply", body); err != nil {
			return nil, err
		}
	}

	// 6. Optional AI draft. Only "full" mode auto-sends on the update path.
	if input.AIDraft != "" {
		settings, err := s.agentSvc.GetSettings(ctx, enquiry.AgentID)
		if err != nil {
			return nil, err
		}
		aiStatus := models.MessageStatusPendingApproval
		if AutoSendOnUpdate(settings.AIMode) {
			aiStatus = models.MessageStatusSent
		}
		if err := s.insertMessage(ctx, enquiry.ID, models.SenderAI, input.AIDraft, aiStatus); err != nil {
			return nil, err
		}
	}

	return &EnquiryUpdateResult{
		EnquiryID:       enquiry.ID,
		Promoted:        promoted,
		PromotionReason: promotionReason,
	}, nil
}

// upsertContact creates or refreshes the contact row keyed on (agent, email).
// Retried on duplicate-key errors: two racing first enquiries from the same
// client resolve to one contact.
func (s *enquiryService) upsertContact(ctx context.Context, agentID primitive.ObjectID, input NewEnquiryInput) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	set := bson.M{
		"name":       input.ClientName,
		"updated_at": now,
	}
	if input.ClientPhone != "" {
		set["phone"] = input.ClientPhone
	}
	if input.Source != "" {
		set["source"] = input.Source
	}

	var contact models.Contact
	operation := func() error {
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		return s.db.Collection(contactsCollection).FindOneAndUpdate(
			ctx,
			bson.M{"agent_id": agentID, "email": input.ClientEmail},
			bson.M{
				"$set":         set,
				"$setOnInsert": bson.M{"agent_id": agentID, "email": input.ClientEmail, "created_at": now},
			},
			opts,
		).Decode(&contact)
	}
	if err := db.Try(operation); err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to upsert contact %s: %w", input.ClientEmail, err)
	}
	return contact.ID, nil
}

func (s *enquiryService) insertMessage(ctx context.Context, enquiryID primitive.ObjectID, sender models.MessageSender, content string, status models.MessageStatus) error {
	message := models.Message{
		EnquiryID: enquiryID,
		Sender:    sender,
		Content:   content,
		Channel:   "email",
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.Collection(messagesCollection).InsertOne(ctx, message); err != nil {
		return fmt.Errorf("failed to insert %s message: %w", sender, err)
	}
	return nil
}

func countClientMessages(messages []models.Message) int {
	count := 0
	for _, m := range messages {
		if m.Sender == models.SenderClient {
			count++
		}
	}
	return count
}

// loadThread fetches the enquiry, its contact and its full ordered history.
func (s *enquiryService) loadThread(ctx context.Context, enquiryID primitive.ObjectID) (*EnquiryThread, error) {
	var enquiry models.Enquiry
	err := s.db.Collection(enquiriesCollection).FindOne(ctx, bson.M{"_id": enquiryID}).Decode(&enquiry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEnquiryNotFound
		}
		return nil, fmt.Errorf("error loading enquiry %s: %w", enquiryID.Hex(), err)
	}

	thread := &EnquiryThread{Enquiry: enquiry}

	var contact models.Contact
	err = s.db.Collection(contactsCollection).FindOne(ctx, bson.M{"_id": enquiry.ContactID}).Decode(&contact)
	if err == nil {
		thread.Contact = &contact
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error loading contact for enquiry %s: %w", enquiryID.Hex(), err)
	}

	cursor, err := s.db.Collection(messagesCollection).Find(
		ctx,
		bson.M{"enquiry_id": enquiryID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("error loading messages for enquiry %s: %w", enquiryID.Hex(), err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, &thread.Messages); err != nil {
		return nil, fmt.Errorf("error decoding messages for enquiry %s: %w", enquiryID.Hex(), err)
	}

	return thread, nil
}

// ListEnquiries returns the agent's inbox, most recent activity first,
// optionally filtered by status.
func (s *enquiryService) ListEnquiries(ctx context.Context, agentID primitive.ObjectID, status models.EnquiryStatus) ([]EnquiryThread, error) {
	filter := bson.M{"agent_id": agentID}
	if status != "" {
		filter["status"] = status
	}
	cursor, err := s.db.Collection(enquiriesCollection).Find(
		ctx,
		filter,
		options.Find().SetSort(bson.D{{Key: "last_activity_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("error listing enquiries: %w", err)
	}
	defer cursor.Close(ctx)

	var enquiries []models.Enquiry
	if err := cursor.All(ctx, &enquiries); err != nil {
		return nil, fmt.Errorf("error decoding enquiries: %w", err)
	}

	threads := make([]EnquiryThread, 0, len(enquiries))
	for _, e := range enquiries {
		thread, err := s.loadThread(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *thread)
	}
	return threads, nil
}

// Thread returns an enquiry thread without agent scoping. Background workers
// hold no agent context; API handlers use GetEnquiry instead.
func (s *enquiryService) Thread(ctx context.Context, enquiryID primitive.ObjectID) (*EnquiryThread, error) {
	return s.loadThread(ctx, enquiryID)
}

// GetEnquiry returns one enquiry thread, scoped to the owning agent.
func (s *enquiryService) GetEnquiry(ctx context.Context, agentID, enquiryID primitive.ObjectID) (*EnquiryThread, error) {
	thread, err := s.loadThread(ctx, enquiryID)
	if err != nil {
		return nil, err
	}
	if thread.Enquiry.AgentID != agentID {
		return nil, ErrEnquiryNotFound
	}
	return thread, nil
}

// MarkRead flips the unread flag, scoped to the owning agent.
func (s *enquiryService) MarkRead(ctx context.Context, agentID, enquiryID primitive.ObjectID) error {
	res, err := s.db.Collection(enquiriesCollection).UpdateOne(
		ctx,
		bson.M{"_id": enquiryID, "agent_id": agentID},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return fmt.Errorf("error marking enquiry read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrEnquiryNotFound
	}
	return nil
}

// ThreadHistory renders the first messages of a thread as "[sender]: content"
// lines for AI prompt context.
func (s *enquiryService) ThreadHistory(ctx context.Context, enquiryID primitive.ObjectID, limit int) ([]string, error) {
	cursor, err := s.db.Collection(messagesCollection).Find(
		ctx,
		bson.M{"enquiry_id": enquiryID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("error loading thread history: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("error decoding thread history: %w", err)
	}

	history := make([]string, 0, len(messages))
	for _, m := range messages {
		history = append(history, fmt.Sprintf("[%s]: %s", m.Sender, m.Content))
	}
	return history, nil
}

// Stats computes the dashboard counters for one agent.
func (s *enquiryService) Stats(ctx context.Context, agentID primitive.ObjectID) (*InboxStats, error) {
	enquiryIDs, err := s.agentEnquiryIDs(ctx, agentID)
	if err != nil {
		return nil, err
	}

	stats := &InboxStats{}

	stats.PromotedHot, err = s.db.Collection(enquiriesCollection).CountDocuments(
		ctx, bson.M{"agent_id": agentID, "status": models.StatusHot})
	if err != nil {
		return nil, fmt.Errorf("error counting hot enquiries: %w", err)
	}

	stats.AutoHandled, err = s.db.Collection(messagesCollection).CountDocuments(
		ctx, bson.M{"enquiry_id": bson.M{"$in": enquiryIDs}, "sender": models.SenderAI, "status": models.MessageStatusSent})
	if err != nil {
		return nil, fmt.Errorf("error counting auto-handled messages: %w", err)
	}

	stats.WaitingReply, err = s.db.Collection(messagesCollection).CountDocuments(
		ctx, bson.M{"enquiry_id": bson.M{"$in": enquiryIDs}, "status": models.MessageStatusPendingApproval})
	if err != nil {
		return nil, fmt.Errorf("error counting pending drafts: %w", err)
	}

	return stats, nil
}

func (s *enquiryService) agentEnquiryIDs(ctx context.Context, agentID primitive.ObjectID) ([]primitive.ObjectID, error) {
	cursor, err := s.db.Collection(enquiriesCollection).Find(
		ctx,
		bson.M{"agent_id": agentID},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("error listing enquiry ids: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding enquiry ids: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// FindStale returns enquiries with no activity since cutoff that have not
// already triggered a stale alert. Hot and auto-handled enquiries are
// excluded: the former already alerted, the latter needs no human reply.
func (s *enquiryService) FindStale(ctx context.Context, agentID primitive.ObjectID, cutoff time.Time) ([]models.Enquiry, error) {
	filter := bson.M{
		"agent_id":          agentID,
		"last_activity_at":  bson.M{"$lt": cutoff},
		"status":            bson.M{"$in": []models.EnquiryStatus{models.StatusNew, models.StatusNeedsAttention}},
		"stale_notified_at": bson.M{"$exists": false},
	}
	cursor, err := s.db.Collection(enquiriesCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error finding stale enquiries: %w", err)
	}
	defer cursor.Close(ctx)

	var enquiries []models.Enquiry
	if err := cursor.All(ctx, &enquiries); err != nil {
		return nil, fmt.Errorf("error decoding stale enquiries: %w", err)
	}
	return enquiries, nil
}

// MarkStaleNotified records that a stale alert went out, so an enquiry only
// ever alerts once.
func (s *enquiryService) MarkStaleNotified(ctx context.Context, enquiryID primitive.ObjectID) error {
	_, err := s.db.Collection(enquiriesCollection).UpdateOne(
		ctx,
		bson.M{"_id": enquiryID},
		bson.M{"$set": bson.M{"stale_notified_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("error marking enquiry stale-notified: %w", err)
	}
	return nil
}
