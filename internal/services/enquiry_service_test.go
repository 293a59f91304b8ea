package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/utils"
)

func setupEnquiryTestDB(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName,
		"agents", "agent_settings", "contacts", "enquiries", "messages", "notifications")
}

func seedAgent(t *testing.T, db *mongo.Database, mode models.AIMode) primitive.ObjectID {
	t.Helper()
	agentID := primitive.NewObjectID()
	now := time.Now().UTC()
	_, err := db.Collection("agents").InsertOne(context.Background(), models.Agent{
		ID:        agentID,
		Email:     agentID.Hex() + "@agency.example.com",
		FullName:  "Alex Agent",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	settings := models.DefaultAgentSettings(agentID)
	settings.AIMode = mode
	settings.UpdatedAt = now
	_, err = db.Collection("agent_settings").InsertOne(context.Background(), settings)
	require.NoError(t, err)
	return agentID
}

func newTestEnquiryService(db *mongo.Database) IEnquiryService {
	agentSvc := NewAgentService(db, &config.Config{DefaultAIMode: "draft"})
	return NewEnquiryService(db, agentSvc, NewNotificationService(db, agentSvc))
}

func newClientEnquiry(agentID primitive.ObjectID, category models.EnquiryCategory, aiDraft string) NewEnquiryInput {
	return NewEnquiryInput{
		AgentID:     agentID,
		ClientName:  "Jane Buyer",
		ClientEmail: "jane@example.com",
		Subject:     "Price for 12 Ocean St?",
		Body:        "What is the price guide?",
		Category:    category,
		Source:      "email",
		AIDraft:     aiDraft,
	}
}

func loadEnquiry(t *testing.T, db *mongo.Database, enquiryID primitive.ObjectID) models.Enquiry {
	t.Helper()
	var enquiry models.Enquiry
	err := db.Collection("enquiries").FindOne(context.Background(), bson.M{"_id": enquiryID}).Decode(&enquiry)
	require.NoError(t, err)
	return enquiry
}

func aiMessages(t *testing.T, db *mongo.Database, enquiryID primitive.ObjectID) []models.Message {
	t.Helper()
	cursor, err := db.Collection("messages").Find(
		context.Background(),
		bson.M{"enquiry_id": enquiryID, "sender": models.SenderAI},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	require.NoError(t, err)
	var messages []models.Message
	require.NoError(t, cursor.All(context.Background(), &messages))
	return messages
}

func notificationTypes(t *testing.T, db *mongo.Database, enquiryID primitive.ObjectID) []models.NotificationType {
	t.Helper()
	cursor, err := db.Collection("notifications").Find(context.Background(), bson.M{"enquiry_id": enquiryID})
	require.NoError(t, err)
	var notifications []models.Notification
	require.NoError(t, cursor.All(context.Background(), &notifications))
	types := make([]models.NotificationType, 0, len(notifications))
	for _, n := range notifications {
		types = append(types, n.Type)
	}
	return types
}

func TestEnquiryService_SafeModeAutoSendAsymmetry(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_safe_asymmetry")
	agentID := seedAgent(t, db, models.AIModeSafe)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryPriceOnly, "Here is the price guide."))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoHandled, created.Status)
	assert.Equal(t, models.MessageStatusSent, created.AIMessageStatus)

	// The same agent and mode never auto-send mid-thread.
	_, err = svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID: created.EnquiryID,
		Content:   "Thanks, and is it still available?",
		AIDraft:   "Yes, it is still available.",
	})
	require.NoError(t, err)

	drafts := aiMessages(t, db, created.EnquiryID)
	require.Len(t, drafts, 2)
	assert.Equal(t, models.MessageStatusSent, drafts[0].Status)
	assert.Equal(t, models.MessageStatusPendingApproval, drafts[1].Status)
}

func TestEnquiryService_FullModeSendsEverywhere(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_full_mode")
	agentID := seedAgent(t, db, models.AIModeFull)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryPriceOnly, "Here is the price guide."))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoHandled, created.Status)
	assert.Equal(t, models.MessageStatusSent, created.AIMessageStatus)

	_, err = svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID: created.EnquiryID,
		Content:   "Great, thanks.",
		AIDraft:   "You are welcome.",
	})
	require.NoError(t, err)

	drafts := aiMessages(t, db, created.EnquiryID)
	require.Len(t, drafts, 2)
	assert.Equal(t, models.MessageStatusSent, drafts[1].Status)
}

func TestEnquiryService_InspectionEnquiryNeedsAttention(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_inspection_create")
	agentID := seedAgent(t, db, models.AIModeDraft)
	svc := newTestEnquiryService(db)

	created, err := svc.ProcessNewEnquiry(context.Background(),
		newClientEnquiry(agentID, models.CategoryInspection, "Saturday at 11 works."))
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsAttention, created.Status)
	assert.Equal(t, models.MessageStatusPendingApproval, created.AIMessageStatus)
}

func TestEnquiryService_OfferIntentPromotesAndNotifies(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_offer_promotion")
	agentID := seedAgent(t, db, models.AIModeDraft)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryOther, ""))
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, created.Status)

	result, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID:     created.EnquiryID,
		Content:       "We would like to make an offer.",
		IsOfferIntent: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Promoted)
	assert.Equal(t, ReasonOffer, result.PromotionReason)

	enquiry := loadEnquiry(t, db, created.EnquiryID)
	assert.Equal(t, models.StatusHot, enquiry.Status)
	assert.Equal(t, ReasonOffer, enquiry.PromotionReason)

	types := notificationTypes(t, db, created.EnquiryID)
	assert.Contains(t, types, models.NotificationHotLead)
	assert.NotContains(t, types, models.NotificationWarmReply)
}

func TestEnquiryService_PlainReplyEmitsWarmReply(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_warm_reply")
	agentID := seedAgent(t, db, models.AIModeDraft)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryMultiQuestion, ""))
	require.NoError(t, err)

	result, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID: created.EnquiryID,
		Content:   "Also, how old is the roof?",
	})
	require.NoError(t, err)
	assert.False(t, result.Promoted)

	types := notificationTypes(t, db, created.EnquiryID)
	assert.Equal(t, []models.NotificationType{models.NotificationWarmReply}, types)
}

func TestEnquiryService_InspectionNotificationCoOccursWithHotLead(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_inspection_update")
	agentID := seedAgent(t, db, models.AIModeDraft)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryOther, ""))
	require.NoError(t, err)

	result, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID:           created.EnquiryID,
		Content:             "Can I inspect on Saturday?",
		IsInspectionRequest: true,
		IsOfferIntent:       true,
	})
	require.NoError(t, err)
	assert.True(t, result.Promoted)
	assert.Equal(t, ReasonInspection, result.PromotionReason)

	types := notificationTypes(t, db, created.EnquiryID)
	assert.Contains(t, types, models.NotificationHotLead)
	assert.Contains(t, types, models.NotificationInspectionRequest)
	assert.NotContains(t, types, models.NotificationWarmReply)
}

func TestEnquiryService_HotStatusIsMonotonic(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_hot_monotonic")
	agentID := seedAgent(t, db, models.AIModeDraft)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryOther, ""))
	require.NoError(t, err)

	first, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID:     created.EnquiryID,
		Content:       "We want to offer.",
		IsOfferIntent: true,
	})
	require.NoError(t, err)
	require.True(t, first.Promoted)

	// A later inspection request does not re-promote or rewrite the reason.
	second, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID:           created.EnquiryID,
		Content:             "And can we inspect first?",
		IsInspectionRequest: true,
	})
	require.NoError(t, err)
	assert.False(t, second.Promoted)

	enquiry := loadEnquiry(t, db, created.EnquiryID)
	assert.Equal(t, models.StatusHot, enquiry.Status)
	assert.Equal(t, ReasonOffer, enquiry.PromotionReason)

	types := notificationTypes(t, db, created.EnquiryID)
	assert.Contains(t, types, models.NotificationInspectionRequest)

	hotLeads := 0
	for _, typ := range types {
		if typ == models.NotificationHotLead {
			hotLeads++
		}
	}
	assert.Equal(t, 1, hotLeads)
}

func TestEnquiryService_NonClientTurnsNeverPromote(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_ai_turn")
	agentID := seedAgent(t, db, models.AIModeDraft)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryOther, ""))
	require.NoError(t, err)

	result, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID:     created.EnquiryID,
		Sender:        models.SenderAI,
		Content:       "The vendor would consider offers above the guide.",
		IsOfferIntent: true,
	})
	require.NoError(t, err)
	assert.False(t, result.Promoted)

	enquiry := loadEnquiry(t, db, created.EnquiryID)
	assert.Equal(t, models.StatusNew, enquiry.Status)
	assert.Empty(t, notificationTypes(t, db, created.EnquiryID))
}

func TestEnquiryService_ThirdClientReplyPromotesOnVolume(t *testing.T) {
	db := setupEnquiryTestDB(t, "testdb_enquiry_reply_volume")
	agentID := seedAgent(t, db, models.AIModeDraft)
	svc := newTestEnquiryService(db)
	ctx := context.Background()

	created, err := svc.ProcessNewEnquiry(ctx, newClientEnquiry(agentID, models.CategoryOther, ""))
	require.NoError(t, err)

	// Second client message: two client messages total, below the threshold.
	second, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID: created.EnquiryID,
		Content:   "Is there parking?",
	})
	require.NoError(t, err)
	assert.False(t, second.Promoted)

	// Third client message promotes on volume alone.
	third, err := svc.ProcessUpdate(ctx, EnquiryUpdateInput{
		EnquiryID: created.EnquiryID,
		Content:   "And what about the body corporate fees?",
	})
	require.NoError(t, err)
	assert.True(t, third.Promoted)
	assert.Equal(t, ReasonReplies, third.PromotionReason)
}
