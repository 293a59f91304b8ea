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

// ILedgerService is the processed-email ledger: the scanner's idempotency
// record and thread index.
type ILedgerService interface {
	AlreadyProcessed(ctx context.Context, accountID primitive.ObjectID, messageIDHeader string) (bool, error)
	FindThreadEnquiry(ctx context.Context, accountID primitive.ObjectID, threadID string) (primitive.ObjectID, bool, error)
	Record(ctx context.Context, entry models.ProcessedEmail) error
	LastForEnquiry(ctx context.Context, enquiryID primitive.ObjectID) (*models.ProcessedEmail, error)
}

const processedEmailsCollection = "processed_emails"

type ledgerService struct {
	db *mongo.Database
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(database *mongo.Database) ILedgerService {
	return &ledgerService{db: database}
}

// AlreadyProcessed reports whether this message id was seen before on this
// account. An empty message id never matches; the caller falls back to a
// synthetic id in that case.
func (s *ledgerService) AlreadyProcessed(ctx context.Context, accountID primitive.ObjectID, messageIDHeader string) (bool, error) {
	if messageIDHeader == "" {
		return false, nil
	}
	err := s.db.Collection(processedEmailsCollection).FindOne(
		ctx,
		bson.M{"email_account_id": accountID, "message_id_header": messageIDHeader},
	).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, fmt.Errorf("error checking processed ledger: %w", err)
}

// FindThreadEnquiry resolves a thread id to the enquiry an earlier message of
// the same thread was routed to. Entries without an enquiry id never match.
func (s *ledgerService) FindThreadEnquiry(ctx context.Context, accountID primitive.ObjectID, threadID string) (primitive.ObjectID, bool, error) {
	if threadID == "" {
		return primitive.NilObjectID, false, nil
	}
	var entry models.ProcessedEmail
	err := s.db.Collection(processedEmailsCollection).FindOne(
		ctx,
		bson.M{
			"email_account_id": accountID,
			"thread_id":        threadID,
			"enquiry_id":       bson.M{"$exists": true, "$ne": primitive.NilObjectID},
		},
	).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return primitive.NilObjectID, false, nil
		}
		return primitive.NilObjectID, false, fmt.Errorf("error resolving thread %s: %w", threadID, err)
	}
	return entry.EnquiryID, true, nil
}

// LastForEnquiry returns the most recently processed source email of an
// enquiry, used to build In-Reply-To headers on outbound replies. Returns
// nil without error when the enquiry has no ledger entry (webhook-created
// enquiries never touch a mailbox).
func (s *ledgerService) LastForEnquiry(ctx context.Context, enquiryID primitive.ObjectID) (*models.ProcessedEmail, error) {
	var entry models.ProcessedEmail
	err := s.db.Collection(processedEmailsCollection).FindOne(
		ctx,
		bson.M{"enquiry_id": enquiryID},
		options.FindOne().SetSort(bson.D{{Key: "processed_at", Value: -1}}),
	).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding ledger entry for enquiry %s: %w", enquiryID.Hex(), err)
	}
	return &entry, nil
}

// Record writes a ledger entry. A duplicate-key error means a concurrent scan
// already recorded this message; that is treated as success.
func (s *ledgerService) Record(ctx context.Context, entry models.ProcessedEmail) error {
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(processedEmailsCollection).InsertOne(ctx, entry)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("error recording processed email: %w", err)
	}
	return nil
}
