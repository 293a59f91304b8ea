package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/secure"
)

// ErrAccountNotFound is returned when the referenced email account does not exist.
var ErrAccountNotFound = errors.New("email account not found")

// NewAccountInput carries the plaintext form of a mailbox registration.
// Credentials are encrypted before they touch the store.
type NewAccountInput struct {
	AgentID           primitive.ObjectID
	Label             string
	Provider          string
	ImapHost          string
	ImapPort          int
	ImapUser          string
	ImapPassword      string
	AuthMethod        models.AuthMethod
	OAuthRefreshToken string
	SmtpHost          string
	SmtpPort          int
	SmtpUser          string
	SmtpPassword      string
}

// AccountCredentials is the decrypted secret material for one account, held
// in memory only for the duration of a scan or send.
type AccountCredentials struct {
	ImapPassword      string
	OAuthRefreshToken string
	SmtpPassword      string
}

// IAccountService manages monitored mailboxes and their encrypted credentials.
type IAccountService interface {
	Create(ctx context.Context, input NewAccountInput) (*models.EmailAccount, error)
	FindByID(ctx context.Context, accountID primitive.ObjectID) (*models.EmailAccount, error)
	ListByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EmailAccount, error)
	ListActive(ctx context.Context) ([]models.EmailAccount, error)
	ListActiveByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EmailAccount, error)
	Credentials(ctx context.Context, account *models.EmailAccount) (*AccountCredentials, error)
	SetActive(ctx context.Context, agentID, accountID primitive.ObjectID, active bool) error
	Delete(ctx context.Context, agentID, accountID primitive.ObjectID) error
	UpdateScanState(ctx context.Context, accountID primitive.ObjectID, scannedAt time.Time, scanErr error) error
}

const emailAccountsCollection = "email_accounts"

type accountService struct {
	db     *mongo.Database
	cipher *secure.Cipher
}

// NewAccountService creates a new AccountService.
func NewAccountService(database *mongo.Database, cipher *secure.Cipher) IAccountService {
	return &accountService{db: database, cipher: cipher}
}

// Create registers a mailbox, encrypting every credential field.
func (s *accountService) Create(ctx context.Context, input NewAccountInput) (*models.EmailAccount, error) {
	authMethod := input.AuthMethod
	if authMethod == "" {
		authMethod = models.AuthPassword
	}
	switch authMethod {
	case models.AuthPassword:
		if input.ImapPassword == "" {
			return nil, errors.New("imap password is required for password auth")
		}
	case models.AuthOAuth:
		if input.OAuthRefreshToken == "" {
			return nil, errors.New("oauth refresh token is required for oauth auth")
		}
	default:
		return nil, fmt.Errorf("unknown auth method: %s", authMethod)
	}

	account := models.EmailAccount{
		AgentID:    input.AgentID,
		Label:      input.Label,
		Provider:   input.Provider,
		ImapHost:   input.ImapHost,
		ImapPort:   input.ImapPort,
		ImapUser:   input.ImapUser,
		AuthMethod: authMethod,
		SmtpHost:   input.SmtpHost,
		SmtpPort:   input.SmtpPort,
		SmtpUser:   input.SmtpUser,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}

	var err error
	if input.ImapPassword != "" {
		if account.ImapPasswordEncrypted, err = s.cipher.Encrypt(input.ImapPassword); err != nil {
			return nil, fmt.Errorf("failed to encrypt imap password: %w", err)
		}
	}
	if input.OAuthRefreshToken != "" {
		if account.OAuthRefreshTokenEncrypted, err = s.cipher.Encrypt(input.OAuthRefreshToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt oauth token: %w", err)
		}
	}
	if input.SmtpPassword != "" {
		if account.SmtpPasswordEncrypted, err = s.cipher.Encrypt(input.SmtpPassword); err != nil {
			return nil, fmt.Errorf("failed to encrypt smtp password: %w", err)
		}
	}

	res, err := s.db.Collection(emailAccountsCollection).InsertOne(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create email account: %w", err)
	}
	account.ID = res.InsertedID.(primitive.ObjectID)
	return &account, nil
}

func (s *accountService) FindByID(ctx context.Context, accountID primitive.ObjectID) (*models.EmailAccount, error) {
	var account models.EmailAccount
	err := s.db.Collection(emailAccountsCollection).FindOne(ctx, bson.M{"_id": accountID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("error finding email account %s: %w", accountID.Hex(), err)
	}
	return &account, nil
}

func (s *accountService) ListByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EmailAccount, error) {
	return s.list(ctx, bson.M{"agent_id": agentID})
}

func (s *accountService) ListActive(ctx context.Context) ([]models.EmailAccount, error) {
	return s.list(ctx, bson.M{"is_active": true})
}

func (s *accountService) ListActiveByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EmailAccount, error) {
	return s.list(ctx, bson.M{"agent_id": agentID, "is_active": true})
}

func (s *accountService) list(ctx context.Context, filter bson.M) ([]models.EmailAccount, error) {
	cursor, err := s.db.Collection(emailAccountsCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing email accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var accounts []models.EmailAccount
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("error decoding email accounts: %w", err)
	}
	return accounts, nil
}

// Credentials decrypts the account's secret material.
func (s *accountService) Credentials(ctx context.Context, account *models.EmailAccount) (*AccountCredentials, error) {
	creds := &AccountCredentials{}
	var err error
	if account.ImapPasswordEncrypted != "" {
		if creds.ImapPassword, err = s.cipher.Decrypt(account.ImapPasswordEncrypted); err != nil {
			return nil, fmt.Errorf("failed to decrypt imap password for account %s: %w", account.ID.Hex(), err)
		}
	}
	if account.OAuthRefreshTokenEncrypted != "" {
		if creds.OAuthRefreshToken, err = s.cipher.Decrypt(account.OAuthRefreshTokenEncrypted); err != nil {
			return nil, fmt.Errorf("failed to decrypt oauth token for account %s: %w", account.ID.Hex(), err)
		}
	}
	if account.SmtpPasswordEncrypted != "" {
		if creds.SmtpPassword, err = s.cipher.Decrypt(account.SmtpPasswordEncrypted); err != nil {
			return nil, fmt.Errorf("failed to decrypt smtp password for account %s: %w", account.ID.Hex(), err)
		}
	}
	return creds, nil
}

// SetActive toggles scanning for an account, scoped to the owning agent.
func (s *accountService) SetActive(ctx context.Context, agentID, accountID primitive.ObjectID, active bool) error {
	res, err := s.db.Collection(emailAccountsCollection).UpdateOne(
		ctx,
		bson.M{"_id": accountID, "agent_id": agentID},
		bson.M{"$set": bson.M{"is_active": active}},
	)
	if err != nil {
		return fmt.Errorf("error toggling email account: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Delete removes an account, scoped to the owning agent. The processed-email
// ledger is kept so re-adding the account does not re-ingest old mail.
func (s *accountService) Delete(ctx context.Context, agentID, accountID primitive.ObjectID) error {
	res, err := s.db.Collection(emailAccountsCollection).DeleteOne(ctx, bson.M{"_id": accountID, "agent_id": agentID})
	if err != nil {
		return fmt.Errorf("error deleting email account: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateScanState advances the scan watermark, or records the failure without
// moving the watermark so the next sweep retries the same window.
func (s *accountService) UpdateScanState(ctx context.Context, accountID primitive.ObjectID, scannedAt time.Time, scanErr error) error {
	update := bson.M{}
	if scanErr != nil {
		update["$set"] = bson.M{"last_scan_error": scanErr.Error()}
	} else {
		update["$set"] = bson.M{"last_scan_at": scannedAt}
		update["$unset"] = bson.M{"last_scan_error": ""}
	}
	_, err := s.db.Collection(emailAccountsCollection).UpdateOne(ctx, bson.M{"_id": accountID}, update)
	if err != nil {
		return fmt.Errorf("error updating scan state for account %s: %w", accountID.Hex(), err)
	}
	return nil
}
