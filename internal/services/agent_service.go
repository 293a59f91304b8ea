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

	"github.com/enhub-AU/enquiry-partner/internal/auth"
	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/models"
)

// ErrAgentNotFound is returned when no agent matches the given identity.
var ErrAgentNotFound = errors.New("agent not found")

// ErrInvalidCredentials is returned on a failed login attempt.
var ErrInvalidCredentials = errors.New("invalid email or password")

// IAgentService defines agent identity and per-agent settings operations.
type IAgentService interface {
	FindByEmail(ctx context.Context, email string) (*models.Agent, error)
	FindByID(ctx context.Context, agentID primitive.ObjectID) (*models.Agent, error)
	Authenticate(ctx context.Context, email, password string) (*models.Agent, error)
	GetSettings(ctx context.Context, agentID primitive.ObjectID) (*models.AgentSettings, error)
	UpdateSettings(ctx context.Context, agentID primitive.ObjectID, updates map[string]interface{}) (*models.AgentSettings, error)
	ListAgentIDs(ctx context.Context) ([]primitive.ObjectID, error)
}

const (
	agentsCollection        = "agents"
	agentSettingsCollection = "agent_settings"
)

// agentService implements IAgentService.
type agentService struct {
	db            *mongo.Database
	defaultAIMode models.AIMode
}

// NewAgentService creates a new AgentService. DEFAULT_AI_MODE from the
// configuration becomes the ai_mode of agents with no settings row.
func NewAgentService(db *mongo.Database, cfg *config.Config) IAgentService {
	mode := models.AIMode(cfg.DefaultAIMode)
	if !models.ValidAIMode(string(mode)) {
		mode = models.AIModeDraft
	}
	return &agentService{db: db, defaultAIMode: mode}
}

// FindByEmail finds an agent by email address.
// Returns ErrAgentNotFound when no such agent exists.
func (s *agentService) FindByEmail(ctx context.Context, email string) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.Collection(agentsCollection).FindOne(ctx, bson.M{"email": email}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w for email: %s", ErrAgentNotFound, email)
		}
		return nil, fmt.Errorf("error finding agent by email %s: %w", email, err)
	}
	return &agent, nil
}

// FindByID finds an agent by its id.
func (s *agentService) FindByID(ctx context.Context, agentID primitive.ObjectID) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.Collection(agentsCollection).FindOne(ctx, bson.M{"_id": agentID}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("error finding agent %s: %w", agentID.Hex(), err)
	}
	return &agent, nil
}

// Authenticate checks an email/password pair. Both unknown-email and
// wrong-password collapse into ErrInvalidCredentials.
func (s *agentService) Authenticate(ctx context.Context, email, password string) (*models.Agent, error) {
	agent, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, agent.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return agent, nil
}

// GetSettings returns the agent's settings, falling back to defaults (the
// configured default ai_mode, all notifications on) when no row exists yet.
func (s *agentService) GetSettings(ctx context.Context, agentID primitive.ObjectID) (*models.AgentSettings, error) {
	var settings models.AgentSettings
	err := s.db.Collection(agentSettingsCollection).FindOne(ctx, bson.M{"agent_id": agentID}).Decode(&settings)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			defaults := models.DefaultAgentSettings(agentID)
			defaults.AIMode = s.defaultAIMode
			return defaults, nil
		}
		return nil, fmt.Errorf("error loading settings for agent %s: %w", agentID.Hex(), err)
	}
	if settings.AIMode == "" {
		settings.AIMode = s.defaultAIMode
	}
	return &settings, nil
}

// settingsAllowedFields is the whitelist of settings keys accepted from the
// settings endpoint. Anything else in the payload is silently dropped.
var settingsAllowedFields = map[string]bool{
	"ai_mode":                   true,
	"notify_hot_lead":           true,
	"notify_stale_lead":         true,
	"notify_warm_reply":         true,
	"notify_inspection_request": true,
	"stale_lead_minutes":        true,
	"delivery_push":             true,
	"delivery_email":            true,
	"delivery_sms":              true,
	"price_template":            true,
}

// UpdateSettings applies whitelisted fields, creating the settings row on
// first write (upsert).
func (s *agentService) UpdateSettings(ctx context.Context, agentID primitive.ObjectID, updates map[string]interface{}) (*models.AgentSettings, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	for key, value := range updates {
		if !settingsAllowedFields[key] {
			continue
		}
		if key == "ai_mode" {
			mode, ok := value.(string)
			if !ok || !models.ValidAIMode(mode) {
				return nil, fmt.Errorf("invalid ai_mode value: %v", value)
			}
		}
		set[key] = value
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var settings models.AgentSettings
	err := s.db.Collection(agentSettingsCollection).FindOneAndUpdate(
		ctx,
		bson.M{"agent_id": agentID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"agent_id": agentID}},
		opts,
	).Decode(&settings)
	if err != nil {
		return nil, fmt.Errorf("error updating settings for agent %s: %w", agentID.Hex(), err)
	}
	if settings.AIMode == "" {
		settings.AIMode = s.defaultAIMode
	}
	return &settings, nil
}

// ListAgentIDs returns the ids of all registered agents.
func (s *agentService) ListAgentIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	cursor, err := s.db.Collection(agentsCollection).Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("error listing agents: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding agent ids: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
