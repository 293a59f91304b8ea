package handlers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/api/middleware"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// asAgent fakes AuthMiddleware for tests by seeding the context directly.
func asAgent(agentID primitive.ObjectID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyAgentID, agentID.Hex())
		c.Next()
	}
}

// --- Mocks ---

// MockEnquiryService
type MockEnquiryService struct {
	mock.Mock
}

func (m *MockEnquiryService) ProcessNewEnquiry(ctx context.Context, input services.NewEnquiryInput) (*services.NewEnquiryResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.NewEnquiryResult), args.Error(1)
}

func (m *MockEnquiryService) ProcessUpdate(ctx context.Context, input services.EnquiryUpdateInput) (*services.EnquiryUpdateResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EnquiryUpdateResult), args.Error(1)
}

func (m *MockEnquiryService) ListEnquiries(ctx context.Context, agentID primitive.ObjectID, status models.EnquiryStatus) ([]services.EnquiryThread, error) {
	args := m.Called(ctx, agentID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.EnquiryThread), args.Error(1)
}

func (m *MockEnquiryService) GetEnquiry(ctx context.Context, agentID, enquiryID primitive.ObjectID) (*services.EnquiryThread, error) {
	args := m.Called(ctx, agentID, enquiryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EnquiryThread), args.Error(1)
}

func (m *MockEnquiryService) Thread(ctx context.Context, enquiryID primitive.ObjectID) (*services.EnquiryThread, error) {
	args := m.Called(ctx, enquiryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EnquiryThread), args.Error(1)
}

func (m *MockEnquiryService) MarkRead(ctx context.Context, agentID, enquiryID primitive.ObjectID) error {
	args := m.Called(ctx, agentID, enquiryID)
	return args.Error(0)
}

func (m *MockEnquiryService) ThreadHistory(ctx context.Context, enquiryID primitive.ObjectID, limit int) ([]string, error) {
	args := m.Called(ctx, enquiryID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockEnquiryService) Stats(ctx context.Context, agentID primitive.ObjectID) (*services.InboxStats, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.InboxStats), args.Error(1)
}

func (m *MockEnquiryService) FindStale(ctx context.Context, agentID primitive.ObjectID, cutoff time.Time) ([]models.Enquiry, error) {
	args := m.Called(ctx, agentID, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Enquiry), args.Error(1)
}

func (m *MockEnquiryService) MarkStaleNotified(ctx context.Context, enquiryID primitive.ObjectID) error {
	args := m.Called(ctx, enquiryID)
	return args.Error(0)
}

// MockMessageService
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) ListByEnquiry(ctx context.Context, agentID, enquiryID primitive.ObjectID) ([]models.Message, error) {
	args := m.Called(ctx, agentID, enquiryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockMessageService) AppendAgentMessage(ctx context.Context, agentID, enquiryID primitive.ObjectID, content string) (*models.Message, error) {
	args := m.Called(ctx, agentID, enquiryID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) EditDraft(ctx context.Context, agentID, messageID primitive.ObjectID, content string) (*models.Message, error) {
	args := m.Called(ctx, agentID, messageID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) ApproveDraft(ctx context.Context, agentID, messageID primitive.ObjectID) (*models.Message, error) {
	args := m.Called(ctx, agentID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) FindByID(ctx context.Context, messageID primitive.ObjectID) (*models.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) MarkDeliveryFailed(ctx context.Context, messageID primitive.ObjectID) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

// MockAgentService
type MockAgentService struct {
	mock.Mock
}

func (m *MockAgentService) FindByEmail(ctx context.Context, email string) (*models.Agent, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentService) FindByID(ctx context.Context, agentID primitive.ObjectID) (*models.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentService) Authenticate(ctx context.Context, email, password string) (*models.Agent, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentService) GetSettings(ctx context.Context, agentID primitive.ObjectID) (*models.AgentSettings, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentSettings), args.Error(1)
}

func (m *MockAgentService) UpdateSettings(ctx context.Context, agentID primitive.ObjectID, updates map[string]interface{}) (*models.AgentSettings, error) {
	args := m.Called(ctx, agentID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentSettings), args.Error(1)
}

func (m *MockAgentService) ListAgentIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]primitive.ObjectID), args.Error(1)
}

// MockNotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Notify(ctx context.Context, agentID, enquiryID primitive.ObjectID, typ models.NotificationType, title, body string) error {
	args := m.Called(ctx, agentID, enquiryID, typ, title, body)
	return args.Error(0)
}

func (m *MockNotificationService) List(ctx context.Context, agentID primitive.ObjectID) ([]models.Notification, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, agentID, notificationID primitive.ObjectID) (*models.Notification, error) {
	args := m.Called(ctx, agentID, notificationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, agentID primitive.ObjectID) error {
	args := m.Called(ctx, agentID)
	return args.Error(0)
}

// MockAccountService
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Create(ctx context.Context, input services.NewAccountInput) (*models.EmailAccount, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailAccount), args.Error(1)
}

func (m *MockAccountService) FindByID(ctx context.Context, accountID primitive.ObjectID) (*models.EmailAccount, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailAccount), args.Error(1)
}

func (m *MockAccountService) ListByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EmailAccount, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EmailAccount), args.Error(1)
}

func (m *MockAccountService) ListActive(ctx context.Context) ([]models.EmailAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EmailAccount), args.Error(1)
}

func (m *MockAccountService) ListActiveByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EmailAccount, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EmailAccount), args.Error(1)
}

func (m *MockAccountService) Credentials(ctx context.Context, account *models.EmailAccount) (*services.AccountCredentials, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AccountCredentials), args.Error(1)
}

func (m *MockAccountService) SetActive(ctx context.Context, agentID, accountID primitive.ObjectID, active bool) error {
	args := m.Called(ctx, agentID, accountID, active)
	return args.Error(0)
}

func (m *MockAccountService) Delete(ctx context.Context, agentID, accountID primitive.ObjectID) error {
	args := m.Called(ctx, agentID, accountID)
	return args.Error(0)
}

func (m *MockAccountService) UpdateScanState(ctx context.Context, accountID primitive.ObjectID, scannedAt time.Time, scanErr error) error {
	args := m.Called(ctx, accountID, scannedAt, scanErr)
	return args.Error(0)
}

// MockDispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) EnqueueGlobalScan() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDispatcher) EnqueueAgentScan(agentID primitive.ObjectID) error {
	args := m.Called(agentID)
	return args.Error(0)
}
