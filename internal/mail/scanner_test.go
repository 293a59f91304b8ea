package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/ai"
	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

type fakeIMAPClient struct {
	uids   []imap.UID
	bodies map[imap.UID][]byte

	dialErr   error
	loginErr  error
	selectErr error

	lastSearch  *imap.SearchCriteria
	logoutCalls int
	authedSASL  bool
}

func (c *fakeIMAPClient) Login(_, _ string) commandWaiter { return &fakeCommand{err: c.loginErr} }
func (c *fakeIMAPClient) Authenticate(_ sasl.Client) error {
	c.authedSASL = true
	return c.loginErr
}
func (c *fakeIMAPClient) Logout() commandWaiter {
	c.logoutCalls++
	return &fakeCommand{}
}
func (c *fakeIMAPClient) Close() error { return nil }
func (c *fakeIMAPClient) Select(_ string, _ *imap.SelectOptions) selectWaiter {
	return &fakeSelect{err: c.selectErr}
}
func (c *fakeIMAPClient) UIDSearch(criteria *imap.SearchCriteria, _ *imap.SearchOptions) searchWaiter {
	c.lastSearch = criteria
	return &fakeSearch{data: &imap.SearchData{All: imap.UIDSetNum(c.uids...)}}
}
func (c *fakeIMAPClient) Fetch(_ imap.NumSet, _ *imap.FetchOptions) fetchWaiter {
	var bufs []*imapclient.FetchMessageBuffer
	for _, uid := range c.uids {
		bufs = append(bufs, &imapclient.FetchMessageBuffer{
			SeqNum: uint32(uid),
			UID:    uid,
			BodySection: []imapclient.FetchBodySectionBuffer{{
				Section: &imap.FetchItemBodySection{},
				Bytes:   append([]byte(nil), c.bodies[uid]...),
			}},
		})
	}
	return &fakeFetch{bufs: bufs}
}

type fakeCommand struct{ err error }

func (c *fakeCommand) Wait() error { return c.err }

type fakeSelect struct{ err error }

func (s *fakeSelect) Wait() (*imap.SelectData, error) { return nil, s.err }

type fakeSearch struct{ data *imap.SearchData }

func (s *fakeSearch) Wait() (*imap.SearchData, error) { return s.data, nil }

type fakeFetch struct{ bufs []*imapclient.FetchMessageBuffer }

func (f *fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.bufs, nil }
func (f *fakeFetch) Close() error                                       { return nil }

type scanState struct {
	scannedAt time.Time
	err       error
}

type fakeAccountService struct {
	accounts []models.EmailAccount
	states   map[primitive.ObjectID]scanState
}

func (f *fakeAccountService) Create(context.Context, services.NewAccountInput) (*models.EmailAccount, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAccountService) FindByID(context.Context, primitive.ObjectID) (*models.EmailAccount, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAccountService) ListByAgent(context.Context, primitive.ObjectID) ([]models.EmailAccount, error) {
	return f.accounts, nil
}
func (f *fakeAccountService) ListActive(context.Context) ([]models.EmailAccount, error) {
	return f.accounts, nil
}
func (f *fakeAccountService) ListActiveByAgent(context.Context, primitive.ObjectID) ([]models.EmailAccount, error) {
	return f.accounts, nil
}
func (f *fakeAccountService) Credentials(context.Context, *models.EmailAccount) (*services.AccountCredentials, error) {
	return &services.AccountCredentials{ImapPassword: "pw", OAuthRefreshToken: "rt"}, nil
}
func (f *fakeAccountService) SetActive(context.Context, primitive.ObjectID, primitive.ObjectID, bool) error {
	return nil
}
func (f *fakeAccountService) Delete(context.Context, primitive.ObjectID, primitive.ObjectID) error {
	return nil
}
func (f *fakeAccountService) UpdateScanState(_ context.Context, accountID primitive.ObjectID, scannedAt time.Time, scanErr error) error {
	if f.states == nil {
		f.states = map[primitive.ObjectID]scanState{}
	}
	f.states[accountID] = scanState{scannedAt: scannedAt, err: scanErr}
	return nil
}

type fakeAgentService struct{ agent models.Agent }

func (f *fakeAgentService) FindByEmail(context.Context, string) (*models.Agent, error) {
	return &f.agent, nil
}
func (f *fakeAgentService) FindByID(context.Context, primitive.ObjectID) (*models.Agent, error) {
	return &f.agent, nil
}
func (f *fakeAgentService) Authenticate(context.Context, string, string) (*models.Agent, error) {
	return &f.agent, nil
}
func (f *fakeAgentService) GetSettings(_ context.Context, agentID primitive.ObjectID) (*models.AgentSettings, error) {
	return models.DefaultAgentSettings(agentID), nil
}
func (f *fakeAgentService) UpdateSettings(context.Context, primitive.ObjectID, map[string]interface{}) (*models.AgentSettings, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAgentService) ListAgentIDs(context.Context) ([]primitive.ObjectID, error) {
	return []primitive.ObjectID{f.agent.ID}, nil
}

type fakeEnquiryService struct {
	newInputs    []services.NewEnquiryInput
	updateInputs []services.EnquiryUpdateInput
	newID        primitive.ObjectID
}

func (f *fakeEnquiryService) ProcessNewEnquiry(_ context.Context, input services.NewEnquiryInput) (*services.NewEnquiryResult, error) {
	f.newInputs = append(f.newInputs, input)
	return &services.NewEnquiryResult{EnquiryID: f.newID, Status: models.StatusNew}, nil
}
func (f *fakeEnquiryService) ProcessUpdate(_ context.Context, input services.EnquiryUpdateInput) (*services.EnquiryUpdateResult, error) {
	f.updateInputs = append(f.updateInputs, input)
	return &services.EnquiryUpdateResult{EnquiryID: input.EnquiryID}, nil
}
func (f *fakeEnquiryService) ListEnquiries(context.Context, primitive.ObjectID, models.EnquiryStatus) ([]services.EnquiryThread, error) {
	return nil, nil
}
func (f *fakeEnquiryService) GetEnquiry(context.Context, primitive.ObjectID, primitive.ObjectID) (*services.EnquiryThread, error) {
	return nil, services.ErrEnquiryNotFound
}
func (f *fakeEnquiryService) Thread(context.Context, primitive.ObjectID) (*services.EnquiryThread, error) {
	return nil, services.ErrEnquiryNotFound
}
func (f *fakeEnquiryService) MarkRead(context.Context, primitive.ObjectID, primitive.ObjectID) error {
	return nil
}
func (f *fakeEnquiryService) ThreadHistory(context.Context, primitive.ObjectID, int) ([]string, error) {
	return []string{"[client]: first message"}, nil
}
func (f *fakeEnquiryService) Stats(context.Context, primitive.ObjectID) (*services.InboxStats, error) {
	return &services.InboxStats{}, nil
}
func (f *fakeEnquiryService) FindStale(context.Context, primitive.ObjectID, time.Time) ([]models.Enquiry, error) {
	return nil, nil
}
func (f *fakeEnquiryService) MarkStaleNotified(context.Context, primitive.ObjectID) error {
	return nil
}

type fakeLedger struct {
	processed map[string]bool
	threads   map[string]primitive.ObjectID
	records   []models.ProcessedEmail
}

func (f *fakeLedger) AlreadyProcessed(_ context.Context, _ primitive.ObjectID, messageID string) (bool, error) {
	return f.processed[messageID], nil
}
func (f *fakeLedger) FindThreadEnquiry(_ context.Context, _ primitive.ObjectID, threadID string) (primitive.ObjectID, bool, error) {
	id, ok := f.threads[threadID]
	return id, ok, nil
}
func (f *fakeLedger) Record(_ context.Context, entry models.ProcessedEmail) error {
	f.records = append(f.records, entry)
	return nil
}
func (f *fakeLedger) LastForEnquiry(context.Context, primitive.ObjectID) (*models.ProcessedEmail, error) {
	return nil, nil
}

type fakeOAuth struct{ refreshed bool }

func (f *fakeOAuth) AuthURL(string) (string, error) { return "", nil }
func (f *fakeOAuth) ExchangeCode(context.Context, string) (string, string, error) {
	return "", "", nil
}
func (f *fakeOAuth) RefreshAccessToken(context.Context, string) (string, error) {
	f.refreshed = true
	return "access-token", nil
}
func (f *fakeOAuth) FetchEmail(context.Context, string) (string, error) { return "", nil }

type stubGenerator struct {
	response string
	err      error
}

func (g *stubGenerator) Generate(context.Context, string, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type scannerFixture struct {
	scanner  *Scanner
	accounts *fakeAccountService
	enquiry  *fakeEnquiryService
	ledger   *fakeLedger
	oauth    *fakeOAuth
	client   *fakeIMAPClient
	gen      *stubGenerator
	now      time.Time
}

func newScannerFixture(t *testing.T, account models.EmailAccount, client *fakeIMAPClient) *scannerFixture {
	t.Helper()
	cfg := &config.Config{
		ThreadHistoryLimit: 10,
		ScanFirstLookback:  24 * time.Hour,
		ImapDialTimeout:    5 * time.Second,
	}
	generator := &stubGenerator{
		response: `{"category":"price_only","temperature":"warm","isInspectionRequest":false,"isOfferIntent":false}`,
	}
	fx := &scannerFixture{
		accounts: &fakeAccountService{accounts: []models.EmailAccount{account}},
		enquiry:  &fakeEnquiryService{newID: primitive.NewObjectID()},
		ledger:   &fakeLedger{processed: map[string]bool{}, threads: map[string]primitive.ObjectID{}},
		oauth:    &fakeOAuth{},
		client:   client,
		gen:      generator,
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.scanner = NewScanner(
		cfg,
		fx.accounts,
		&fakeAgentService{agent: models.Agent{ID: account.AgentID, FullName: "Alex Agent"}},
		fx.enquiry,
		fx.ledger,
		ai.NewClassifier(generator),
		ai.NewDrafter(generator),
		fx.oauth,
	)
	fx.scanner.now = func() time.Time { return fx.now }
	fx.scanner.newClient = func(string, int) (imapClient, error) {
		if client.dialErr != nil {
			return nil, client.dialErr
		}
		return client, nil
	}
	return fx
}

func testAccount() models.EmailAccount {
	return models.EmailAccount{
		ID:         primitive.NewObjectID(),
		AgentID:    primitive.NewObjectID(),
		ImapHost:   "imap.example.com",
		ImapUser:   "agent@example.com",
		AuthMethod: models.AuthPassword,
		IsActive:   true,
	}
}

func TestScannerCreatesEnquiryFromNewEmail(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []imap.UID{5},
		bodies: map[imap.UID][]byte{
			5: rawMessage(map[string]string{
				"From":       "Jane Buyer <jane@example.com>",
				"Subject":    "Price for 12 Ocean St?",
				"Message-Id": "<m1@x>",
			}, "What is the price guide?"),
		},
	}
	fx := newScannerFixture(t, testAccount(), client)

	results, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Processed)
	assert.Empty(t, results[0].Errors)

	require.Len(t, fx.enquiry.newInputs, 1)
	input := fx.enquiry.newInputs[0]
	assert.Equal(t, "jane@example.com", input.ClientEmail)
	assert.Equal(t, "Jane Buyer", input.ClientName)
	assert.Equal(t, models.CategoryPriceOnly, input.Category)
	assert.NotEmpty(t, input.AIDraft)

	require.Len(t, fx.ledger.records, 1)
	record := fx.ledger.records[0]
	assert.Equal(t, "<m1@x>", record.MessageIDHeader)
	assert.Equal(t, "<m1@x>", record.ThreadID)
	assert.Equal(t, fx.enquiry.newID, record.EnquiryID)
}

func TestScannerRoutesReplyToExistingThread(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []imap.UID{6},
		bodies: map[imap.UID][]byte{
			6: rawMessage(map[string]string{
				"From":       "Jane Buyer <jane@example.com>",
				"Subject":    "Re: Price for 12 Ocean St?",
				"Message-Id": "<m2@x>",
				"References": "<m1@x>",
			}, "Can I inspect on Saturday?"),
		},
	}
	fx := newScannerFixture(t, testAccount(), client)
	existingID := primitive.NewObjectID()
	fx.ledger.threads["<m1@x>"] = existingID

	results, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Processed)

	assert.Empty(t, fx.enquiry.newInputs)
	require.Len(t, fx.enquiry.updateInputs, 1)
	assert.Equal(t, existingID, fx.enquiry.updateInputs[0].EnquiryID)

	require.Len(t, fx.ledger.records, 1)
	assert.Equal(t, "<m1@x>", fx.ledger.records[0].ThreadID)
	assert.Equal(t, existingID, fx.ledger.records[0].EnquiryID)
}

func TestScannerSkipsProcessedAndOwnMail(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []imap.UID{7, 8},
		bodies: map[imap.UID][]byte{
			7: rawMessage(map[string]string{
				"From":       "Jane Buyer <jane@example.com>",
				"Message-Id": "<seen@x>",
			}, "already handled"),
			8: rawMessage(map[string]string{
				"From":       "Alex Agent <agent@example.com>",
				"Message-Id": "<own@x>",
			}, "my own sent mail"),
		},
	}
	fx := newScannerFixture(t, testAccount(), client)
	fx.ledger.processed["<seen@x>"] = true

	results, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].Processed)
	assert.Equal(t, 2, results[0].Skipped)
	assert.Empty(t, fx.enquiry.newInputs)
	assert.Empty(t, fx.ledger.records)
}

func TestScannerFirstScanUsesLookbackWindow(t *testing.T) {
	client := &fakeIMAPClient{}
	fx := newScannerFixture(t, testAccount(), client)

	_, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)

	require.NotNil(t, client.lastSearch)
	assert.Equal(t, fx.now.Add(-24*time.Hour), client.lastSearch.Since)
}

func TestScannerResumesFromWatermark(t *testing.T) {
	client := &fakeIMAPClient{}
	account := testAccount()
	last := time.Date(2025, 5, 31, 9, 0, 0, 0, time.UTC)
	account.LastScanAt = &last
	fx := newScannerFixture(t, account, client)

	_, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)

	require.NotNil(t, client.lastSearch)
	assert.Equal(t, last, client.lastSearch.Since)

	state := fx.accounts.states[account.ID]
	assert.Equal(t, fx.now, state.scannedAt)
	assert.NoError(t, state.err)
}

func TestScannerRecordsAccountFailureWithoutAborting(t *testing.T) {
	client := &fakeIMAPClient{dialErr: errors.New("connection refused")}
	account := testAccount()
	fx := newScannerFixture(t, account, client)

	results, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Errors, 1)
	assert.Contains(t, results[0].Errors[0], "imap connect")

	state := fx.accounts.states[account.ID]
	require.Error(t, state.err)
}

func TestScannerReportsDraftFailureAfterIngesting(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []imap.UID{9},
		bodies: map[imap.UID][]byte{
			9: rawMessage(map[string]string{
				"From":       "Jane Buyer <jane@example.com>",
				"Subject":    "Price for 12 Ocean St?",
				"Message-Id": "<m9@x>",
			}, "What is the price guide?"),
		},
	}
	fx := newScannerFixture(t, testAccount(), client)
	fx.gen.err = errors.New("model offline")

	results, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The inbound message is still ingested, without a draft.
	require.Len(t, fx.enquiry.newInputs, 1)
	assert.Empty(t, fx.enquiry.newInputs[0].AIDraft)

	// The fault surfaces in the per-message error list, the message does not
	// count as processed and no ledger entry is written so the next sweep
	// retries the draft.
	assert.Equal(t, 0, results[0].Processed)
	require.Len(t, results[0].Errors, 1)
	assert.Contains(t, results[0].Errors[0], "ai draft")
	assert.Empty(t, fx.ledger.records)
}

func TestScannerUsesXOAuth2ForOAuthAccounts(t *testing.T) {
	client := &fakeIMAPClient{}
	account := testAccount()
	account.AuthMethod = models.AuthOAuth
	fx := newScannerFixture(t, account, client)

	_, err := fx.scanner.ScanAll(context.Background())
	require.NoError(t, err)

	assert.True(t, fx.oauth.refreshed)
	assert.True(t, client.authedSASL)
}
