package mail

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/ai"
	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/oauth"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// ScanResult summarizes one account's sweep.
type ScanResult struct {
	AccountID primitive.ObjectID `json:"account_id"`
	Processed int                `json:"processed"`
	Skipped   int                `json:"skipped"`
	Errors    []string           `json:"errors,omitempty"`
}

// Scanner drains monitored mailboxes into the enquiry pipeline. Accounts are
// isolated from each other: one broken mailbox never blocks the rest.
type Scanner struct {
	cfg        *config.Config
	accountSvc services.IAccountService
	agentSvc   services.IAgentService
	enquirySvc services.IEnquiryService
	ledger     services.ILedgerService
	classifier *ai.Classifier
	drafter    *ai.Drafter
	google     oauth.IGoogleOAuth
	newClient  func(host string, port int) (imapClient, error)
	now        func() time.Time
}

// NewScanner wires the scanner with its production IMAP dialer.
func NewScanner(
	cfg *config.Config,
	accountSvc services.IAccountService,
	agentSvc services.IAgentService,
	enquirySvc services.IEnquiryService,
	ledger services.ILedgerService,
	classifier *ai.Classifier,
	drafter *ai.Drafter,
	google oauth.IGoogleOAuth,
) *Scanner {
	s := &Scanner{
		cfg:        cfg,
		accountSvc: accountSvc,
		agentSvc:   agentSvc,
		enquirySvc: enquirySvc,
		ledger:     ledger,
		classifier: classifier,
		drafter:    drafter,
		google:     google,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.newClient = func(host string, port int) (imapClient, error) {
		return dialIMAP(host, port, cfg.ImapDialTimeout)
	}
	return s
}

// ScanAll sweeps every active mailbox. Per-account failures are recorded on
// the account and in the result, never returned.
func (s *Scanner) ScanAll(ctx context.Context) ([]ScanResult, error) {
	accounts, err := s.accountSvc.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.scanAccounts(ctx, accounts), nil
}

// ScanAgent sweeps only one agent's active mailboxes.
func (s *Scanner) ScanAgent(ctx context.Context, agentID primitive.ObjectID) ([]ScanResult, error) {
	accounts, err := s.accountSvc.ListActiveByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return s.scanAccounts(ctx, accounts), nil
}

func (s *Scanner) scanAccounts(ctx context.Context, accounts []models.EmailAccount) []ScanResult {
	results := make([]ScanResult, 0, len(accounts))
	for i := range accounts {
		account := &accounts[i]
		result := s.scanAccount(ctx, account)

		var scanErr error
		if len(result.Errors) > 0 {
			scanErr = fmt.Errorf("%s", strings.Join(result.Errors, "; "))
		}
		if err := s.accountSvc.UpdateScanState(ctx, account.ID, s.now(), scanErr); err != nil {
			log.Printf("Failed to update scan state for account %s: %v", account.ID.Hex(), err)
		}
		results = append(results, result)
	}
	return results
}

// scanAccount connects, fetches everything newer than the watermark and runs
// each message through the pipeline. Per-message failures are collected so one
// malformed email never stalls the mailbox.
func (s *Scanner) scanAccount(ctx context.Context, account *models.EmailAccount) ScanResult {
	result := ScanResult{AccountID: account.ID}

	emails, err := s.fetchSince(ctx, account, s.watermark(account))
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	for _, email := range emails {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			return result
		}
		// The mailbox owner's own messages are never enquiries.
		if strings.EqualFold(email.FromEmail, account.ImapUser) {
			result.Skipped++
			continue
		}
		seen, err := s.ledger.AlreadyProcessed(ctx, account.ID, email.LedgerMessageID())
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if seen {
			result.Skipped++
			continue
		}
		if err := s.processEmail(ctx, account, email); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("message %s: %v", email.LedgerMessageID(), err))
			continue
		}
		result.Processed++
	}
	return result
}

// watermark is the earliest delivery date worth fetching: the last successful
// scan, or a bounded lookback on a mailbox scanned for the first time.
func (s *Scanner) watermark(account *models.EmailAccount) time.Time {
	if account.LastScanAt != nil {
		return *account.LastScanAt
	}
	return s.now().Add(-s.cfg.ScanFirstLookback)
}

func (s *Scanner) fetchSince(ctx context.Context, account *models.EmailAccount, since time.Time) ([]*InboundEmail, error) {
	creds, err := s.accountSvc.Credentials(ctx, account)
	if err != nil {
		return nil, err
	}

	client, err := s.newClient(account.ImapHost, account.ImapPort)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("imap close error for account %s: %v", account.ID.Hex(), err)
		}
	}()

	if err := s.authenticate(ctx, client, account, creds); err != nil {
		return nil, fmt.Errorf("imap auth: %w", err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("imap select: %w", err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, s.logout(client)
	}

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	buffers, err := client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	emails := make([]*InboundEmail, 0, len(buffers))
	for _, buf := range buffers {
		raw := buf.FindBodySection(&imap.FetchItemBodySection{})
		if raw == nil {
			continue
		}
		email, err := ParseInbound(uint32(buf.UID), raw)
		if err != nil {
			log.Printf("Skipping unparseable message uid %d on account %s: %v", buf.UID, account.ID.Hex(), err)
			continue
		}
		emails = append(emails, email)
	}

	return emails, s.logout(client)
}

func (s *Scanner) authenticate(ctx context.Context, client imapClient, account *models.EmailAccount, creds *services.AccountCredentials) error {
	if account.AuthMethod == models.AuthOAuth {
		accessToken, err := s.google.RefreshAccessToken(ctx, creds.OAuthRefreshToken)
		if err != nil {
			return fmt.Errorf("oauth refresh: %w", err)
		}
		return client.Authenticate(newXOAuth2Client(account.ImapUser, accessToken))
	}
	return client.Login(account.ImapUser, creds.ImapPassword).Wait()
}

func (s *Scanner) logout(client imapClient) error {
	if err := client.Logout().Wait(); err != nil {
		log.Printf("imap logout error: %v", err)
	}
	return nil
}

// processEmail routes one message: replies join their thread via the ledger,
// everything else becomes a new enquiry. The ledger entry is written last so
// a mid-pipeline crash leads to a retry, not a lost email.
func (s *Scanner) processEmail(ctx context.Context, account *models.EmailAccount, email *InboundEmail) error {
	threadKey := email.ThreadKey()

	var enquiryID primitive.ObjectID
	if threadKey != "" {
		existingID, found, err := s.ledger.FindThreadEnquiry(ctx, account.ID, threadKey)
		if err != nil {
			return err
		}
		if found {
			if err := s.processReply(ctx, account, email, existingID); err != nil {
				return err
			}
			enquiryID = existingID
		}
	}

	if enquiryID.IsZero() {
		newID, err := s.processNew(ctx, account, email)
		if err != nil {
			return err
		}
		enquiryID = newID
	}

	// Thread id falls back to the message's own id so later replies that
	// reference this message resolve to the same enquiry.
	threadID := threadKey
	if threadID == "" {
		threadID = email.LedgerMessageID()
	}
	return s.ledger.Record(ctx, models.ProcessedEmail{
		EmailAccountID:  account.ID,
		MessageIDHeader: email.LedgerMessageID(),
		UID:             email.UID,
		ThreadID:        threadID,
		EnquiryID:       enquiryID,
		FromEmail:       email.FromEmail,
		Subject:         email.Subject,
		ProcessedAt:     s.now(),
	})
}

func (s *Scanner) processNew(ctx context.Context, account *models.EmailAccount, email *InboundEmail) (primitive.ObjectID, error) {
	classification := s.classifier.Classify(ctx, email.Body, nil)
	draft, draftErr := s.draft(ctx, account.AgentID, email.Body, nil)

	result, err := s.enquirySvc.ProcessNewEnquiry(ctx, services.NewEnquiryInput{
		AgentID:     account.AgentID,
		ClientName:  email.FromName,
		ClientEmail: email.FromEmail,
		Subject:     email.Subject,
		Body:        email.Body,
		Category:    classification.Category,
		Source:      "email",
		AIDraft:     draft,
	})
	if err != nil {
		return primitive.NilObjectID, err
	}
	if draftErr != nil {
		return primitive.NilObjectID, fmt.Errorf("ai draft: %w", draftErr)
	}
	return result.EnquiryID, nil
}

func (s *Scanner) processReply(ctx context.Context, account *models.EmailAccount, email *InboundEmail, enquiryID primitive.ObjectID) error {
	history, err := s.enquirySvc.ThreadHistory(ctx, enquiryID, s.cfg.ThreadHistoryLimit)
	if err != nil {
		return err
	}

	classification := s.classifier.Classify(ctx, email.Body, history)
	draft, draftErr := s.draft(ctx, account.AgentID, email.Body, history)

	_, err = s.enquirySvc.ProcessUpdate(ctx, services.EnquiryUpdateInput{
		EnquiryID:           enquiryID,
		Sender:              models.SenderClient,
		Content:             email.Body,
		AIDraft:             draft,
		IsInspectionRequest: classification.IsInspectionRequest,
		IsOfferIntent:       classification.IsOfferIntent,
	})
	if err != nil {
		return err
	}
	if draftErr != nil {
		return fmt.Errorf("ai draft: %w", draftErr)
	}
	return nil
}

// draft asks the AI for a reply. A failure is returned alongside the empty
// draft: the caller ingests the inbound message first, then surfaces the
// fault in the sweep's per-message error list. Since the ledger entry is
// skipped on error, the next sweep retries the draft.
func (s *Scanner) draft(ctx context.Context, agentID primitive.ObjectID, body string, history []string) (string, error) {
	agentName := ""
	if agent, err := s.agentSvc.FindByID(ctx, agentID); err == nil {
		agentName = agent.FullName
	}
	return s.drafter.DraftReply(ctx, body, history, agentName, "", "")
}
