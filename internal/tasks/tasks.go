package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/email"
	"github.com/enhub-AU/enquiry-partner/internal/mail"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// Task types.
const (
	TypeMailScan       = "mail:scan"
	TypeMailScanAgent  = "mail:scan:agent"
	TypeReplyDeliver   = "reply:deliver"
	TypeStaleLeadCheck = "lead:stale:check"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// Dispatcher enqueues delivery tasks from the services layer without the
// services importing asynq.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// EnqueueReplyDelivery queues an approved reply for outbound delivery.
func (d *Dispatcher) EnqueueReplyDelivery(messageID primitive.ObjectID) error {
	payload, err := json.Marshal(ReplyDeliveryPayload{MessageID: messageID.Hex()})
	if err != nil {
		return fmt.Errorf("failed to marshal reply delivery payload: %w", err)
	}
	_, err = d.client.Enqueue(asynq.NewTask(TypeReplyDeliver, payload), asynq.Queue("critical"))
	return err
}

// EnqueueGlobalScan queues a sweep of every active mailbox.
func (d *Dispatcher) EnqueueGlobalScan() error {
	_, err := d.client.Enqueue(asynq.NewTask(TypeMailScan, nil), asynq.Queue("default"))
	return err
}

// EnqueueAgentScan queues an on-demand mailbox sweep for one agent.
func (d *Dispatcher) EnqueueAgentScan(agentID primitive.ObjectID) error {
	payload, err := json.Marshal(AgentScanPayload{AgentID: agentID.Hex()})
	if err != nil {
		return fmt.Errorf("failed to marshal agent scan payload: %w", err)
	}
	_, err = d.client.Enqueue(asynq.NewTask(TypeMailScanAgent, payload), asynq.Queue("default"))
	return err
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg             *config.Config
	scanner         *mail.Scanner
	fallbackSender  email.Sender
	agentService    services.IAgentService
	accountService  services.IAccountService
	enquiryService  services.IEnquiryService
	messageService  services.IMessageService
	notificationSvc services.INotificationService
	ledger          services.ILedgerService
}

func NewTaskProcessor(
	cfg *config.Config,
	scanner *mail.Scanner,
	fallbackSender email.Sender,
	agentService services.IAgentService,
	accountService services.IAccountService,
	enquiryService services.IEnquiryService,
	messageService services.IMessageService,
	notificationSvc services.INotificationService,
	ledger services.ILedgerService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		scanner:         scanner,
		fallbackSender:  fallbackSender,
		agentService:    agentService,
		accountService:  accountService,
		enquiryService:  enquiryService,
		messageService:  messageService,
		notificationSvc: notificationSvc,
		ledger:          ledger,
	}
}

// SetupServer configures and returns an Asynq server instance.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMailScan, processor.HandleMailScanTask)
	mux.HandleFunc(TypeMailScanAgent, processor.HandleAgentScanTask)
	mux.HandleFunc(TypeReplyDeliver, processor.HandleReplyDeliveryTask)
	mux.HandleFunc(TypeStaleLeadCheck, processor.HandleStaleLeadCheckTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Could not run Asynq server: %v", err)
		}
	}()

	return srv
}

// SetupScheduler registers the periodic sweeps: the global mailbox scan and
// the stale lead check.
func SetupScheduler(rdb *redis.Client, cfg *config.Config) *asynq.Scheduler {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		nil,
	)

	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", cfg.ScanInterval),
		asynq.NewTask(TypeMailScan, nil),
		asynq.Queue("default"),
	); err != nil {
		log.Fatalf("Could not register mail scan schedule: %v", err)
	}

	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", cfg.StaleCheckInterval),
		asynq.NewTask(TypeStaleLeadCheck, nil),
		asynq.Queue("low"),
	); err != nil {
		log.Fatalf("Could not register stale lead check schedule: %v", err)
	}

	return scheduler
}

// --- Task Handlers ---

// HandleMailScanTask sweeps every active mailbox.
func (p *TaskProcessor) HandleMailScanTask(ctx context.Context, t *asynq.Task) error {
	results, err := p.scanner.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("mail scan failed: %w", err)
	}
	logScanResults(results)
	return nil
}

// AgentScanPayload identifies the agent whose mailboxes to sweep.
type AgentScanPayload struct {
	AgentID string `json:"agent_id"`
}

// HandleAgentScanTask sweeps one agent's active mailboxes.
func (p *TaskProcessor) HandleAgentScanTask(ctx context.Context, t *asynq.Task) error {
	var payload AgentScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal agent scan payload: %v: %w", err, asynq.SkipRetry)
	}
	agentID, err := primitive.ObjectIDFromHex(payload.AgentID)
	if err != nil {
		return fmt.Errorf("invalid agent id in scan payload: %w", asynq.SkipRetry)
	}

	results, err := p.scanner.ScanAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("agent mail scan failed: %w", err)
	}
	logScanResults(results)
	return nil
}

func logScanResults(results []mail.ScanResult) {
	for _, r := range results {
		if len(r.Errors) > 0 {
			log.Printf("Scanned account %s: %d processed, %d skipped, errors: %v",
				r.AccountID.Hex(), r.Processed, r.Skipped, r.Errors)
			continue
		}
		log.Printf("Scanned account %s: %d processed, %d skipped", r.AccountID.Hex(), r.Processed, r.Skipped)
	}
}

// ReplyDeliveryPayload identifies the approved message to deliver.
type ReplyDeliveryPayload struct {
	MessageID string `json:"message_id"`
}

// HandleReplyDeliveryTask sends an approved reply back to the client over the
// agent mailbox's SMTP settings, falling back to the global relay.
func (p *TaskProcessor) HandleReplyDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload ReplyDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal reply delivery payload: %v: %w", err, asynq.SkipRetry)
	}
	messageID, err := primitive.ObjectIDFromHex(payload.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message id in delivery payload: %w", asynq.SkipRetry)
	}

	message, err := p.messageService.FindByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("reply delivery: %v: %w", err, asynq.SkipRetry)
	}
	if message.Status != models.MessageStatusSent {
		log.Printf("Skipping delivery of message %s in status %s", messageID.Hex(), message.Status)
		return nil
	}

	thread, err := p.enquiryService.Thread(ctx, message.EnquiryID)
	if err != nil {
		return fmt.Errorf("reply delivery: %v: %w", err, asynq.SkipRetry)
	}
	if thread.Contact == nil || thread.Contact.Email == "" {
		log.Printf("Enquiry %s has no contact email, skipping delivery", message.EnquiryID.Hex())
		return nil
	}

	sender, from := p.senderForAgent(ctx, thread.Enquiry.AgentID)

	headers := email.ReplyHeaders{
		From:    from,
		To:      thread.Contact.Email,
		Subject: thread.Enquiry.Subject,
	}
	if entry, err := p.ledger.LastForEnquiry(ctx, message.EnquiryID); err == nil && entry != nil && entry.MessageIDHeader != "" {
		headers.InReplyTo = entry.MessageIDHeader
		if entry.ThreadID != "" && entry.ThreadID != entry.MessageIDHeader {
			headers.References = []string{entry.ThreadID, entry.MessageIDHeader}
		} else {
			headers.References = []string{entry.MessageIDHeader}
		}
	}

	subject, raw := email.BuildReply(headers, message.Content)
	if err := sender.Send(ctx, []string{thread.Contact.Email}, subject, raw); err != nil {
		if markErr := p.messageService.MarkDeliveryFailed(ctx, messageID); markErr != nil {
			log.Printf("Failed to flag message %s as failed: %v", messageID.Hex(), markErr)
		}
		return fmt.Errorf("reply delivery failed: %w", err)
	}

	log.Printf("Delivered reply %s to %s", messageID.Hex(), thread.Contact.Email)
	return nil
}

// senderForAgent prefers the SMTP settings of the agent's own mailbox so
// replies come from the address the client wrote to.
func (p *TaskProcessor) senderForAgent(ctx context.Context, agentID primitive.ObjectID) (email.Sender, string) {
	accounts, err := p.accountService.ListActiveByAgent(ctx, agentID)
	if err != nil {
		log.Printf("Falling back to global SMTP for agent %s: %v", agentID.Hex(), err)
		return p.fallbackSender, p.cfg.SmtpFromAddress
	}
	for i := range accounts {
		account := &accounts[i]
		if account.SmtpHost == "" {
			continue
		}
		creds, err := p.accountService.Credentials(ctx, account)
		if err != nil {
			log.Printf("Could not decrypt SMTP credentials for account %s: %v", account.ID.Hex(), err)
			continue
		}
		smtpUser := account.SmtpUser
		if smtpUser == "" {
			smtpUser = account.ImapUser
		}
		password := creds.SmtpPassword
		if password == "" {
			password = creds.ImapPassword
		}
		from := account.ImapUser
		return email.NewSMTPSender(account.SmtpHost, account.SmtpPort, smtpUser, password, from), from
	}
	return p.fallbackSender, p.cfg.SmtpFromAddress
}

var timeNow = func() time.Time { return time.Now().UTC() }

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// HandleStaleLeadCheckTask alerts agents about leads with no activity beyond
// their configured staleness window. Each lead alerts at most once.
func (p *TaskProcessor) HandleStaleLeadCheckTask(ctx context.Context, t *asynq.Task) error {
	agentIDs, err := p.agentService.ListAgentIDs(ctx)
	if err != nil {
		return fmt.Errorf("stale lead check: %w", err)
	}

	for _, agentID := range agentIDs {
		settings, err := p.agentService.GetSettings(ctx, agentID)
		if err != nil {
			log.Printf("Stale check: could not load settings for agent %s: %v", agentID.Hex(), err)
			continue
		}
		if !settings.NotifyStaleLead || settings.StaleLeadMinutes <= 0 {
			continue
		}

		cutoff := timeNow().Add(-minutes(settings.StaleLeadMinutes))
		stale, err := p.enquiryService.FindStale(ctx, agentID, cutoff)
		if err != nil {
			log.Printf("Stale check failed for agent %s: %v", agentID.Hex(), err)
			continue
		}

		for _, enquiry := range stale {
			body := fmt.Sprintf("No reply to %q for over %d minutes", enquiry.Subject, settings.StaleLeadMinutes)
			if err := p.notificationSvc.Notify(ctx, agentID, enquiry.ID, models.NotificationStaleLead, "Lead going cold", body); err != nil {
				log.Printf("Failed to emit stale notification for enquiry %s: %v", enquiry.ID.Hex(), err)
				continue
			}
			if err := p.enquiryService.MarkStaleNotified(ctx, enquiry.ID); err != nil {
				log.Printf("Failed to mark enquiry %s stale-notified: %v", enquiry.ID.Hex(), err)
			}
		}
	}
	return nil
}
