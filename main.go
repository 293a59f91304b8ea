package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/enhub-AU/enquiry-partner/internal/ai"
	"github.com/enhub-AU/enquiry-partner/internal/api"
	"github.com/enhub-AU/enquiry-partner/internal/cache"
	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/db"
	"github.com/enhub-AU/enquiry-partner/internal/email"
	"github.com/enhub-AU/enquiry-partner/internal/mail"
	"github.com/enhub-AU/enquiry-partner/internal/oauth"
	"github.com/enhub-AU/enquiry-partner/internal/secure"
	"github.com/enhub-AU/enquiry-partner/internal/services"
	"github.com/enhub-AU/enquiry-partner/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background workers), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := ensureIndexes(context.Background(), mongoDb); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Mailbox credential encryption
	cipher, err := secure.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential cipher: %v", err)
	}

	// Task client and dispatcher
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	dispatcher := tasks.NewDispatcher(taskClient)

	// Services
	agentService := services.NewAgentService(mongoDb, cfg)
	notificationService := services.NewNotificationService(mongoDb, agentService)
	enquiryService := services.NewEnquiryService(mongoDb, agentService, notificationService)
	messageService := services.NewMessageService(mongoDb, dispatcher)
	ledgerService := services.NewLedgerService(mongoDb)
	accountService := services.NewAccountService(mongoDb, cipher)

	// AI pipeline: Ollama first, OpenAI fallback when configured
	generator := ai.NewGenerator(cfg)
	classifier := ai.NewClassifier(generator)
	drafter := ai.NewDrafter(generator)

	googleOAuth := oauth.NewGoogleOAuth(cfg)

	// Mailbox scanner
	scanner := mail.NewScanner(cfg, accountService, agentService, enquiryService, ledgerService, classifier, drafter, googleOAuth)

	// Outbound email: SMTP fallback plus optional mirrors.
	compositeSender := email.NewCompositeSender(
		email.NewSMTPSender(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpFromAddress),
	)
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Println("MOCK_SERVICES enabled: mirroring outbound replies to Redis.")
		compositeSender.AddSender(email.NewRedisSender(redisClient, cfg.SmtpFromAddress))
	}
	if cfg.ReplyLogFile != "" {
		fileSender, err := email.NewFileSender(cfg.ReplyLogFile)
		if err != nil {
			log.Printf("WARNING: Failed to initialize reply log file %q: %v. Proceeding without it.", cfg.ReplyLogFile, err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}
	fallbackSender := email.Sender(compositeSender)

	// Task processor
	taskProcessor := tasks.NewTaskProcessor(cfg, scanner, fallbackSender, agentService, accountService, enquiryService, messageService, notificationService, ledgerService)

	var wg sync.WaitGroup

	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting API server...")
		router := api.SetupRouter(cfg, redisClient, dispatcher, agentService, enquiryService, messageService, notificationService, accountService, googleOAuth)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("API ListenAndServe error: %v", err)
			}
			fmt.Println("API server stopped.")
		}()
	}

	bgMode := func() {
		fmt.Println("Starting background workers...")
		backgroundTaskSrv = tasks.SetupServer(redisClient, taskProcessor)
		scheduler = tasks.SetupScheduler(redisClient, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.Run(); err != nil {
				log.Fatalf("Scheduler error: %v", err)
			}
			fmt.Println("Scheduler stopped.")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if mainApiSrv != nil {
		fmt.Println("Shutting down API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}

	if scheduler != nil {
		fmt.Println("Shutting down scheduler...")
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down background task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}

// ensureIndexes creates the indexes the pipeline's correctness depends on.
// The unique (email_account_id, message_id_header) index is what makes raw
// message ingestion idempotent even when two sweeps race on the same UID.
func ensureIndexes(ctx context.Context, database *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := database.Collection("processed_emails").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email_account_id", Value: 1}, {Key: "message_id_header", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("processed_emails index: %w", err)
	}

	_, err = database.Collection("contacts").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("contacts index: %w", err)
	}

	_, err = database.Collection("agents").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("agents index: %w", err)
	}

	_, err = database.Collection("enquiries").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "last_activity_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("enquiries index: %w", err)
	}

	return nil
}
