package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT (agent sessions)
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort string

	// Webhook / scheduler shared secrets
	WebhookSecret string
	CronSecret    string

	// Mailbox credential encryption (64-char hex = 32-byte AES key)
	EncryptionKey string

	// AI generation backends
	OllamaURL          string
	OllamaModel        string
	OllamaTimeout      time.Duration
	OpenAIAPIKey       string
	OpenAIModel        string
	DefaultAIMode      string
	AIMaxTokens        int
	AITemperature      float64
	ThreadHistoryLimit int

	// Mail scanning
	ScanInterval       time.Duration
	ScanFirstLookback  time.Duration
	ImapDialTimeout    time.Duration
	StaleCheckInterval time.Duration

	// Google OAuth (mailbox linking)
	GoogleClientID     string
	GoogleClientSecret string
	AppBaseURL         string

	// Outbound email fallback (accounts without their own SMTP settings)
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	ReplyLogFile    string

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "enquiry_partner")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.WebhookSecret, err = getRequiredEnv("WEBHOOK_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.CronSecret = getEnv("CRON_SECRET", "")
	cfg.EncryptionKey, err = getRequiredEnv("ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	if len(cfg.EncryptionKey) != 64 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be a 64-character hex string")
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")

	cfg.OllamaURL = getEnv("OLLAMA_URL", "http://localhost:11434")
	cfg.OllamaModel = getEnv("OLLAMA_MODEL", "llama3.1")
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	cfg.DefaultAIMode = getEnv("DEFAULT_AI_MODE", "draft")

	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", "")
	cfg.AppBaseURL = getEnv("APP_BASE_URL", "http://localhost:8080")

	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@enquirypartner.example.com")
	cfg.ReplyLogFile = getEnv("REPLY_LOG_FILE", "")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	ollamaTimeoutSeconds, err := strconv.ParseInt(getEnv("OLLAMA_TIMEOUT_SECONDS", "30"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_TIMEOUT_SECONDS: %w", err)
	}
	cfg.OllamaTimeout = time.Duration(ollamaTimeoutSeconds) * time.Second

	cfg.AIMaxTokens, err = strconv.Atoi(getEnv("AI_MAX_TOKENS", "1024"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_MAX_TOKENS: %w", err)
	}

	cfg.AITemperature, err = strconv.ParseFloat(getEnv("AI_TEMPERATURE", "0.7"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AI_TEMPERATURE: %w", err)
	}

	cfg.ThreadHistoryLimit, err = strconv.Atoi(getEnv("THREAD_HISTORY_LIMIT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid THREAD_HISTORY_LIMIT: %w", err)
	}

	scanIntervalMinutes, err := strconv.ParseInt(getEnv("SCAN_INTERVAL_MINUTES", "5"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SCAN_INTERVAL_MINUTES: %w", err)
	}
	cfg.ScanInterval = time.Duration(scanIntervalMinutes) * time.Minute

	scanLookbackHours, err := strconv.ParseInt(getEnv("SCAN_FIRST_LOOKBACK_HOURS", "24"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SCAN_FIRST_LOOKBACK_HOURS: %w", err)
	}
	cfg.ScanFirstLookback = time.Duration(scanLookbackHours) * time.Hour

	imapDialTimeoutSeconds, err := strconv.ParseInt(getEnv("IMAP_DIAL_TIMEOUT_SECONDS", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid IMAP_DIAL_TIMEOUT_SECONDS: %w", err)
	}
	cfg.ImapDialTimeout = time.Duration(imapDialTimeoutSeconds) * time.Second

	staleCheckMinutes, err := strconv.ParseInt(getEnv("STALE_CHECK_INTERVAL_MINUTES", "15"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid STALE_CHECK_INTERVAL_MINUTES: %w", err)
	}
	cfg.StaleCheckInterval = time.Duration(staleCheckMinutes) * time.Minute

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
