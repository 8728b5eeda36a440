package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	ConversationTTL  time.Duration
	DedupeTTL        time.Duration
	DedupePendingTTL time.Duration
	LockTTL          time.Duration
	LockWait         time.Duration
	StoreTimeout     time.Duration
	ExtractorTimeout time.Duration
	EmitterTimeout   time.Duration
	ArchiveTimeout   time.Duration

	// Qualification tuning
	TurnCeiling    int
	WeightContact  float64
	WeightInterest float64
	WeightIntent   float64
	HotThreshold   float64
	WarmThreshold  float64

	// Field extraction
	Extractor      string
	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string

	// Lead emission
	CRMBackend   string
	DatabaseURL  string
	OdooURL      string
	OdooDB       string
	OdooUsername string
	OdooPassword string

	ArchiveBackend string
	ArchiveBucket  string

	DedupeBackend string
	DedupeTable   string

	InboundQueueURL  string
	OutboundQueueURL string
	WorkerCount      int

	// Hot-lead e-mail alerts
	NotifyBackend   string
	NotifyEmailTo   []string
	NotifyMinTier   string
	NotifyFromEmail string
	NotifyFromName  string
	SendGridAPIKey  string

	// SESConfigurationSet is optional; it routes SES delivery events.
	SESConfigurationSet string

	AdminJWTSecret     string
	RateLimitPerSecond float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads a .env file when present, then configuration from environment
// variables. Variables already set in the environment win over .env entries.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ConversationTTL:  getEnvAsDuration("CONVERSATION_TTL", 7*24*time.Hour),
		DedupeTTL:        getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),
		DedupePendingTTL: getEnvAsDuration("DEDUPE_PENDING_TTL", 2*time.Minute),
		LockTTL:          getEnvAsDuration("LOCK_TTL", 30*time.Second),
		LockWait:         getEnvAsDuration("LOCK_WAIT", 10*time.Second),
		StoreTimeout:     getEnvAsDuration("STORE_TIMEOUT", 3*time.Second),
		ExtractorTimeout: getEnvAsDuration("EXTRACTOR_TIMEOUT", 10*time.Second),
		EmitterTimeout:   getEnvAsDuration("EMITTER_TIMEOUT", 15*time.Second),
		ArchiveTimeout:   getEnvAsDuration("ARCHIVE_TIMEOUT", 10*time.Second),

		TurnCeiling:    getEnvAsInt("TURN_CEILING", qualification.DefaultTurnCeiling),
		WeightContact:  getEnvAsFloat("WEIGHT_CONTACT", 1.0/3),
		WeightInterest: getEnvAsFloat("WEIGHT_INTEREST", 1.0/3),
		WeightIntent:   getEnvAsFloat("WEIGHT_INTENT", 1.0/3),
		HotThreshold:   getEnvAsFloat("HOT_THRESHOLD", qualification.DefaultHotThreshold),
		WarmThreshold:  getEnvAsFloat("WARM_THRESHOLD", qualification.DefaultWarmThreshold),

		Extractor:      strings.ToLower(strings.TrimSpace(getEnv("EXTRACTOR", "auto"))),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		CRMBackend:   strings.ToLower(strings.TrimSpace(getEnv("CRM_BACKEND", "memory"))),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		OdooURL:      getEnv("ODOO_URL", ""),
		OdooDB:       getEnv("ODOO_DB", ""),
		OdooUsername: getEnv("ODOO_USERNAME", ""),
		OdooPassword: getEnv("ODOO_PASSWORD", ""),

		ArchiveBackend: strings.ToLower(strings.TrimSpace(getEnv("ARCHIVE_BACKEND", "none"))),
		ArchiveBucket:  getEnv("ARCHIVE_BUCKET", ""),

		DedupeBackend: strings.ToLower(strings.TrimSpace(getEnv("DEDUPE_BACKEND", "redis"))),
		DedupeTable:   getEnv("DEDUPE_TABLE", "processed_messages"),

		InboundQueueURL:  getEnv("INBOUND_QUEUE_URL", ""),
		OutboundQueueURL: getEnv("OUTBOUND_QUEUE_URL", ""),
		WorkerCount:      getEnvAsInt("WORKER_COUNT", 2),

		NotifyBackend:   strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_BACKEND", "none"))),
		NotifyEmailTo:   getEnvAsList("NOTIFY_EMAIL_TO"),
		NotifyMinTier:   strings.ToLower(getEnv("NOTIFY_MIN_TIER", "hot")),
		NotifyFromEmail: getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:  getEnv("NOTIFY_FROM_NAME", ""),
		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),

		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// QualificationSettings returns validated scorer and policy settings.
// Out-of-range values fall back to the defaults.
func (c *Config) QualificationSettings() qualification.Settings {
	return qualification.Settings{
		Weights: qualification.Weights{
			Contact:  c.WeightContact,
			Interest: c.WeightInterest,
			Intent:   c.WeightIntent,
		},
		HotThreshold:  c.HotThreshold,
		WarmThreshold: c.WarmThreshold,
		TurnCeiling:   c.TurnCeiling,
	}.Normalized()
}

// TurnBudget is the longest one turn can take: the lock wait, every bounded
// store call (dedupe, load, save, reset, confirm), extraction, emission and
// archival.
func (c *Config) TurnBudget() time.Duration {
	return c.LockWait + 5*c.StoreTimeout + c.ExtractorTimeout + c.EmitterTimeout + c.ArchiveTimeout
}

// DedupePendingWindow is how long an unconfirmed dedupe claim holds. It
// never ends before a running turn could.
func (c *Config) DedupePendingWindow() time.Duration {
	return max(c.DedupePendingTTL, c.TurnBudget())
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
