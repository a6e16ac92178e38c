package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the application.
type Config struct {
	Port          string
	PublicBaseURL string
	CORSOrigins   []string

	// Database. An empty DatabaseURL selects the embedded SQLite backend at SQLitePath.
	DatabaseURL string
	SQLitePath  string
	SeedOnEmpty bool

	AdminEmail    string
	AdminPassword string
	SessionTTL    time.Duration
	ResetTokenTTL time.Duration

	LLMProvider       string
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	AnthropicModel    string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	ReplyMaxTokens    int
	ReplyHistoryLimit int
	LLMTimeout        time.Duration

	TwilioAPIBaseURL       string
	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioWhatsAppNumber   string
	TwilioWebhookAuthToken string

	RoutingStrict  bool
	ReplyWorkers   int
	ReplyQueueSize int

	RabbitMQURL         string
	RabbitMQQueue       string
	RabbitMQQueuePrefix string
	RabbitMQSpecific    []string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
}

// UsesPostgres reports whether DatabaseURL points at a Postgres server.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// S3Enabled reports whether transcript archiving has enough settings to run.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present; real environment variables take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("No .env file found, relying on environment variables")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "data/concierge.db"),
		SeedOnEmpty: getEnvAsBool("SEED_ON_EMPTY", false),

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 0),
		ResetTokenTTL: getEnvAsDuration("RESET_TOKEN_TTL", 24*time.Hour),

		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", "claude")),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL:  os.Getenv("ANTHROPIC_BASE_URL"),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ReplyMaxTokens:    getEnvAsInt("REPLY_MAX_TOKENS", 200),
		ReplyHistoryLimit: getEnvAsInt("REPLY_HISTORY_LIMIT", 10),
		LLMTimeout:        getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),

		TwilioAPIBaseURL:       getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"),
		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber:   os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		TwilioWebhookAuthToken: os.Getenv("TWILIO_WEBHOOK_AUTH_TOKEN"),

		RoutingStrict:  getEnvAsBool("ROUTING_STRICT", false),
		ReplyWorkers:   getEnvAsInt("REPLY_WORKERS", 4),
		ReplyQueueSize: getEnvAsInt("REPLY_QUEUE_SIZE", 256),

		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
		RabbitMQQueue:       getEnv("RABBITMQ_QUEUE", "events"),
		RabbitMQQueuePrefix: getEnv("RABBITMQ_QUEUE_PREFIX", "concierge"),
		RabbitMQSpecific:    splitList(os.Getenv("AMQP_SPECIFIC_EVENTS")),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3PathStyle: getEnvAsBool("S3_PATH_STYLE", false),
	}

	if cfg.ReplyWorkers < 1 {
		cfg.ReplyWorkers = 1
	}
	if cfg.ReplyQueueSize < 1 {
		cfg.ReplyQueueSize = 1
	}
	if cfg.ReplyHistoryLimit < 1 {
		cfg.ReplyHistoryLimit = 10
	}

	if os.Getenv("ADMIN_PASSWORD") == "" {
		log.Warn().Str("adminEmail", cfg.AdminEmail).Msg("ADMIN_PASSWORD not set, using the default admin password")
	}
	if cfg.DatabaseURL == "" {
		log.Info().Str("path", cfg.SQLitePath).Msg("DATABASE_URL not set, using embedded SQLite")
	}

	log.Info().Msg("Configuration loading complete")
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid integer in environment, using default")
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid boolean in environment, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid duration in environment, using default")
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
