package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Conversation engine
	LLMProvider        string // "bedrock", "gemini"
	BedrockModelID     string
	GeminiAPIKey       string
	GeminiModelID      string
	LLMTimeout         time.Duration
	MaxToolRounds      int
	ClarifyThreshold   float64
	UseMemoryQueue     bool
	WorkerCount        int
	ConversationTTL    time.Duration
	ConversationStore  string // "memory", "redis"

	// Availability engine
	BusinessOpen      string // HH:mm
	BusinessClose     string // HH:mm
	SlotDuration      time.Duration
	AvailabilityNoise bool

	// Persistence
	BookingStore  string // "memory", "postgres", "dynamodb"
	DatabaseURL   string
	BookingsTable string

	// AWS
	AWSRegion             string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpointOverride   string
	ConversationQueueURL  string
	ConversationQueueWait int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Operator notifications
	EmailProvider       string // "ses", "sendgrid", "stub"
	NotifyFromEmail     string
	NotifyFromName      string
	NotifyOperatorEmail string
	SendGridAPIKey      string

	// HTTP surface
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Admin API
	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LLMProvider:        strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMTimeout:         getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		MaxToolRounds:      getEnvAsInt("MAX_TOOL_ROUNDS", 5),
		ClarifyThreshold:   getEnvAsFloat("CLARIFY_THRESHOLD", 0.7),
		UseMemoryQueue:     getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:        getEnvAsInt("WORKER_COUNT", 2),
		ConversationTTL:    getEnvAsDuration("CONVERSATION_TTL", 24*time.Hour),
		ConversationStore:  strings.ToLower(getEnv("CONVERSATION_STORE", "memory")),

		BusinessOpen:      getEnv("BUSINESS_OPEN", "09:00"),
		BusinessClose:     getEnv("BUSINESS_CLOSE", "18:00"),
		SlotDuration:      getEnvAsDuration("SLOT_DURATION", time.Hour),
		AvailabilityNoise: getEnvAsBool("AVAILABILITY_NOISE", false),

		BookingStore:  strings.ToLower(getEnv("BOOKING_STORE", "memory")),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		BookingsTable: getEnv("BOOKINGS_TABLE", "bookings"),

		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL:  getEnv("CONVERSATION_QUEUE_URL", ""),
		ConversationQueueWait: getEnvAsInt("CONVERSATION_QUEUE_WAIT", 2),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		NotifyFromEmail:     getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:      getEnv("NOTIFY_FROM_NAME", ""),
		NotifyOperatorEmail: getEnv("NOTIFY_OPERATOR_EMAIL", ""),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// IsDevelopment reports whether the app is running in a development context.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
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
