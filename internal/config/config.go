package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port      string
	UploadDir string

	// MongoDB (optional session mirror)
	MongoURI string

	// Session store
	SessionTTL             time.Duration // 0 = sessions never expire
	TranscriptContextTurns int           // transcript turns sent to the completion API

	// Inactivity follow-ups
	FollowUpBaseDelay time.Duration
	FollowUpMax       int

	// OpenAI-compatible completion provider
	CompletionBaseURL string
	CompletionAPIKey  string
	CompletionModel   string
	CompletionTimeout time.Duration

	// Vision document verification (same wire protocol, possibly same provider)
	VisionModel   string
	VisionTimeout time.Duration

	// DodoPayments configuration
	DodoAPIKey      string
	DodoEnvironment string            // "live" or "test"
	DodoProductIDs  map[string]string // package key -> product ID
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8000"),
		UploadDir: getEnv("UPLOAD_DIR", "./uploads"),

		MongoURI: getEnv("MONGODB_URI", ""),

		SessionTTL:             getDurationEnv("SESSION_TTL", 0),
		TranscriptContextTurns: getIntEnv("TRANSCRIPT_CONTEXT_TURNS", 5),

		FollowUpBaseDelay: getDurationEnv("FOLLOWUP_BASE_DELAY", 60*time.Second),
		FollowUpMax:       getIntEnv("FOLLOWUP_MAX", 3),

		CompletionBaseURL: getEnv("COMPLETION_BASE_URL", "https://api.openai.com/v1"),
		CompletionAPIKey:  getEnv("OPENAI_API_KEY", ""),
		CompletionModel:   getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionTimeout: getDurationEnv("COMPLETION_TIMEOUT", 45*time.Second),

		VisionModel:   getEnv("VISION_MODEL", "gpt-4o"),
		VisionTimeout: getDurationEnv("VISION_TIMEOUT", 60*time.Second),

		DodoAPIKey:      getEnv("DODO_API_KEY", ""),
		DodoEnvironment: getEnv("DODO_ENVIRONMENT", "test"),
		DodoProductIDs: map[string]string{
			"private_limited": getEnv("DODO_PRODUCT_PVT_LTD", ""),
			"llp":             getEnv("DODO_PRODUCT_LLP", ""),
			"opc":             getEnv("DODO_PRODUCT_OPC", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept either a Go duration ("90s", "5m") or a bare number of seconds
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
