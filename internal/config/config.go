package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Phorest POS. Outbound sync stays off when the base URL is empty.
	PhorestBaseURL    string
	PhorestUsername   string
	PhorestPassword   string
	PhorestBusinessID string

	SyncTimeout       time.Duration
	SyncRatePerSecond float64
	SyncRateBurst     int

	OutboxInterval       time.Duration
	OutboxBatchSize      int
	NotificationQueueURL string
	EventArchiveBucket   string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	DayRateMaxRangeDays int

	AuthJWTSecret      string
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
	ShutdownTimeout    time.Duration
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PhorestBaseURL:    strings.TrimRight(getEnv("PHOREST_BASE_URL", ""), "/"),
		PhorestUsername:   getEnv("PHOREST_USERNAME", ""),
		PhorestPassword:   getEnv("PHOREST_PASSWORD", ""),
		PhorestBusinessID: getEnv("PHOREST_BUSINESS_ID", ""),

		SyncTimeout:       getEnvAsDuration("SYNC_TIMEOUT", 10*time.Second),
		SyncRatePerSecond: getEnvAsFloat("SYNC_RATE_PER_SECOND", 5),
		SyncRateBurst:     getEnvAsInt("SYNC_RATE_BURST", 10),

		OutboxInterval:       getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),
		EventArchiveBucket:   getEnv("EVENT_ARCHIVE_BUCKET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		DayRateMaxRangeDays: getEnvAsInt("DAY_RATE_MAX_RANGE_DAYS", 92),

		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// POSConfigured reports whether outbound POS sync can be wired.
func (c *Config) POSConfigured() bool {
	return c.PhorestBaseURL != "" && c.PhorestBusinessID != ""
}

// ErrMissingAuthSecret is returned by Validate when a deployed environment
// would trust caller-supplied actor headers.
var ErrMissingAuthSecret = errors.New("config: AUTH_JWT_SECRET is required outside development")

// Validate rejects configurations that are unsafe to serve with.
func (c *Config) Validate() error {
	if c.AuthJWTSecret == "" && !c.IsDevelopment() {
		return ErrMissingAuthSecret
	}
	return nil
}

// IsDevelopment reports whether the process runs in a local or test env.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
