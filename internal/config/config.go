package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds notification engine configuration loaded from the environment.
// The same struct serves both the API/gateway process and the fan-out worker;
// each binary reads the fields it needs.
type Config struct {
	AppName    string
	LogLevel   string
	HTTPPort   string
	WorkerPort string

	DatabaseURL string
	RedisURL    string

	// Hackathons seeds the worker's tenant list; further tenants are
	// discovered at runtime from the tenant registry set.
	Hackathons        []string
	DiscoveryInterval time.Duration

	FanoutConcurrency int
	QueueMaxAttempts  int
	QueueBaseDelay    time.Duration

	InitialFetchLimit int
	AllowedOrigin     string

	ConnectMaxAttempts int
	ConnectBackoff     time.Duration
	ShutdownTimeout    time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:            getEnv("APP_NAME", "notification_engine"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "3003"),
		WorkerPort:         getEnv("WORKER_PORT", "3004"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "localhost:6379"),
		Hackathons:         getEnvAsList("HACKATHON_IDS", nil),
		DiscoveryInterval:  getEnvAsDuration("TENANT_DISCOVERY_INTERVAL", 15*time.Second),
		FanoutConcurrency:  getEnvAsInt("FANOUT_CONCURRENCY", 20),
		QueueMaxAttempts:   getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueBaseDelay:     getEnvAsDuration("QUEUE_BASE_DELAY", time.Second),
		InitialFetchLimit:  getEnvAsInt("INITIAL_FETCH_LIMIT", 10),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),
		ConnectMaxAttempts: getEnvAsInt("CONNECT_MAX_ATTEMPTS", 5),
		ConnectBackoff:     getEnvAsDuration("CONNECT_BACKOFF", time.Second),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.FanoutConcurrency <= 0 {
		return fmt.Errorf("FANOUT_CONCURRENCY must be positive, got %d", c.FanoutConcurrency)
	}
	if c.QueueMaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive, got %d", c.QueueMaxAttempts)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return def
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
