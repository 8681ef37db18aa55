package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Room configuration
	Room            string
	ServerConfigURL string
	BotUsername     string
	BotPassword     string

	// Database configuration
	DatabaseURL string

	// Connection tuning
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	MinAttemptInterval   time.Duration
	ConnectTimeout       time.Duration
	JoinTimeout          time.Duration
	LoginTimeout         time.Duration

	// Economy settings
	StartingBalance int64
	ChallengeTTL    time.Duration

	// Metrics endpoint, empty disables it
	MetricsAddr string

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Room
		Room:            os.Getenv("ROOM"),
		ServerConfigURL: os.Getenv("SERVER_CONFIG_URL"),
		BotUsername:     os.Getenv("BOT_USERNAME"),
		BotPassword:     os.Getenv("BOT_PASSWORD"),

		// Database
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Connection defaults
		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   time.Second,
		MinAttemptInterval:   2 * time.Second,
		ConnectTimeout:       30 * time.Second,
		JoinTimeout:          10 * time.Second,
		LoginTimeout:         10 * time.Second,

		// Economy defaults
		StartingBalance: 1000,
		ChallengeTTL:    30 * time.Second,

		MetricsAddr: os.Getenv("METRICS_ADDR"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if attempts := os.Getenv("MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if parsed, err := strconv.Atoi(attempts); err == nil {
			config.MaxReconnectAttempts = parsed
		}
	}
	if ms := os.Getenv("RECONNECT_BASE_DELAY_MS"); ms != "" {
		if parsed, err := strconv.ParseInt(ms, 10, 64); err == nil {
			config.ReconnectBaseDelay = time.Duration(parsed) * time.Millisecond
		}
	}
	if ms := os.Getenv("MIN_ATTEMPT_INTERVAL_MS"); ms != "" {
		if parsed, err := strconv.ParseInt(ms, 10, 64); err == nil {
			config.MinAttemptInterval = time.Duration(parsed) * time.Millisecond
		}
	}
	if balance := os.Getenv("STARTING_BALANCE"); balance != "" {
		if parsed, err := strconv.ParseInt(balance, 10, 64); err == nil {
			config.StartingBalance = parsed
		}
	}
	if secs := os.Getenv("CHALLENGE_TTL_SECONDS"); secs != "" {
		if parsed, err := strconv.ParseInt(secs, 10, 64); err == nil {
			config.ChallengeTTL = time.Duration(parsed) * time.Second
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.Room == "" {
			return nil, fmt.Errorf("ROOM is required")
		}
		if config.ServerConfigURL == "" {
			return nil, fmt.Errorf("SERVER_CONFIG_URL is required")
		}
		if config.BotUsername == "" {
			return nil, fmt.Errorf("BOT_USERNAME is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}
