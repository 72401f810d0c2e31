package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for challenge-bot
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Catalog  CatalogConfig
	Compiler CompilerConfig
	Session  SessionConfig
	Cleanup  CleanupConfig
	Chat     ChatConfig
	LogLevel slog.Level
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host      string
	Port      int
	APIToken  string // full access; empty with ReadToken empty disables API authentication
	ReadToken string // read-only access
}

// DatabaseConfig holds PostgreSQL configuration. An empty DSN disables the
// compilation journal.
type DatabaseConfig struct {
	DSN           string
	MigrationsDir string
}

// RedisConfig holds Redis configuration. An empty address keeps session locks
// and counters in memory.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// CatalogConfig points at the challenge descriptors and synthesis templates
type CatalogConfig struct {
	ChallengesDir string
	TemplatesDir  string
}

// CompilerConfig holds the remote compile service configuration
type CompilerConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	Save     bool
}

// SessionConfig holds challenge session timing and presentation
type SessionConfig struct {
	AnswerTimeout time.Duration
	ActionTimeout time.Duration
	MaxAge        time.Duration
	LoadingEmoji  string
	Prefix        string
	Thumbnail     string
}

// CleanupConfig holds cleanup worker configuration
type CleanupConfig struct {
	Interval time.Duration
}

// ChatConfig describes the bot's identity on the chat hub
type ChatConfig struct {
	BotID           string
	BotName         string
	AttachmentLimit int64
	HistoryLimit    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "0.0.0.0"),
			Port:      getEnvAsInt("SERVER_PORT", 8080),
			APIToken:  getEnv("API_TOKEN", ""),
			ReadToken: getEnv("API_READ_TOKEN", ""),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("DATABASE_DSN", ""),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Catalog: CatalogConfig{
			ChallengesDir: getEnv("CHALLENGES_DIR", "./challenges"),
			TemplatesDir:  getEnv("TEMPLATES_DIR", "./templates"),
		},
		Compiler: CompilerConfig{
			BaseURL:  getEnv("WANDBOX_URL", "https://wandbox.org"),
			Timeout:  getEnvAsDuration("WANDBOX_TIMEOUT", 30*time.Second),
			CacheTTL: getEnvAsDuration("WANDBOX_LIST_TTL", time.Hour),
			Save:     getEnvAsBool("WANDBOX_SAVE", true),
		},
		Session: SessionConfig{
			AnswerTimeout: getEnvAsDuration("SESSION_ANSWER_TIMEOUT", 5*time.Minute),
			ActionTimeout: getEnvAsDuration("SESSION_ACTION_TIMEOUT", 30*time.Second),
			MaxAge:        getEnvAsDuration("SESSION_MAX_AGE", 30*time.Minute),
			LoadingEmoji:  getEnv("SESSION_LOADING_EMOJI", "⏳"),
			Prefix:        getEnv("COMMAND_PREFIX", ";"),
			Thumbnail:     getEnv("CHALLENGE_THUMBNAIL", ""),
		},
		Cleanup: CleanupConfig{
			Interval: getEnvAsDuration("CLEANUP_INTERVAL", time.Minute),
		},
		Chat: ChatConfig{
			BotID:           getEnv("BOT_ID", "challenge-bot"),
			BotName:         getEnv("BOT_NAME", "ChallengeBot#0001"),
			AttachmentLimit: int64(getEnvAsInt("ATTACHMENT_LIMIT", 1<<20)),
			HistoryLimit:    getEnvAsInt("CHAT_HISTORY_LIMIT", 1000),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Catalog.ChallengesDir == "" || c.Catalog.TemplatesDir == "" {
		return fmt.Errorf("challenges and templates directories are required")
	}

	if c.Compiler.BaseURL == "" {
		return fmt.Errorf("compile service URL is required")
	}

	if c.Session.AnswerTimeout <= 0 || c.Session.ActionTimeout <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}

	if c.Session.MaxAge < c.Session.AnswerTimeout {
		return fmt.Errorf("session max age %s is shorter than the answer timeout %s", c.Session.MaxAge, c.Session.AnswerTimeout)
	}

	if strings.TrimSpace(c.Session.Prefix) == "" {
		return fmt.Errorf("command prefix is required")
	}

	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("invalid cleanup interval: %s", c.Cleanup.Interval)
	}

	if c.Chat.BotID == "" {
		return fmt.Errorf("bot id is required")
	}

	return nil
}

// Address returns the HTTP listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value, exists := os.LookupEnv(key); exists {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err == nil {
			return level
		}
	}
	return defaultValue
}
