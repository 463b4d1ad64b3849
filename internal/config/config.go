// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                string
	FrontendURL         string
	DBPath              string
	ScenesPath          string // "" = embedded catalog
	DefaultScene        string // "" = catalog default
	ReplyDelay          ReplyDelayConfig
	WorkspaceIdleTTL    time.Duration
	UserRetention       time.Duration // 0 disables purging of inactive users
	RateLimit           RateLimitConfig
	MaxRequestBodyBytes int64
	EventBufferSize     int
	Log                 LogConfig
	ConversationLog     ConversationLogConfig
}

// ReplyDelayConfig bounds the simulated assistant latency.
type ReplyDelayConfig struct {
	Min     time.Duration
	Max     time.Duration
	Timeout time.Duration
}

// RateLimitConfig limits message sends per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// LogConfig controls the process log.
type LogConfig struct {
	Level      slog.Level
	File       string // "" = stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/interview.db"),
		ScenesPath:   getEnv("SCENES_PATH", ""),
		DefaultScene: getEnv("DEFAULT_SCENE", ""),
		ReplyDelay: ReplyDelayConfig{
			Min:     getEnvDuration("REPLY_DELAY_MIN", 800*time.Millisecond),
			Max:     getEnvDuration("REPLY_DELAY_MAX", 2000*time.Millisecond),
			Timeout: getEnvDuration("REPLY_TIMEOUT", 30*time.Second),
		},
		WorkspaceIdleTTL: getEnvDuration("WORKSPACE_IDLE_TTL", 30*time.Minute),
		UserRetention:    getEnvDuration("USER_RETENTION", 0),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 64*1024)),
		EventBufferSize:     getEnvInt("EVENT_BUFFER_SIZE", 64),
		Log: LogConfig{
			Level:      getEnvLevel("LOG_LEVEL", slog.LevelInfo),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ReplyDelay.Min < 0 {
		return fmt.Errorf("REPLY_DELAY_MIN must be >= 0")
	}
	if c.ReplyDelay.Max < c.ReplyDelay.Min {
		return fmt.Errorf("REPLY_DELAY_MAX (%s) must be >= REPLY_DELAY_MIN (%s)", c.ReplyDelay.Max, c.ReplyDelay.Min)
	}
	if c.ReplyDelay.Timeout <= c.ReplyDelay.Max {
		return fmt.Errorf("REPLY_TIMEOUT must exceed REPLY_DELAY_MAX")
	}
	if c.WorkspaceIdleTTL <= 0 {
		return fmt.Errorf("WORKSPACE_IDLE_TTL must be > 0")
	}
	if c.UserRetention < 0 {
		return fmt.Errorf("USER_RETENTION must be >= 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be > 0")
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("LOG_MAX_SIZE_MB must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the API.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	origins := []string{c.FrontendURL}
	if c.IsDevelopment() {
		origins = append(origins, "http://localhost:5173", "http://127.0.0.1:5173")
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("1.5s") or plain integers as milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
