// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	AllowedOrigins  []string
	DBPath          string
	SessionTTL      time.Duration
	LedgerRetention time.Duration
	Solver          SolverConfig
	Model           ModelConfig
	StatusDelimiter rune
	RateLimit       RateLimitConfig
	// MaxRequestBodySize caps chat request bodies, in bytes.
	MaxRequestBodySize int64
	ConversationLog    ConversationLogConfig
}

// SolverConfig controls how ready queries reach the reasoning service.
type SolverConfig struct {
	URL         string
	Timeout     time.Duration
	Mode        string
	Concurrency int
}

// ModelConfig selects the language model backend.
type ModelConfig struct {
	APIKey           string
	Name             string
	SystemPromptPath string
}

// RateLimitConfig bounds chat requests per client.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
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

	frontendURL := getEnv("FRONTEND_URL", "")
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     frontendURL,
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", defaultOrigins(frontendURL)),
		DBPath:          getEnv("DB_PATH", "./data/caspchat.db"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 60*time.Minute),
		LedgerRetention: getEnvDuration("LEDGER_RETENTION", 7*24*time.Hour),
		Solver: SolverConfig{
			URL:         getEnv("SOLVER_URL", "http://localhost:5000/query"),
			Timeout:     getEnvDuration("SOLVER_TIMEOUT", 15*time.Second),
			Mode:        strings.ToLower(getEnv("DISPATCH_MODE", "concurrent")),
			Concurrency: getEnvInt("DISPATCH_CONCURRENCY", 4),
		},
		Model: ModelConfig{
			APIKey:           getEnv("GEMINI_API_KEY", ""),
			Name:             getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			SystemPromptPath: getEnv("SYSTEM_PROMPT_PATH", ""),
		},
		StatusDelimiter: getEnvRune("STATUS_DELIMITER", '~'),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 64<<10)),
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
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Solver.URL == "" {
		return fmt.Errorf("SOLVER_URL cannot be empty")
	}
	if c.Solver.Timeout <= 0 {
		return fmt.Errorf("SOLVER_TIMEOUT must be > 0")
	}
	if c.Solver.Mode != "sequential" && c.Solver.Mode != "concurrent" {
		return fmt.Errorf("DISPATCH_MODE must be sequential or concurrent, got %q", c.Solver.Mode)
	}
	if c.Solver.Concurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be > 0")
	}
	if c.StatusDelimiter == utf8.RuneError || c.StatusDelimiter == '{' || c.StatusDelimiter == '}' {
		return fmt.Errorf("STATUS_DELIMITER must be a single character other than braces")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
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

func defaultOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return []string{"http://localhost:3000", "http://localhost:5173"}
	}
	return []string{strings.TrimRight(frontendURL, "/")}
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvRune reads a single-character value. Anything longer is reported as
// utf8.RuneError so Validate can reject it.
func getEnvRune(key string, fallback rune) rune {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	r, size := utf8.DecodeRuneInString(value)
	if size != len(value) {
		return utf8.RuneError
	}
	return r
}
