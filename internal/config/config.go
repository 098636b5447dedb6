package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when validation fails
var ErrInvalidConfig = errors.New("invalid config")

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Catalog sources
const (
	CatalogFile = "file"
	CatalogSQL  = "sql"
)

// Provider selection values besides a provider name
const (
	ProviderAuto = "auto"
	ProviderNone = "none"
)

// Config holds all configuration for the daemon
type Config struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	Database   DatabaseConfig   `yaml:"database"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	LLM        LLMConfig        `yaml:"llm"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Redis      RedisConfig      `yaml:"redis"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`

	// SubmissionsPerMinute limits submissions per client. 0 disables it.
	SubmissionsPerMinute int `yaml:"submissions_per_minute"`
}

// DatabaseConfig selects the store. An empty SQLite DSN means
// radquest.db in the data directory.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// CatalogConfig selects where levels and tasks come from
type CatalogConfig struct {
	Source string `yaml:"source"`
	// Path is a directory of level YAML files; empty uses the built-in seed
	Path            string `yaml:"path,omitempty"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for a single LLM provider
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url,omitempty"`
	APIKey  string `yaml:"-"` // Loaded from secrets.yaml or the environment
}

// EvaluationConfig bounds the reasoning judge
type EvaluationConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxAttempts    int `yaml:"max_attempts"`
	RetryDelayMS   int `yaml:"retry_delay_ms"`
}

// LedgerConfig holds submission validation settings
type LedgerConfig struct {
	MinReasoningLength int `yaml:"min_reasoning_length"`
}

// RabbitMQConfig enables event publishing when URL is set
type RabbitMQConfig struct {
	URL string `yaml:"url,omitempty"`
}

// RedisConfig enables the catalog cache when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

// Default returns sensible defaults for a local install
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Port:     7460,
			Bind:     "127.0.0.1",
			LogLevel: "info",

			SubmissionsPerMinute: 30,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
		},
		Catalog: CatalogConfig{
			Source:          CatalogFile,
			CacheTTLSeconds: 300,
		},
		LLM: LLMConfig{
			DefaultProvider: ProviderAuto,
			Providers: map[string]*ProviderConfig{
				"ollama": {
					Enabled: true,
					URL:     "http://localhost:11434",
					Model:   "deepseek-r1:32b",
				},
				"openai": {
					Enabled: false,
					Model:   "gpt-4o",
				},
				"claude": {
					Enabled: false,
					Model:   "claude-sonnet-4-20250514",
				},
			},
		},
		Evaluation: EvaluationConfig{
			TimeoutSeconds: 20,
			MaxAttempts:    2,
			RetryDelayMS:   500,
		},
		Ledger: LedgerConfig{
			MinReasoningLength: 10,
		},
	}
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Daemon.Bind, strconv.Itoa(c.Daemon.Port))
}

// LogLevel maps the configured level name to slog
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EvaluationTimeout returns the per-submission judge budget
func (c *Config) EvaluationTimeout() time.Duration {
	return time.Duration(c.Evaluation.TimeoutSeconds) * time.Second
}

// RetryDelay returns the pause before the judge retry
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Evaluation.RetryDelayMS) * time.Millisecond
}

// CacheTTL returns how long catalog entries stay in Redis
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Catalog.CacheTTLSeconds) * time.Second
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_level %q unknown", c.Daemon.LogLevel))
	}
	if c.Daemon.SubmissionsPerMinute < 0 {
		errs = append(errs, errors.New("daemon.submissions_per_minute must not be negative"))
	}

	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q unknown", c.Database.Driver))
	}

	switch c.Catalog.Source {
	case CatalogFile, CatalogSQL:
	default:
		errs = append(errs, fmt.Errorf("catalog.source %q unknown", c.Catalog.Source))
	}
	if c.Catalog.CacheTTLSeconds < 0 {
		errs = append(errs, errors.New("catalog.cache_ttl_seconds must not be negative"))
	}

	switch p := c.LLM.DefaultProvider; p {
	case ProviderAuto, ProviderNone:
	default:
		if _, ok := c.LLM.Providers[p]; !ok {
			errs = append(errs, fmt.Errorf("llm.default_provider %q is not configured", p))
		}
	}

	if c.Evaluation.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("evaluation.timeout_seconds must be positive"))
	}
	if c.Evaluation.MaxAttempts < 1 {
		errs = append(errs, errors.New("evaluation.max_attempts must be at least 1"))
	}
	if c.Evaluation.RetryDelayMS < 0 {
		errs = append(errs, errors.New("evaluation.retry_delay_ms must not be negative"))
	}
	if c.Ledger.MinReasoningLength < 0 {
		errs = append(errs, errors.New("ledger.min_reasoning_length must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// applyEnv overrides file values with RADQUEST_* variables
func (c *Config) applyEnv() {
	c.Daemon.Port = getEnvInt("RADQUEST_PORT", c.Daemon.Port)
	c.Daemon.LogLevel = getEnv("RADQUEST_LOG_LEVEL", c.Daemon.LogLevel)
	c.Database.Driver = getEnv("RADQUEST_DATABASE_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("RADQUEST_DATABASE_DSN", c.Database.DSN)
	c.RabbitMQ.URL = getEnv("RADQUEST_RABBITMQ_URL", c.RabbitMQ.URL)
	c.Redis.Addr = getEnv("RADQUEST_REDIS_ADDR", c.Redis.Addr)
	c.Catalog.Path = getEnv("RADQUEST_CATALOG_PATH", c.Catalog.Path)
	c.LLM.DefaultProvider = getEnv("RADQUEST_LLM_PROVIDER", c.LLM.DefaultProvider)
	if p, ok := c.LLM.Providers["ollama"]; ok {
		p.URL = getEnv("RADQUEST_OLLAMA_URL", p.URL)
	}

	// Key and model apply to the selected provider
	name := c.LLM.DefaultProvider
	if name == ProviderAuto || name == ProviderNone {
		return
	}
	p, ok := c.LLM.Providers[name]
	if !ok {
		return
	}
	p.APIKey = getEnv("RADQUEST_LLM_API_KEY", p.APIKey)
	p.Model = getEnv("RADQUEST_LLM_MODEL", p.Model)
	if os.Getenv("RADQUEST_LLM_PROVIDER") != "" {
		p.Enabled = true
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
