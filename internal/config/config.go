// Package config provides configuration loading using koanf.
// Precedence: environment variables over compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/newsdesk/console/internal/domain"
)

// Token store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Config holds all console configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	Log     LogConfig     `koanf:"log"`
	Console ConsoleConfig `koanf:"console"`
	API     APIConfig     `koanf:"api"`
	Tokens  TokensConfig  `koanf:"tokens"`
	Session SessionConfig `koanf:"session"`
	Login   LoginConfig   `koanf:"login"`

	// Infrastructure configurations
	Redis    RedisConfig    `koanf:"redis"`
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	AWS      AWSConfig      `koanf:"aws"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ConsoleConfig holds web console settings.
type ConsoleConfig struct {
	HTTPPort int `koanf:"http_port"`
	// AreasFile points at a YAML role-to-area mapping. Empty uses the
	// built-in admin/editor/reporter mapping.
	AreasFile    string `koanf:"areas_file"`
	SecureCookie bool   `koanf:"secure_cookie"`
	// TrustProxy reads client addresses from X-Forwarded-For/X-Real-IP for
	// login throttling.
	TrustProxy bool `koanf:"trust_proxy"`
}

// APIConfig locates the backend REST API.
type APIConfig struct {
	BaseURL string        `koanf:"base_url"` // Required outside local
	Timeout time.Duration `koanf:"timeout"`
}

// TokensConfig selects and parameterizes the token store backend.
type TokensConfig struct {
	Backend  string        `koanf:"backend"`
	FilePath string        `koanf:"file_path"`
	Table    string        `koanf:"table"`
	TTL      time.Duration `koanf:"ttl"` // Zero keeps tokens until logout
}

// SessionConfig controls client session lifetime in the console.
type SessionConfig struct {
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepSchedule string        `koanf:"sweep_schedule"`
}

// LoginConfig controls login throttling.
type LoginConfig struct {
	Attempts int           `koanf:"attempts"`
	Window   time.Duration `koanf:"window"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// DynamoDBConfig holds DynamoDB configuration.
type DynamoDBConfig struct {
	Endpoint string        `koanf:"endpoint"` // Empty for production (uses default AWS endpoint)
	Timeout  time.Duration `koanf:"timeout"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region string `koanf:"region"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Console: ConsoleConfig{
			HTTPPort: 8080,
		},
		API: APIConfig{
			BaseURL: "http://localhost:4000",
			Timeout: domain.AuthTimeout,
		},
		Tokens: TokensConfig{
			Backend: BackendMemory,
			Table:   "console_tokens",
		},
		Session: SessionConfig{
			IdleTimeout:   domain.ClientIdleTimeout,
			SweepSchedule: domain.ClientSweepSchedule,
		},
		Login: LoginConfig{
			Attempts: domain.LoginAttemptsPerWindow,
			Window:   domain.LoginAttemptWindow,
		},
		Redis: RedisConfig{
			DB:      0,
			Timeout: domain.RedisTimeout,
		},
		DynamoDB: DynamoDBConfig{
			Timeout: domain.DynamoTimeout,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		OTEL: OTELConfig{
			ServiceName: "newsdesk-console",
		},
	}
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
//
// Environment names map to keys by splitting on the first underscore only:
// API_BASE_URL -> api.base_url, TOKENS_BACKEND -> tokens.backend.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Tokens.Backend = strings.ToLower(cfg.Tokens.Backend)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey turns SECTION_SOME_KEY into section.some_key.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(s), "_", ".", 1)
}

// validate checks that required configuration is present.
// Required key failure means startup failure.
func validate(cfg *Config) error {
	switch cfg.Tokens.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr (tokens.backend=redis)", domain.ErrConfigRequired)
		}
	case BackendDynamoDB:
		if cfg.Tokens.Table == "" {
			return fmt.Errorf("%w: tokens.table (tokens.backend=dynamodb)", domain.ErrConfigRequired)
		}
	default:
		return fmt.Errorf("unknown tokens.backend %q: %w", cfg.Tokens.Backend, domain.ErrInvalidInput)
	}

	// In local environment, the remaining fields have sensible defaults
	if cfg.IsLocal() {
		return nil
	}

	if cfg.IsProd() {
		if cfg.API.BaseURL == "" {
			return fmt.Errorf("%w: api.base_url", domain.ErrConfigRequired)
		}
		if cfg.Tokens.Backend == BackendMemory {
			return fmt.Errorf("%w: tokens.backend must be durable in prod", domain.ErrConfigRequired)
		}
	}

	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
