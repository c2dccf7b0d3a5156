package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/newsdesk/console/internal/domain"
)

// cliEnvPrefix scopes the terminal client's environment variables.
const cliEnvPrefix = "NEWSDESK_"

// CLIConfig holds newsdeskctl settings. Flags override these.
type CLIConfig struct {
	APIURL      string        `koanf:"api_url"`
	Timeout     time.Duration `koanf:"timeout"`
	Password    string        `koanf:"password"`
	Credentials string        `koanf:"credentials"` // Empty uses the per-user default
	AreasFile   string        `koanf:"areas_file"`
	LogLevel    string        `koanf:"log_level"`
}

// LoadCLI reads NEWSDESK_* variables over compiled defaults:
// NEWSDESK_API_URL -> api_url, NEWSDESK_PASSWORD -> password.
func LoadCLI() (*CLIConfig, error) {
	k := koanf.New(".")

	cfg := &CLIConfig{
		APIURL:   "http://localhost:4000",
		Timeout:  domain.AuthTimeout,
		LogLevel: "warn",
	}

	err := k.Load(env.Provider(cliEnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, cliEnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal cli config: %w", err)
	}

	if cfg.APIURL == "" {
		return nil, fmt.Errorf("%w: %sAPI_URL", domain.ErrConfigRequired, cliEnvPrefix)
	}
	return cfg, nil
}
