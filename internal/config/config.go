package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Resume policy names accepted in MAILAGENT_RESUME_POLICY.
const (
	ResumePolicyClamp   = "clamp"
	ResumePolicyRestart = "restart"
)

// Config holds the runtime configuration of the agent, populated from
// environment variables with optional .env file support.
type Config struct {
	// BackendURL is the base URL of the Mail Agent backend API.
	BackendURL string `env:"MAILAGENT_BACKEND_URL" envDefault:"http://localhost:8080"`

	// CallbackAddr is the loopback address for the OAuth callback listener.
	// Port 0 picks a free port.
	CallbackAddr string `env:"MAILAGENT_CALLBACK_ADDR" envDefault:"127.0.0.1:8765"`

	// MetricsAddr is the bind address for the Prometheus metrics server.
	MetricsAddr string `env:"MAILAGENT_METRICS_ADDR" envDefault:":9090"`

	// MetricsEnabled controls whether the metrics server is started
	// alongside the onboarding wizard.
	MetricsEnabled bool `env:"MAILAGENT_METRICS_ENABLED" envDefault:"false"`

	// DataDir overrides the directory for saved progress and pending
	// handshake state. Empty means the user config directory.
	DataDir string `env:"MAILAGENT_DATA_DIR"`

	// PollInterval is the cadence for Telegram link status polls.
	PollInterval time.Duration `env:"MAILAGENT_POLL_INTERVAL" envDefault:"2s"`

	// LinkTimeout bounds how long the agent waits for Telegram link
	// confirmation before giving up.
	LinkTimeout time.Duration `env:"MAILAGENT_LINK_TIMEOUT" envDefault:"10m"`

	// ResumePolicy selects what happens when saved progress is found:
	// "clamp" resumes at the furthest verified step, "restart" discards
	// the saved progress.
	ResumePolicy string `env:"MAILAGENT_RESUME_POLICY" envDefault:"clamp"`

	// LogLevel sets the minimum log level (debug, info, warn, error).
	LogLevel string `env:"MAILAGENT_LOG_LEVEL" envDefault:"info"`

	// LogFormat selects the log output format (text, json).
	LogFormat string `env:"MAILAGENT_LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from a .env file (when present) and the
// environment. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the agent cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend URL %q", c.BackendURL)
	}

	if c.ResumePolicy != ResumePolicyClamp && c.ResumePolicy != ResumePolicyRestart {
		return fmt.Errorf("invalid resume policy %q, must be %q or %q",
			c.ResumePolicy, ResumePolicyClamp, ResumePolicyRestart)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}

	if c.LinkTimeout <= 0 {
		return fmt.Errorf("link timeout must be positive, got %s", c.LinkTimeout)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}

	return nil
}
