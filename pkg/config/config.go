// Package config loads the chatproxy configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBind             = "127.0.0.1:8000"
	DefaultProvider         = "grok"
	DefaultQueueDepth       = 16
	DefaultJobTimeout       = 120 * time.Second
	DefaultPollInterval     = 1 * time.Second
	DefaultStableSamples    = 3
	DefaultStartAttempts    = 3
	DefaultRequestsPerMin   = 12
	DefaultProfileDir       = "browser_profile"
	DefaultLogDir           = "logs"
	DefaultHistoryPath      = "history.db"
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultFlattenTemplate  = "[%s] %s"
	DefaultBrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// Config represents the complete chatproxy configuration
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Browser   BrowserConfig             `yaml:"browser"`
	Defaults  ProviderSettings          `yaml:"defaults"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Flatten   FlattenConfig             `yaml:"flatten"`
	History   HistoryConfig             `yaml:"history"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	ForceStream     bool          `yaml:"force_stream"` // always answer /chat/completions as SSE
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BrowserConfig controls the shared automation driver settings.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	UseProfile     bool   `yaml:"use_profile"`
	ProfileDir     string `yaml:"profile_dir"`
	UserAgent      string `yaml:"user_agent"`
	ProxyURL       string `yaml:"proxy_url"`
	ClearOnRestart bool   `yaml:"clear_on_restart"` // wipe the profile dir when a restart is forced
}

// ProviderSettings are the tunables every provider inherits unless overridden.
type ProviderSettings struct {
	JobTimeout     time.Duration `yaml:"job_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	StableSamples  int           `yaml:"stable_samples"`
	QueueDepth     int           `yaml:"queue_depth"`
	StartAttempts  int           `yaml:"start_attempts"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
}

// ProviderConfig overrides settings for a single provider. Zero values
// fall back to Defaults.
type ProviderConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	StableSamples  int           `yaml:"stable_samples"`
	QueueDepth     int           `yaml:"queue_depth"`
	StartAttempts  int           `yaml:"start_attempts"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
}

// FlattenConfig controls multi-turn to single-prompt conversion.
type FlattenConfig struct {
	// Template applied per turn, receives role then content.
	TurnTemplate string `yaml:"turn_template"`
	// Separator between rendered turns.
	Separator string `yaml:"separator"`
	// RepeatFinalUser appends the last user turn unlabeled at prompt end.
	RepeatFinalUser bool `yaml:"repeat_final_user"`
	// Incremental sends only turns not seen in the previous exchange.
	Incremental bool `yaml:"incremental"`
}

// HistoryConfig controls exchange persistence.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:            DefaultBind,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Browser: BrowserConfig{
			Headless:   true,
			UseProfile: true,
			ProfileDir: DefaultProfileDir,
			UserAgent:  DefaultBrowserUserAgent,
		},
		Defaults: ProviderSettings{
			JobTimeout:     DefaultJobTimeout,
			PollInterval:   DefaultPollInterval,
			StableSamples:  DefaultStableSamples,
			QueueDepth:     DefaultQueueDepth,
			StartAttempts:  DefaultStartAttempts,
			RequestsPerMin: DefaultRequestsPerMin,
		},
		Flatten: FlattenConfig{
			TurnTemplate:    DefaultFlattenTemplate,
			Separator:       "\n\n",
			RepeatFinalUser: true,
			Incremental:     true,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    DefaultHistoryPath,
		},
		Logging: LoggingConfig{
			Dir:   DefaultLogDir,
			Level: "info",
		},
	}
}

// Load reads the config from CHATPROXY_CONFIG or ./chatproxy.yaml,
// falling back to defaults when neither exists.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("CHATPROXY_CONFIG"))
	if path == "" {
		path = "chatproxy.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates the config at path.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHATPROXY_BIND")); v != "" {
		cfg.Server.Bind = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATPROXY_HEADLESS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHATPROXY_PROFILE_DIR")); v != "" {
		cfg.Browser.ProfileDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATPROXY_PROXY_URL")); v != "" {
		cfg.Browser.ProxyURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATPROXY_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATPROXY_HISTORY_PATH")); v != "" {
		cfg.History.Path = v
		cfg.History.Enabled = true
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return fmt.Errorf("server.bind must not be empty")
	}
	if c.Defaults.QueueDepth <= 0 {
		return fmt.Errorf("defaults.queue_depth must be positive, got %d", c.Defaults.QueueDepth)
	}
	if c.Defaults.PollInterval <= 0 {
		return fmt.Errorf("defaults.poll_interval must be positive")
	}
	if c.Defaults.StableSamples <= 0 {
		return fmt.Errorf("defaults.stable_samples must be positive")
	}
	for name, p := range c.Providers {
		if p.QueueDepth < 0 {
			return fmt.Errorf("providers.%s.queue_depth must not be negative", name)
		}
	}
	return nil
}

// SettingsFor resolves the effective settings for a provider, merging the
// per-provider override onto Defaults.
func (c *Config) SettingsFor(provider string) ProviderSettings {
	out := c.Defaults
	p, ok := c.Providers[provider]
	if !ok {
		return out
	}
	if p.JobTimeout > 0 {
		out.JobTimeout = p.JobTimeout
	}
	if p.PollInterval > 0 {
		out.PollInterval = p.PollInterval
	}
	if p.StableSamples > 0 {
		out.StableSamples = p.StableSamples
	}
	if p.QueueDepth > 0 {
		out.QueueDepth = p.QueueDepth
	}
	if p.StartAttempts > 0 {
		out.StartAttempts = p.StartAttempts
	}
	if p.RequestsPerMin > 0 {
		out.RequestsPerMin = p.RequestsPerMin
	}
	return out
}

// ProviderEnabled reports whether a provider is switched on. Providers are
// enabled by default; an explicit `enabled: false` disables one.
func (c *Config) ProviderEnabled(provider string) bool {
	p, ok := c.Providers[provider]
	if !ok || p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// ProfilePath returns the absolute browser profile directory, or empty when
// profile reuse is disabled.
func (c *Config) ProfilePath() string {
	if !c.Browser.UseProfile {
		return ""
	}
	if filepath.IsAbs(c.Browser.ProfileDir) {
		return c.Browser.ProfileDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return c.Browser.ProfileDir
	}
	return filepath.Join(wd, c.Browser.ProfileDir)
}
