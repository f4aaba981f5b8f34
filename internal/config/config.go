package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/al-bashkir/securelog/internal/formatter"
	"github.com/al-bashkir/securelog/internal/redact"
	"github.com/al-bashkir/securelog/internal/sensitive"
)

// Config represents the complete application configuration
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	TLS       TLSConfig       `yaml:"tls"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Redaction RedactionConfig `yaml:"redaction"`
	Output    OutputConfig    `yaml:"output"`
	Log       LogConfig       `yaml:"log"`
}

// ListenConfig defines where the daemon accepts log events
type ListenConfig struct {
	HTTP   string `yaml:"http"`   // HTTP ingest address (e.g., ":9020"); empty disables HTTP
	Socket string `yaml:"socket"` // Unix socket path; empty disables the socket
}

// TLSConfig defines TLS settings for the HTTP server
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// IngestConfig defines limits and authentication for the HTTP ingest endpoint
type IngestConfig struct {
	MaxBodyBytes int64      `yaml:"max_body_bytes"` // decompressed request body cap
	RateLimit    float64    `yaml:"rate_limit"`     // requests per second per client IP
	Burst        int        `yaml:"burst"`
	Auth         AuthConfig `yaml:"auth"`
}

// AuthConfig selects how HTTP producers authenticate
type AuthConfig struct {
	Mode          string   `yaml:"mode"`           // none, api_key, oidc
	APIKeyHashes  []string `yaml:"api_key_hashes"` // bcrypt hashes (see `securelog hash-key`)
	Issuer        string   `yaml:"issuer"`         // OIDC issuer URL
	Audience      string   `yaml:"audience"`       // expected token audience
	RoleClaim     string   `yaml:"role_claim"`     // dotted claim path holding roles
	RequiredRoles []string `yaml:"required_roles"` // producer needs at least one
}

// RedactionConfig defines the sensitive key set and tree limits
type RedactionConfig struct {
	SensitiveKeys []string `yaml:"sensitive_keys"` // replaces the built-in list when non-empty
	ExtraKeys     []string `yaml:"extra_keys"`     // added to the resulting list
	MaxDepth      int      `yaml:"max_depth"`
	MaxNodes      int      `yaml:"max_nodes"`
}

// OutputConfig defines where formatted records are written
type OutputConfig struct {
	Path       string `yaml:"path"` // empty or "-" writes to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// LogConfig defines logging settings for the process's own logs
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // secure, json, text
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied. It is
// used by commands that can run without a configuration file.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			HTTP:   "127.0.0.1:9020",
			Socket: "/run/securelog/ingest.sock",
		},
		Ingest: IngestConfig{
			MaxBodyBytes: 1 << 20, // 1 MiB
			RateLimit:    10,
			Burst:        50,
			Auth: AuthConfig{
				Mode:      "none",
				RoleClaim: "realm_access.roles",
			},
		},
		Redaction: RedactionConfig{
			MaxDepth: redact.DefaultMaxDepth,
			MaxNodes: redact.DefaultMaxNodes,
		},
		Output: OutputConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "secure",
		},
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	// Redaction overrides
	if v := os.Getenv(sensitive.EnvVar); strings.TrimSpace(v) != "" {
		c.Redaction.SensitiveKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("SECURELOG_REDACTION_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redaction.MaxDepth = n
		}
	}

	// Log overrides
	if v := os.Getenv("SECURELOG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SECURELOG_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// Listen overrides
	if v := os.Getenv("SECURELOG_LISTEN_HTTP"); v != "" {
		c.Listen.HTTP = v
	}
	if v := os.Getenv("SECURELOG_LISTEN_SOCKET"); v != "" {
		c.Listen.Socket = v
	}

	// Output overrides
	if v := os.Getenv("SECURELOG_OUTPUT_PATH"); v != "" {
		c.Output.Path = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Validate listen config
	if c.Listen.HTTP == "" && c.Listen.Socket == "" {
		return fmt.Errorf("at least one of listen.http or listen.socket is required")
	}

	// Validate TLS config
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}

		// Check if files exist
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("tls.cert_file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("tls.key_file not found: %w", err)
		}
	}

	// Validate ingest config
	if c.Ingest.MaxBodyBytes <= 0 {
		return fmt.Errorf("ingest.max_body_bytes must be positive")
	}
	if c.Ingest.RateLimit <= 0 || c.Ingest.Burst <= 0 {
		return fmt.Errorf("ingest.rate_limit and ingest.burst must be positive")
	}
	switch c.Ingest.Auth.Mode {
	case "none":
	case "api_key":
		if len(c.Ingest.Auth.APIKeyHashes) == 0 {
			return fmt.Errorf("ingest.auth.api_key_hashes is required when auth mode is api_key")
		}
		for _, h := range c.Ingest.Auth.APIKeyHashes {
			if !strings.HasPrefix(h, "$2") {
				return fmt.Errorf("ingest.auth.api_key_hashes must contain bcrypt hashes")
			}
		}
	case "oidc":
		if !strings.HasPrefix(c.Ingest.Auth.Issuer, "http://") && !strings.HasPrefix(c.Ingest.Auth.Issuer, "https://") {
			return fmt.Errorf("ingest.auth.issuer must be a valid HTTP(S) URL")
		}
		if c.Ingest.Auth.Audience == "" {
			return fmt.Errorf("ingest.auth.audience is required when auth mode is oidc")
		}
		if len(c.Ingest.Auth.RequiredRoles) > 0 && c.Ingest.Auth.RoleClaim == "" {
			return fmt.Errorf("ingest.auth.role_claim is required when required_roles is set")
		}
	default:
		return fmt.Errorf("ingest.auth.mode must be one of: none, api_key, oidc")
	}

	// Validate redaction config
	if c.Redaction.MaxDepth <= 0 || c.Redaction.MaxDepth > 1000 {
		return fmt.Errorf("redaction.max_depth must be between 1 and 1000")
	}
	if c.Redaction.MaxNodes <= 0 {
		return fmt.Errorf("redaction.max_nodes must be positive")
	}

	// Validate output config
	if c.Output.MaxSizeMB < 0 || c.Output.MaxBackups < 0 || c.Output.MaxAgeDays < 0 {
		return fmt.Errorf("output rotation settings must not be negative")
	}

	// Validate log config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"secure": true,
		"json":   true,
		"text":   true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: secure, json, text")
	}

	return nil
}

// KeySet builds the sensitive key set. It is called once at startup and the
// result is shared by every component.
func (c *Config) KeySet() *sensitive.KeySet {
	var keys *sensitive.KeySet
	if len(c.Redaction.SensitiveKeys) > 0 {
		keys = sensitive.New(c.Redaction.SensitiveKeys...)
	} else {
		keys = sensitive.Default()
	}
	if len(c.Redaction.ExtraKeys) > 0 {
		keys = keys.With(c.Redaction.ExtraKeys...)
	}
	return keys
}

// Limits returns the redaction limits.
func (c *Config) Limits() redact.Limits {
	return redact.Limits{MaxDepth: c.Redaction.MaxDepth, MaxNodes: c.Redaction.MaxNodes}
}

// SetupLogging configures the global slog logger based on the LogConfig.
// The secure format runs the process's own logs through the formatter
// built from keys and limits.
func SetupLogging(cfg *LogConfig, keys *sensitive.KeySet, limits redact.Limits) {
	slog.SetDefault(NewLogger(os.Stderr, cfg, keys, limits))
}

// NewLogger builds the logger SetupLogging installs, writing to w.
func NewLogger(w io.Writer, cfg *LogConfig, keys *sensitive.KeySet, limits redact.Limits) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = formatter.NewHandler(w, formatter.New(keys, formatter.WithLimits(limits)), &formatter.HandlerOptions{
			Level: level,
			Name:  "securelog",
		})
	}

	return slog.New(handler)
}

// Redact returns a deep-enough copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	// Deep copy slices to avoid sharing underlying arrays with the original
	if c.Redaction.SensitiveKeys != nil {
		redacted.Redaction.SensitiveKeys = append([]string(nil), c.Redaction.SensitiveKeys...)
	}
	if c.Redaction.ExtraKeys != nil {
		redacted.Redaction.ExtraKeys = append([]string(nil), c.Redaction.ExtraKeys...)
	}
	if c.Ingest.Auth.RequiredRoles != nil {
		redacted.Ingest.Auth.RequiredRoles = append([]string(nil), c.Ingest.Auth.RequiredRoles...)
	}
	if len(c.Ingest.Auth.APIKeyHashes) > 0 {
		redacted.Ingest.Auth.APIKeyHashes = make([]string, len(c.Ingest.Auth.APIKeyHashes))
		for i := range redacted.Ingest.Auth.APIKeyHashes {
			redacted.Ingest.Auth.APIKeyHashes[i] = "[REDACTED]"
		}
	}
	return &redacted
}
