// ABOUTME: Configuration loading and parsing for the operator console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete console configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Operator      OperatorConfig      `yaml:"operator"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds backend endpoint configuration
type ServerConfig struct {
	// APIBaseURL is the admin REST API root, e.g. https://ops.example.com/api/admin
	APIBaseURL string `yaml:"api_base_url"`
	// WSURL is the admin WebSocket endpoint, e.g. wss://ops.example.com/ws/admin
	WSURL string `yaml:"ws_url"`
}

// OperatorConfig identifies the operator running this console
type OperatorConfig struct {
	AdminID string `yaml:"admin_id"`
	// Token is the bearer credential. Use ${OPSDESK_TOKEN} to pull it from
	// the environment; TokenFile takes precedence when both are set.
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// ConnectionConfig holds sync timing configuration
type ConnectionConfig struct {
	ListPoll   time.Duration `yaml:"-"`
	DetailPoll time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ListPollRaw   string `yaml:"list_poll"`
	DetailPollRaw string `yaml:"detail_poll"`
}

// NotificationsConfig controls incoming-message notifications
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File receives log output; empty logs to stderr.
	File string `yaml:"file"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.APIBaseURL == "" {
		return fmt.Errorf("server.api_base_url is required")
	}
	if c.Server.WSURL == "" {
		return fmt.Errorf("server.ws_url is required")
	}
	if c.Operator.AdminID == "" {
		return fmt.Errorf("operator.admin_id is required")
	}
	return nil
}

// ResolveToken returns the operator's bearer credential. A token file wins
// over an inline token so credentials can stay out of the config.
func (c *Config) ResolveToken() (string, error) {
	if c.Operator.TokenFile != "" {
		data, err := os.ReadFile(c.Operator.TokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return c.Operator.Token, nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Connection.ListPollRaw != "" {
		cfg.Connection.ListPoll, err = time.ParseDuration(cfg.Connection.ListPollRaw)
		if err != nil {
			return fmt.Errorf("parsing list_poll %q: %w", cfg.Connection.ListPollRaw, err)
		}
	}

	if cfg.Connection.DetailPollRaw != "" {
		cfg.Connection.DetailPoll, err = time.ParseDuration(cfg.Connection.DetailPollRaw)
		if err != nil {
			return fmt.Errorf("parsing detail_poll %q: %w", cfg.Connection.DetailPollRaw, err)
		}
	}

	return nil
}
