package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is written by Persist when no config file was loaded
const DefaultConfigFile = "config.yaml"

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return Load("")
}

// Load creates a configuration instance. An explicit path bypasses the
// search directories and must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/llm-mail-triage/")
		v.AddConfigPath("$HOME/.llm-mail-triage")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Triage defaults
	v.SetDefault("triage.priority_threshold", 0.7)
	v.SetDefault("triage.archive_threshold", 0.3)
	v.SetDefault("triage.fallback_to_defaults", false)
	v.SetDefault("triage.concurrency", 8)
	v.SetDefault("triage.flag_floor", 0.75)
	v.SetDefault("triage.weights.sender", 0.30)
	v.SetDefault("triage.weights.urgency", 0.25)
	v.SetDefault("triage.weights.category", 0.15)
	v.SetDefault("triage.weights.recency", 0.15)
	v.SetDefault("triage.weights.thread", 0.10)
	v.SetDefault("triage.weights.flagged", 0.05)

	// Learning defaults
	v.SetDefault("learning.damping", 0.1)
	v.SetDefault("learning.keyword_step", 0.05)
	v.SetDefault("learning.insights_top_n", 10)
	v.SetDefault("learning.autosave", true)

	// Spam defaults
	v.SetDefault("spam.provider", "heuristic")
	v.SetDefault("spam.threshold", 0.7)
	v.SetDefault("spam.whitelisted_domains", []string{})
	v.SetDefault("spam.cache.enabled", true)
	v.SetDefault("spam.cache.ttl", "24h")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.snapshot_ttl", "720h")
	v.SetDefault("store.cleanup_frequency", "1h")
	v.SetDefault("store.sqlite_path", "/data/mail_triage.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/mail_triage")

	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.block_spam", false)
	v.SetDefault("server.headers.decision", "X-Triage-Decision")
	v.SetDefault("server.headers.score", "X-Attention-Score")
	v.SetDefault("server.headers.reason", "X-Attention-Reason")
	v.SetDefault("server.postfix.enabled", true)
	v.SetDefault("server.postfix.address", "localhost")
	v.SetDefault("server.postfix.port", 10026)

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_address", "127.0.0.1:8025")
	v.SetDefault("api.token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// Set overrides a configuration value in memory
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// Persist writes the current configuration to path, or to the loaded
// config file when path is empty
func (c *Config) Persist(path string) (string, error) {
	if path == "" {
		path = c.v.ConfigFileUsed()
	}
	if path == "" {
		path = DefaultConfigFile
	}
	if err := c.v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return path, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
