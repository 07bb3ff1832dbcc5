package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// TriageConfig represents the scoring configuration
type TriageConfig struct {
	Weights     core.Weights
	FlagFloor   float64
	Concurrency int
}

// LearningConfig represents the feedback learning configuration
type LearningConfig struct {
	Damping      float64
	KeywordStep  float64
	InsightsTopN int
	Autosave     bool
}

// SpamConfig represents the spam classification configuration
type SpamConfig struct {
	Provider           string
	Threshold          float64
	WhitelistedDomains []string
	CacheEnabled       bool
	CacheTTL           time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// StoreConfig represents the persistence configuration
type StoreConfig struct {
	Type             string
	SnapshotTTL      time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// HeaderConfig names the headers stamped on filtered mail
type HeaderConfig struct {
	Decision string
	Score    string
	Reason   string
}

// PostfixConfig represents the relay back to Postfix
type PostfixConfig struct {
	Enabled bool
	Address string
	Port    int
}

// ServerConfig represents the mail filter configuration
type ServerConfig struct {
	FilterType    string
	ListenAddress string
	BlockSpam     bool
	Headers       HeaderConfig
	Postfix       PostfixConfig
}

// APIConfig represents the HTTP API configuration
type APIConfig struct {
	Enabled       bool
	ListenAddress string
	Token         string
}

// GetThresholds returns the configured decision thresholds. Out-of-range
// values are an error unless triage.fallback_to_defaults is set, in which
// case the defaults are returned and a warning is logged.
func (c *Config) GetThresholds(logger *zap.Logger) (core.Thresholds, error) {
	t, err := core.NewThresholds(
		c.GetFloat64("triage.priority_threshold"),
		c.GetFloat64("triage.archive_threshold"),
	)
	if err == nil {
		return t, nil
	}
	if !c.GetBool("triage.fallback_to_defaults") {
		return core.Thresholds{}, err
	}
	if logger != nil {
		logger.Warn("Invalid thresholds in configuration, using defaults", zap.Error(err))
	}
	return core.DefaultThresholds(), nil
}

// SetThresholds stores validated thresholds in memory
func (c *Config) SetThresholds(t core.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.Set("triage.priority_threshold", t.Priority)
	c.Set("triage.archive_threshold", t.Archive)
	return nil
}

// GetTriage returns the scoring configuration
func (c *Config) GetTriage() (TriageConfig, error) {
	w := core.Weights{
		Sender:   c.GetFloat64("triage.weights.sender"),
		Urgency:  c.GetFloat64("triage.weights.urgency"),
		Category: c.GetFloat64("triage.weights.category"),
		Recency:  c.GetFloat64("triage.weights.recency"),
		Thread:   c.GetFloat64("triage.weights.thread"),
		Flagged:  c.GetFloat64("triage.weights.flagged"),
	}
	if err := w.Validate(); err != nil {
		return TriageConfig{}, err
	}
	return TriageConfig{
		Weights:     w,
		FlagFloor:   c.GetFloat64("triage.flag_floor"),
		Concurrency: c.GetInt("triage.concurrency"),
	}, nil
}

// GetLearning returns the learning configuration
func (c *Config) GetLearning() LearningConfig {
	return LearningConfig{
		Damping:      c.GetFloat64("learning.damping"),
		KeywordStep:  c.GetFloat64("learning.keyword_step"),
		InsightsTopN: c.GetInt("learning.insights_top_n"),
		Autosave:     c.GetBool("learning.autosave"),
	}
}

// GetSpam returns the spam classification configuration
func (c *Config) GetSpam() (SpamConfig, error) {
	ttl, err := c.GetDuration("spam.cache.ttl")
	if err != nil {
		return SpamConfig{}, err
	}
	threshold := c.GetFloat64("spam.threshold")
	if threshold < 0 || threshold > 1 {
		return SpamConfig{}, &core.ConfigurationError{Field: "spam.threshold", Value: threshold}
	}
	return SpamConfig{
		Provider:           c.GetString("spam.provider"),
		Threshold:          threshold,
		WhitelistedDomains: c.GetStringSlice("spam.whitelisted_domains"),
		CacheEnabled:       c.GetBool("spam.cache.enabled"),
		CacheTTL:           ttl,
	}, nil
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetStore returns the persistence configuration
func (c *Config) GetStore() (StoreConfig, error) {
	ttl, err := c.GetDuration("store.snapshot_ttl")
	if err != nil {
		return StoreConfig{}, err
	}
	cleanup, err := c.GetDuration("store.cleanup_frequency")
	if err != nil {
		return StoreConfig{}, err
	}
	return StoreConfig{
		Type:             c.GetString("store.type"),
		SnapshotTTL:      ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
	}, nil
}

// GetServer returns the mail filter configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:    c.GetString("server.filter_type"),
		ListenAddress: c.GetString("server.listen_address"),
		BlockSpam:     c.GetBool("server.block_spam"),
		Headers: HeaderConfig{
			Decision: c.GetString("server.headers.decision"),
			Score:    c.GetString("server.headers.score"),
			Reason:   c.GetString("server.headers.reason"),
		},
		Postfix: PostfixConfig{
			Enabled: c.GetBool("server.postfix.enabled"),
			Address: c.GetString("server.postfix.address"),
			Port:    c.GetInt("server.postfix.port"),
		},
	}
}

// GetAPI returns the HTTP API configuration
func (c *Config) GetAPI() APIConfig {
	return APIConfig{
		Enabled:       c.GetBool("api.enabled"),
		ListenAddress: c.GetString("api.listen_address"),
		Token:         c.GetString("api.token"),
	}
}

// Validate checks every section that can be checked without side effects
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.GetThresholds(nil); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GetTriage(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GetSpam(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GetStore(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
