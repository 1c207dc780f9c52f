// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Research  ResearchConfig  `mapstructure:"research"`
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ResearchConfig governs the research pipeline and worker pool.
type ResearchConfig struct {
	Concurrency       int    `mapstructure:"concurrency"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	CorpusByteBudget  int    `mapstructure:"corpus_byte_budget"`
	StaleAfterMinutes int    `mapstructure:"stale_after_minutes"`
	SweepSeconds      int    `mapstructure:"sweep_seconds"`
	EventTopic        string `mapstructure:"event_topic"`
}

// FirecrawlConfig holds the content acquisition service connection.
type FirecrawlConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	WaitForMillis  int    `mapstructure:"wait_for_ms"`
}

// AnthropicConfig holds the extraction model settings.
type AnthropicConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	MaxTokens      int64  `mapstructure:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig sets the corpus archive destination.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("research.concurrency", 4)
	v.SetDefault("research.queue_depth", 64)
	v.SetDefault("research.corpus_byte_budget", 100000)
	v.SetDefault("research.stale_after_minutes", 15)
	v.SetDefault("research.sweep_seconds", 60)
	v.SetDefault("research.event_topic", "research-events")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev")
	v.SetDefault("firecrawl.api_key", "")
	v.SetDefault("firecrawl.timeout_seconds", 30)
	v.SetDefault("firecrawl.wait_for_ms", 2000)
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.timeout_seconds", 180)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "corpus")
	v.SetDefault("db.dsn", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Research.Concurrency <= 0 {
		return fmt.Errorf("research.concurrency must be > 0")
	}
	if c.Research.CorpusByteBudget <= 0 {
		return fmt.Errorf("research.corpus_byte_budget must be > 0")
	}
	if c.Firecrawl.BaseURL == "" {
		return fmt.Errorf("firecrawl.base_url is required")
	}
	if c.Firecrawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("firecrawl.timeout_seconds must be > 0")
	}
	if c.Anthropic.MaxTokens <= 0 {
		return fmt.Errorf("anthropic.max_tokens must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// StaleAfter returns the sweeper cutoff as a duration.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Research.StaleAfterMinutes) * time.Minute
}

// SweepInterval returns the sweeper cadence as a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Research.SweepSeconds) * time.Second
}
