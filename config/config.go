// Package config loads runtime configuration for the terminal front end and
// the examples: environment variables layered over an optional YAML file,
// with sensible defaults for local development.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Intent     IntentConfig     `mapstructure:"intent"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	DevMode    bool             `mapstructure:"dev_mode"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
}

// ModelConfig selects and credentials the chat model.
type ModelConfig struct {
	// Provider is "openai", "anthropic" or "mock".
	Provider string `mapstructure:"provider"`
	// Name overrides the provider's default model.
	Name            string  `mapstructure:"name"`
	Temperature     float64 `mapstructure:"temperature"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
}

// PostgresConfig configures the durable checkpoint store. An empty URL keeps
// conversations in memory.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// QdrantConfig configures the optional vector index backend for intent
// matching.
type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
}

// IntentConfig tunes intent candidate selection.
type IntentConfig struct {
	Threshold         float64 `mapstructure:"threshold"`
	ThresholdNeighbor float64 `mapstructure:"threshold_neighbor"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is "text" or "json".
	Format string `mapstructure:"format"`
}

// SupervisorConfig names the root agent presented by the CLI.
type SupervisorConfig struct {
	Name         string `mapstructure:"name"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// Load reads configuration from the given file path, falling back to
// ./config.yaml, with environment variables (MODEL_PROVIDER, POSTGRES_URL,
// QDRANT_HOST, ...) taking precedence over both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file is fine; defaults plus environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.name", "")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.openai_api_key", "")
	v.SetDefault("model.anthropic_api_key", "")

	v.SetDefault("postgres.url", "")

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", "intents")

	v.SetDefault("intent.threshold", 0.85)
	v.SetDefault("intent.threshold_neighbor", 0.05)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("dev_mode", false)

	v.SetDefault("supervisor.name", "Supervisor")
	v.SetDefault("supervisor.system_prompt", "")
}

// Validate rejects configurations that cannot produce a working agent.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	if c.Intent.Threshold < 0 || c.Intent.Threshold > 1 {
		return fmt.Errorf("intent threshold %v outside [0, 1]", c.Intent.Threshold)
	}
	if c.Intent.ThresholdNeighbor < 0 || c.Intent.ThresholdNeighbor > 1 {
		return fmt.Errorf("intent threshold_neighbor %v outside [0, 1]", c.Intent.ThresholdNeighbor)
	}

	if c.Qdrant.Enabled && c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant enabled without a host")
	}
	return nil
}
