// Package config loads the application configuration. Values come, in
// increasing precedence, from built-in defaults, an optional YAML file,
// AGENTFORGE_* environment variables (dots become underscores, e.g.
// AGENTFORGE_SERVER_ADDR) and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTFORGE"

// Config holds all configuration.
type Config struct {
	Log     LogConfig      `mapstructure:"log"`
	Store   StoreConfig    `mapstructure:"store"`
	Blob    BlobConfig     `mapstructure:"blob"`
	Model   ModelConfig    `mapstructure:"model"`
	A2A     A2AConfig      `mapstructure:"a2a"`
	Hosted  HostedConfig   `mapstructure:"hosted"`
	Server  ServerConfig   `mapstructure:"server"`
	Runner  RunnerConfig   `mapstructure:"runner"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"` // json or text
	AddSource bool   `mapstructure:"add_source"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory or sqlite
	DSN    string `mapstructure:"dsn"`
	// Seed is an optional YAML seed file loaded at startup.
	Seed string `mapstructure:"seed"`
}

// BlobConfig configures attachment storage.
type BlobConfig struct {
	// Root serves file:// URIs from this directory when set.
	Root string `mapstructure:"root"`
	// GCSEndpoint overrides the Cloud Storage endpoint (emulators).
	GCSEndpoint string `mapstructure:"gcs_endpoint"`
	// GCSAnonymous skips credential discovery.
	GCSAnonymous bool `mapstructure:"gcs_anonymous"`
	// GCSTokenEnv names an environment variable holding a fixed access token.
	// When it is unset or empty, application default credentials are used.
	GCSTokenEnv string `mapstructure:"gcs_token_env"`
}

// ModelConfig configures model transports.
type ModelConfig struct {
	BedrockRegion string `mapstructure:"bedrock_region"`
	// Mock replaces every transport with an echoing mock model.
	Mock bool `mapstructure:"mock"`
}

// A2AConfig configures the peer agent client.
type A2AConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// HostedConfig configures the hosted agent client.
type HostedConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// TokenEnv names an environment variable holding a fixed access token.
	// When it is unset or empty, application default credentials are used.
	TokenEnv string `mapstructure:"token_env"`
}

// ServerConfig configures the task endpoint.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Rate is the sustained number of accepted tasks per second.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
	// Concurrency bounds dispatches running at once.
	Concurrency int `mapstructure:"concurrency"`
	// Async acknowledges tasks before running them.
	Async           bool          `mapstructure:"async"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RunnerConfig bounds in-process runs.
type RunnerConfig struct {
	MaxModelCalls int `mapstructure:"max_model_calls"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads the configuration. path may be empty. Each bind function can
// attach extra sources to the viper instance, e.g. cobra flags.
func Load(path string, binds ...func(v *viper.Viper) error) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, bind := range binds {
		if err := bind(v); err != nil {
			return nil, fmt.Errorf("binding config source: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported %q", c.Log.Format))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn: required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unsupported %q", c.Store.Driver))
	}

	if c.Server.Rate <= 0 || c.Server.Burst <= 0 {
		errs = append(errs, errors.New("server.rate and server.burst must be positive"))
	}

	if c.Server.Concurrency <= 0 {
		errs = append(errs, errors.New("server.concurrency must be positive"))
	}

	if c.A2A.Timeout <= 0 {
		errs = append(errs, errors.New("a2a.timeout must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.add_source", false)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.seed", "")

	v.SetDefault("blob.root", "")
	v.SetDefault("blob.gcs_endpoint", "")
	v.SetDefault("blob.gcs_anonymous", false)
	v.SetDefault("blob.gcs_token_env", "GCS_ACCESS_TOKEN")

	v.SetDefault("model.bedrock_region", "us-east-1")
	v.SetDefault("model.mock", false)

	v.SetDefault("a2a.timeout", "120s")

	v.SetDefault("hosted.base_url", "https://us-central1-aiplatform.googleapis.com/v1")
	v.SetDefault("hosted.token_env", "HOSTED_ACCESS_TOKEN")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate", 10.0)
	v.SetDefault("server.burst", 20)
	v.SetDefault("server.concurrency", 8)
	v.SetDefault("server.async", false)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("runner.max_model_calls", 100)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
}
