// Package config loads gracekeeper's configuration from a YAML file,
// environment variables, and built-in defaults, the same layered precedence
// the teacher repository uses for its own server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is gracekeeper's complete static configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (GRACEKEEPER_*, highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// See Load for when environment variables are consulted. cmd/gracectl does
// not use this package; it takes its settings from its own flags.
type Config struct {
	// NodeID identifies this process in the grace object's node map. If
	// empty, the host binary falls back to the local hostname.
	NodeID string `mapstructure:"nodeid" yaml:"nodeid"`

	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store" yaml:"object_store"`
	Notify      NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	Engine      EngineConfig      `mapstructure:"engine" yaml:"engine"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format selects the log output encoding.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ObjectStoreConfig configures the S3-compatible backing store and the
// grace object within it.
type ObjectStoreConfig struct {
	// Bucket is the S3 bucket holding the grace object.
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`

	// Region is the AWS region (or region hint for an S3-compatible
	// endpoint).
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// stores (MinIO, localstack, etc). Empty uses the default AWS
	// resolver.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix is prepended to every object key, for sharing a bucket
	// across environments or clusters.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// Object is the well-known name of the grace object. Default: "grace".
	Object string `mapstructure:"object" yaml:"object"`
}

// NotifyConfig configures the best-effort notify/watch channel.
type NotifyConfig struct {
	// Enabled controls whether a Redis notifier is constructed at all.
	// When false, the engine runs notify-free: every node falls back to
	// discovering state changes on its own read cadence.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the Redis server address (host:port).
	Addr string `mapstructure:"addr" validate:"required_if=Enabled true" yaml:"addr"`

	// ChannelPrefix is prepended to the grace object name to form the
	// Pub/Sub channel name.
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix,omitempty"`
}

// EngineConfig configures the grace protocol engine's tunables, mirroring
// graceengine.Config.
type EngineConfig struct {
	// MaxNodeMapEntries bounds the node-map scan performed on every read.
	MaxNodeMapEntries int `mapstructure:"max_node_map_entries" validate:"omitempty,gt=0" yaml:"max_node_map_entries,omitempty"`

	// MaxRetries bounds version-conflict retries before giving up.
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,gt=0" yaml:"max_retries,omitempty"`

	// RetryBaseDelay and RetryMaxDelay configure capped exponential
	// backoff between retries.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay,omitempty"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are
	// enabled. When false, no metrics are collected (zero overhead).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`
}

// Load loads configuration from a YAML file overlaid with environment
// variables, with defaults filling any field left empty, then validates it.
// When no config file is found, Load returns GetDefaultConfig() as is:
// environment variables are not consulted and no validation is run. When a
// file is found, an environment variable overrides only a key that also
// appears in the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper wires up environment variable and config-file search
// behavior. Environment variables use the GRACEKEEPER_ prefix, with "."
// replaced by "_" (e.g. GRACEKEEPER_OBJECT_STORE_BUCKET).
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GRACEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if present. A missing file
// is not an error: callers fall back to GetDefaultConfig.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the mapstructure decode hooks applied when
// unmarshaling into Config.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

// durationDecodeHook converts strings and numbers to time.Duration so
// config files can use human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME or
// ~/.config, falling back to the current directory.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gracekeeper")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gracekeeper")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
