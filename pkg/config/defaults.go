package config

import (
	"os"
	"strings"

	"github.com/nfscluster/gracekeeper/pkg/graceengine"
)

// ApplyDefaults fills in any unspecified fields with sensible defaults. It
// is called after loading from file and environment, before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.NodeID = host
		}
	}

	applyLoggingDefaults(&cfg.Logging)
	applyObjectStoreDefaults(&cfg.ObjectStore)
	applyNotifyDefaults(&cfg.Notify)
	applyEngineDefaults(&cfg.Engine)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyObjectStoreDefaults(cfg *ObjectStoreConfig) {
	if cfg.Object == "" {
		cfg.Object = "grace"
	}
}

func applyNotifyDefaults(cfg *NotifyConfig) {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "gracekeeper:"
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.MaxNodeMapEntries == 0 {
		cfg.MaxNodeMapEntries = graceengine.DefaultMaxNodeMapEntries
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = graceengine.DefaultMaxRetries
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = graceengine.DefaultRetryBaseDelay
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = graceengine.DefaultRetryMaxDelay
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config with every default applied, used when
// no config file is found at all.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// GraceEngineConfig converts this package's EngineConfig into
// graceengine.Config, binding in the well-known object name.
func (c *Config) GraceEngineConfig() graceengine.Config {
	return graceengine.Config{
		ObjectName:        c.ObjectStore.Object,
		MaxNodeMapEntries: c.Engine.MaxNodeMapEntries,
		MaxRetries:        c.Engine.MaxRetries,
		RetryBaseDelay:    c.Engine.RetryBaseDelay,
		RetryMaxDelay:     c.Engine.RetryMaxDelay,
	}
}
