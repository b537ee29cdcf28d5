// Package config loads the full runtime configuration from file,
// environment and flags via viper, applies defaults and validates the
// result before anything else starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sprout/internal/evolution"
)

// Config is the full runtime configuration.
type Config struct {
	Logging       LoggingConfig               `mapstructure:"logging"`
	Storage       StorageConfig               `mapstructure:"storage"`
	Trees         TreesConfig                 `mapstructure:"trees"`
	Stages        evolution.StageConfig       `mapstructure:"stages"`
	Index         evolution.IndexWeights      `mapstructure:"index"`
	Fallback      evolution.FallbackConfig    `mapstructure:"fallback"`
	Coordinator   evolution.CoordinatorConfig `mapstructure:"coordinator"`
	Generator     GeneratorConfig             `mapstructure:"generator"`
	Discovery     DiscoveryConfig             `mapstructure:"discovery"`
	Scheduler     SchedulerConfig             `mapstructure:"scheduler"`
	Server        ServerConfig                `mapstructure:"server"`
	Observability ObservabilityConfig         `mapstructure:"observability"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// StorageConfig points at the persistence directory.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// TreesConfig names the YAML seed files used to bootstrap the graphs when
// no persisted state exists yet.
type TreesConfig struct {
	GeneralSeed string `mapstructure:"general_seed"`
	DomainSeed  string `mapstructure:"domain_seed"`
}

// GeneratorConfig selects the generation collaborator.
type GeneratorConfig struct {
	// Mode is "scripted" (local, offline) or "http" (remote collaborator).
	Mode     string `mapstructure:"mode"`
	Endpoint string `mapstructure:"endpoint"`
	// Seed makes scripted runs reproducible. Zero means random.
	Seed int64 `mapstructure:"seed"`
}

// DiscoveryConfig selects the discovery collaborator.
type DiscoveryConfig struct {
	// Mode is "off" or "http".
	Mode     string `mapstructure:"mode"`
	Endpoint string `mapstructure:"endpoint"`
}

// SchedulerConfig controls the cron-driven cycle trigger.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Spec is a cron expression; Interval is the shorthand alternative.
	// When both are set, Spec wins.
	Spec     string        `mapstructure:"spec"`
	Interval time.Duration `mapstructure:"interval"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr         string   `mapstructure:"addr"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// ObservabilityConfig controls metrics and tracing exports.
type ObservabilityConfig struct {
	MetricsAddr  string `mapstructure:"metrics_addr"`
	TraceEnabled bool   `mapstructure:"trace_enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load unmarshals whatever viper currently holds (file + env + flags),
// fills defaults and validates.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "~/.sprout"
	}

	if len(cfg.Stages.Thresholds) == 0 {
		cfg.Stages.Thresholds = evolution.DefaultStageConfig().Thresholds
	}
	if len(cfg.Stages.Weights) == 0 {
		cfg.Stages.Weights = evolution.DefaultStageConfig().Weights
	}
	if cfg.Index == (evolution.IndexWeights{}) {
		cfg.Index = evolution.DefaultIndexWeights()
	}
	if cfg.Fallback == (evolution.FallbackConfig{}) {
		cfg.Fallback = evolution.DefaultFallbackConfig()
	}

	defaults := evolution.DefaultCoordinatorConfig()
	if cfg.Coordinator.GenerationTimeout <= 0 {
		cfg.Coordinator.GenerationTimeout = defaults.GenerationTimeout
	}
	if cfg.Coordinator.DiscoveryEvery == 0 {
		cfg.Coordinator.DiscoveryEvery = defaults.DiscoveryEvery
	}
	if cfg.Coordinator.OutcomeCacheSize <= 0 {
		cfg.Coordinator.OutcomeCacheSize = defaults.OutcomeCacheSize
	}

	if cfg.Generator.Mode == "" {
		cfg.Generator.Mode = "scripted"
	}
	if cfg.Discovery.Mode == "" {
		cfg.Discovery.Mode = "off"
	}

	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = time.Minute
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8820"
	}
	if len(cfg.Server.AllowOrigins) == 0 {
		cfg.Server.AllowOrigins = []string{"*"}
	}

	if cfg.Observability.MetricsAddr == "" {
		cfg.Observability.MetricsAddr = ":9464"
	}
}

// Validate rejects configurations the runtime cannot act on.
func (c *Config) Validate() error {
	if err := c.Stages.Validate(); err != nil {
		return fmt.Errorf("stages: %w", err)
	}

	switch c.Generator.Mode {
	case "scripted":
	case "http":
		if strings.TrimSpace(c.Generator.Endpoint) == "" {
			return fmt.Errorf("generator: http mode requires an endpoint")
		}
	default:
		return fmt.Errorf("generator: unknown mode %q", c.Generator.Mode)
	}

	switch c.Discovery.Mode {
	case "off":
	case "http":
		if strings.TrimSpace(c.Discovery.Endpoint) == "" {
			return fmt.Errorf("discovery: http mode requires an endpoint")
		}
	default:
		return fmt.Errorf("discovery: unknown mode %q", c.Discovery.Mode)
	}

	if c.Fallback.Tier3Failures <= c.Fallback.Tier2Failures {
		return fmt.Errorf("fallback: tier3_failures must exceed tier2_failures")
	}
	if c.Fallback.DecayStep < 0 {
		return fmt.Errorf("fallback: decay_step must not be negative")
	}
	if c.Fallback.DecayFloor > 0 {
		return fmt.Errorf("fallback: decay_floor must not be positive")
	}

	sum := c.Index.Breadth + c.Index.Depth + c.Index.Tier + c.Index.Mastery
	if sum <= 0 {
		return fmt.Errorf("index: weights must sum to a positive value")
	}

	if c.Observability.TraceEnabled && strings.TrimSpace(c.Observability.OTLPEndpoint) == "" {
		return fmt.Errorf("observability: tracing requires an otlp_endpoint")
	}
	return nil
}

// BindDefaults registers every key with viper so env overrides resolve even
// without a config file. Env vars use the SPROUT_ prefix with underscores,
// e.g. SPROUT_SERVER_ADDR.
func BindDefaults(v *viper.Viper) {
	v.SetEnvPrefix("SPROUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("logging.level", "info")
	v.SetDefault("storage.dir", "~/.sprout")
	v.SetDefault("generator.mode", "scripted")
	v.SetDefault("discovery.mode", "off")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("server.addr", ":8820")
	v.SetDefault("observability.metrics_addr", ":9464")
	v.SetDefault("observability.trace_enabled", false)
}
