// Package config provides configuration loading for the effect
// execution core's binaries.
//
// Configuration is loaded from a single file specified by:
//   - EFFECT_CORE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment type.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for effect-run and
// effect-worker.
type Config struct {
	// Environment selects which *ConfigOverrides section applies.
	Environment Environment `yaml:"environment"`

	// APIBaseURL is the value injected into the container as
	// HERCULES_CI_API_BASE_URL.
	APIBaseURL string `yaml:"api_base_url"`

	Runtime     BinaryConfig      `yaml:"runtime"`
	Worker      BinaryConfig      `yaml:"worker"`
	LogPipeline LogPipelineConfig `yaml:"log_pipeline"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Runtime     *BinaryConfig      `yaml:"runtime,omitempty"`
	Worker      *BinaryConfig      `yaml:"worker,omitempty"`
	LogPipeline *LogPipelineConfig `yaml:"log_pipeline,omitempty"`
}

// BinaryConfig names a binary and the well-known fallback directory
// consulted when PATH lookup fails; see lib/runtimebin.
type BinaryConfig struct {
	Name        string `yaml:"name"`
	FallbackDir string `yaml:"fallback_dir"`
}

// LogPipelineConfig tunes the log-shipping pipeline's batching.
type LogPipelineConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
}

// FlushIntervalDuration parses FlushInterval, defaulting to 1 second
// if unset or invalid.
func (l LogPipelineConfig) FlushIntervalDuration() time.Duration {
	if l.FlushInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(l.FlushInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// Default returns the default configuration. These defaults ensure
// all fields have sensible zero-values before the config file is
// applied; they are not a fallback for a missing file.
func Default() *Config {
	return &Config{
		Environment: Development,
		APIBaseURL:  "https://hercules-ci.com",
		Runtime: BinaryConfig{
			Name:        "runc",
			FallbackDir: "/nix/var/nix/profiles/default/bin",
		},
		Worker: BinaryConfig{
			Name:        "hercules-ci-effect-worker",
			FallbackDir: "/nix/var/nix/profiles/default/bin",
		},
		LogPipeline: LogPipelineConfig{
			BatchSize:     256,
			FlushInterval: "1s",
		},
	}
}

// Load loads configuration from the EFFECT_CORE_CONFIG environment
// variable. There are no fallbacks: if it is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("EFFECT_CORE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("EFFECT_CORE_CONFIG environment variable not set; " +
			"set it to the path of your effect-core.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Runtime != nil {
		if overrides.Runtime.Name != "" {
			c.Runtime.Name = overrides.Runtime.Name
		}
		if overrides.Runtime.FallbackDir != "" {
			c.Runtime.FallbackDir = overrides.Runtime.FallbackDir
		}
	}
	if overrides.Worker != nil {
		if overrides.Worker.Name != "" {
			c.Worker.Name = overrides.Worker.Name
		}
		if overrides.Worker.FallbackDir != "" {
			c.Worker.FallbackDir = overrides.Worker.FallbackDir
		}
	}
	if overrides.LogPipeline != nil {
		if overrides.LogPipeline.BatchSize != 0 {
			c.LogPipeline.BatchSize = overrides.LogPipeline.BatchSize
		}
		if overrides.LogPipeline.FlushInterval != "" {
			c.LogPipeline.FlushInterval = overrides.LogPipeline.FlushInterval
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.APIBaseURL == "" {
		errs = append(errs, fmt.Errorf("api_base_url is required"))
	}
	if c.Runtime.Name == "" {
		errs = append(errs, fmt.Errorf("runtime.name is required"))
	}
	if c.Worker.Name == "" {
		errs = append(errs, fmt.Errorf("worker.name is required"))
	}
	if c.LogPipeline.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("log_pipeline.batch_size must be positive"))
	}
	if c.LogPipeline.FlushInterval != "" {
		if _, err := time.ParseDuration(c.LogPipeline.FlushInterval); err != nil {
			errs = append(errs, fmt.Errorf("log_pipeline.flush_interval: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
