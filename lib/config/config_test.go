package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Runtime.Name != "runc" {
		t.Errorf("Runtime.Name = %s, want runc", cfg.Runtime.Name)
	}
	if cfg.LogPipeline.BatchSize != 256 {
		t.Errorf("LogPipeline.BatchSize = %d, want 256", cfg.LogPipeline.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadRequiresEffectCoreConfig(t *testing.T) {
	t.Setenv("EFFECT_CORE_CONFIG", "")
	os.Unsetenv("EFFECT_CORE_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail when EFFECT_CORE_CONFIG is unset")
	}
}

func TestLoadFileAppliesEnvironmentOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "effect-core.yaml")
	content := `
environment: production
api_base_url: https://hercules-ci.com
runtime:
  name: runc
  fallback_dir: /nix/var/nix/profiles/default/bin
worker:
  name: hercules-ci-effect-worker
  fallback_dir: /nix/var/nix/profiles/default/bin
log_pipeline:
  batch_size: 256
  flush_interval: 1s
production:
  log_pipeline:
    batch_size: 1024
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.LogPipeline.BatchSize != 1024 {
		t.Errorf("LogPipeline.BatchSize = %d, want 1024 (from production override)", cfg.LogPipeline.BatchSize)
	}
	if cfg.LogPipeline.FlushInterval != "1s" {
		t.Errorf("LogPipeline.FlushInterval = %s, want 1s (base value preserved)", cfg.LogPipeline.FlushInterval)
	}
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Environment = "qa"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject an unrecognized environment")
	}
}

func TestFlushIntervalDurationDefaultsWhenUnset(t *testing.T) {
	l := LogPipelineConfig{}
	if got, want := l.FlushIntervalDuration().String(), "1s"; got != want {
		t.Errorf("FlushIntervalDuration() = %s, want %s", got, want)
	}
}
