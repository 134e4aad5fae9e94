// Package config loads the core's TOML configuration, mirroring the
// engine/runtime-policy/scheduler/telemetry option surface described in the
// model-init and adaptive-budget sections. A missing config file is not an
// error: the host app can embed the core with zero configuration.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable the core reads at startup.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Vision    VisionConfig    `toml:"vision"`
	Policy    PolicyConfig    `toml:"policy"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// EngineConfig mirrors the text-engine init option table.
type EngineConfig struct {
	ModelPath        string `toml:"model_path"`
	ContextSize      int    `toml:"context_size"`
	GPULayers        int    `toml:"gpu_layers"`
	Threads          int    `toml:"threads"`
	Seed             *int64 `toml:"seed"`
	MemoryLimitBytes int64  `toml:"memory_limit_bytes"`
	UseMmap          bool   `toml:"use_mmap"`
	UseMlock         bool   `toml:"use_mlock"`
}

// VisionConfig mirrors the vision-engine init option table.
type VisionConfig struct {
	ModelPath     string `toml:"model_path"`
	ProjectorPath string `toml:"projector_path"`
	ContextSize   int    `toml:"context_size"`
	Threads       int    `toml:"threads"`
}

// PolicyConfig controls RuntimePolicy's cooldown and recovery windows.
type PolicyConfig struct {
	CooldownSeconds       int `toml:"cooldown_seconds"`
	RecoveryWindowSeconds int `toml:"recovery_window_seconds"`
	WarmSampleCount       int `toml:"warm_sample_count"`
}

// SchedulerConfig controls the workload scheduler's enforcement loop.
type SchedulerConfig struct {
	EnforcementIntervalSeconds int `toml:"enforcement_interval_seconds"`
}

// TelemetryConfig controls the platform signal poller.
type TelemetryConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// DefaultConfig returns the documented defaults: 2048-token context,
// threads set to runtime.NumCPU() (logical CPUs, not physical cores),
// a 2s enforcement interval,
// a 1s telemetry poll, a 60s cooldown and a 15s recovery window.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			ContextSize: 2048,
			GPULayers:   0,
			Threads:     runtime.NumCPU(),
			UseMmap:     true,
			UseMlock:    false,
		},
		Vision: VisionConfig{
			ContextSize: 2048,
			Threads:     runtime.NumCPU(),
		},
		Policy: PolicyConfig{
			CooldownSeconds:       60,
			RecoveryWindowSeconds: 15,
			WarmSampleCount:       20,
		},
		Scheduler: SchedulerConfig{
			EnforcementIntervalSeconds: 2,
		},
		Telemetry: TelemetryConfig{
			PollIntervalSeconds: 1,
		},
	}
}

// LoadConfig reads path, falling back to DefaultConfig() if it does not
// exist. An existing-but-malformed file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Engine.Threads == 0 {
		cfg.Engine.Threads = runtime.NumCPU()
	}
	if cfg.Vision.Threads == 0 {
		cfg.Vision.Threads = runtime.NumCPU()
	}
	return cfg, nil
}

// Cooldown returns the configured cooldown window as a Duration.
func (p PolicyConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds) * time.Second
}

// RecoveryWindow returns the configured recovery window as a Duration.
func (p PolicyConfig) RecoveryWindow() time.Duration {
	return time.Duration(p.RecoveryWindowSeconds) * time.Second
}

// EnforcementInterval returns the scheduler's configured tick period.
func (s SchedulerConfig) EnforcementInterval() time.Duration {
	return time.Duration(s.EnforcementIntervalSeconds) * time.Second
}

// PollInterval returns the telemetry poller's configured tick period.
func (t TelemetryConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSeconds) * time.Second
}
