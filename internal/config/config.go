package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// #region config

// Config is the full tuning surface of the gatekeeper. Values come from
// defaults, then an optional JSON file, then environment overrides.
type Config struct {
	DBPath           string `json:"db_path"`
	VerificationMode string `json:"verification_mode"` // full, lite or disabled

	Transpile TranspileConfig `json:"transpile"`
	Checker   CheckerConfig   `json:"checker"`
	Traffic   TrafficConfig   `json:"traffic"`
}

// TranspileConfig tunes the LLM transpilation chain.
type TranspileConfig struct {
	Endpoint       string   `json:"endpoint"`
	PrimaryModel   string   `json:"primary_model"`
	FallbackModels []string `json:"fallback_models"`
	TimeoutSec     int      `json:"timeout_sec"`
}

// CheckerConfig bounds model-checker subprocess runs.
type CheckerConfig struct {
	TimeoutSec    int `json:"timeout_sec"`
	UnwindDepth   int `json:"unwind_depth"`
	MemoryLimitMB int `json:"memory_limit_mb"`
}

// TrafficConfig tunes admission control and the mode monitor.
type TrafficConfig struct {
	Capacity        int     `json:"capacity"`
	PollIntervalSec int     `json:"poll_interval_sec"`
	CPUThresholdPct float64 `json:"cpu_threshold_pct"`
	CPUWindowSize   int     `json:"cpu_window_size"`
	SurgeEnterDepth int     `json:"surge_enter_depth"`
	SurgeExitDepth  int     `json:"surge_exit_depth"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		DBPath:           "gatewarden.db",
		VerificationMode: "full",
		Transpile: TranspileConfig{
			Endpoint:     "http://localhost:11434/api/generate",
			PrimaryModel: "qwen2.5-coder:7b",
			FallbackModels: []string{
				"codellama:7b", "deepseek-coder:6.7b", "starcoder2:3b",
			},
			TimeoutSec: 120,
		},
		Checker: CheckerConfig{
			TimeoutSec:    30,
			UnwindDepth:   10,
			MemoryLimitMB: 512,
		},
		Traffic: TrafficConfig{
			Capacity:        50,
			PollIntervalSec: 10,
			CPUThresholdPct: 70,
			CPUWindowSize:   30,
			SurgeEnterDepth: 50,
			SurgeExitDepth:  40,
		},
	}
}

// #endregion config

// #region load

// Load builds the effective configuration. An empty path skips the file
// layer; a named file that is missing is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.DBPath = envOr("GATEWARDEN_DB", cfg.DBPath)
	cfg.VerificationMode = envOr("GATEWARDEN_MODE", cfg.VerificationMode)
	cfg.Transpile.Endpoint = envOr("GATEWARDEN_LLM_ENDPOINT", cfg.Transpile.Endpoint)
	cfg.Transpile.PrimaryModel = envOr("GATEWARDEN_LLM_MODEL", cfg.Transpile.PrimaryModel)
	cfg.Traffic.Capacity = envIntOr("GATEWARDEN_CAPACITY", cfg.Traffic.Capacity)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.VerificationMode {
	case "full", "lite", "disabled":
	default:
		return fmt.Errorf("invalid verification mode %q", c.VerificationMode)
	}
	if c.Traffic.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Traffic.Capacity)
	}
	if c.Traffic.SurgeExitDepth >= c.Traffic.SurgeEnterDepth {
		return fmt.Errorf("surge exit depth %d must be below enter depth %d",
			c.Traffic.SurgeExitDepth, c.Traffic.SurgeEnterDepth)
	}
	return nil
}

// TranspileTimeout returns the transpile timeout as a duration.
func (c Config) TranspileTimeout() time.Duration {
	return time.Duration(c.Transpile.TimeoutSec) * time.Second
}

// CheckerTimeout returns the checker timeout as a duration.
func (c Config) CheckerTimeout() time.Duration {
	return time.Duration(c.Checker.TimeoutSec) * time.Second
}

// PollInterval returns the monitor cadence as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Traffic.PollIntervalSec) * time.Second
}

// #endregion load

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// #endregion helpers
