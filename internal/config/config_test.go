package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.VerificationMode != "full" {
		t.Fatalf("expected full mode, got %s", cfg.VerificationMode)
	}
	if cfg.Traffic.Capacity != 50 {
		t.Fatalf("expected capacity 50, got %d", cfg.Traffic.Capacity)
	}
	if len(cfg.Transpile.FallbackModels) != 3 {
		t.Fatalf("expected 3 fallback models, got %d", len(cfg.Transpile.FallbackModels))
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"verification_mode": "lite", "traffic": {"capacity": 5, "surge_enter_depth": 50, "surge_exit_depth": 40, "cpu_threshold_pct": 70, "cpu_window_size": 30, "poll_interval_sec": 10}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VerificationMode != "lite" || cfg.Traffic.Capacity != 5 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	// Untouched sections keep their defaults.
	if cfg.Transpile.Endpoint != "http://localhost:11434/api/generate" {
		t.Fatalf("default endpoint lost: %s", cfg.Transpile.Endpoint)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("GATEWARDEN_MODE", "disabled")
	t.Setenv("GATEWARDEN_CAPACITY", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VerificationMode != "disabled" || cfg.Traffic.Capacity != 7 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestInvalidModeRejected(t *testing.T) {
	t.Setenv("GATEWARDEN_MODE", "paranoid")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestBadHysteresisRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"traffic": {"capacity": 50, "surge_enter_depth": 40, "surge_exit_depth": 50, "cpu_threshold_pct": 70, "cpu_window_size": 30, "poll_interval_sec": 10}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for inverted surge thresholds")
	}
}

func TestMissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
