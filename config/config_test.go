package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeMatrix || cfg.Multiplier != 20 {
		t.Fatalf("mode=%q multiplier=%d want=matrix,20", cfg.Mode, cfg.Multiplier)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Fatalf("timeout=%v want=10s", cfg.Backend.Timeout)
	}
	if cfg.Model.BatchTimeout != 2*time.Millisecond {
		t.Fatalf("batch timeout=%v want=2ms", cfg.Model.BatchTimeout)
	}
	if cfg.Rollout.MaxSteps != 500 {
		t.Fatalf("max steps=%d want=500", cfg.Rollout.MaxSteps)
	}
}

func TestLoad_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	body := "mode: COMPACT\nlandform_layer: true\nrollout:\n  max_steps: 20\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeCompact || !cfg.LandformLayer || cfg.Rollout.MaxSteps != 20 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Rollout.ProgressEvery != 100 {
		t.Fatalf("unset field lost default: %d", cfg.Rollout.ProgressEvery)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("mode: grid\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Multiplier = 32
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Multiplier != 32 || back.Backend.Timeout != cfg.Backend.Timeout {
		t.Fatalf("round trip=%+v", back)
	}
}
