package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evidencerec/core/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

const validYAML = `
data_dir: "/var/lib/recorder"
log_level: debug
capture:
  interval_ms: 500
  burst: 10
  sample_clicks: true
  sample_window_meta: true
  display_id: 1
  width_px: 1920
  height_px: 1080
  pixel_scale: 2
providers:
  capture: stub
  ocr: stub
  vision: stub
network_allowlist:
  - "api.example.com"
verifier_timeout_seconds: 15
`

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != "/var/lib/recorder" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Capture.IntervalMS != 500 || cfg.Capture.Burst != 10 {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
	if !cfg.Capture.SampleClicks || !cfg.Capture.SampleWindowMeta {
		t.Errorf("expected sample_clicks/sample_window_meta true, got %+v", cfg.Capture)
	}
	if cfg.VerifierTimeoutSeconds != 15 {
		t.Errorf("VerifierTimeoutSeconds = %d, want 15", cfg.VerifierTimeoutSeconds)
	}
	if len(cfg.NetworkAllowlist) != 1 || cfg.NetworkAllowlist[0] != "api.example.com" {
		t.Errorf("NetworkAllowlist = %v", cfg.NetworkAllowlist)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	yaml := `data_dir: "/var/lib/recorder"`
	path := writeTemp(t, yaml)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Capture.Burst != 1 {
		t.Errorf("default Capture.Burst = %d, want 1", cfg.Capture.Burst)
	}
	if cfg.Capture.IntervalMS != 1000 {
		t.Errorf("default Capture.IntervalMS = %d, want 1000", cfg.Capture.IntervalMS)
	}
	if cfg.Capture.PixelScale != 1 {
		t.Errorf("default Capture.PixelScale = %v, want 1", cfg.Capture.PixelScale)
	}
	if cfg.Providers.Capture != "stub" || cfg.Providers.OCR != "stub" || cfg.Providers.Vision != "stub" {
		t.Errorf("default Providers = %+v", cfg.Providers)
	}
	if cfg.VerifierTimeoutSeconds != 30 {
		t.Errorf("default VerifierTimeoutSeconds = %d, want 30", cfg.VerifierTimeoutSeconds)
	}
}

func TestLoadConfig_MissingDataDir(t *testing.T) {
	path := writeTemp(t, "log_level: info\n")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing data_dir, got nil")
	}
	if !strings.Contains(err.Error(), "data_dir") {
		t.Errorf("error %q does not mention data_dir", err.Error())
	}
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	yaml := `
data_dir: "/var/lib/recorder"
log_level: "verbose"
`
	path := writeTemp(t, yaml)
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error %q does not mention log_level", err.Error())
	}
}

func TestLoadConfig_InvalidProviderMode(t *testing.T) {
	yaml := `
data_dir: "/var/lib/recorder"
providers:
  capture: "simulated"
`
	path := writeTemp(t, yaml)
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid provider mode, got nil")
	}
	if !strings.Contains(err.Error(), "simulated") {
		t.Errorf("error %q does not mention invalid mode", err.Error())
	}
}

func TestLoadConfig_ZeroBurstUsesDefault(t *testing.T) {
	yaml := `
data_dir: "/var/lib/recorder"
capture:
  burst: 0
`
	path := writeTemp(t, yaml)
	// burst: 0 is indistinguishable from "omitted" under applyDefaults, so
	// this exercises the default path rather than the error path — a
	// negative burst is the only way to trigger the validation branch.
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Burst != 1 {
		t.Errorf("Capture.Burst = %d, want default 1", cfg.Capture.Burst)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	missingPath := filepath.Join(t.TempDir(), "nonexistent.yaml")
	_, err := config.LoadConfig(missingPath)
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeTemp(t, ":::invalid yaml:::")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}
