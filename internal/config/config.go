// Package config provides YAML configuration loading, validation, and
// hot-reload for the evidence recording engine.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the recorder process.
type Config struct {
	// DataDir is where state.db and the asset store live. Required.
	DataDir string `yaml:"data_dir"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Capture holds the capture loop's defaults.
	Capture CaptureConfig `yaml:"capture"`

	// Providers selects which provider mode (stub/auto/real) each capability
	// runs in.
	Providers ProvidersConfig `yaml:"providers"`

	// NetworkAllowlist is the list of hosts permitted for any outbound call
	// the engine ever makes (providers in "real" mode only; stub/auto modes
	// never reach the network).
	NetworkAllowlist []string `yaml:"network_allowlist"`

	// VerifierTimeoutSeconds is loaded, defaulted to 30 and checked to be
	// >= 0. It is not passed to the verifier runner: verifier.ShellRunner
	// uses each verifier spec's TimeoutSeconds, capped at 30s.
	VerifierTimeoutSeconds int `yaml:"verifier_timeout_seconds"`

	// AssumedPermission overrides the screen-recording permission
	// precondition for headless/test environments where no OS prompt can
	// run. Never set true in a real deployment.
	AssumedPermission bool `yaml:"assumed_permission"`
}

// CaptureConfig configures the capture loop's cadence and sampling.
type CaptureConfig struct {
	IntervalMS       int64 `yaml:"interval_ms"`
	Burst            int   `yaml:"burst"`
	SampleClicks     bool  `yaml:"sample_clicks"`
	SampleWindowMeta bool  `yaml:"sample_window_meta"`
	DisplayID        int   `yaml:"display_id"`
	WidthPx          int   `yaml:"width_px"`
	HeightPx         int   `yaml:"height_px"`
	PixelScale       float64 `yaml:"pixel_scale"`
}

// ProvidersConfig selects the dispatch mode for each capability provider.
// "stub" is the only mode implemented by this repo (§1 Non-goals); "auto"
// and "real" are accepted values that presently behave like "stub".
type ProvidersConfig struct {
	Capture string `yaml:"capture"`
	OCR     string `yaml:"ocr"`
	Vision  string `yaml:"vision"`
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validProviderModes = map[string]bool{"stub": true, "auto": true, "real": true}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Capture.IntervalMS == 0 {
		cfg.Capture.IntervalMS = 1000
	}
	if cfg.Capture.Burst == 0 {
		cfg.Capture.Burst = 1
	}
	if cfg.Capture.PixelScale == 0 {
		cfg.Capture.PixelScale = 1
	}
	if cfg.Providers.Capture == "" {
		cfg.Providers.Capture = "stub"
	}
	if cfg.Providers.OCR == "" {
		cfg.Providers.OCR = "stub"
	}
	if cfg.Providers.Vision == "" {
		cfg.Providers.Vision = "stub"
	}
	if cfg.VerifierTimeoutSeconds == 0 {
		cfg.VerifierTimeoutSeconds = 30
	}
}

// validate checks that all required fields are populated and that
// enumerated fields contain only valid values, joining every failure found
// rather than stopping at the first.
func validate(cfg *Config) error {
	var errs []error

	if cfg.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Capture.Burst < 1 {
		errs = append(errs, fmt.Errorf("capture.burst %d must be >= 1", cfg.Capture.Burst))
	}
	if !validProviderModes[cfg.Providers.Capture] {
		errs = append(errs, fmt.Errorf("providers.capture %q must be one of: stub, auto, real", cfg.Providers.Capture))
	}
	if !validProviderModes[cfg.Providers.OCR] {
		errs = append(errs, fmt.Errorf("providers.ocr %q must be one of: stub, auto, real", cfg.Providers.OCR))
	}
	if !validProviderModes[cfg.Providers.Vision] {
		errs = append(errs, fmt.Errorf("providers.vision %q must be one of: stub, auto, real", cfg.Providers.Vision))
	}
	if cfg.VerifierTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("verifier_timeout_seconds %d must be >= 0", cfg.VerifierTimeoutSeconds))
	}

	return errors.Join(errs...)
}
