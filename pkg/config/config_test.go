package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Cache.MaxSize != 1000 || cfg.Cache.TTL != 5*time.Minute || cfg.Cache.CheckPeriod != time.Minute {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Detection.ConfidenceThreshold != 0.7 || cfg.Detection.ResponseConfidenceThreshold != 0.8 {
		t.Errorf("unexpected detection defaults: %+v", cfg.Detection)
	}
	if cfg.Pricing.Per1K != 0.002 {
		t.Errorf("expected 0.002 per 1K, got %v", cfg.Pricing.Per1K)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_UPSTREAM", "http://localhost:3000")

	path := writeConfig(t, `
listen: ":9090"
upstreams:
  - name: api
    url: ${TEST_UPSTREAM}
    path_prefix: /api
cache:
  max_size: 50
  ttl: 30s
detection:
  confidence_threshold: 0.6
  user_agent_patterns: [my-agent]
  header_rules:
    - header: x-client
      contains: bot
      confidence: 0.9
conversion:
  auto_convert: false
  optimization:
    sort_keys: false
    max_string_length: 200
pricing:
  per_1k: 0.01
ledger:
  enabled: true
  db_path: /tmp/ledger.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Upstreams[0].URL != "http://localhost:3000" {
		t.Errorf("env var not expanded: got %s", cfg.Upstreams[0].URL)
	}
	if cfg.Cache.MaxSize != 50 || cfg.Cache.TTL != 30*time.Second {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Cache.CheckPeriod != time.Minute {
		t.Errorf("unset field should keep default, got %v", cfg.Cache.CheckPeriod)
	}
	if !cfg.Cache.Enabled {
		t.Error("unset enabled should keep default true")
	}
	if cfg.Detection.ConfidenceThreshold != 0.6 {
		t.Errorf("expected 0.6, got %v", cfg.Detection.ConfidenceThreshold)
	}
	if len(cfg.Detection.HeaderRules) != 1 || cfg.Detection.HeaderRules[0].Confidence != 0.9 {
		t.Errorf("unexpected header rules: %+v", cfg.Detection.HeaderRules)
	}
	if cfg.Conversion.AutoConvert {
		t.Error("expected auto_convert false")
	}
	opt := cfg.Conversion.Optimization
	if opt.ShouldSort() || !opt.ShouldTrim() || opt.MaxStringLength != 200 {
		t.Errorf("unexpected optimization: %+v", opt)
	}
	if cfg.Pricing.Per1K != 0.01 {
		t.Errorf("expected 0.01, got %v", cfg.Pricing.Per1K)
	}
	if !cfg.Ledger.Enabled || cfg.Ledger.RetentionDays != 30 {
		t.Errorf("unexpected ledger config: %+v", cfg.Ledger)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "cache: [unterminated"))
	if err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max size", func(c *Config) { c.Cache.MaxSize = 0 }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"negative check period", func(c *Config) { c.Cache.CheckPeriod = -time.Second }},
		{"threshold above one", func(c *Config) { c.Detection.ConfidenceThreshold = 1.5 }},
		{"zero threshold", func(c *Config) { c.Detection.ConfidenceThreshold = 0 }},
		{"negative response threshold", func(c *Config) { c.Detection.ResponseConfidenceThreshold = -0.1 }},
		{"header rule without header", func(c *Config) { c.Detection.HeaderRules = []HeaderRule{{Contains: "x"}} }},
		{"negative max string length", func(c *Config) { c.Conversion.Optimization.MaxStringLength = -1 }},
		{"negative price", func(c *Config) { c.Pricing.Per1K = -1 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"upstream without url", func(c *Config) { c.Upstreams = []UpstreamConfig{{Name: "x"}} }},
		{"ledger without path", func(c *Config) { c.Ledger.Enabled = true; c.Ledger.DBPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := Default()
	cfg.Detection.ConfidenceThreshold = 1
	cfg.Detection.ResponseConfidenceThreshold = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadRejectsZeroThreshold(t *testing.T) {
	_, err := Load(writeConfig(t, "detection:\n  confidence_threshold: 0\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "cache:\n  max_size: 0\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}
