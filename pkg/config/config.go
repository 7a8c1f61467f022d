package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/toongate/pkg/models"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all toongate configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	Upstreams  []UpstreamConfig `yaml:"upstreams"`
	Log        LogConfig        `yaml:"log"`
	Cache      CacheConfig      `yaml:"cache"`
	Detection  DetectionConfig  `yaml:"detection"`
	Conversion ConversionConfig `yaml:"conversion"`
	Pricing    models.Pricing   `yaml:"pricing"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// UpstreamConfig is a backend the proxy forwards to. Requests go to the
// upstream with the longest matching PathPrefix; an empty prefix matches all.
type UpstreamConfig struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	PathPrefix string `yaml:"path_prefix"`
}

// LogConfig selects the zap level and encoding ("json" or "console").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig bounds the conversion cache.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxSize     int           `yaml:"max_size"`
	TTL         time.Duration `yaml:"ttl"`
	CheckPeriod time.Duration `yaml:"check_period"`
}

// DetectionConfig tunes client classification.
type DetectionConfig struct {
	// ConfidenceThreshold decides the LLM/regular label.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// ResponseConfidenceThreshold gates response conversion.
	ResponseConfidenceThreshold float64 `yaml:"response_confidence_threshold"`
	// UserAgentPatterns adds a custom user-agent detector when non-empty.
	UserAgentPatterns []string `yaml:"user_agent_patterns"`
	// HeaderRules add one header detector each.
	HeaderRules []HeaderRule `yaml:"header_rules"`
}

// HeaderRule votes LLM when Header contains Contains (case-insensitive).
type HeaderRule struct {
	Header     string  `yaml:"header"`
	Contains   string  `yaml:"contains"`
	Confidence float64 `yaml:"confidence"`
}

// ConversionConfig controls when and how payloads are converted.
type ConversionConfig struct {
	AutoConvert     bool                       `yaml:"auto_convert"`
	ConvertRequests bool                       `yaml:"convert_requests"`
	LengthMarkers   bool                       `yaml:"length_markers"`
	Optimization    models.OptimizationOptions `yaml:"optimization"`
}

// LedgerConfig controls the SQLite conversion ledger.
type LedgerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Enabled:     true,
			MaxSize:     1000,
			TTL:         5 * time.Minute,
			CheckPeriod: time.Minute,
		},
		Detection: DetectionConfig{
			ConfidenceThreshold:         0.7,
			ResponseConfidenceThreshold: 0.8,
		},
		Conversion: ConversionConfig{
			AutoConvert:     true,
			ConvertRequests: true,
		},
		Pricing: models.Pricing{Per1K: models.DefaultPer1K},
		Ledger: LedgerConfig{
			Enabled:       false,
			DBPath:        "toongate.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML config file, expands environment variables and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Cache.MaxSize < 1 {
		return fmt.Errorf("%w: cache.max_size must be at least 1, got %d", ErrInvalid, c.Cache.MaxSize)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalid)
	}
	if c.Cache.CheckPeriod <= 0 {
		return fmt.Errorf("%w: cache.check_period must be positive", ErrInvalid)
	}
	// The classifier reads 0 as unset.
	if t := c.Detection.ConfidenceThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("%w: detection.confidence_threshold must be in (0,1], got %v", ErrInvalid, t)
	}
	if !inUnit(c.Detection.ResponseConfidenceThreshold) {
		return fmt.Errorf("%w: detection.response_confidence_threshold must be in [0,1], got %v", ErrInvalid, c.Detection.ResponseConfidenceThreshold)
	}
	for i, r := range c.Detection.HeaderRules {
		if r.Header == "" {
			return fmt.Errorf("%w: detection.header_rules[%d].header is required", ErrInvalid, i)
		}
		if !inUnit(r.Confidence) {
			return fmt.Errorf("%w: detection.header_rules[%d].confidence must be in [0,1]", ErrInvalid, i)
		}
	}
	if c.Conversion.Optimization.MaxStringLength < 0 {
		return fmt.Errorf("%w: conversion.optimization.max_string_length must not be negative", ErrInvalid)
	}
	if c.Pricing.Per1K < 0 {
		return fmt.Errorf("%w: pricing.per_1k must not be negative", ErrInvalid)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalid, c.Log.Format)
	}
	for i, u := range c.Upstreams {
		if u.URL == "" {
			return fmt.Errorf("%w: upstreams[%d].url is required", ErrInvalid, i)
		}
	}
	if c.Ledger.Enabled && c.Ledger.DBPath == "" {
		return fmt.Errorf("%w: ledger.db_path is required when the ledger is enabled", ErrInvalid)
	}
	return nil
}

func inUnit(f float64) bool {
	return f >= 0 && f <= 1
}
