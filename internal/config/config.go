// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package config defines the TruthLens configuration model and its
// layered koanf loader (defaults, optional YAML file, environment).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Registry RegistryConfig `koanf:"registry"`
	Analysis AnalysisConfig `koanf:"analysis"`
	Cloud    CloudConfig    `koanf:"cloud"`
	News     NewsConfig     `koanf:"news"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings for the analysis record store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" opens an
	// in-memory database.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads limits DuckDB worker threads. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// RegistryConfig holds BadgerDB settings for the content-hash registry.
type RegistryConfig struct {
	Path string `koanf:"path"`
	// InMemory runs Badger without disk persistence. Test use only.
	InMemory bool `koanf:"in_memory"`
}

// AnalysisConfig holds scoring weights, verdict thresholds and
// orchestration limits.
type AnalysisConfig struct {
	// WeightLocal/WeightCloud/WeightNews are the relative weights of
	// the signal sources. Weights are renormalized over the sources
	// that were actually available for a given analysis.
	WeightLocal float64 `koanf:"weight_local"`
	WeightCloud float64 `koanf:"weight_cloud"`
	WeightNews  float64 `koanf:"weight_news"`

	// RealThreshold and FakeThreshold split the 0-100 trust score
	// into verdicts: >= RealThreshold is Real, <= FakeThreshold is
	// Fake, anything between is Uncertain.
	RealThreshold int `koanf:"real_threshold"`
	FakeThreshold int `koanf:"fake_threshold"`

	// WorkerLimit bounds concurrent signal-source calls per analysis.
	WorkerLimit int `koanf:"worker_limit"`

	// MaxUploadBytes caps the accepted file size.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// CloudConfig holds the cloud vision adapter settings. The adapter is
// disabled unless both URL and APIKey are set.
type CloudConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// NewsConfig holds the news cross-reference adapter settings.
type NewsConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// RatePerSecond and RateBurst bound outbound request rate to the
	// news provider.
	RatePerSecond float64 `koanf:"rate_per_second"`
	RateBurst     int     `koanf:"rate_burst"`
}

// SecurityConfig holds authentication and HTTP protection settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies HS256 bearer tokens. Required.
	JWTSecret string `koanf:"jwt_secret"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, overridden by file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8990,
			Timeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/truthlens.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Registry: RegistryConfig{
			Path:     "/data/registry",
			InMemory: false,
		},
		Analysis: AnalysisConfig{
			WeightLocal:    0.5,
			WeightCloud:    0.3,
			WeightNews:     0.2,
			RealThreshold:  70,
			FakeThreshold:  40,
			WorkerLimit:    3,
			MaxUploadBytes: 100 << 20, // 100 MiB
		},
		Cloud: CloudConfig{
			Enabled: false,
			Timeout: 10 * time.Second,
		},
		News: NewsConfig{
			Enabled:       false,
			Timeout:       10 * time.Second,
			RatePerSecond: 1,
			RateBurst:     3,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field consistency. Called after the last
// configuration layer is applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 bytes, got %d", len(c.Security.JWTSecret))
	}

	a := c.Analysis
	if a.WeightLocal <= 0 || a.WeightCloud < 0 || a.WeightNews < 0 {
		return fmt.Errorf("analysis weights must be positive (local) and non-negative")
	}
	if a.RealThreshold < 0 || a.RealThreshold > 100 {
		return fmt.Errorf("analysis.real_threshold %d out of range", a.RealThreshold)
	}
	if a.FakeThreshold < 0 || a.FakeThreshold > 100 {
		return fmt.Errorf("analysis.fake_threshold %d out of range", a.FakeThreshold)
	}
	if a.FakeThreshold >= a.RealThreshold {
		return fmt.Errorf("analysis.fake_threshold (%d) must be below real_threshold (%d)",
			a.FakeThreshold, a.RealThreshold)
	}
	if a.WorkerLimit < 1 {
		return fmt.Errorf("analysis.worker_limit must be at least 1")
	}
	if a.MaxUploadBytes < 1 {
		return fmt.Errorf("analysis.max_upload_bytes must be positive")
	}

	if c.Cloud.Enabled && c.Cloud.URL == "" {
		return fmt.Errorf("cloud.url is required when cloud.enabled")
	}
	if c.News.Enabled && c.News.URL == "" {
		return fmt.Errorf("news.url is required when news.enabled")
	}
	if c.News.Enabled && c.News.RatePerSecond <= 0 {
		return fmt.Errorf("news.rate_per_second must be positive")
	}

	return nil
}
