// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing jwt secret", func(c *Config) { c.Security.JWTSecret = "" }, "jwt_secret"},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, "at least 32"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"inverted thresholds", func(c *Config) { c.Analysis.FakeThreshold = 80 }, "real_threshold"},
		{"threshold range", func(c *Config) { c.Analysis.RealThreshold = 120 }, "real_threshold"},
		{"zero local weight", func(c *Config) { c.Analysis.WeightLocal = 0 }, "weights"},
		{"zero worker limit", func(c *Config) { c.Analysis.WorkerLimit = 0 }, "worker_limit"},
		{"cloud enabled without url", func(c *Config) { c.Cloud.Enabled = true }, "cloud.url"},
		{"news enabled without url", func(c *Config) { c.News.Enabled = true }, "news.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWTSecret = testSecret
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9001
analysis:
  real_threshold: 75
security:
  jwt_secret: "` + testSecret + `"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("ANALYSIS_FAKE_THRESHOLD", "35")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("file layer not applied: port = %d", cfg.Server.Port)
	}
	if cfg.Analysis.RealThreshold != 75 {
		t.Errorf("file layer not applied: real_threshold = %d", cfg.Analysis.RealThreshold)
	}
	if cfg.Analysis.FakeThreshold != 35 {
		t.Errorf("env layer not applied: fake_threshold = %d", cfg.Analysis.FakeThreshold)
	}
	if cfg.Analysis.WeightLocal != 0.5 {
		t.Errorf("default layer lost: weight_local = %v", cfg.Analysis.WeightLocal)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != want[0] || cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("cors origins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
}

func TestEnvTransformDropsUnmapped(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("PATH should be dropped, got %q", got)
	}
	if got := envTransformFunc("JWT_SECRET"); got != "security.jwt_secret" {
		t.Errorf("JWT_SECRET mapped to %q", got)
	}
	if got := envTransformFunc("news_rate_per_second"); got != "news.rate_per_second" {
		t.Errorf("lowercase mapping failed: %q", got)
	}
}
