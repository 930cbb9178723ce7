// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("component", "detector").Msg("ready")

	out := buf.String()
	if !strings.Contains(out, `"component":"detector"`) {
		t.Errorf("missing structured field, got %q", out)
	}
	if !strings.Contains(out, `"message":"ready"`) {
		t.Errorf("missing message field, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Debug().Msg("quiet")
	Info().Msg("quiet")
	Warn().Msg("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("sub-threshold events emitted: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("warn event suppressed: %q", out)
	}
}

func TestWithChildLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	child := With().Str("component", "registry").Logger()
	child.Info().Msg("store opened")

	if !strings.Contains(buf.String(), `"component":"registry"`) {
		t.Errorf("child field missing: %q", buf.String())
	}
}

func TestSlogHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	zl := NewTestLogger(&buf).Level(zerolog.DebugLevel)
	sl := slog.New(NewSlogHandlerWithLogger(zl))

	sl.Debug("d")
	sl.Info("i")
	sl.Warn("w")
	sl.Error("e")

	out := buf.String()
	for _, want := range []string{`"level":"debug"`, `"level":"info"`, `"level":"warn"`, `"level":"error"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %q", want, out)
		}
	}
}

func TestSlogHandlerAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	zl := NewTestLogger(&buf)
	sl := slog.New(NewSlogHandlerWithLogger(zl)).
		With("service", "truthlens").
		WithGroup("analysis").
		With("stage", "aggregate")

	sl.Info("done", "verdict", "Real", "score", int64(83))

	out := buf.String()
	if !strings.Contains(out, `"service":"truthlens"`) {
		t.Errorf("attr set before the group must stay unqualified: %q", out)
	}
	if !strings.Contains(out, `"analysis.stage":"aggregate"`) {
		t.Errorf("attr set inside the group must carry its prefix: %q", out)
	}
	if !strings.Contains(out, `"analysis.verdict":"Real"`) {
		t.Errorf("grouped attr missing: %q", out)
	}
	if !strings.Contains(out, `"analysis.score":83`) {
		t.Errorf("grouped int attr missing: %q", out)
	}
}

func TestSlogHandlerEnabled(t *testing.T) {
	zl := NewTestLogger(&bytes.Buffer{}).Level(zerolog.WarnLevel)
	h := NewSlogHandlerWithLogger(zl)

	if h.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info should be disabled at warn threshold")
	}
	if !h.Enabled(t.Context(), slog.LevelError) {
		t.Error("error should be enabled at warn threshold")
	}

	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	if h.Enabled(t.Context(), slog.LevelWarn) {
		t.Error("warn should be disabled once the global level is error")
	}
}
