// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package aggregate

import (
	"errors"
	"testing"

	"github.com/truthlens/truthlens/internal/signal"
)

func available(source string, score float64, anomalies ...signal.Anomaly) signal.Signal {
	return signal.Signal{Source: source, Available: true, Score: score, Anomalies: anomalies}
}

func TestAggregateAllSourcesPresent(t *testing.T) {
	e := NewDefaultEngine()
	res, err := e.Aggregate([]signal.Signal{
		available(signal.SourceLocal, 0.9),
		available(signal.SourceCloud, 0.8),
		available(signal.SourceNews, 0.5),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// 0.9*0.5 + 0.8*0.3 + 0.5*0.2 = 0.79
	if res.TrustScore != 79 {
		t.Errorf("trust score = %d, want 79", res.TrustScore)
	}
	if res.Verdict != VerdictReal {
		t.Errorf("verdict = %q, want Real", res.Verdict)
	}
	if len(res.Sources) != 3 {
		t.Errorf("breakdown entries = %d, want 3", len(res.Sources))
	}
}

func TestAggregateRenormalization(t *testing.T) {
	// The documented degraded scenario: local 0.9, cloud unavailable,
	// news 0.5 -> (0.9*0.5 + 0.5*0.2) / 0.7 = 0.7857 -> 79 -> Real.
	e := NewDefaultEngine()
	res, err := e.Aggregate([]signal.Signal{
		available(signal.SourceLocal, 0.9),
		signal.Unavailable(signal.SourceCloud),
		available(signal.SourceNews, 0.5),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if res.TrustScore != 79 {
		t.Errorf("trust score = %d, want 79", res.TrustScore)
	}
	if res.Verdict != VerdictReal {
		t.Errorf("verdict = %q, want Real", res.Verdict)
	}

	for _, s := range res.Sources {
		if s.Name == signal.SourceCloud {
			if s.Available || s.Score != nil {
				t.Errorf("unavailable source leaked a score: %+v", s)
			}
		}
	}
}

func TestAggregateLocalOnlyExact(t *testing.T) {
	// Only the local detector available: trust must be exactly
	// round(local * 100), with no weight distortion.
	e := NewDefaultEngine()
	for _, score := range []float64{0, 0.135, 0.5, 0.785, 1} {
		res, err := e.Aggregate([]signal.Signal{available(signal.SourceLocal, score)})
		if err != nil {
			t.Fatalf("aggregate(%v): %v", score, err)
		}
		want := int(score*100 + 0.5)
		if res.TrustScore != want {
			t.Errorf("local %v -> trust %d, want %d", score, res.TrustScore, want)
		}
	}
}

func TestAggregateAllUnavailable(t *testing.T) {
	e := NewDefaultEngine()
	_, err := e.Aggregate([]signal.Signal{
		signal.Unavailable(signal.SourceLocal),
		signal.Unavailable(signal.SourceCloud),
		signal.Unavailable(signal.SourceNews),
	})
	if !errors.Is(err, signal.ErrNoSignal) {
		t.Fatalf("want ErrNoSignal, got %v", err)
	}

	if _, err := e.Aggregate(nil); !errors.Is(err, signal.ErrNoSignal) {
		t.Fatalf("empty input: want ErrNoSignal, got %v", err)
	}
}

func TestVerdictThresholds(t *testing.T) {
	e := NewDefaultEngine()
	tests := []struct {
		trust int
		want  Verdict
	}{
		{0, VerdictFake},
		{40, VerdictFake},
		{41, VerdictUncertain},
		{69, VerdictUncertain},
		{70, VerdictReal},
		{100, VerdictReal},
	}
	for _, tt := range tests {
		if got := e.verdict(tt.trust); got != tt.want {
			t.Errorf("verdict(%d) = %q, want %q", tt.trust, got, tt.want)
		}
	}
}

func TestConfigurableThresholds(t *testing.T) {
	e, err := NewEngine(DefaultWeights(), Thresholds{Real: 80, Fake: 30})
	if err != nil {
		t.Fatal(err)
	}
	if got := e.verdict(75); got != VerdictUncertain {
		t.Errorf("verdict(75) with Real=80: %q, want Uncertain", got)
	}

	if _, err := NewEngine(DefaultWeights(), Thresholds{Real: 40, Fake: 70}); err == nil {
		t.Error("inverted thresholds should fail")
	}
	if _, err := NewEngine(Weights{Local: 0}, DefaultThresholds()); err == nil {
		t.Error("zero local weight should fail")
	}
}

func TestAnomalyConcatenationOrder(t *testing.T) {
	e := NewDefaultEngine()
	res, err := e.Aggregate([]signal.Signal{
		// Deliberately out of order: news first.
		available(signal.SourceNews, 0.5, signal.Anomaly{Type: "coverage mismatch"}),
		available(signal.SourceLocal, 0.4,
			signal.Anomaly{Type: "edge smoothing"},
			signal.Anomaly{Type: "low texture variance"}),
		available(signal.SourceCloud, 0.6, signal.Anomaly{Type: "face blending"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"edge smoothing", "low texture variance", "face blending", "coverage mismatch"}
	if len(res.Anomalies) != len(want) {
		t.Fatalf("anomalies = %d, want %d", len(res.Anomalies), len(want))
	}
	for i, w := range want {
		if res.Anomalies[i].Type != w {
			t.Errorf("anomaly[%d] = %q, want %q", i, res.Anomalies[i].Type, w)
		}
	}
}

func TestAnomaliesOnlyFromAvailableSources(t *testing.T) {
	e := NewDefaultEngine()
	unavailableWithAnomalies := signal.Signal{
		Source:    signal.SourceCloud,
		Available: false,
		Anomalies: []signal.Anomaly{{Type: "should not appear"}},
	}
	res, err := e.Aggregate([]signal.Signal{
		available(signal.SourceLocal, 0.5, signal.Anomaly{Type: "edge smoothing"}),
		unavailableWithAnomalies,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Anomalies) != 1 {
		t.Errorf("anomalies = %+v, unavailable source must contribute none", res.Anomalies)
	}
}

func TestTrustScoreClamped(t *testing.T) {
	e := NewDefaultEngine()
	res, err := e.Aggregate([]signal.Signal{available(signal.SourceLocal, 1.7)})
	if err != nil {
		t.Fatal(err)
	}
	if res.TrustScore != 100 {
		t.Errorf("overshooting score should clamp to 100, got %d", res.TrustScore)
	}

	res, err = e.Aggregate([]signal.Signal{available(signal.SourceLocal, -0.4)})
	if err != nil {
		t.Fatal(err)
	}
	if res.TrustScore != 0 {
		t.Errorf("negative score should clamp to 0, got %d", res.TrustScore)
	}
}
