// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package detector

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/truthlens/truthlens/internal/signal"
)

func fakeMP4(payload []byte) []byte {
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'}
	return append(header, payload...)
}

func fakeMKV(payload []byte) []byte {
	header := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	return append(header, payload...)
}

func zeroPayload(n int) []byte {
	return make([]byte, n)
}

func randomPayload(n int) []byte {
	rng := rand.New(rand.NewSource(7))
	buf := make([]byte, n)
	rng.Read(buf)
	return buf
}

func TestVideoContainerSniffing(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"mp4", fakeMP4(nil), true},
		{"mkv", fakeMKV(nil), true},
		{"avi", append([]byte("RIFF\x00\x00\x00\x00AVI "), make([]byte, 16)...), true},
		{"plain text", []byte("this is not a video file"), false},
		{"too short", []byte{0x1A}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeVideo(tt.data); got != tt.want {
				t.Errorf("looksLikeVideo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoUnrecognizedContainerFails(t *testing.T) {
	d := NewVideoDetector()
	_, err := d.Analyze(context.Background(), []byte("not a video at all, sorry"))
	if !errors.Is(err, signal.ErrUnsupportedMedia) {
		t.Fatalf("want ErrUnsupportedMedia, got %v", err)
	}
}

func TestVideoDegenerateStreamFlagged(t *testing.T) {
	d := NewVideoDetector()
	sig, err := d.Analyze(context.Background(), fakeMP4(zeroPayload(2<<20)))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if sig.Score > 0.3 {
		t.Errorf("all-zero stream score = %v, want <= 0.3", sig.Score)
	}

	found := false
	for _, a := range sig.Anomalies {
		if a.Type == "temporal inconsistency" && a.Severity == signal.SeverityHigh {
			found = true
		}
	}
	if !found {
		t.Errorf("temporal inconsistency anomaly missing: %+v", sig.Anomalies)
	}
}

func TestVideoHealthyStreamScoresHigh(t *testing.T) {
	d := NewVideoDetector()
	sig, err := d.Analyze(context.Background(), fakeMP4(randomPayload(2<<20)))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if sig.Score < 0.9 {
		t.Errorf("healthy stream score = %v, want >= 0.9", sig.Score)
	}
	if len(sig.Anomalies) != 0 {
		t.Errorf("unexpected anomalies: %+v", sig.Anomalies)
	}
}

func TestSampleWindowsBounded(t *testing.T) {
	data := randomPayload(10 << 20)
	windows := sampleWindows(data, maxVideoWindows, videoWindowSize)
	if len(windows) != maxVideoWindows {
		t.Errorf("window count = %d, want %d", len(windows), maxVideoWindows)
	}
	for i, w := range windows {
		if len(w) != videoWindowSize {
			t.Errorf("window %d size = %d, want %d", i, len(w), videoWindowSize)
		}
	}

	small := randomPayload(1024)
	windows = sampleWindows(small, maxVideoWindows, videoWindowSize)
	if len(windows) != 1 || len(windows[0]) != 1024 {
		t.Errorf("small input should yield one whole-file window, got %d", len(windows))
	}
}

func TestTemporalAnomalyRatioThreshold(t *testing.T) {
	// 18 of 30 flagged segments (ratio 0.6) must produce the
	// high-severity temporal inconsistency anomaly.
	anoms := temporalAnomalies(18, 30)
	if len(anoms) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(anoms))
	}
	if anoms[0].Type != "temporal inconsistency" || anoms[0].Severity != signal.SeverityHigh {
		t.Errorf("unexpected anomaly: %+v", anoms[0])
	}

	// Exactly at the threshold: no anomaly.
	if got := temporalAnomalies(15, 30); len(got) != 0 {
		t.Errorf("ratio 0.5 should not trigger, got %+v", got)
	}
	if got := temporalAnomalies(0, 0); len(got) != 0 {
		t.Errorf("empty sample should not trigger, got %+v", got)
	}
}

func TestCombineWindowScores(t *testing.T) {
	suspicion, flagged := combineWindowScores([]float64{0.8, 0.8, 0.1, 0.1})
	if flagged != 2 {
		t.Errorf("flagged = %d, want 2", flagged)
	}
	// Half flagged: mean plus the majority penalty.
	want := 0.45 + 0.5*(0.5-windowSuspicionThreshold)
	if diff := suspicion - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("suspicion = %v, want %v", suspicion, want)
	}

	if s, f := combineWindowScores(nil); s != 0 || f != 0 {
		t.Errorf("empty scores should yield zero, got %v/%d", s, f)
	}
}
