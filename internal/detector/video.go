// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package detector

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/truthlens/truthlens/internal/signal"
)

const videoModel = "heuristic-video/v1"

const (
	// maxVideoWindows bounds the sample: never the whole file.
	maxVideoWindows = 15

	// videoWindowSize is the bytes examined per sampled window.
	videoWindowSize = 64 << 10

	// windowSuspicionThreshold flags an individual window.
	windowSuspicionThreshold = 0.4

	// temporalRatioThreshold is the flagged-window ratio above which
	// the sample as a whole is temporally inconsistent.
	temporalRatioThreshold = 0.5
)

// VideoDetector scores video files from a bounded sample of the
// encoded stream. Decoding frames is out of reach without a codec
// stack, so each sampled window is judged on the statistical texture
// of its compressed bytes: healthy encoded video is close to
// uniformly random, while padded, repeated or re-encoded segments
// show up as low-entropy, low-variation stretches.
type VideoDetector struct{}

// NewVideoDetector returns the heuristic video detector.
func NewVideoDetector() *VideoDetector {
	return &VideoDetector{}
}

// Kind implements Detector.
func (d *VideoDetector) Kind() signal.MediaKind { return signal.KindVideo }

// Analyze implements Detector.
func (d *VideoDetector) Analyze(ctx context.Context, data []byte) (signal.Signal, error) {
	if !looksLikeVideo(data) {
		return signal.Signal{}, fmt.Errorf("%w: unrecognized video container", signal.ErrUnsupportedMedia)
	}
	if err := ctx.Err(); err != nil {
		return signal.Signal{}, err
	}

	windows := sampleWindows(data, maxVideoWindows, videoWindowSize)
	scores := make([]float64, len(windows))
	for i, win := range windows {
		scores[i] = scoreVideoWindow(win)
	}

	suspicion, flagged := combineWindowScores(scores)
	anomalies := temporalAnomalies(flagged, len(scores))

	return signal.Signal{
		Source:    signal.SourceLocal,
		Available: true,
		Score:     clamp01(1 - suspicion),
		Model:     videoModel,
		Anomalies: anomalies,
		Metadata: map[string]any{
			"sampled_windows": len(scores),
			"flagged_windows": flagged,
			"window_scores":   scores,
		},
	}, nil
}

// looksLikeVideo checks the container magic for the supported upload
// formats: MP4/MOV (ftyp), Matroska/WebM (EBML) and AVI (RIFF).
func looksLikeVideo(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if bytes.Equal(data[4:8], []byte("ftyp")) {
		return true
	}
	if bytes.Equal(data[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		return true
	}
	if bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("AVI ")) {
		return true
	}
	return false
}

// sampleWindows picks up to maxWindows evenly spaced windows of
// windowSize bytes across data.
func sampleWindows(data []byte, maxWindows, windowSize int) [][]byte {
	if len(data) <= windowSize {
		return [][]byte{data}
	}
	count := (len(data) + windowSize - 1) / windowSize
	if count > maxWindows {
		count = maxWindows
	}
	stride := (len(data) - windowSize) / (count - 1)
	if stride < 1 {
		stride = 1
	}

	windows := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * stride
		windows = append(windows, data[start:start+windowSize])
	}
	return windows
}

// scoreVideoWindow rates one window's suspicion in [0,1].
func scoreVideoWindow(win []byte) float64 {
	if len(win) == 0 {
		return 0
	}

	var hist [256]int
	var sum, sum2 float64
	for _, b := range win {
		hist[b]++
		v := float64(b)
		sum += v
		sum2 += v * v
	}
	n := float64(len(win))
	mean := sum / n
	variance := sum2/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	std := math.Sqrt(variance)

	var entropy float64
	distinct := 0
	for _, c := range hist {
		if c == 0 {
			continue
		}
		distinct++
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	distinctRatio := float64(distinct) / 256

	var suspicion float64
	// Compressed video sits near 8 bits/byte; a markedly lower
	// entropy window is padding or repeated content.
	if entropy < 6.0 {
		suspicion += 0.3
	}
	if std < 32 {
		suspicion += 0.2
	}
	if distinctRatio < 0.35 {
		suspicion += 0.2
	}
	if mean < 50 || mean > 200 {
		suspicion += 0.1
	}
	return suspicion
}

// combineWindowScores averages the per-window suspicion and counts
// flagged windows. A flagged majority adds a penalty on top of the
// average, mirroring how a high ratio of bad frames outweighs mild
// per-frame scores.
func combineWindowScores(scores []float64) (suspicion float64, flagged int) {
	if len(scores) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
		if s > windowSuspicionThreshold {
			flagged++
		}
	}
	suspicion = sum / float64(len(scores))

	ratio := float64(flagged) / float64(len(scores))
	if ratio > windowSuspicionThreshold {
		suspicion = clamp01(suspicion + 0.5*(ratio-windowSuspicionThreshold))
	}
	return suspicion, flagged
}

// temporalAnomalies emits the temporal-inconsistency anomaly when the
// flagged ratio exceeds the threshold.
func temporalAnomalies(flagged, total int) []signal.Anomaly {
	if total == 0 {
		return nil
	}
	ratio := float64(flagged) / float64(total)
	if ratio <= temporalRatioThreshold {
		return nil
	}
	return []signal.Anomaly{{
		Type:        "temporal inconsistency",
		Severity:    signal.SeverityHigh,
		Description: fmt.Sprintf("%d of %d sampled segments appear manipulated", flagged, total),
	}}
}
