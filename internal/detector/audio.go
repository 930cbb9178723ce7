// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package detector

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/truthlens/truthlens/internal/signal"
)

const audioModel = "heuristic-audio/v1"

const (
	// maxAudioSeconds bounds the analyzed duration.
	maxAudioSeconds = 30

	// audioFrameSize is the samples per analysis frame.
	audioFrameSize = 512
)

// Audio rule thresholds. Synthetic speech tends toward implausibly
// steady statistics: near-constant zero-crossing rate, flat energy,
// flat spectral brightness, robotic pitch and missing pauses.
const (
	audZCRStdMin        = 0.005
	audRMSStdMin        = 0.05
	audCentroidStdMin   = 200.0 // Hz
	audPitchVarMin      = 100.0
	audPitchVarMax      = 10000.0
	audSilenceSegMin    = 2
	audDynamicRangeMin  = 0.1
	pitchSegmentSeconds = 2
)

// AudioDetector scores audio on spectral and statistical naturalness.
// PCM WAV is analyzed sample-accurately; compressed formats (MP3,
// FLAC, OGG) fall back to encoded-stream statistics.
type AudioDetector struct{}

// NewAudioDetector returns the heuristic audio detector.
func NewAudioDetector() *AudioDetector {
	return &AudioDetector{}
}

// Kind implements Detector.
func (d *AudioDetector) Kind() signal.MediaKind { return signal.KindAudio }

// Analyze implements Detector.
func (d *AudioDetector) Analyze(ctx context.Context, data []byte) (signal.Signal, error) {
	if err := ctx.Err(); err != nil {
		return signal.Signal{}, err
	}

	samples, sampleRate, err := decodeWAV(data)
	if err == nil {
		return d.analyzePCM(samples, sampleRate), nil
	}

	if looksLikeCompressedAudio(data) {
		return d.analyzeCompressed(data), nil
	}

	return signal.Signal{}, fmt.Errorf("%w: %v", signal.ErrUnsupportedMedia, err)
}

// analyzePCM runs the full rule table over decoded samples.
func (d *AudioDetector) analyzePCM(samples []float64, sampleRate int) signal.Signal {
	normalize(samples)

	zcrStd, rmsFrames := frameStats(samples)
	rmsStd := stddev(rmsFrames)
	centroidStd := zcrStd * float64(sampleRate) / 2 // brightness proxy from crossing rate
	silenceSegments := countSilenceSegments(rmsFrames)
	pitchVar := pitchVariance(samples, sampleRate)
	dynamicRange := rangeOf(samples)

	var suspicion float64
	var anomalies []signal.Anomaly

	if zcrStd < audZCRStdMin {
		suspicion += 0.2
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "unnatural voice consistency",
			Severity:    signal.SeverityMedium,
			Description: "voice patterns too consistent for natural speech",
		})
	}
	if rmsStd < audRMSStdMin {
		suspicion += 0.15
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "volume consistency",
			Severity:    signal.SeverityMedium,
			Description: "audio volume artificially consistent",
		})
	}
	if centroidStd < audCentroidStdMin {
		suspicion += 0.15
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "spectral uniformity",
			Severity:    signal.SeverityMedium,
			Description: "audio brightness artificially uniform",
		})
	}
	if silenceSegments < audSilenceSegMin {
		suspicion += 0.1
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "unnatural silence pattern",
			Severity:    signal.SeverityMedium,
			Description: "missing natural speech pauses",
		})
	}
	if pitchVar >= 0 && pitchVar < audPitchVarMin {
		suspicion += 0.1
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "unnatural pitch consistency",
			Severity:    signal.SeverityHigh,
			Description: "voice pitch appears artificially consistent",
		})
	} else if pitchVar > audPitchVarMax {
		suspicion += 0.1
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "pitch inconsistency",
			Severity:    signal.SeverityMedium,
			Description: "unusual pitch variations detected",
		})
	}
	if dynamicRange < audDynamicRangeMin {
		suspicion += 0.15
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "limited dynamic range",
			Severity:    signal.SeverityMedium,
			Description: "audio dynamic range suggests artificial processing",
		})
	}

	return signal.Signal{
		Source:    signal.SourceLocal,
		Available: true,
		Score:     clamp01(1 - suspicion),
		Model:     audioModel,
		Anomalies: anomalies,
		Metadata: map[string]any{
			"sample_rate":      sampleRate,
			"duration_seconds": float64(len(samples)) / float64(sampleRate),
			"zcr_std":          zcrStd,
			"rms_std":          rmsStd,
			"pitch_variance":   pitchVar,
			"silence_segments": silenceSegments,
		},
	}
}

// analyzeCompressed gives compressed audio a coarse verdict from
// encoded-stream statistics, reusing the windowed byte scoring.
func (d *AudioDetector) analyzeCompressed(data []byte) signal.Signal {
	windows := sampleWindows(data, maxVideoWindows, videoWindowSize)
	scores := make([]float64, len(windows))
	for i, win := range windows {
		scores[i] = scoreVideoWindow(win)
	}
	suspicion, flagged := combineWindowScores(scores)

	var anomalies []signal.Anomaly
	if flagged*2 > len(scores) {
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "encoding irregularity",
			Severity:    signal.SeverityMedium,
			Description: fmt.Sprintf("%d of %d stream segments show atypical encoding", flagged, len(scores)),
		})
	}

	return signal.Signal{
		Source:    signal.SourceLocal,
		Available: true,
		Score:     clamp01(1 - suspicion),
		Model:     audioModel,
		Anomalies: anomalies,
		Metadata: map[string]any{
			"compressed_fallback": true,
			"sampled_windows":     len(scores),
			"flagged_windows":     flagged,
		},
	}
}

// decodeWAV parses a PCM WAV file into mono float64 samples in
// [-1,1], truncated to maxAudioSeconds.
func decodeWAV(data []byte) ([]float64, int, error) {
	if len(data) < 44 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcm           []byte
	)

	// Walk the chunk list for fmt and data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, 0, fmt.Errorf("truncated %s chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported WAV format %d (PCM only)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if sampleRate <= 0 || channels <= 0 || pcm == nil {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}
	if bitsPerSample != 16 && bitsPerSample != 8 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}

	bytesPerSample := bitsPerSample / 8
	frameBytes := bytesPerSample * channels
	frames := len(pcm) / frameBytes
	if maxFrames := sampleRate * maxAudioSeconds; frames > maxFrames {
		frames = maxFrames
	}
	if frames == 0 {
		return nil, 0, fmt.Errorf("empty audio stream")
	}

	// First channel only.
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		p := i * frameBytes
		if bitsPerSample == 16 {
			samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[p:p+2]))) / 32768
		} else {
			samples[i] = (float64(pcm[p]) - 128) / 128
		}
	}
	return samples, sampleRate, nil
}

func looksLikeCompressedAudio(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch {
	case bytes.Equal(data[0:3], []byte("ID3")): // MP3 with ID3 tag
		return true
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0: // MP3 frame sync
		return true
	case bytes.Equal(data[0:4], []byte("fLaC")):
		return true
	case bytes.Equal(data[0:4], []byte("OggS")):
		return true
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")): // M4A
		return true
	}
	return false
}

// normalize scales samples so the peak magnitude is 1.
func normalize(samples []float64) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}

// frameStats computes the per-frame zero-crossing-rate spread and the
// per-frame RMS series.
func frameStats(samples []float64) (zcrStd float64, rmsFrames []float64) {
	var zcrs []float64
	for start := 0; start+audioFrameSize <= len(samples); start += audioFrameSize {
		frame := samples[start : start+audioFrameSize]

		crossings := 0
		var energy float64
		for i, s := range frame {
			energy += s * s
			if i > 0 && (s >= 0) != (frame[i-1] >= 0) {
				crossings++
			}
		}
		zcrs = append(zcrs, float64(crossings)/float64(len(frame)))
		rmsFrames = append(rmsFrames, math.Sqrt(energy/float64(len(frame))))
	}
	return stddev(zcrs), rmsFrames
}

// countSilenceSegments counts transitions into silence, where silence
// is RMS below a tenth of the mean frame energy.
func countSilenceSegments(rmsFrames []float64) int {
	if len(rmsFrames) == 0 {
		return 0
	}
	var mean float64
	for _, r := range rmsFrames {
		mean += r
	}
	mean /= float64(len(rmsFrames))
	threshold := mean * 0.1

	segments := 0
	inSilence := false
	for _, r := range rmsFrames {
		silent := r < threshold
		if silent && !inSilence {
			segments++
		}
		inSilence = silent
	}
	return segments
}

// pitchVariance estimates fundamental frequency per two-second
// segment by autocorrelation over the 50-400 Hz lag range and returns
// the variance across segments. Returns -1 when fewer than two
// segments yield an estimate.
func pitchVariance(samples []float64, sampleRate int) float64 {
	segment := sampleRate * pitchSegmentSeconds
	minLag := sampleRate / 400
	maxLag := sampleRate / 50
	if minLag < 1 || maxLag <= minLag {
		return -1
	}

	var pitches []float64
	for start := 0; start+segment <= len(samples); start += segment {
		seg := samples[start : start+segment]

		bestLag, bestCorr := 0, 0.0
		for lag := minLag; lag <= maxLag && lag < len(seg); lag++ {
			var corr float64
			// Stride keeps the lag sweep cheap; pitch peaks survive
			// the subsampling.
			for i := 0; i+lag < len(seg); i += 4 {
				corr += seg[i] * seg[i+lag]
			}
			if corr > bestCorr {
				bestCorr = corr
				bestLag = lag
			}
		}
		if bestLag > 0 && bestCorr > 0 {
			pitches = append(pitches, float64(sampleRate)/float64(bestLag))
		}
	}

	if len(pitches) < 2 {
		return -1
	}
	var mean float64
	for _, p := range pitches {
		mean += p
	}
	mean /= float64(len(pitches))
	var v float64
	for _, p := range pitches {
		v += (p - mean) * (p - mean)
	}
	return v / float64(len(pitches))
}

func stddev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var sum float64
	for _, v := range vals {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(len(vals)))
}

func rangeOf(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	minV, maxV := samples[0], samples[0]
	for _, s := range samples {
		if s < minV {
			minV = s
		}
		if s > maxV {
			maxV = s
		}
	}
	return maxV - minV
}
