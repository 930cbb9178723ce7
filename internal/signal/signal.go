// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package signal defines the value types exchanged between the local
// detector, the external adapters and the aggregation engine.
package signal

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Sentinel errors surfaced by detectors and the aggregation engine.
var (
	// ErrUnsupportedMedia reports input that no detector can read:
	// unknown kind, truncated or undecodable bytes.
	ErrUnsupportedMedia = errors.New("unsupported media")

	// ErrNoSignal reports that every signal source was unavailable, so
	// no verdict can be produced.
	ErrNoSignal = errors.New("no signal sources available")
)

// MediaKind identifies the class of a submitted file.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Valid reports whether k is one of the supported kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio:
		return true
	}
	return false
}

// imageExts et al. mirror the upload extensions the service accepts.
var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true}
	videoExts = map[string]bool{".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true}
	audioExts = map[string]bool{".wav": true, ".mp3": true, ".flac": true, ".ogg": true, ".m4a": true}
)

// InferKind determines the media kind from the upload filename and,
// failing that, the declared content type. Returns ErrUnsupportedMedia
// when neither identifies a supported kind.
func InferKind(filename, contentType string) (MediaKind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExts[ext]:
		return KindImage, nil
	case videoExts[ext]:
		return KindVideo, nil
	case audioExts[ext]:
		return KindAudio, nil
	}

	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case strings.HasPrefix(mt, "image/"):
			return KindImage, nil
		case strings.HasPrefix(mt, "video/"):
			return KindVideo, nil
		case strings.HasPrefix(mt, "audio/"):
			return KindAudio, nil
		}
	}

	return "", fmt.Errorf("%w: cannot infer kind from %q (%s)", ErrUnsupportedMedia, filename, contentType)
}

// Severity ranks how strongly an anomaly indicates manipulation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is a single named finding from a signal source.
type Anomaly struct {
	// Type is a short lowercase label, e.g. "edge smoothing" or
	// "temporal inconsistency".
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description,omitempty"`
}

// Source names for the three signal producers, in aggregation
// priority order.
const (
	SourceLocal = "local_detector"
	SourceCloud = "cloud_vision"
	SourceNews  = "news_search"
)

// Signal is one source's contribution to an analysis.
type Signal struct {
	// Source is one of the Source* constants.
	Source string `json:"source"`

	// Available is false when the source could not produce a score
	// (missing credentials, timeout, open breaker). An unavailable
	// signal carries no score and is excluded from aggregation.
	Available bool `json:"available"`

	// Score is the source's trust estimate in [0,1]; 1 means the
	// media looks genuine. Meaningful only when Available.
	Score float64 `json:"score"`

	// Model identifies the producer, e.g. "heuristic-image/v1".
	Model string `json:"model,omitempty"`

	Anomalies []Anomaly `json:"anomalies,omitempty"`

	// Metadata carries source-specific detail (feature values,
	// article counts) for the stored record.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Unavailable returns the canonical unavailable signal for source.
func Unavailable(source string) Signal {
	return Signal{Source: source, Available: false}
}
