// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package detector implements the local structural-feature detectors.
// One detector per media kind, selected through a kind-keyed registry.
// Detectors are pure functions over the raw upload bytes: no external
// calls, bounded work, deterministic outcome. Unreadable input fails
// with signal.ErrUnsupportedMedia rather than producing a zero score.
package detector

import (
	"context"
	"fmt"

	"github.com/truthlens/truthlens/internal/signal"
)

// Detector analyzes one kind of media.
type Detector interface {
	// Kind reports the media kind this detector handles.
	Kind() signal.MediaKind

	// Analyze derives structural features from data and maps them to
	// a trust signal. Fails with signal.ErrUnsupportedMedia when the
	// bytes cannot be decoded as the expected kind.
	Analyze(ctx context.Context, data []byte) (signal.Signal, error)
}

// Registry dispatches analysis to the detector registered for a kind.
type Registry struct {
	detectors map[signal.MediaKind]Detector
}

// NewRegistry returns a registry with the given detectors. Later
// entries for the same kind override earlier ones.
func NewRegistry(detectors ...Detector) *Registry {
	r := &Registry{detectors: make(map[signal.MediaKind]Detector, len(detectors))}
	for _, d := range detectors {
		r.detectors[d.Kind()] = d
	}
	return r
}

// DefaultRegistry returns the registry with the built-in heuristic
// detectors for image, video and audio.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewImageDetector(),
		NewVideoDetector(),
		NewAudioDetector(),
	)
}

// Analyze runs the detector registered for kind over data.
func (r *Registry) Analyze(ctx context.Context, kind signal.MediaKind, data []byte) (signal.Signal, error) {
	d, ok := r.detectors[kind]
	if !ok {
		return signal.Signal{}, fmt.Errorf("%w: no detector for kind %q", signal.ErrUnsupportedMedia, kind)
	}
	if len(data) == 0 {
		return signal.Signal{}, fmt.Errorf("%w: empty input", signal.ErrUnsupportedMedia)
	}
	if err := ctx.Err(); err != nil {
		return signal.Signal{}, err
	}
	return d.Analyze(ctx, data)
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
