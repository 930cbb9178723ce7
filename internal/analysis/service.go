// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package analysis orchestrates one media analysis end to end: digest,
// signal fan-out, aggregation, registry registration and persistence.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/truthlens/truthlens/internal/adapter"
	"github.com/truthlens/truthlens/internal/aggregate"
	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/models"
	"github.com/truthlens/truthlens/internal/registry"
	"github.com/truthlens/truthlens/internal/signal"
)

// Submission is one media upload entering the pipeline. The raw bytes
// are owned by the request: the service reads them during Analyze and
// never retains them.
type Submission struct {
	Data     []byte
	Filename string
	Kind     signal.MediaKind
	Uploader string
	// Claim is optional text describing what the media allegedly
	// shows, used by the news cross-reference.
	Claim string
}

// Detectors runs the local detector for a media kind.
type Detectors interface {
	Analyze(ctx context.Context, kind signal.MediaKind, data []byte) (signal.Signal, error)
}

// Registry is the content-hash dedup registry surface the assembler
// needs.
type Registry interface {
	InsertIfAbsent(ctx context.Context, hash, uploader string) (registry.InsertResult, error)
	Get(ctx context.Context, hash string) (registry.Entry, error)
}

// Store persists completed records.
type Store interface {
	InsertAnalysis(ctx context.Context, rec *models.AnalysisRecord) error
}

// Broadcaster pushes lifecycle events to subscribers.
type Broadcaster interface {
	AnalysisStarted(id, uploader, filename, mediaKind string)
	AnalysisCompleted(rec *models.AnalysisRecord)
}

// Service wires the pipeline stages together.
type Service struct {
	detectors   Detectors
	adapters    []adapter.Adapter
	engine      *aggregate.Engine
	registry    Registry
	store       Store
	broadcaster Broadcaster
	workerLimit int
}

// Options configures NewService. Broadcaster may be nil.
type Options struct {
	Detectors   Detectors
	Adapters    []adapter.Adapter
	Engine      *aggregate.Engine
	Registry    Registry
	Store       Store
	Broadcaster Broadcaster
	// WorkerLimit bounds concurrent signal collection per request.
	WorkerLimit int
}

// NewService builds the orchestrator.
func NewService(opts Options) *Service {
	limit := opts.WorkerLimit
	if limit <= 0 {
		limit = 3
	}
	return &Service{
		detectors:   opts.Detectors,
		adapters:    opts.Adapters,
		engine:      opts.Engine,
		registry:    opts.Registry,
		store:       opts.Store,
		broadcaster: opts.Broadcaster,
		workerLimit: limit,
	}
}

// Analyze runs the full pipeline for one submission. The local
// detector and every adapter run concurrently on a bounded group;
// aggregation starts only after all of them have settled. A detector
// that cannot read the media degrades the local signal to unavailable
// rather than failing the request; signal.ErrNoSignal is returned only
// when no source at all produced a score.
func (s *Service) Analyze(ctx context.Context, sub Submission) (*models.AnalysisRecord, error) {
	if !sub.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown media kind %q", signal.ErrUnsupportedMedia, sub.Kind)
	}

	start := time.Now()
	id := uuid.NewString()
	if s.broadcaster != nil {
		s.broadcaster.AnalysisStarted(id, sub.Uploader, sub.Filename, string(sub.Kind))
	}

	hash := registry.Sum(sub.Data)
	signals, err := s.collectSignals(ctx, sub)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Aggregate(signals)
	if err != nil {
		metrics.AnalysisErrors.WithLabelValues(string(sub.Kind), "no_signal").Inc()
		return nil, fmt.Errorf("aggregation failed for %s: %w", sub.Filename, err)
	}

	dedup, err := s.resolveDedup(ctx, result.Verdict, hash, sub.Uploader)
	if err != nil {
		return nil, err
	}

	rec := &models.AnalysisRecord{
		ID:         id,
		Uploader:   sub.Uploader,
		Filename:   sub.Filename,
		Kind:       sub.Kind,
		TrustScore: result.TrustScore,
		Verdict:    result.Verdict,
		Sources:    result.Sources,
		Anomalies:  result.Anomalies,
		Features:   collectFeatures(signals),
		Dedup:      dedup,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.InsertAnalysis(ctx, rec); err != nil {
		metrics.AnalysisErrors.WithLabelValues(string(sub.Kind), "persist").Inc()
		return nil, fmt.Errorf("failed to persist analysis %s: %w", id, err)
	}

	metrics.ObserveAnalysis(string(sub.Kind), string(rec.Verdict), start)
	logging.Info().
		Str("id", id).
		Str("uploader", sub.Uploader).
		Str("media_kind", string(sub.Kind)).
		Int("trust_score", rec.TrustScore).
		Str("verdict", string(rec.Verdict)).
		Msg("analysis completed")

	if s.broadcaster != nil {
		s.broadcaster.AnalysisCompleted(rec)
	}
	return rec, nil
}

// collectSignals fans the detector and adapters out on a bounded
// group. Slots keep each source's result without locking; the group
// never carries an error because every source degrades independently.
func (s *Service) collectSignals(ctx context.Context, sub Submission) ([]signal.Signal, error) {
	slots := make([]signal.Signal, 1+len(s.adapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerLimit)

	g.Go(func() error {
		start := time.Now()
		sig, err := s.detectors.Analyze(gctx, sub.Kind, sub.Data)
		if err != nil {
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, signal.ErrUnsupportedMedia) {
				logging.Error().Err(err).Str("media_kind", string(sub.Kind)).
					Msg("local detector failed")
			} else {
				logging.Warn().Err(err).Str("media_kind", string(sub.Kind)).
					Msg("local detector could not read media")
			}
			sig = signal.Unavailable(signal.SourceLocal)
		}
		metrics.ObserveSignal(signal.SourceLocal, sig.Available, start)
		slots[0] = sig
		return nil
	})

	in := adapter.Input{
		Data:     sub.Data,
		Kind:     sub.Kind,
		Filename: sub.Filename,
		Claim:    sub.Claim,
	}
	for i, a := range s.adapters {
		g.Go(func() error {
			slots[i+1] = a.Check(gctx, in)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

// resolveDedup applies the registration policy: a Real verdict
// attempts the atomic insert; any other verdict only surfaces an
// already-registered hash.
func (s *Service) resolveDedup(ctx context.Context, verdict aggregate.Verdict, hash, uploader string) (*models.DedupInfo, error) {
	if verdict == aggregate.VerdictReal {
		res, err := s.registry.InsertIfAbsent(ctx, hash, uploader)
		if err != nil {
			return nil, fmt.Errorf("registry insert failed for %s: %w", hash, err)
		}
		return &models.DedupInfo{
			Hash:            res.Entry.Hash,
			DigestVersion:   res.Entry.DigestVersion,
			NewlyRegistered: res.Inserted,
			FirstSeenBy:     res.Entry.Uploader,
			FirstSeenAt:     res.Entry.FirstSeenAt,
		}, nil
	}

	entry, err := s.registry.Get(ctx, hash)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		// Lookup is informational for non-Real verdicts; the analysis
		// result stands without it.
		logging.Warn().Err(err).Str("hash", hash).Msg("registry lookup failed")
		return nil, nil
	}
	return &models.DedupInfo{
		Hash:          entry.Hash,
		DigestVersion: entry.DigestVersion,
		FirstSeenBy:   entry.Uploader,
		FirstSeenAt:   entry.FirstSeenAt,
	}, nil
}

// collectFeatures gathers per-source metadata from available signals.
func collectFeatures(signals []signal.Signal) map[string]map[string]any {
	features := make(map[string]map[string]any)
	for _, sig := range signals {
		if sig.Available && len(sig.Metadata) > 0 {
			features[sig.Source] = sig.Metadata
		}
	}
	if len(features) == 0 {
		return nil
	}
	return features
}
