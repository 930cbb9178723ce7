// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/truthlens/truthlens/internal/adapter"
	"github.com/truthlens/truthlens/internal/aggregate"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/models"
	"github.com/truthlens/truthlens/internal/registry"
	"github.com/truthlens/truthlens/internal/signal"
)

type stubDetectors struct {
	sig signal.Signal
	err error
}

func (d stubDetectors) Analyze(context.Context, signal.MediaKind, []byte) (signal.Signal, error) {
	return d.sig, d.err
}

type stubAdapter struct {
	name string
	sig  signal.Signal
}

func (a stubAdapter) Name() string { return a.name }

func (a stubAdapter) Check(context.Context, adapter.Input) signal.Signal { return a.sig }

type memStore struct {
	records []*models.AnalysisRecord
	err     error
}

func (s *memStore) InsertAnalysis(_ context.Context, rec *models.AnalysisRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type recordingBroadcaster struct {
	started   []string
	completed []*models.AnalysisRecord
}

func (b *recordingBroadcaster) AnalysisStarted(id, _, _, _ string) {
	b.started = append(b.started, id)
}

func (b *recordingBroadcaster) AnalysisCompleted(rec *models.AnalysisRecord) {
	b.completed = append(b.completed, rec)
}

func openTestRegistry(t *testing.T) *registry.Store {
	t.Helper()
	s, err := registry.Open(registry.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func localSignal(score float64, anomalies ...signal.Anomaly) signal.Signal {
	return signal.Signal{
		Source:    signal.SourceLocal,
		Available: true,
		Score:     score,
		Model:     "heuristic-image/v1",
		Anomalies: anomalies,
		Metadata:  map[string]any{"edge_density": 0.12},
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *memStore) {
	t.Helper()
	store := &memStore{}
	if opts.Store == nil {
		opts.Store = store
	}
	if opts.Engine == nil {
		opts.Engine = aggregate.NewDefaultEngine()
	}
	if opts.Registry == nil {
		opts.Registry = openTestRegistry(t)
	}
	return NewService(opts), store
}

func TestAnalyzeRealVerdictRegistersHash(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	svc, store := newTestService(t, Options{
		Detectors: stubDetectors{sig: localSignal(0.9)},
		Adapters: []adapter.Adapter{
			stubAdapter{name: signal.SourceCloud, sig: signal.Signal{
				Source: signal.SourceCloud, Available: true, Score: 0.8, Model: "provider-x/3",
			}},
			stubAdapter{name: signal.SourceNews, sig: signal.Signal{
				Source: signal.SourceNews, Available: true, Score: 0.5,
				Metadata: map[string]any{"article_count": 0},
			}},
		},
		Broadcaster: broadcaster,
	})

	rec, err := svc.Analyze(context.Background(), Submission{
		Data:     []byte("media bytes"),
		Filename: "photo.jpg",
		Kind:     signal.KindImage,
		Uploader: "alice",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	// 0.9*0.5 + 0.8*0.3 + 0.5*0.2 = 0.79
	if rec.TrustScore != 79 || rec.Verdict != aggregate.VerdictReal {
		t.Errorf("score/verdict = %d/%q", rec.TrustScore, rec.Verdict)
	}
	if rec.Dedup == nil || !rec.Dedup.NewlyRegistered {
		t.Fatalf("dedup = %+v, want newly registered", rec.Dedup)
	}
	if rec.Dedup.Hash != registry.Sum([]byte("media bytes")) {
		t.Errorf("dedup hash mismatch: %s", rec.Dedup.Hash)
	}
	if rec.Dedup.FirstSeenBy != "alice" {
		t.Errorf("first_seen_by = %q", rec.Dedup.FirstSeenBy)
	}
	if len(store.records) != 1 || store.records[0].ID != rec.ID {
		t.Errorf("record not persisted: %+v", store.records)
	}
	if rec.Features[signal.SourceLocal]["edge_density"] != 0.12 {
		t.Errorf("features = %+v", rec.Features)
	}
	if len(broadcaster.started) != 1 || len(broadcaster.completed) != 1 {
		t.Errorf("broadcasts = %d started, %d completed",
			len(broadcaster.started), len(broadcaster.completed))
	}
}

func TestAnalyzeDuplicateRealUploadSurfacesFirstSeen(t *testing.T) {
	reg := openTestRegistry(t)
	data := []byte("the same clip")
	if _, err := reg.InsertIfAbsent(context.Background(), registry.Sum(data), "alice"); err != nil {
		t.Fatal(err)
	}

	svc, _ := newTestService(t, Options{
		Detectors: stubDetectors{sig: localSignal(0.95)},
		Registry:  reg,
	})

	rec, err := svc.Analyze(context.Background(), Submission{
		Data: data, Filename: "copy.jpg", Kind: signal.KindImage, Uploader: "bob",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Verdict != aggregate.VerdictReal {
		t.Fatalf("verdict = %q", rec.Verdict)
	}
	if rec.Dedup == nil || rec.Dedup.NewlyRegistered {
		t.Fatalf("dedup = %+v, want existing entry", rec.Dedup)
	}
	if rec.Dedup.FirstSeenBy != "alice" {
		t.Errorf("first_seen_by = %q, want original uploader", rec.Dedup.FirstSeenBy)
	}
}

func TestAnalyzeNonRealVerdictDoesNotRegister(t *testing.T) {
	reg := openTestRegistry(t)
	data := []byte("suspect clip")

	svc, _ := newTestService(t, Options{
		Detectors: stubDetectors{sig: localSignal(0.2, signal.Anomaly{
			Type: "edge smoothing", Severity: signal.SeverityHigh,
		})},
		Registry: reg,
	})

	rec, err := svc.Analyze(context.Background(), Submission{
		Data: data, Filename: "fake.jpg", Kind: signal.KindImage, Uploader: "carol",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Verdict != aggregate.VerdictFake {
		t.Fatalf("verdict = %q", rec.Verdict)
	}
	if rec.Dedup != nil {
		t.Errorf("dedup = %+v, want none for unregistered hash", rec.Dedup)
	}
	if ok, _ := reg.Exists(context.Background(), registry.Sum(data)); ok {
		t.Error("non-Real verdict must not register the hash")
	}
}

func TestAnalyzeNonRealVerdictSurfacesKnownHash(t *testing.T) {
	reg := openTestRegistry(t)
	data := []byte("previously verified")
	if _, err := reg.InsertIfAbsent(context.Background(), registry.Sum(data), "alice"); err != nil {
		t.Fatal(err)
	}

	svc, _ := newTestService(t, Options{
		Detectors: stubDetectors{sig: localSignal(0.5)},
		Registry:  reg,
	})

	rec, err := svc.Analyze(context.Background(), Submission{
		Data: data, Filename: "re-up.jpg", Kind: signal.KindImage, Uploader: "mallory",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Verdict != aggregate.VerdictUncertain {
		t.Fatalf("verdict = %q", rec.Verdict)
	}
	if rec.Dedup == nil || rec.Dedup.NewlyRegistered || rec.Dedup.FirstSeenBy != "alice" {
		t.Errorf("dedup = %+v, want existing registration surfaced", rec.Dedup)
	}
}

func TestAnalyzeDetectorFailureDegradesToAdapters(t *testing.T) {
	svc, _ := newTestService(t, Options{
		Detectors: stubDetectors{err: signal.ErrUnsupportedMedia},
		Adapters: []adapter.Adapter{
			stubAdapter{name: signal.SourceCloud, sig: signal.Signal{
				Source: signal.SourceCloud, Available: true, Score: 0.8,
			}},
		},
	})

	rec, err := svc.Analyze(context.Background(), Submission{
		Data: []byte("opaque"), Filename: "blob.jpg", Kind: signal.KindImage, Uploader: "dave",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// Cloud alone: 0.8 -> 80 -> Real.
	if rec.TrustScore != 80 {
		t.Errorf("trust score = %d, want 80", rec.TrustScore)
	}
	for _, src := range rec.Sources {
		if src.Name == signal.SourceLocal && src.Available {
			t.Error("local source should be unavailable after detector failure")
		}
	}
}

func TestAnalyzeNoSignalFails(t *testing.T) {
	store := &memStore{}
	svc, _ := newTestService(t, Options{
		Detectors: stubDetectors{err: signal.ErrUnsupportedMedia},
		Adapters: []adapter.Adapter{
			stubAdapter{name: signal.SourceCloud, sig: signal.Unavailable(signal.SourceCloud)},
		},
		Store: store,
	})

	errCounter := metrics.AnalysisErrors.WithLabelValues(string(signal.KindImage), "no_signal")
	before := testutil.ToFloat64(errCounter)

	_, err := svc.Analyze(context.Background(), Submission{
		Data: []byte("opaque"), Filename: "blob.bin", Kind: signal.KindImage, Uploader: "erin",
	})
	if !errors.Is(err, signal.ErrNoSignal) {
		t.Fatalf("want ErrNoSignal, got %v", err)
	}
	if len(store.records) != 0 {
		t.Error("no record may be produced without any signal")
	}
	if got := testutil.ToFloat64(errCounter); got != before+1 {
		t.Errorf("no_signal error counter = %v, want %v", got, before+1)
	}
}

func TestAnalyzeInvalidKind(t *testing.T) {
	svc, _ := newTestService(t, Options{Detectors: stubDetectors{sig: localSignal(0.9)}})
	_, err := svc.Analyze(context.Background(), Submission{
		Data: []byte("x"), Kind: signal.MediaKind("document"), Uploader: "frank",
	})
	if !errors.Is(err, signal.ErrUnsupportedMedia) {
		t.Fatalf("want ErrUnsupportedMedia, got %v", err)
	}
}

func TestAnalyzePersistenceFailurePropagates(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	svc, _ := newTestService(t, Options{
		Detectors: stubDetectors{sig: localSignal(0.9)},
		Store:     store,
	})

	errCounter := metrics.AnalysisErrors.WithLabelValues(string(signal.KindImage), "persist")
	before := testutil.ToFloat64(errCounter)

	_, err := svc.Analyze(context.Background(), Submission{
		Data: []byte("x"), Filename: "a.jpg", Kind: signal.KindImage, Uploader: "grace",
	})
	if err == nil {
		t.Fatal("store failure must propagate")
	}
	if got := testutil.ToFloat64(errCounter); got != before+1 {
		t.Errorf("persist error counter = %v, want %v", got, before+1)
	}
}

func TestAnalyzeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blockingDetector := stubDetectors{err: context.Canceled}
	svc, _ := newTestService(t, Options{Detectors: blockingDetector})

	_, err := svc.Analyze(ctx, Submission{
		Data: []byte("x"), Filename: "a.jpg", Kind: signal.KindImage, Uploader: "heidi",
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
