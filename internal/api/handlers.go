// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/truthlens/truthlens/internal/analysis"
	"github.com/truthlens/truthlens/internal/database"
	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/models"
	"github.com/truthlens/truthlens/internal/registry"
	"github.com/truthlens/truthlens/internal/signal"
	"github.com/truthlens/truthlens/internal/ws"
)

var validate = validator.New()

// Analyzer runs the analysis pipeline for one submission.
type Analyzer interface {
	Analyze(ctx context.Context, sub analysis.Submission) (*models.AnalysisRecord, error)
}

// RecordStore reads persisted analysis records.
type RecordStore interface {
	GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, opts database.ListOptions) ([]*models.AnalysisRecord, error)
}

// RegistryReader looks up content-hash registrations.
type RegistryReader interface {
	Get(ctx context.Context, hash string) (registry.Entry, error)
}

// Pinger reports storage liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the endpoint dependencies.
type Handler struct {
	analyzer       Analyzer
	store          RecordStore
	registry       RegistryReader
	hub            *ws.Hub
	db             Pinger
	maxUploadBytes int64
}

// HandlerOptions configures NewHandler. Hub and DB may be nil in
// tests.
type HandlerOptions struct {
	Analyzer       Analyzer
	Store          RecordStore
	Registry       RegistryReader
	Hub            *ws.Hub
	DB             Pinger
	MaxUploadBytes int64
}

// NewHandler builds the endpoint handler.
func NewHandler(opts HandlerOptions) *Handler {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}
	return &Handler{
		analyzer:       opts.Analyzer,
		store:          opts.Store,
		registry:       opts.Registry,
		hub:            opts.Hub,
		db:             opts.DB,
		maxUploadBytes: maxUpload,
	}
}

// analyzeForm carries the optional non-file fields of an upload.
type analyzeForm struct {
	Kind  string `validate:"omitempty,oneof=image video audio"`
	Claim string `validate:"omitempty,max=500"`
}

// Analyze handles POST /api/v1/analyze: multipart upload with a
// "file" part and optional "kind" and "claim" fields.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if maxBytesExceeded(err) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing file part")
		return
	}
	defer file.Close()

	form := analyzeForm{
		Kind:  r.FormValue("kind"),
		Claim: r.FormValue("claim"),
	}
	if err := validate.Struct(form); err != nil {
		writeValidationError(w, "invalid upload fields", validationDetails(err))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		if maxBytesExceeded(err) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read upload")
		return
	}
	metrics.UploadBytes.Observe(float64(len(data)))

	kind := signal.MediaKind(form.Kind)
	if form.Kind == "" {
		kind, err = signal.InferKind(header.Filename, header.Header.Get("Content-Type"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupportedMedia,
				"cannot determine media kind from filename or content type")
			return
		}
	}

	rec, err := h.analyzer.Analyze(r.Context(), analysis.Submission{
		Data:     data,
		Filename: header.Filename,
		Kind:     kind,
		Uploader: UploaderFromContext(r.Context()),
		Claim:    form.Claim,
	})
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, rec)
}

func (h *Handler) writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, signal.ErrUnsupportedMedia):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupportedMedia,
			"media could not be analyzed as the declared kind")
	case errors.Is(err, signal.ErrNoSignal):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNoSignal,
			"no signal source was available for this submission")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		logging.Error().Err(err).Msg("analysis request failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "analysis failed")
	}
}

// GetResult handles GET /api/v1/results/{id}.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validate.Var(id, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed result id")
		return
	}

	rec, err := h.store.GetAnalysis(r.Context(), id)
	if errors.Is(err, database.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such analysis")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("id", id).Msg("failed to load analysis")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load analysis")
		return
	}
	writeSuccess(w, http.StatusOK, rec)
}

// ListResults handles GET /api/v1/results. Results are scoped to the
// authenticated uploader.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	records, err := h.store.ListAnalyses(r.Context(), database.ListOptions{
		Uploader: UploaderFromContext(r.Context()),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to list analyses")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list analyses")
		return
	}
	if records == nil {
		records = []*models.AnalysisRecord{}
	}
	writePage(w, records, &PaginationMeta{
		Count:   len(records),
		Offset:  offset,
		Limit:   limit,
		HasMore: len(records) == limit,
	})
}

// registryEntry is the lookup response body.
type registryEntry struct {
	Hash          string    `json:"hash"`
	DigestVersion string    `json:"digest_version"`
	FirstSeenBy   string    `json:"first_seen_by"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
}

// LookupHash handles GET /api/v1/registry/{hash}.
func (h *Handler) LookupHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if err := validate.Var(hash, "required,len=64,hexadecimal"); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed content hash")
		return
	}

	entry, err := h.registry.Get(r.Context(), hash)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "content hash not registered")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("hash", hash).Msg("registry lookup failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "registry lookup failed")
		return
	}
	writeSuccess(w, http.StatusOK, registryEntry{
		Hash:          entry.Hash,
		DigestVersion: entry.DigestVersion,
		FirstSeenBy:   entry.Uploader,
		FirstSeenAt:   entry.FirstSeenAt,
	})
}

// WebSocket handles GET /api/v1/ws.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "event stream not available")
		return
	}
	ws.ServeWS(h.hub, w, r)
}

// HealthLive handles GET /healthz: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /readyz: storage reachability.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			logging.Warn().Err(err).Msg("readiness probe failed")
			writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "database not reachable")
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// maxBytesExceeded detects the body-limit error from MaxBytesReader.
func maxBytesExceeded(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// validationDetails flattens validator errors into field/rule pairs.
func validationDetails(err error) []map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return details
}
