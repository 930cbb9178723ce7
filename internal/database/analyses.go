// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/truthlens/truthlens/internal/aggregate"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/models"
	"github.com/truthlens/truthlens/internal/signal"
)

// ErrRecordNotFound is returned when no analysis matches the given id.
var ErrRecordNotFound = errors.New("analysis record not found")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListOptions filters and pages ListAnalyses.
type ListOptions struct {
	// Uploader restricts results to one uploader; empty lists all.
	Uploader string
	Limit    int
	Offset   int
}

// InsertAnalysis stores a completed analysis record.
func (db *DB) InsertAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	start := time.Now()

	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode source breakdown: %w", err)
	}
	anomalies, err := json.Marshal(rec.Anomalies)
	if err != nil {
		return fmt.Errorf("failed to encode anomalies: %w", err)
	}
	features, err := marshalNullable(rec.Features != nil, rec.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	dedup, err := marshalNullable(rec.Dedup != nil, rec.Dedup)
	if err != nil {
		return fmt.Errorf("failed to encode dedup info: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO analyses (
			id, uploader, filename, media_kind,
			trust_score, verdict, sources, anomalies, features, dedup,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Uploader, rec.Filename, string(rec.Kind),
		rec.TrustScore, string(rec.Verdict), string(sources), string(anomalies),
		features, dedup, rec.CreatedAt,
	)
	observeQuery("insert_analysis", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert analysis %s: %w", rec.ID, err)
	}
	return nil
}

// GetAnalysis fetches one record by id.
func (db *DB) GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, uploader, filename, media_kind,
		       trust_score, verdict, sources, anomalies, features, dedup,
		       created_at
		FROM analyses WHERE id = ?`, id)

	rec, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		observeQuery("get_analysis", start, nil)
		return nil, ErrRecordNotFound
	}
	observeQuery("get_analysis", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
	}
	return rec, nil
}

// ListAnalyses returns records newest first.
func (db *DB) ListAnalyses(ctx context.Context, opts ListOptions) ([]*models.AnalysisRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, uploader, filename, media_kind,
		       trust_score, verdict, sources, anomalies, features, dedup,
		       created_at
		FROM analyses`
	args := []any{}
	if opts.Uploader != "" {
		query += " WHERE uploader = ?"
		args = append(args, opts.Uploader)
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	observeQuery("list_analyses", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer closeQuietly(rows)

	var records []*models.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return records, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*models.AnalysisRecord, error) {
	var (
		rec       models.AnalysisRecord
		kind      string
		verdict   string
		sources   string
		anomalies sql.NullString
		features  sql.NullString
		dedup     sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.Uploader, &rec.Filename, &kind,
		&rec.TrustScore, &verdict, &sources, &anomalies, &features, &dedup,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = signal.MediaKind(kind)
	rec.Verdict = aggregate.Verdict(verdict)
	if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
		return nil, fmt.Errorf("corrupt source breakdown: %w", err)
	}
	if anomalies.Valid && anomalies.String != "" {
		if err := json.Unmarshal([]byte(anomalies.String), &rec.Anomalies); err != nil {
			return nil, fmt.Errorf("corrupt anomalies: %w", err)
		}
	}
	if features.Valid && features.String != "" {
		if err := json.Unmarshal([]byte(features.String), &rec.Features); err != nil {
			return nil, fmt.Errorf("corrupt features: %w", err)
		}
	}
	if dedup.Valid && dedup.String != "" {
		rec.Dedup = &models.DedupInfo{}
		if err := json.Unmarshal([]byte(dedup.String), rec.Dedup); err != nil {
			return nil, fmt.Errorf("corrupt dedup info: %w", err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// marshalNullable encodes v when present, else yields SQL NULL.
func marshalNullable(present bool, v any) (any, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func observeQuery(operation string, start time.Time, err error) {
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
