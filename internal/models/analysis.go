// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package models defines the externally visible record shapes.
package models

import (
	"time"

	"github.com/truthlens/truthlens/internal/aggregate"
	"github.com/truthlens/truthlens/internal/signal"
)

// DedupInfo is the registry outcome attached to a record. For a Real
// verdict it reports whether this upload created the registry entry or
// matched a previously registered one; for other verdicts it is
// present only when the hash was already registered.
type DedupInfo struct {
	Hash            string    `json:"hash"`
	DigestVersion   string    `json:"digest_version"`
	NewlyRegistered bool      `json:"newly_registered"`
	FirstSeenBy     string    `json:"first_seen_by"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
}

// AnalysisRecord is the full stored and returned analysis result.
type AnalysisRecord struct {
	ID       string           `json:"id"`
	Uploader string           `json:"uploader"`
	Filename string           `json:"filename"`
	Kind     signal.MediaKind `json:"media_kind"`

	TrustScore int                     `json:"trust_score"`
	Verdict    aggregate.Verdict       `json:"verdict"`
	Sources    []aggregate.SourceScore `json:"sources"`
	Anomalies  []signal.Anomaly        `json:"anomalies"`

	// Features carries per-source metadata (detector feature values,
	// adapter details) keyed by source name.
	Features map[string]map[string]any `json:"features,omitempty"`

	Dedup *DedupInfo `json:"dedup,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
