// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package adapter implements the optional external signal sources:
// the cloud vision check and the news cross-reference. Adapters never
// fail a request: timeouts, transport errors, bad responses, missing
// credentials and open circuit breakers all degrade to an unavailable
// signal at this boundary.
package adapter

import (
	"context"

	"github.com/truthlens/truthlens/internal/signal"
)

// Input is the material an adapter may inspect.
type Input struct {
	// Data is the raw upload. Adapters must not mutate it.
	Data []byte

	Kind signal.MediaKind

	// Filename is the original upload name.
	Filename string

	// Claim is caller-supplied context text (a caption or claimed
	// provenance) used for cross-referencing.
	Claim string
}

// Adapter is one external signal source.
type Adapter interface {
	// Name reports the signal source name (signal.Source* constant).
	Name() string

	// Check collects the external signal. It never returns an error:
	// any failure is expressed as an unavailable signal.
	Check(ctx context.Context, in Input) signal.Signal
}
