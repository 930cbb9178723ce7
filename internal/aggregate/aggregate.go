// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package aggregate combines the collected signals into one trust
// score and verdict. Pure computation: no I/O, no clock, no state.
package aggregate

import (
	"fmt"
	"math"

	"github.com/truthlens/truthlens/internal/signal"
)

// Verdict is the categorical classification of an analysis.
type Verdict string

const (
	VerdictReal      Verdict = "Real"
	VerdictFake      Verdict = "Fake"
	VerdictUncertain Verdict = "Uncertain"
)

// Weights are the relative source weights. They sum to 1.0 when all
// three sources report; with sources missing, the remaining weights
// are renormalized so absent sources never distort the score.
type Weights struct {
	Local float64
	Cloud float64
	News  float64
}

// DefaultWeights: the local detector dominates, cloud vision second,
// news corroboration third.
func DefaultWeights() Weights {
	return Weights{Local: 0.5, Cloud: 0.3, News: 0.2}
}

// Thresholds split the 0-100 trust score into verdicts.
type Thresholds struct {
	// Real is the minimum score classified Real.
	Real int
	// Fake is the maximum score classified Fake.
	Fake int
}

// DefaultThresholds: >= 70 Real, <= 40 Fake, between Uncertain.
func DefaultThresholds() Thresholds {
	return Thresholds{Real: 70, Fake: 40}
}

// SourceScore is one source's contribution in the result breakdown.
// Every source appears, available or not; Score is nil for
// unavailable sources since "no data" and "zero trust" are different
// things.
type SourceScore struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	Score     *float64 `json:"score,omitempty"`
	Model     string   `json:"model,omitempty"`
}

// Result is the aggregation outcome.
type Result struct {
	TrustScore int              `json:"trust_score"`
	Verdict    Verdict          `json:"verdict"`
	Sources    []SourceScore    `json:"sources"`
	Anomalies  []signal.Anomaly `json:"anomalies"`
}

// Engine applies the weighting policy.
type Engine struct {
	weights    Weights
	thresholds Thresholds
}

// NewEngine validates and builds an engine.
func NewEngine(w Weights, t Thresholds) (*Engine, error) {
	if w.Local <= 0 || w.Cloud < 0 || w.News < 0 {
		return nil, fmt.Errorf("invalid weights %+v", w)
	}
	if t.Fake >= t.Real || t.Fake < 0 || t.Real > 100 {
		return nil, fmt.Errorf("invalid thresholds %+v", t)
	}
	return &Engine{weights: w, thresholds: t}, nil
}

// NewDefaultEngine builds an engine with the documented defaults.
func NewDefaultEngine() *Engine {
	e, err := NewEngine(DefaultWeights(), DefaultThresholds())
	if err != nil {
		panic(err) // defaults are statically valid
	}
	return e
}

// weightFor returns the static weight of a source name.
func (e *Engine) weightFor(source string) float64 {
	switch source {
	case signal.SourceLocal:
		return e.weights.Local
	case signal.SourceCloud:
		return e.weights.Cloud
	case signal.SourceNews:
		return e.weights.News
	default:
		return 0
	}
}

// sourceOrder fixes the breakdown and anomaly concatenation order:
// local detector first, then cloud, then news.
var sourceOrder = []string{signal.SourceLocal, signal.SourceCloud, signal.SourceNews}

// Aggregate combines the signals. Fails with signal.ErrNoSignal when
// every source is unavailable; a single available source is enough
// for a full result.
func (e *Engine) Aggregate(signals []signal.Signal) (*Result, error) {
	byName := make(map[string]signal.Signal, len(signals))
	for _, s := range signals {
		byName[s.Source] = s
	}

	var (
		weightedSum float64
		totalWeight float64
		sources     []SourceScore
		anomalies   []signal.Anomaly
	)

	for _, name := range sourceOrder {
		s, seen := byName[name]
		if !seen || !s.Available {
			sources = append(sources, SourceScore{Name: name, Available: false})
			continue
		}

		score := clamp01(s.Score)
		w := e.weightFor(name)
		weightedSum += score * w
		totalWeight += w

		sc := score
		sources = append(sources, SourceScore{
			Name:      name,
			Available: true,
			Score:     &sc,
			Model:     s.Model,
		})
		anomalies = append(anomalies, s.Anomalies...)
	}

	if totalWeight == 0 {
		return nil, signal.ErrNoSignal
	}

	trust := int(math.Round(weightedSum / totalWeight * 100))
	if trust < 0 {
		trust = 0
	}
	if trust > 100 {
		trust = 100
	}

	return &Result{
		TrustScore: trust,
		Verdict:    e.verdict(trust),
		Sources:    sources,
		Anomalies:  anomalies,
	}, nil
}

// verdict is a pure function of the trust score.
func (e *Engine) verdict(trust int) Verdict {
	switch {
	case trust >= e.thresholds.Real:
		return VerdictReal
	case trust <= e.thresholds.Fake:
		return VerdictFake
	default:
		return VerdictUncertain
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
