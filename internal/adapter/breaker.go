// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package adapter

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/signal"
)

// newBreaker builds the circuit breaker shared by both adapters:
// 3 probe requests in half-open state, one-minute measurement window,
// two-minute recovery timeout, tripping at a 60% failure rate over at
// least 10 requests.
//
// The breaker uses real time for its interval and timeout math. That
// is deliberate: the timing governs recovery, not data integrity, and
// tests should exercise the wrapped client directly.
func newBreaker(name string) *gobreaker.CircuitBreaker[signal.Signal] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // closed

	return gobreaker.NewCircuitBreaker[signal.Signal](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Str("adapter", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("opening circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("adapter", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerTrips.WithLabelValues(name).Inc()
			}
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
