// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/truthlens/truthlens/internal/config"
	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/signal"
)

const cloudModel = "cloud-vision/v1"

// maxCloudPayload caps what is shipped to the vision provider; larger
// uploads are checked on a prefix.
const maxCloudPayload = 8 << 20

// CloudVision calls a generic vision-inference HTTP endpoint that
// accepts raw media bytes and returns a manipulation assessment.
type CloudVision struct {
	enabled bool
	url     string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[signal.Signal]
}

// NewCloudVision builds the adapter. With the adapter disabled or
// credentials missing, Check degrades to unavailable without ever
// dialing out.
func NewCloudVision(cfg config.CloudConfig) *CloudVision {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CloudVision{
		enabled: cfg.Enabled && cfg.URL != "" && cfg.APIKey != "",
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		cb:      newBreaker(signal.SourceCloud),
	}
}

// Name implements Adapter.
func (c *CloudVision) Name() string { return signal.SourceCloud }

// Check implements Adapter.
func (c *CloudVision) Check(ctx context.Context, in Input) signal.Signal {
	if !c.enabled {
		return signal.Unavailable(signal.SourceCloud)
	}

	start := time.Now()
	sig, err := c.cb.Execute(func() (signal.Signal, error) {
		return c.query(ctx, in)
	})
	metrics.ObserveSignal(signal.SourceCloud, err == nil, start)

	if err != nil {
		logging.Warn().
			Err(err).
			Str("adapter", signal.SourceCloud).
			Msg("cloud vision check degraded to unavailable")
		return signal.Unavailable(signal.SourceCloud)
	}
	return sig
}

// cloudResponse is the provider's assessment payload.
type cloudResponse struct {
	TrustScore float64 `json:"trust_score"`
	Model      string  `json:"model"`
	Anomalies  []struct {
		Type        string `json:"type"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
	} `json:"anomalies"`
}

func (c *CloudVision) query(ctx context.Context, in Input) (signal.Signal, error) {
	payload := in.Data
	if len(payload) > maxCloudPayload {
		payload = payload[:maxCloudPayload]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return signal.Signal{}, fmt.Errorf("failed to build vision request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Media-Kind", string(in.Kind))

	resp, err := c.client.Do(req)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return signal.Signal{}, fmt.Errorf("vision provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return signal.Signal{}, fmt.Errorf("failed to read vision response: %w", err)
	}

	var cr cloudResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return signal.Signal{}, fmt.Errorf("malformed vision response: %w", err)
	}
	if cr.TrustScore < 0 || cr.TrustScore > 1 {
		return signal.Signal{}, fmt.Errorf("vision trust score %v out of range", cr.TrustScore)
	}

	model := cr.Model
	if model == "" {
		model = cloudModel
	}
	anomalies := make([]signal.Anomaly, 0, len(cr.Anomalies))
	for _, a := range cr.Anomalies {
		anomalies = append(anomalies, signal.Anomaly{
			Type:        a.Type,
			Severity:    parseSeverity(a.Severity),
			Description: a.Description,
		})
	}

	return signal.Signal{
		Source:    signal.SourceCloud,
		Available: true,
		Score:     cr.TrustScore,
		Model:     model,
		Anomalies: anomalies,
	}, nil
}

// parseSeverity maps provider severities onto the local scale,
// defaulting unknown values to medium.
func parseSeverity(s string) signal.Severity {
	switch signal.Severity(s) {
	case signal.SeverityLow, signal.SeverityMedium, signal.SeverityHigh:
		return signal.Severity(s)
	default:
		return signal.SeverityMedium
	}
}
