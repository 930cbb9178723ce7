// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/truthlens/truthlens/internal/config"
	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/signal"
)

const newsModel = "news-crossref/v1"

// News scoring: absence of coverage is not evidence of forgery, so no
// matching articles yields the neutral 0.5; each corroborating
// article adds a modest boost, capped well short of certainty.
const (
	newsNeutralScore  = 0.5
	newsArticleBoost  = 0.08
	newsMaxScore      = 0.9
	newsMaxQueryWords = 12
)

// NewsSearch cross-references the upload's claimed context against a
// news-search HTTP provider. Outbound calls are rate limited; the
// shared circuit breaker covers provider outages.
type NewsSearch struct {
	enabled bool
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[signal.Signal]
}

// NewNewsSearch builds the adapter.
func NewNewsSearch(cfg config.NewsConfig) *NewsSearch {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &NewsSearch{
		enabled: cfg.Enabled && cfg.URL != "" && cfg.APIKey != "",
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cb:      newBreaker(signal.SourceNews),
	}
}

// Name implements Adapter.
func (n *NewsSearch) Name() string { return signal.SourceNews }

// Check implements Adapter.
func (n *NewsSearch) Check(ctx context.Context, in Input) signal.Signal {
	if !n.enabled {
		return signal.Unavailable(signal.SourceNews)
	}
	query := buildQuery(in)
	if query == "" {
		return signal.Unavailable(signal.SourceNews)
	}

	start := time.Now()
	sig, err := n.cb.Execute(func() (signal.Signal, error) {
		if werr := n.limiter.Wait(ctx); werr != nil {
			return signal.Signal{}, fmt.Errorf("rate limiter wait: %w", werr)
		}
		return n.query(ctx, query)
	})
	metrics.ObserveSignal(signal.SourceNews, err == nil, start)

	if err != nil {
		logging.Warn().
			Err(err).
			Str("adapter", signal.SourceNews).
			Msg("news cross-reference degraded to unavailable")
		return signal.Unavailable(signal.SourceNews)
	}
	return sig
}

// buildQuery derives the search text from the claim, falling back to
// the filename stem, bounded to a handful of words.
func buildQuery(in Input) string {
	text := strings.TrimSpace(in.Claim)
	if text == "" {
		base := filepath.Base(in.Filename)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		text = strings.Map(func(r rune) rune {
			if r == '_' || r == '-' || r == '.' {
				return ' '
			}
			return r
		}, stem)
		text = strings.TrimSpace(text)
	}
	words := strings.Fields(text)
	if len(words) > newsMaxQueryWords {
		words = words[:newsMaxQueryWords]
	}
	return strings.Join(words, " ")
}

// newsResponse is the provider's search result payload.
type newsResponse struct {
	TotalResults int `json:"total_results"`
	Articles     []struct {
		Title  string `json:"title"`
		Source string `json:"source"`
		URL    string `json:"url"`
	} `json:"articles"`
}

func (n *NewsSearch) query(ctx context.Context, query string) (signal.Signal, error) {
	u, err := url.Parse(n.url)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("bad news endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("failed to build news request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return signal.Signal{}, fmt.Errorf("news provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return signal.Signal{}, fmt.Errorf("failed to read news response: %w", err)
	}

	var nr newsResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return signal.Signal{}, fmt.Errorf("malformed news response: %w", err)
	}

	count := nr.TotalResults
	if count < len(nr.Articles) {
		count = len(nr.Articles)
	}

	return signal.Signal{
		Source:    signal.SourceNews,
		Available: true,
		Score:     scoreArticleCount(count),
		Model:     newsModel,
		Metadata: map[string]any{
			"query":         query,
			"article_count": count,
		},
	}, nil
}

// scoreArticleCount maps corroborating coverage to a trust estimate.
func scoreArticleCount(count int) float64 {
	if count <= 0 {
		return newsNeutralScore
	}
	score := newsNeutralScore + newsArticleBoost*float64(count)
	if score > newsMaxScore {
		return newsMaxScore
	}
	return score
}
