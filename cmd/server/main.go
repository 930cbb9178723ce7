// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Command server runs the TruthLens analysis service: config load,
// storage open, supervision tree, HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/truthlens/truthlens/internal/adapter"
	"github.com/truthlens/truthlens/internal/aggregate"
	"github.com/truthlens/truthlens/internal/analysis"
	"github.com/truthlens/truthlens/internal/api"
	"github.com/truthlens/truthlens/internal/config"
	"github.com/truthlens/truthlens/internal/database"
	"github.com/truthlens/truthlens/internal/detector"
	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/registry"
	"github.com/truthlens/truthlens/internal/supervisor"
	"github.com/truthlens/truthlens/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting TruthLens")

	reg, err := registry.Open(registry.Options{
		Path:     cfg.Registry.Path,
		InMemory: cfg.Registry.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open content-hash registry")
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing registry")
		}
	}()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	engine, err := aggregate.NewEngine(
		aggregate.Weights{
			Local: cfg.Analysis.WeightLocal,
			Cloud: cfg.Analysis.WeightCloud,
			News:  cfg.Analysis.WeightNews,
		},
		aggregate.Thresholds{
			Real: cfg.Analysis.RealThreshold,
			Fake: cfg.Analysis.FakeThreshold,
		},
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid aggregation configuration")
	}

	cloud := adapter.NewCloudVision(cfg.Cloud)
	news := adapter.NewNewsSearch(cfg.News)
	if cfg.Cloud.Enabled {
		logging.Info().Str("url", cfg.Cloud.URL).Msg("Cloud vision adapter enabled")
	}
	if cfg.News.Enabled {
		logging.Info().Str("url", cfg.News.URL).Msg("News cross-reference adapter enabled")
	}

	hub := ws.NewHub()

	svc := analysis.NewService(analysis.Options{
		Detectors:   detector.DefaultRegistry(),
		Adapters:    []adapter.Adapter{cloud, news},
		Engine:      engine,
		Registry:    reg,
		Store:       db,
		Broadcaster: hub,
		WorkerLimit: cfg.Analysis.WorkerLimit,
	})

	jwtManager := api.NewJWTManager(cfg.Security.JWTSecret, 24*time.Hour)
	handler := api.NewHandler(api.HandlerOptions{
		Analyzer:       svc,
		Store:          db,
		Registry:       reg,
		Hub:            hub,
		DB:             db,
		MaxUploadBytes: cfg.Analysis.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, jwtManager, cfg.Security),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(supervisor.NewRunnerService("websocket-hub", hub))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("TruthLens stopped gracefully")
}
