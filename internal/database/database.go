// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package database persists completed analysis records in DuckDB.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/truthlens/truthlens/internal/config"
)

// DB wraps the DuckDB connection and provides the analysis record store.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the database file, configures the connection pool and
// initializes the schema. A Path of ":memory:" (or empty) opens an
// in-memory database, used by tests.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	if !inMemoryPath(cfg.Path) {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	conn, err := sql.Open("duckdb", connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	db.configureConnectionPool()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := db.createSchema(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// connString builds the DuckDB DSN with tuning options.
func connString(cfg *config.DatabaseConfig) string {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}
	path := cfg.Path
	if inMemoryPath(path) {
		path = ""
	}
	return fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		path, numThreads, maxMemory)
}

func inMemoryPath(path string) bool {
	return path == "" || path == ":memory:"
}

// configureConnectionPool sizes the pool for DuckDB's embedded model:
// parallelism bounded by CPU count, idle connections kept small.
func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// createSchema creates the analyses table. Nested result structures
// (source breakdown, anomalies, features, dedup) are stored as JSON
// text: they are read back whole, never queried by field.
func (db *DB) createSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id          VARCHAR PRIMARY KEY,
	uploader    VARCHAR NOT NULL,
	filename    VARCHAR NOT NULL,
	media_kind  VARCHAR NOT NULL,
	trust_score INTEGER NOT NULL,
	verdict     VARCHAR NOT NULL,
	sources     VARCHAR NOT NULL,
	anomalies   VARCHAR,
	features    VARCHAR,
	dedup       VARCHAR,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_uploader ON analyses (uploader, created_at);
`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create analyses table: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// closeQuietly closes a resource in an error path where Close errors
// are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
