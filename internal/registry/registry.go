// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package registry implements the content-hash dedup registry: an
// at-most-once record of which uploader first registered a piece of
// verified content, backed by BadgerDB.
package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"

	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/metrics"
)

// DigestVersion identifies the hash construction. Stored alongside
// entries so the scheme can be rotated without ambiguity.
const DigestVersion = "blake2b-256/v1"

// keyPrefix namespaces registry entries within the Badger keyspace.
const keyPrefix = "proof:"

// insertRetries bounds optimistic-transaction retries under conflict.
const insertRetries = 16

var (
	// ErrDuplicateHash reports that the hash is already registered.
	ErrDuplicateHash = errors.New("content hash already registered")

	// ErrNotFound reports a lookup for an unregistered hash.
	ErrNotFound = errors.New("content hash not registered")
)

// Sum computes the versioned content digest of data, returned as a
// lowercase hex string.
func Sum(data []byte) string {
	h := blake2b.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Entry is one registration record.
type Entry struct {
	Hash          string    `json:"hash"`
	DigestVersion string    `json:"digest_version"`
	Uploader      string    `json:"uploader"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
}

// InsertResult reports the outcome of InsertIfAbsent. When Inserted is
// false, Entry is the pre-existing winner.
type InsertResult struct {
	Inserted bool
	Entry    Entry
}

// Store is the Badger-backed registry.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string
	// InMemory runs without disk persistence.
	InMemory bool
}

// Open opens or creates the registry store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	// Badger's default logger writes unstructured lines; route through
	// the service logger instead.
	bopts = bopts.WithLogger(badgerLogger{})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertIfAbsent atomically registers hash to uploader. Exactly one
// caller wins for a given hash; every other caller, concurrent or
// later, receives the winner's entry with Inserted=false.
func (s *Store) InsertIfAbsent(ctx context.Context, hash, uploader string) (InsertResult, error) {
	key := entryKey(hash)

	for attempt := 0; attempt < insertRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return InsertResult{}, err
		}

		var res InsertResult
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case err == nil:
				return item.Value(func(val []byte) error {
					if uerr := json.Unmarshal(val, &res.Entry); uerr != nil {
						return fmt.Errorf("corrupt registry entry %s: %w", hash, uerr)
					}
					res.Inserted = false
					return nil
				})
			case errors.Is(err, badger.ErrKeyNotFound):
				entry := Entry{
					Hash:          hash,
					DigestVersion: DigestVersion,
					Uploader:      uploader,
					FirstSeenAt:   time.Now().UTC(),
				}
				val, merr := json.Marshal(entry)
				if merr != nil {
					return fmt.Errorf("failed to encode registry entry: %w", merr)
				}
				if serr := txn.Set(key, val); serr != nil {
					return fmt.Errorf("failed to write registry entry: %w", serr)
				}
				res = InsertResult{Inserted: true, Entry: entry}
				return nil
			default:
				return fmt.Errorf("failed to read registry entry: %w", err)
			}
		})

		if errors.Is(err, badger.ErrConflict) {
			// Another writer won the race for this key. Re-run the
			// transaction; the next read observes the winner.
			metrics.RegistryConflictRetries.Inc()
			continue
		}
		if err != nil {
			return InsertResult{}, err
		}

		if res.Inserted {
			metrics.RegistryInserts.WithLabelValues("inserted").Inc()
			logging.Debug().
				Str("component", "registry").
				Str("hash", hash).
				Str("uploader", uploader).
				Msg("content registered")
		} else {
			metrics.RegistryInserts.WithLabelValues("duplicate").Inc()
		}
		return res, nil
	}

	return InsertResult{}, fmt.Errorf("registry insert for %s did not settle after %d retries", hash, insertRetries)
}

// Insert registers hash to uploader, failing with ErrDuplicateHash if
// it is already registered.
func (s *Store) Insert(ctx context.Context, hash, uploader string) (Entry, error) {
	res, err := s.InsertIfAbsent(ctx, hash, uploader)
	if err != nil {
		return Entry{}, err
	}
	if !res.Inserted {
		return res.Entry, fmt.Errorf("%w: first seen by %s", ErrDuplicateHash, res.Entry.Uploader)
	}
	return res.Entry, nil
}

// Get returns the entry for hash, or ErrNotFound.
func (s *Store) Get(_ context.Context, hash string) (Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read registry entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			if uerr := json.Unmarshal(val, &entry); uerr != nil {
				return fmt.Errorf("corrupt registry entry %s: %w", hash, uerr)
			}
			return nil
		})
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Exists reports whether hash is registered.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := s.Get(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func entryKey(hash string) []byte {
	return []byte(keyPrefix + hash)
}

// badgerLogger bridges Badger's logger interface onto zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Trace().Str("component", "badger").Msgf(format, args...)
}
