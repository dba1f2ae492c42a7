// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/metrics"
)

// Key prefixes for BadgerDB storage
const (
	nodeKeyPrefix         = "node/"
	edgeKeyPrefix         = "edge/"
	hypothesisCachePrefix = "hyp/cache/"
	hypothesisValidPrefix = "hyp/valid/"
	modelMarkerKey        = "meta/model_version"
	settingsKeyPrefix     = "settings/"
	interactionKeyPrefix  = "interaction/"
)

// Config configures the BadgerDB store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps everything in memory; nothing survives a restart.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval is the time between value log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCDiscardRatio is the fraction of stale data that makes a value log
	// file eligible for rewriting.
	GCDiscardRatio float64 `koanf:"gc_discard_ratio"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Path:           "/data/scriptorium",
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("store path is required unless in_memory is set")
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("gc_interval must be positive, got %s", c.GCInterval)
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		return fmt.Errorf("gc_discard_ratio must be in (0, 1), got %f", c.GCDiscardRatio)
	}
	return nil
}

// Store persists the graph, model markers, hypotheses, user settings and
// interactions in BadgerDB.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger zerolog.Logger
}

// Open opens (or creates) the database described by cfg.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return New(db, cfg, logger), nil
}

// New wraps an already open database.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(db *badger.DB, cfg Config, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database accepts reads.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("database closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// RunGC rewrites value log files until no file qualifies. It is a no-op for
// in-memory databases.
func (s *Store) RunGC(ctx context.Context) error {
	if s.cfg.InMemory {
		return nil
	}
	start := time.Now()
	rewritten := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			break
		}
		if err != nil {
			metrics.RecordOperation("store_gc", time.Since(start), err)
			return fmt.Errorf("value log gc: %w", err)
		}
		rewritten++
	}
	metrics.RecordOperation("store_gc", time.Since(start), nil)
	if rewritten > 0 {
		s.logger.Info().Int("files", rewritten).Dur("duration", time.Since(start)).Msg("value log compacted")
	}
	return nil
}

// GCInterval returns the configured garbage collection interval.
func (s *Store) GCInterval() time.Duration {
	return s.cfg.GCInterval
}

// getJSON loads the value at key into v. It reports false when the key is missing.
func (s *Store) getJSON(key string, v any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return found, nil
}

// putJSON stores v at key. A positive ttl expires the entry.
func (s *Store) putJSON(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

// scanPrefix calls fn for every value under prefix, in key order.
func (s *Store) scanPrefix(ctx context.Context, prefix string, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			n++
			if n%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
