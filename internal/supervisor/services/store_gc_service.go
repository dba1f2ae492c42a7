// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// GarbageCollector compacts persistent storage. Satisfied by *store.Store.
type GarbageCollector interface {
	RunGC(ctx context.Context) error
	GCInterval() time.Duration
}

// StoreGCService runs value log garbage collection on the store's interval.
type StoreGCService struct {
	store  GarbageCollector
	logger zerolog.Logger
	name   string
}

// NewStoreGCService creates the store GC job.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStoreGCService(store GarbageCollector, logger zerolog.Logger) *StoreGCService {
	return &StoreGCService{
		store:  store,
		logger: logger.With().Str("service", "store-gc").Logger(),
		name:   "store-gc",
	}
}

// Serve implements suture.Service. A GC failure is returned so the
// supervisor restarts the job with backoff.
func (s *StoreGCService) Serve(ctx context.Context) error {
	interval := s.store.GCInterval()
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn().Err(err).Msg("store garbage collection failed")
				return err
			}
		}
	}
}

// String returns the service name for logging.
func (s *StoreGCService) String() string {
	return s.name
}
