// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package services

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/events"
	"github.com/tomtom215/scriptorium/internal/logging"
)

// EmbeddingTrainer is the part of *embedding.Embedder the service drives.
type EmbeddingTrainer interface {
	Restore(ctx context.Context) error
	Compute(ctx context.Context, params embedding.Params) (*embedding.Snapshot, error)
	Update(ctx context.Context, changed []string) (*embedding.Snapshot, embedding.Mode, error)
	Cache() *embedding.Cache
}

// EmbeddingServiceConfig controls startup training and update throttling.
type EmbeddingServiceConfig struct {
	// TrainOnStartup trains a model when none could be restored.
	TrainOnStartup bool

	// UpdatesPerMinute bounds how often an update runs. Changes arriving
	// in between are merged into the next update.
	UpdatesPerMinute float64

	// UpdateBurst is the number of updates allowed back to back.
	UpdateBurst int

	Retry RetryPolicy
}

// EmbeddingService keeps structural embeddings current. It restores the
// persisted model on start and folds graph.changed events into throttled
// incremental updates.
type EmbeddingService struct {
	trainer EmbeddingTrainer
	config  EmbeddingServiceConfig
	limiter *rate.Limiter
	logger  zerolog.Logger
	name    string

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
}

// NewEmbeddingService creates the embedding job.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEmbeddingService(trainer EmbeddingTrainer, cfg EmbeddingServiceConfig, logger zerolog.Logger) *EmbeddingService {
	if cfg.UpdatesPerMinute <= 0 {
		cfg.UpdatesPerMinute = 6
	}
	if cfg.UpdateBurst < 1 {
		cfg.UpdateBurst = 1
	}
	return &EmbeddingService{
		trainer: trainer,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.UpdatesPerMinute/60), cfg.UpdateBurst),
		logger:  logger.With().Str("service", "embedding").Logger(),
		name:    "embedding",
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// HandleGraphChanged queues the changed ids for the next update. It never
// blocks, so it is safe as an event handler.
func (s *EmbeddingService) HandleGraphChanged(_ context.Context, e *events.GraphChanged) error {
	s.mu.Lock()
	for _, id := range e.IDs {
		s.pending[id] = struct{}{}
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of changed ids waiting for an update.
func (s *EmbeddingService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// takePending drains the queued ids in sorted order.
func (s *EmbeddingService) takePending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	clear(s.pending)
	slices.Sort(ids)
	return ids
}

// requeue puts ids back after a failed update.
func (s *EmbeddingService) requeue(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.pending[id] = struct{}{}
	}
}

// Serve implements suture.Service.
func (s *EmbeddingService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Float64("updates_per_minute", s.config.UpdatesPerMinute).
		Msg("embedding service starting")

	if err := s.start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("embedding service shutting down")
			return ctx.Err()
		case <-s.wake:
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		ids := s.takePending()
		if len(ids) == 0 {
			continue
		}
		if err := s.update(ctx, ids); err != nil {
			return err
		}
	}
}

// start restores the persisted model and optionally trains a first one.
func (s *EmbeddingService) start(ctx context.Context) error {
	if err := s.trainer.Restore(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Msg("embedding restore failed")
	}

	if !s.config.TrainOnStartup || s.trainer.Cache().Snapshot().ModelVersion() > 0 {
		return nil
	}
	s.logger.Info().Msg("no embedding model restored, training on startup")
	err := retry(ctx, s.name, s.config.Retry, s.logger, func(ctx context.Context) error {
		_, err := s.trainer.Compute(ctx, embedding.Params{})
		return err
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("initial embedding training failed")
	}
	return nil
}

// update refreshes embeddings for ids. Ids of an abandoned update are
// requeued so the next change retries them.
func (s *EmbeddingService) update(ctx context.Context, ids []string) error {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := logging.CtxWith(ctx).Logger()

	var mode embedding.Mode
	err := retry(ctx, s.name, s.config.Retry, logger, func(ctx context.Context) error {
		var err error
		_, mode, err = s.trainer.Update(ctx, ids)
		return err
	})
	if err != nil {
		s.requeue(ids)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error().Err(err).Int("changed", len(ids)).Msg("embedding update abandoned")
		return nil
	}
	logger.Debug().Str("mode", string(mode)).Int("changed", len(ids)).Msg("embeddings updated")
	return nil
}

// String returns the service name for logging.
func (s *EmbeddingService) String() string {
	return s.name
}
