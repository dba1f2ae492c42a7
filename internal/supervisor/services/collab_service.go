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

// CollabTrainer defines the interface for the collaborative model.
// This allows the service to work with the model without circular imports.
type CollabTrainer interface {
	// Train rebuilds the model from the interaction history.
	Train(ctx context.Context) error
}

// CollabServiceConfig holds configuration for the collaborative trainer.
type CollabServiceConfig struct {
	// TrainOnStartup triggers training when the service starts.
	TrainOnStartup bool

	// TrainInterval is how often to retrain. Default: 1h
	TrainInterval time.Duration

	// TrainTimeout bounds a single training run. Default: 10m
	TrainTimeout time.Duration

	Retry RetryPolicy
}

// CollabService wraps the co-visitation model for Suture supervision.
// Between runs the model is kept current by observed interactions; the
// periodic retrain applies the lookback window and pair limits.
type CollabService struct {
	trainer CollabTrainer
	config  CollabServiceConfig
	logger  zerolog.Logger
	name    string
}

// NewCollabService creates a new collaborative trainer service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCollabService(trainer CollabTrainer, cfg CollabServiceConfig, logger zerolog.Logger) *CollabService {
	if cfg.TrainInterval <= 0 {
		cfg.TrainInterval = time.Hour
	}
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = 10 * time.Minute
	}
	return &CollabService{
		trainer: trainer,
		config:  cfg,
		logger:  logger.With().Str("service", "collab-trainer").Logger(),
		name:    "collab-trainer",
	}
}

// Serve implements the suture.Service interface.
func (s *CollabService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Dur("train_interval", s.config.TrainInterval).
		Msg("collaborative trainer starting")

	if s.config.TrainOnStartup {
		if err := s.train(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.config.TrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("collaborative trainer shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.logger.Debug().Msg("scheduled training triggered")
			if err := s.train(ctx); err != nil {
				return err
			}
		}
	}
}

// train performs a training cycle. Each attempt gets its own timeout; only
// cancellation of ctx is returned.
func (s *CollabService) train(ctx context.Context) error {
	start := time.Now()
	err := retry(ctx, s.name, s.config.Retry, s.logger, func(ctx context.Context) error {
		trainCtx, cancel := context.WithTimeout(ctx, s.config.TrainTimeout)
		defer cancel()
		return s.trainer.Train(trainCtx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Msg("collaborative training abandoned")
		return nil
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Msg("collaborative model trained")
	return nil
}

// String returns the service name for logging.
func (s *CollabService) String() string {
	return s.name
}
