// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/logging"
)

// GraphRebuilder recomputes graph edges. An empty id list rebuilds every node.
// Satisfied by *discovery.Service.
type GraphRebuilder interface {
	RebuildGraph(ctx context.Context, ids []string) (*graph.RebuildReport, error)
}

// GraphRebuildConfig controls the scheduled full rebuild.
type GraphRebuildConfig struct {
	// OnStartup rebuilds once when the service starts.
	OnStartup bool

	// Interval between scheduled rebuilds. Zero disables the schedule.
	Interval time.Duration

	Retry RetryPolicy
}

// GraphRebuildService periodically recomputes every edge of the graph from
// stored metadata. Downstream refreshes follow the graph.changed event the
// rebuild publishes.
type GraphRebuildService struct {
	rebuilder GraphRebuilder
	config    GraphRebuildConfig
	logger    zerolog.Logger
	name      string
}

// NewGraphRebuildService creates the rebuild job.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewGraphRebuildService(rebuilder GraphRebuilder, cfg GraphRebuildConfig, logger zerolog.Logger) *GraphRebuildService {
	return &GraphRebuildService{
		rebuilder: rebuilder,
		config:    cfg,
		logger:    logger.With().Str("service", "graph-rebuild").Logger(),
		name:      "graph-rebuild",
	}
}

// Serve implements suture.Service.
func (s *GraphRebuildService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("on_startup", s.config.OnStartup).
		Dur("interval", s.config.Interval).
		Msg("graph rebuild job starting")

	if s.config.OnStartup {
		if err := s.rebuild(ctx); err != nil {
			return err
		}
	}

	if s.config.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("graph rebuild job shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := s.rebuild(ctx); err != nil {
				return err
			}
		}
	}
}

// rebuild runs one full rebuild, retrying until it succeeds or ctx is done.
// Only a canceled context is returned.
func (s *GraphRebuildService) rebuild(ctx context.Context) error {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := logging.CtxWith(ctx).Logger()

	var report *graph.RebuildReport
	err := retry(ctx, s.name, s.config.Retry, logger, func(ctx context.Context) error {
		var err error
		report, err = s.rebuilder.RebuildGraph(ctx, nil)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error().Err(err).Msg("graph rebuild abandoned")
		return nil
	}

	logger.Info().
		Int("rebuilt", len(report.Rebuilt)).
		Int("failed", len(report.Failed)).
		Int("skipped_edges", len(report.Skipped)).
		Int("edges_written", report.EdgesWritten).
		Uint64("graph_version", report.Version).
		Dur("duration", report.Duration).
		Msg("scheduled graph rebuild complete")
	return nil
}

// String returns the service name for logging.
func (s *GraphRebuildService) String() string {
	return s.name
}
