// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/config"
	"github.com/tomtom215/scriptorium/internal/discovery"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/events"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/lbd"
	"github.com/tomtom215/scriptorium/internal/modelstore"
	"github.com/tomtom215/scriptorium/internal/neighbor"
	"github.com/tomtom215/scriptorium/internal/profile"
	"github.com/tomtom215/scriptorium/internal/recommend"
	"github.com/tomtom215/scriptorium/internal/recommend/collab"
	"github.com/tomtom215/scriptorium/internal/recommend/reranking"
	"github.com/tomtom215/scriptorium/internal/store"
)

// Components holds the long-lived domain components built at startup.
type Components struct {
	Store    *store.Store
	Graph    *graph.Store
	Bus      *events.Bus
	Embedder *embedding.Embedder
	Finder   *neighbor.Finder
	Service  *discovery.Service

	// CoVisit is nil when the collaborative scorer is disabled.
	CoVisit *collab.CoVisitScorer
}

// Close releases the bus and the store. Errors are logged, not returned.
func (c *Components) Close(logger zerolog.Logger) { //nolint:gocritic // logger passed by value is acceptable for zerolog
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close event bus")
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}
}

// initComponents opens persistence, loads the graph and builds every
// component behind the discovery facade. On error, whatever was already
// opened is closed.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func initComponents(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (comps *Components, err error) {
	comps = &Components{}
	defer func() {
		if err != nil {
			comps.Close(logger)
			comps = nil
		}
	}()

	comps.Store, err = store.Open(cfg.Store, logger)
	if err != nil {
		return comps, fmt.Errorf("open store: %w", err)
	}

	comps.Graph = graph.NewStore(comps.Store, logger)
	if err = comps.Graph.Load(ctx); err != nil {
		return comps, fmt.Errorf("load graph: %w", err)
	}
	snap := comps.Graph.Snapshot()
	logger.Info().Int("nodes", snap.Len()).Int("edges", snap.EdgeCount()).Msg("graph loaded")

	comps.Bus, err = events.NewBus(cfg.Events, logger)
	if err != nil {
		return comps, fmt.Errorf("create event bus: %w", err)
	}

	builder := graph.NewBuilder(comps.Graph, graph.SnapshotProvider{Store: comps.Graph}, cfg.Graph.Builder, logger)
	builder.SetNotifier(comps.Bus)

	var models *modelstore.Store
	if dir := cfg.Embedding.Model.ModelDir; dir != "" {
		models, err = modelstore.NewStore(dir)
		if err != nil {
			return comps, fmt.Errorf("open model store: %w", err)
		}
	} else {
		logger.Warn().Msg("embedding model directory not set, trained models will not be persisted")
	}
	cache := embedding.NewCache()
	comps.Embedder = embedding.NewEmbedder(comps.Graph, cache, models, comps.Store, cfg.Embedding.Model, logger)

	comps.Finder = neighbor.NewFinder(comps.Graph, cache, cfg.Neighbor, logger)
	lbdEngine := lbd.NewEngine(comps.Graph, comps.Finder, comps.Store, cfg.LBD, logger)
	profiles := profile.NewManager(comps.Store, profile.GraphFeatures{Store: comps.Graph}, comps.Store, cfg.Profile, logger)

	var (
		collabScorer recommend.CollaborativeScorer
		collabModel  discovery.CollaborativeModel
	)
	if cfg.Collab.Enabled {
		comps.CoVisit = collab.NewCoVisitScorer(comps.Store, cfg.Collab.Scorer, logger)
		collabScorer = collab.NewBreaker(comps.CoVisit, cfg.Collab.Scorer.Breaker, logger)
		collabModel = comps.CoVisit
	} else {
		logger.Info().Msg("collaborative scorer disabled (COLLAB_ENABLED=false)")
	}

	ranker := recommend.NewRanker(comps.Graph, profiles, comps.Finder, collabScorer, &cfg.Recommend, logger)
	recommender, err := recommend.NewEngine(&cfg.Recommend, recommend.Dependencies{
		Graph:       comps.Graph,
		Profiles:    profiles,
		Neighbors:   comps.Finder,
		Ranker:      ranker,
		Diversifier: reranking.NewMMR(),
		Embeddings:  cache,
	}, logger)
	if err != nil {
		return comps, fmt.Errorf("create recommendation engine: %w", err)
	}

	comps.Service, err = discovery.NewService(cfg.Discovery, discovery.Dependencies{
		Graph:        comps.Graph,
		Builder:      builder,
		Embedder:     comps.Embedder,
		Neighbors:    comps.Finder,
		Discovery:    lbdEngine,
		Profiles:     profiles,
		Recommender:  recommender,
		Interactions: comps.Store,
		Events:       comps.Bus,
		Collab:       collabModel,
		Store:        comps.Store,
	}, logger)
	if err != nil {
		return comps, fmt.Errorf("create discovery service: %w", err)
	}

	return comps, nil
}
