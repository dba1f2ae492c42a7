// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package main

import (
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/api"
	"github.com/tomtom215/scriptorium/internal/config"
	"github.com/tomtom215/scriptorium/internal/supervisor"
	"github.com/tomtom215/scriptorium/internal/supervisor/services"
)

// treeConfig maps the supervisor section onto the tree settings.
func treeConfig(cfg *config.SupervisorConfig) supervisor.TreeConfig {
	return supervisor.TreeConfig{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		ShutdownTimeout:  cfg.ShutdownTimeout,
	}
}

func retryPolicy(cfg *config.SupervisorConfig) services.RetryPolicy {
	policy := services.DefaultRetryPolicy()
	if cfg.RetryBase > 0 {
		policy.Base = cfg.RetryBase
	}
	if cfg.RetryMax > 0 {
		policy.Max = cfg.RetryMax
	}
	return policy
}

// addJobs subscribes the event handlers and adds every enabled background
// job, the event bus and the ops server to the tree.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func addJobs(tree *supervisor.SupervisorTree, comps *Components, cfg *config.Config, logger zerolog.Logger) {
	sup := &cfg.Supervisor
	retry := retryPolicy(sup)

	tree.AddGraphService(services.NewRunnerService("similarity-index", comps.Finder))

	if sup.JobEnabled(config.JobGraphRebuild) {
		tree.AddGraphService(services.NewGraphRebuildService(comps.Service, services.GraphRebuildConfig{
			OnStartup: cfg.Graph.RebuildOnStartup,
			Interval:  cfg.Graph.RebuildInterval,
			Retry:     retry,
		}, logger))
	} else {
		logger.Info().Str("job", config.JobGraphRebuild).Msg("background job disabled")
	}

	if sup.JobEnabled(config.JobEmbedding) {
		embed := services.NewEmbeddingService(comps.Embedder, services.EmbeddingServiceConfig{
			TrainOnStartup:   cfg.Embedding.TrainOnStartup,
			UpdatesPerMinute: cfg.Embedding.UpdatesPerMinute,
			UpdateBurst:      cfg.Embedding.UpdateBurst,
			Retry:            retry,
		}, logger)
		comps.Bus.OnGraphChanged("embedding-updater", embed.HandleGraphChanged)
		tree.AddGraphService(embed)
	} else {
		logger.Info().Str("job", config.JobEmbedding).Msg("background job disabled")
	}

	switch {
	case comps.CoVisit == nil:
	case sup.JobEnabled(config.JobCollabTrainer):
		tree.AddGraphService(services.NewCollabService(comps.CoVisit, services.CollabServiceConfig{
			TrainOnStartup: true,
			TrainInterval:  cfg.Collab.Scorer.TrainInterval,
			TrainTimeout:   cfg.Collab.Scorer.TrainTimeout,
			Retry:          retry,
		}, logger))
	default:
		logger.Info().Str("job", config.JobCollabTrainer).Msg("background job disabled")
	}

	if sup.JobEnabled(config.JobStoreGC) {
		tree.AddGraphService(services.NewStoreGCService(comps.Store, logger))
	} else {
		logger.Info().Str("job", config.JobStoreGC).Msg("background job disabled")
	}

	comps.Bus.OnResourceRemoved("resource-removal", services.RemovalHandler(comps.Service))
	tree.AddEventService(services.NewEventBusService(comps.Bus, logger))

	server := newOpsServer(cfg, comps, logger)
	tree.AddOpsService(services.NewOpsServerService(server, server.Addr, cfg.Supervisor.ShutdownTimeout, logger))
}

// newOpsServer builds the HTTP server for health, metrics and admin routes.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func newOpsServer(cfg *config.Config, comps *Components, logger zerolog.Logger) *http.Server {
	router := api.NewRouter(comps.Service, api.RateLimitConfig{
		Requests: cfg.Server.RateLimitReqs,
		Window:   cfg.Server.RateLimitWindow,
		Disabled: cfg.Server.RateLimitDisabled,
	}, logger)

	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
}
