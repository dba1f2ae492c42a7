// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/discovery"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
)

// Service is the part of *discovery.Service the ops API exposes.
type Service interface {
	Ready(ctx context.Context) error
	Stats() discovery.Stats
	RebuildGraph(ctx context.Context, ids []string) (*graph.RebuildReport, error)
	RecomputeEmbeddings(ctx context.Context, params embedding.Params) (*discovery.EmbeddingReport, error)
	OnResourceRemoved(ctx context.Context, id string) error
}

// Router holds the handler dependencies.
type Router struct {
	svc       Service
	rateLimit RateLimitConfig
	metrics   http.Handler
	logger    zerolog.Logger
}

// NewRouter creates the ops router.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRouter(svc Service, rateLimit RateLimitConfig, logger zerolog.Logger) *Router {
	return &Router{
		svc:       svc,
		rateLimit: rateLimit,
		metrics:   promhttp.Handler(),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Handler builds the Chi route tree.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestMetrics())

	r.Get("/healthz", router.Live)
	r.Get("/readyz", router.Ready)
	r.Method(http.MethodGet, "/metrics", router.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(router.rateLimit))

		r.Get("/stats", router.Stats)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/graph/rebuild", router.RebuildGraph)
			r.Post("/embeddings/recompute", router.RecomputeEmbeddings)
			r.Delete("/resources/{id}", router.RemoveResource)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusNotFound, ErrCodeNotFound, "no such route")
	})
	return r
}
