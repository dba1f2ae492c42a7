// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/events"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/lbd"
	"github.com/tomtom215/scriptorium/internal/metrics"
	"github.com/tomtom215/scriptorium/internal/neighbor"
	"github.com/tomtom215/scriptorium/internal/profile"
	"github.com/tomtom215/scriptorium/internal/recommend"
	"github.com/tomtom215/scriptorium/internal/validation"
)

// ErrOverloaded is returned when no request slot frees up in time.
var ErrOverloaded = errors.New("too many concurrent requests")

// Config holds configuration for the facade.
type Config struct {
	// MaxConcurrentRequests bounds in-flight query requests.
	MaxConcurrentRequests int64 `koanf:"max_concurrent_requests"`

	// AcquireTimeout is how long a request waits for a slot.
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`

	// TrackPopularity increments the node popularity counter on each
	// tracked interaction.
	TrackPopularity bool `koanf:"track_popularity"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 64,
		AcquireTimeout:        2 * time.Second,
		TrackPopularity:       true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("max_concurrent_requests must be positive, got %d", c.MaxConcurrentRequests)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire_timeout must be positive, got %s", c.AcquireTimeout)
	}
	return nil
}

// InteractionLog durably records tracked interactions.
type InteractionLog interface {
	AppendInteraction(ctx context.Context, userID string, in profile.Interaction) error
}

// Publisher announces lifecycle events.
type Publisher interface {
	ResourceRemoved(ctx context.Context, id string) error
	InteractionTracked(ctx context.Context, e events.InteractionTracked) error
}

// CollaborativeModel is the in-process collaborative model fed by tracked
// interactions.
type CollaborativeModel interface {
	Observe(userID, resourceID string)
	Forget(resourceID string)
}

// Pinger reports whether persistence is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components behind the facade.
type Dependencies struct {
	Graph       *graph.Store
	Builder     *graph.Builder
	Embedder    *embedding.Embedder
	Neighbors   *neighbor.Finder
	Discovery   *lbd.Engine
	Profiles    *profile.Manager
	Recommender *recommend.Engine

	// Optional collaborators.
	Interactions InteractionLog
	Events       Publisher
	Collab       CollaborativeModel
	Store        Pinger
}

// Service exposes the discovery and recommendation operations.
// It is safe for concurrent use.
type Service struct {
	cfg    Config
	deps   Dependencies
	sem    *semaphore.Weighted
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates the facade.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewService(cfg Config, deps Dependencies, logger zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid discovery config: %w", err)
	}
	switch {
	case deps.Graph == nil, deps.Builder == nil, deps.Embedder == nil, deps.Neighbors == nil:
		return nil, fmt.Errorf("graph, builder, embedder and neighbors are required")
	case deps.Discovery == nil, deps.Profiles == nil, deps.Recommender == nil:
		return nil, fmt.Errorf("discovery, profiles and recommender are required")
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		logger: logger.With().Str("component", "discovery").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// acquire reserves a request slot. The returned release must be called.
func (s *Service) acquire(ctx context.Context, op string) (func(), error) {
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()
	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, apperr.FromContext(ctx.Err())
		}
		s.logger.Warn().Str("op", op).Msg("request rejected, no slot available")
		return nil, apperr.Unavailable(op, ErrOverloaded)
	}
	return func() { s.sem.Release(1) }, nil
}

// query validates req, holds a request slot and runs fn.
func query[T any](ctx context.Context, s *Service, op string, req any, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := validation.Validate(req); err != nil {
		metrics.RecordOperation(op, 0, err)
		return zero, err
	}
	release, err := s.acquire(ctx, op)
	if err != nil {
		return zero, err
	}
	defer release()
	return fn(ctx)
}

// Discover runs open literature-based discovery.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (s *Service) Discover(ctx context.Context, req DiscoverRequest) (*lbd.Result, error) {
	return query(ctx, s, "discover", &req, func(ctx context.Context) (*lbd.Result, error) {
		return s.deps.Discovery.Discover(ctx, lbd.Query{
			ConceptA:  req.ConceptA,
			ConceptC:  req.ConceptC,
			TimeRange: req.TimeRange,
			Limit:     req.Limit,
		})
	})
}

// DiscoverClosed runs closed discovery with A and B fixed.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (s *Service) DiscoverClosed(ctx context.Context, req DiscoverClosedRequest) (*lbd.Result, error) {
	return query(ctx, s, "discover_closed", &req, func(ctx context.Context) (*lbd.Result, error) {
		return s.deps.Discovery.DiscoverClosed(ctx, lbd.ClosedQuery{
			ConceptA:  req.ConceptA,
			ConceptB:  req.ConceptB,
			TimeRange: req.TimeRange,
			Limit:     req.Limit,
		})
	})
}

// ValidateTimeSliced predicts bridges before a cutoff year and checks them
// against what was published afterwards.
func (s *Service) ValidateTimeSliced(ctx context.Context, req TimeSlicedRequest) (*lbd.TimeSlicedResult, error) {
	return query(ctx, s, "validate_time_sliced", &req, func(ctx context.Context) (*lbd.TimeSlicedResult, error) {
		return s.deps.Discovery.ValidateTimeSliced(ctx, req.ConceptA, req.ConceptC, req.Cutoff, req.Limit)
	})
}

// ValidateHypothesis persists a hypothesis as validated.
func (s *Service) ValidateHypothesis(ctx context.Context, h *lbd.Hypothesis) (*lbd.Hypothesis, error) {
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}
	return s.deps.Discovery.ValidateHypothesis(ctx, h)
}

// GetHypothesis returns a validated hypothesis by id.
func (s *Service) GetHypothesis(ctx context.Context, id string) (*lbd.Hypothesis, error) {
	if id == "" {
		return nil, apperr.Invalid("hypothesis id is required")
	}
	return s.deps.Discovery.GetValidated(ctx, id)
}

// Similar returns the nearest neighbors of a resource in embedding space.
func (s *Service) Similar(ctx context.Context, req SimilarRequest) ([]neighbor.SimilarResult, error) {
	return query(ctx, s, "similar", &req, func(ctx context.Context) ([]neighbor.SimilarResult, error) {
		space, err := neighbor.ParseSpace(req.Space)
		if err != nil {
			return nil, err
		}
		return s.deps.Neighbors.Similar(ctx, req.ID, req.K, req.MinSimilarity, space)
	})
}

// KHop returns the multi-hop neighborhood of a resource.
func (s *Service) KHop(ctx context.Context, req KHopRequest) ([]neighbor.HopResult, error) {
	return query(ctx, s, "khop", &req, func(ctx context.Context) ([]neighbor.HopResult, error) {
		filter, err := graph.ParseEdgeTypeSet(req.EdgeTypes)
		if err != nil {
			return nil, err
		}
		return s.deps.Neighbors.KHop(ctx, req.ID, req.MaxHops, filter)
	})
}

// Recommend returns ranked, diversified recommendations for a user.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (s *Service) Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error) {
	return query(ctx, s, "recommend", &req, func(ctx context.Context) (*recommend.Response, error) {
		return s.deps.Recommender.Recommend(ctx, req)
	})
}

// TrackInteraction records a user interaction. The interaction is logged
// durably first; a logging failure leaves the profile untouched.
func (s *Service) TrackInteraction(ctx context.Context, userID string, in profile.Interaction) error {
	if userID == "" {
		return apperr.Invalid("user_id is required")
	}
	if err := validation.Validate(&in); err != nil {
		return err
	}
	if err := apperr.CheckContext(ctx); err != nil {
		return err
	}
	// One timestamp for the durable log and the pending log keeps their
	// dedupe keys equal.
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}

	if s.deps.Interactions != nil {
		if err := s.deps.Interactions.AppendInteraction(ctx, userID, in); err != nil {
			if errors.Is(err, apperr.ErrInvalidArgument) {
				return err
			}
			return apperr.Unavailable("track interaction", err)
		}
	}
	if err := s.deps.Profiles.TrackInteraction(ctx, userID, in); err != nil {
		return err
	}
	if s.deps.Collab != nil {
		s.deps.Collab.Observe(userID, in.ResourceID)
	}
	if s.cfg.TrackPopularity {
		s.addPopularity(ctx, in.ResourceID)
	}

	if s.deps.Events != nil {
		err := s.deps.Events.InteractionTracked(ctx, events.InteractionTracked{
			UserID:     userID,
			ResourceID: in.ResourceID,
			Type:       string(in.Type),
			OccurredAt: in.Timestamp,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to publish interaction event")
		}
	}
	return nil
}

// addPopularity bumps the popularity of a known resource.
func (s *Service) addPopularity(ctx context.Context, id string) {
	if _, ok := s.deps.Graph.Snapshot().Node(id); !ok {
		return
	}
	_, err := s.deps.Graph.Update(ctx, func(tx *graph.Tx) error {
		return tx.AddPopularity(id, 1)
	})
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn().Err(err).Str("resource_id", id).Msg("failed to update popularity")
	}
}

// GetSettings returns a user's recommendation settings.
func (s *Service) GetSettings(ctx context.Context, userID string) (profile.Settings, error) {
	return s.deps.Profiles.Settings(ctx, userID)
}

// UpdateSettings stores a user's recommendation settings.
func (s *Service) UpdateSettings(ctx context.Context, userID string, settings profile.Settings) error {
	if err := validation.Validate(&settings); err != nil {
		return err
	}
	return s.deps.Profiles.UpdateSettings(ctx, userID, settings)
}

// RebuildGraph recomputes the edges of ids, or of every node when ids is
// empty. Downstream refreshes follow the graph.changed event.
func (s *Service) RebuildGraph(ctx context.Context, ids []string) (*graph.RebuildReport, error) {
	return s.deps.Builder.Rebuild(ctx, ids)
}

// RecomputeEmbeddings retrains structural embeddings from scratch. Zero
// fields of params take the configured defaults.
//
//nolint:gocritic // hugeParam: params passed by value for immutability
func (s *Service) RecomputeEmbeddings(ctx context.Context, params embedding.Params) (*EmbeddingReport, error) {
	if err := validation.Validate(&params); err != nil {
		return nil, err
	}
	snap, err := s.deps.Embedder.Compute(ctx, params)
	if err != nil {
		return nil, err
	}
	return newEmbeddingReport(snap), nil
}

// OnResourceRemoved handles removal of a resource from the library. With an
// event bus the removal is announced and handled asynchronously; without
// one it is applied immediately.
func (s *Service) OnResourceRemoved(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Invalid("resource id is required")
	}
	if s.deps.Events != nil {
		err := s.deps.Events.ResourceRemoved(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, events.ErrClosed) {
			return apperr.Unavailable("resource removed", err)
		}
		s.logger.Debug().Str("resource_id", id).Msg("event bus closed, removing resource inline")
	}
	return s.RemoveResource(ctx, id)
}

// RemoveResource deletes a node, its edges and its embeddings, and drops it
// from every derived structure. Removing an unknown resource is a no-op.
func (s *Service) RemoveResource(ctx context.Context, id string) error {
	start := time.Now()
	removed := false
	_, err := s.deps.Graph.Update(ctx, func(tx *graph.Tx) error {
		removed = tx.RemoveNode(id)
		return nil
	})
	metrics.RecordOperation("remove_resource", time.Since(start), err)
	if err != nil {
		return err
	}

	s.deps.Embedder.Remove(id)
	if s.deps.Collab != nil {
		s.deps.Collab.Forget(id)
	}
	if removed {
		s.deps.Profiles.Purge()
		s.deps.Recommender.ClearCache()
	}
	s.logger.Info().Str("resource_id", id).Bool("existed", removed).Msg("resource removed")
	return nil
}

// Ready reports whether the service can answer queries: persistence is
// reachable and the similarity indexes are published.
func (s *Service) Ready(ctx context.Context) error {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			return apperr.Unavailable("store", err)
		}
	}
	if !s.deps.Neighbors.Ready() {
		return apperr.Unavailable("similarity index", errors.New("index not built yet"))
	}
	return nil
}

// Stats summarizes the state of the engine.
type Stats struct {
	GraphVersion   uint64          `json:"graph_version"`
	Nodes          int             `json:"nodes"`
	Edges          int             `json:"edges"`
	ModelVersion   uint64          `json:"model_version"`
	Embedded       int             `json:"embedded"`
	StructuralSize int             `json:"structural_index_size"`
	FusionSize     int             `json:"fusion_index_size"`
	Recommend      recommend.Stats `json:"recommend"`
}

// Stats returns a point-in-time summary.
func (s *Service) Stats() Stats {
	snap := s.deps.Graph.Snapshot()
	st := Stats{
		GraphVersion:   snap.Version(),
		Nodes:          snap.Len(),
		Edges:          snap.EdgeCount(),
		StructuralSize: s.deps.Neighbors.IndexSize(neighbor.SpaceStructural),
		FusionSize:     s.deps.Neighbors.IndexSize(neighbor.SpaceFusion),
		Recommend:      s.deps.Recommender.Stats(),
	}
	if emb := s.deps.Embedder.Cache().Snapshot(); emb != nil {
		st.ModelVersion = emb.ModelVersion()
		st.Embedded = emb.Len()
	}
	return st
}
