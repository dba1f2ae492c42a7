// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
	"github.com/tomtom215/scriptorium/internal/neighbor"
	"github.com/tomtom215/scriptorium/internal/profile"
)

// NeighborSource supplies candidate neighborhoods.
type NeighborSource interface {
	KHopSnapshot(ctx context.Context, snap *graph.Snapshot, id string, maxHops int, filter graph.EdgeTypeSet) ([]neighbor.HopResult, error)
	Similar(ctx context.Context, id string, k int, minSimilarity float64, space neighbor.Space) ([]neighbor.SimilarResult, error)
}

// Dependencies are the collaborators of the engine.
type Dependencies struct {
	Graph     *graph.Store
	Profiles  ProfileSource
	Neighbors NeighborSource
	Ranker    *Ranker

	// Diversifier is optional; without it the ranked top K is returned.
	Diversifier Diversifier

	// Embeddings is optional; when set, the response cache is cleared
	// whenever the embedding model version changes.
	Embeddings *embedding.Cache
}

// Engine produces recommendations: it collects candidates around the user's
// recent resources, ranks them and diversifies the result.
// It is safe for concurrent use.
type Engine struct {
	config *Config
	logger zerolog.Logger
	deps   Dependencies
	space  neighbor.Space

	cache        *ristretto.Cache
	modelVersion atomic.Uint64

	requestCount atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	errorCount   atomic.Int64
}

// Stats are engine counters since start.
type Stats struct {
	RequestCount int64  `json:"request_count"`
	CacheHits    int64  `json:"cache_hits"`
	CacheMisses  int64  `json:"cache_misses"`
	ErrorCount   int64  `json:"error_count"`
	ModelVersion uint64 `json:"model_version"`
}

// NewEngine creates a new recommendation engine.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, deps Dependencies, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Graph == nil || deps.Profiles == nil || deps.Neighbors == nil || deps.Ranker == nil {
		return nil, fmt.Errorf("graph, profiles, neighbors and ranker are required")
	}
	space, err := neighbor.ParseSpace(cfg.Candidates.Space)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		config: cfg,
		logger: logger.With().Str("component", "recommend").Logger(),
		deps:   deps,
		space:  space,
	}

	if cfg.Cache.Enabled {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(cfg.Cache.MaxEntries) * 10,
			MaxCost:     int64(cfg.Cache.MaxEntries),
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create response cache: %w", err)
		}
		e.cache = cache
	}

	if deps.Embeddings != nil {
		if snap := deps.Embeddings.Snapshot(); snap != nil {
			e.modelVersion.Store(snap.ModelVersion())
		}
		deps.Embeddings.OnSwap(e.onEmbeddingSwap)
	}

	return e, nil
}

// onEmbeddingSwap clears cached responses when the model version changes.
func (e *Engine) onEmbeddingSwap(snap *embedding.Snapshot) {
	if snap == nil {
		return
	}
	version := snap.ModelVersion()
	if e.modelVersion.Swap(version) == version {
		return
	}
	e.ClearCache()
	e.logger.Info().Uint64("model_version", version).Msg("model version changed, response cache cleared")
}

// Recommend generates recommendations for a user.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	e.requestCount.Add(1)

	resp, err := e.recommend(ctx, req, start)
	if err != nil {
		e.errorCount.Add(1)
	}
	metrics.RecordOperation("recommend", time.Since(start), err)
	return resp, err
}

//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) recommend(ctx context.Context, req Request, start time.Time) (*Response, error) {
	req, err := e.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	logger := e.createRequestLogger(req)
	logger.Debug().Msg("processing recommendation request")

	p, err := e.deps.Profiles.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	snap := e.deps.Graph.Snapshot()
	opts := e.diversifyOptions(req, p)

	key := e.cacheKey(req, p, opts, snap.Version())
	if resp := e.tryGetCachedResponse(key, req.RequestID, start, logger); resp != nil {
		return resp, nil
	}

	candidates, err := e.collectCandidates(ctx, snap, p, req.Exclude)
	if err != nil {
		return nil, fmt.Errorf("collect candidates: %w", err)
	}
	if len(candidates) == 0 {
		logger.Debug().Msg("no candidates available")
		return e.emptyResponse(req, start), nil
	}

	ranked, err := e.deps.Ranker.Rank(ctx, RankRequest{
		UserID:       req.UserID,
		CandidateIDs: candidates,
		Strategy:     req.Strategy,
		MinQuality:   req.MinQuality,
		K:            req.K * e.config.Limits.RerankPoolFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}

	items, err := e.applyDiversifier(ctx, ranked.Items, opts)
	if err != nil {
		return nil, fmt.Errorf("diversify: %w", err)
	}

	resp := &Response{
		Items:           items,
		TotalCandidates: len(candidates),
		Degraded:        ranked.Degraded,
		Dropped:         ranked.Dropped,
		Metadata:        e.buildResponseMetadata(req, ranked.Strategy, start, false),
	}
	// Degraded responses are not cached so recovery shows up immediately.
	if !resp.Degraded {
		e.cacheResponse(key, resp)
	}

	logger.Debug().
		Int("candidates", len(candidates)).
		Int("ranked", len(ranked.Items)).
		Int("returned", len(items)).
		Bool("degraded", resp.Degraded).
		Int64("latency_ms", resp.Metadata.LatencyMS).
		Msg("recommendation complete")

	return resp, nil
}

// prepareRequest validates the request, applies defaults and generates a
// request ID if needed.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) prepareRequest(req Request) (Request, error) {
	if req.UserID == "" {
		return req, apperr.Invalid("user_id is required")
	}
	if req.K < 0 {
		return req, apperr.Invalid("k must be non-negative, got %d", req.K)
	}
	if _, err := ParseStrategy(req.Strategy); err != nil {
		return req, err
	}
	if req.MinQuality < 0 || req.MinQuality > 1 || math.IsNaN(req.MinQuality) {
		return req, apperr.Invalid("min_quality must be in [0, 1], got %v", req.MinQuality)
	}
	for _, w := range []struct {
		name  string
		value *float64
	}{{"diversity_weight", req.DiversityWeight}, {"novelty_weight", req.NoveltyWeight}} {
		if w.value != nil && (*w.value < 0 || *w.value > 1 || math.IsNaN(*w.value)) {
			return req, apperr.Invalid("%s must be in [0, 1], got %v", w.name, *w.value)
		}
	}

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Strategy == "" {
		req.Strategy = StrategyHybrid
	}
	if req.K == 0 {
		req.K = e.config.Limits.DefaultK
	}
	if req.K > e.config.Limits.MaxK {
		req.K = e.config.Limits.MaxK
	}
	return req, nil
}

// createRequestLogger creates a logger with request context.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) createRequestLogger(req Request) zerolog.Logger {
	return e.logger.With().
		Str("request_id", req.RequestID).
		Str("user_id", req.UserID).
		Str("strategy", req.Strategy).
		Logger()
}

// diversifyOptions resolves the diversity and novelty weights: request
// overrides win over the user's settings.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) diversifyOptions(req Request, p *profile.Profile) DiversifyOptions {
	opts := DiversifyOptions{
		DiversityWeight:   p.Settings.DiversityWeight,
		NoveltyWeight:     p.Settings.NoveltyWeight,
		K:                 req.K,
		SimilarityCeiling: e.config.Diversity.SimilarityCeiling,
	}
	if req.DiversityWeight != nil {
		opts.DiversityWeight = *req.DiversityWeight
	}
	if req.NoveltyWeight != nil {
		opts.NoveltyWeight = *req.NoveltyWeight
	}
	return opts
}

// collectCandidates gathers the k-hop neighborhoods and ANN neighbors of the
// user's recent resources, excluding resources the user already interacted
// with and the request's exclusions. When the neighborhood is empty every
// graph node is a candidate. At most Limits.MaxCandidates are returned.
func (e *Engine) collectCandidates(ctx context.Context, snap *graph.Snapshot, p *profile.Profile, exclude []string) ([]string, error) {
	limit := e.config.Limits.MaxCandidates
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, min(limit, snap.Len()))
	add := func(id string) bool {
		if _, ok := seen[id]; ok {
			return len(out) < limit
		}
		seen[id] = struct{}{}
		if _, ok := excluded[id]; ok || p.Interacted(id) {
			return len(out) < limit
		}
		out = append(out, id)
		return len(out) < limit
	}

	seeds := p.RecentIDs(e.config.Graph.MaxSeedResources)
	for _, seed := range seeds {
		if _, ok := snap.Lookup(seed); !ok {
			continue
		}
		if e.config.Candidates.Hops > 0 {
			hops, err := e.deps.Neighbors.KHopSnapshot(ctx, snap, seed, e.config.Candidates.Hops, graph.AllEdges)
			if err != nil {
				if errors.Is(err, apperr.ErrCanceled) {
					return nil, err
				}
				e.logger.Warn().Err(err).Str("seed", seed).Msg("k-hop candidates unavailable")
			}
			for _, h := range hops {
				if !add(h.ID) {
					return out, nil
				}
			}
		}
		if e.config.Candidates.SimilarPerSeed > 0 {
			similar, err := e.deps.Neighbors.Similar(ctx, seed, e.config.Candidates.SimilarPerSeed, -1, e.space)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				if errors.Is(err, apperr.ErrCanceled) {
					return nil, err
				}
				e.logger.Warn().Err(err).Str("seed", seed).Msg("similar candidates unavailable")
			}
			for _, s := range similar {
				if !add(s.ID) {
					return out, nil
				}
			}
		}
	}

	if len(out) == 0 {
		snap.Range(func(_ int32, n *graph.Node) bool {
			return add(n.ID)
		})
	}
	return out, apperr.CheckContext(ctx)
}

// applyDiversifier reduces ranked items to the diversified top K.
func (e *Engine) applyDiversifier(ctx context.Context, items []ScoredItem, opts DiversifyOptions) ([]ScoredItem, error) {
	if e.deps.Diversifier == nil {
		if len(items) > opts.K {
			items = items[:opts.K]
		}
		return items, nil
	}
	return e.deps.Diversifier.Diversify(ctx, items, opts)
}

// buildResponseMetadata constructs response metadata.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) buildResponseMetadata(req Request, strategy string, start time.Time, cacheHit bool) ResponseMetadata {
	return ResponseMetadata{
		RequestID:    req.RequestID,
		UserID:       req.UserID,
		Strategy:     strategy,
		LatencyMS:    time.Since(start).Milliseconds(),
		CacheHit:     cacheHit,
		ModelVersion: e.modelVersion.Load(),
		Timestamp:    time.Now(),
	}
}

// emptyResponse returns an empty response for cases with no candidates.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) emptyResponse(req Request, start time.Time) *Response {
	return &Response{
		Items:           []ScoredItem{},
		TotalCandidates: 0,
		Metadata:        e.buildResponseMetadata(req, req.Strategy, start, false),
	}
}

// cacheKey identifies a response. The profile computation time and the graph
// version are part of the key, so new interactions and graph changes miss.
//
//nolint:gocritic // hugeParam: req passed by value for simplicity
func (e *Engine) cacheKey(req Request, p *profile.Profile, opts DiversifyOptions, graphVersion uint64) string {
	exclude := slices.Clone(req.Exclude)
	slices.Sort(exclude)
	return fmt.Sprintf("rec:%s:%d:%s:%g:%g:%g:%s:%d:%d",
		req.UserID, req.K, req.Strategy, req.MinQuality,
		opts.DiversityWeight, opts.NoveltyWeight,
		strings.Join(exclude, ","), p.ComputedAt.UnixNano(), graphVersion)
}

// tryGetCachedResponse attempts to retrieve a cached response. The request id
// and timestamp of a hit belong to the current request.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func (e *Engine) tryGetCachedResponse(key, requestID string, start time.Time, logger zerolog.Logger) *Response {
	if e.cache == nil {
		return nil
	}
	v, ok := e.cache.Get(key)
	cached, isResp := v.(*Response)
	if !ok || !isResp {
		e.cacheMisses.Add(1)
		metrics.RecordRecommendCache(false)
		return nil
	}

	e.cacheHits.Add(1)
	metrics.RecordRecommendCache(true)
	resp := copyCachedResponse(cached)
	resp.Metadata.CacheHit = true
	resp.Metadata.RequestID = requestID
	resp.Metadata.Timestamp = time.Now()
	resp.Metadata.LatencyMS = time.Since(start).Milliseconds()
	logger.Debug().Msg("cache hit")
	return resp
}

// copyCachedResponse creates a copy of a cached response.
func copyCachedResponse(resp *Response) *Response {
	return &Response{
		Items:           slices.Clone(resp.Items),
		TotalCandidates: resp.TotalCandidates,
		Degraded:        resp.Degraded,
		Dropped:         slices.Clone(resp.Dropped),
		Metadata:        resp.Metadata, // Metadata is a value type, safe to copy
	}
}

// cacheResponse stores the response in the cache if enabled.
func (e *Engine) cacheResponse(key string, resp *Response) {
	if e.cache == nil {
		return
	}
	e.cache.SetWithTTL(key, copyCachedResponse(resp), 1, e.config.Cache.TTL)
	e.cache.Wait()
}

// ClearCache removes all cached responses.
func (e *Engine) ClearCache() {
	if e.cache == nil {
		return
	}
	e.cache.Clear()
	e.logger.Debug().Msg("cache cleared")
}

// Stats returns the current engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		RequestCount: e.requestCount.Load(),
		CacheHits:    e.cacheHits.Load(),
		CacheMisses:  e.cacheMisses.Load(),
		ErrorCount:   e.errorCount.Load(),
		ModelVersion: e.modelVersion.Load(),
	}
}

// GetConfig returns a copy of the current configuration.
func (e *Engine) GetConfig() *Config {
	return e.config.Clone()
}

// Close releases the response cache.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
