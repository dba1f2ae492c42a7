// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package recommend

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
	"github.com/tomtom215/scriptorium/internal/profile"
)

// Drop reasons recorded for candidates removed during ranking.
const (
	DropUnknownNode       = "unknown_node"
	DropMissingEmbedding  = "missing_embedding"
	DropDimensionMismatch = "dimension_mismatch"
)

// ProfileSource loads user profiles. It returns an error wrapping
// apperr.ErrNotFound for unknown users.
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
}

// GraphProximity scores nodes by their best path from a set of seeds.
type GraphProximity interface {
	PathScores(ctx context.Context, snap *graph.Snapshot, seeds []string, maxHops int) (map[string]float64, error)
}

// Ranker fuses content, graph and collaborative signals into one score.
type Ranker struct {
	graph     *graph.Store
	profiles  ProfileSource
	proximity GraphProximity
	collab    CollaborativeScorer
	cfg       *Config
	logger    zerolog.Logger
}

// NewRanker creates a ranker. collab may be nil, in which case the
// collaborative signal is always unavailable.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRanker(g *graph.Store, profiles ProfileSource, proximity GraphProximity, collab CollaborativeScorer, cfg *Config, logger zerolog.Logger) *Ranker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Ranker{
		graph:     g,
		profiles:  profiles,
		proximity: proximity,
		collab:    collab,
		cfg:       cfg,
		logger:    logger.With().Str("component", "ranker").Logger(),
	}
}

// candidate is a resolved candidate node.
type candidate struct {
	id   string
	node *graph.Node
}

// signalSet holds the computed signals of one ranking.
type signalSet struct {
	available map[Signal]bool
	graph     map[string]float64
	collab    map[string]float64
}

// Rank scores the candidates for a user and returns the top K.
//
// Candidates below MinQuality are removed before ranking and do not count
// toward K. Candidates that cannot be scored are dropped and listed in the
// result. The call fails only for unknown users, invalid arguments and
// cancellation.
func (r *Ranker) Rank(ctx context.Context, req RankRequest) (*RankResult, error) {
	start := time.Now()
	res, err := r.rank(ctx, &req)
	metrics.RecordOperation("rank", time.Since(start), err)
	return res, err
}

func (r *Ranker) rank(ctx context.Context, req *RankRequest) (*RankResult, error) {
	strategy, err := r.checkRequest(req)
	if err != nil {
		return nil, err
	}
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}

	p, err := r.profiles.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	snap := r.graph.Snapshot()

	result := &RankResult{Strategy: strategy.Name(), Items: []ScoredItem{}}
	var dropped apperr.PartialFailure
	cands := r.resolve(snap, req, result, &dropped)

	signals, err := r.computeSignals(ctx, snap, p, cands, strategy.Signals())
	if err != nil {
		return nil, err
	}

	userWeights := r.userWeights(p)
	var weights SignalWeights
	available := availableOf(signals, strategy.Signals())
	if len(available) > 0 {
		weights = strategy.Weights(userWeights).Normalize(available...)
	} else {
		// None of the strategy's signals can serve: fall back to whatever
		// the hybrid signals can offer.
		rest := missing(hybrid{}.Signals(), strategy.Signals())
		more, err := r.computeSignals(ctx, snap, p, cands, rest)
		if err != nil {
			return nil, err
		}
		signals.merge(more)
		available = availableOf(signals, hybrid{}.Signals())
		weights = userWeights.Normalize(available...)
	}

	for _, s := range (hybrid{}).Signals() {
		if slices.Contains(strategy.Signals(), s) && !signals.available[s] {
			result.UnavailableSignals = append(result.UnavailableSignals, s)
			metrics.RecordDegraded(string(s))
		}
	}
	result.Degraded = len(result.UnavailableSignals) > 0
	result.CollaborativeUnavailable = slices.Contains(result.UnavailableSignals, SignalCollaborative)

	items := make([]ScoredItem, 0, len(cands))
	for i, c := range cands {
		if i%256 == 0 {
			if err := apperr.CheckContext(ctx); err != nil {
				return nil, err
			}
		}
		item, reason := r.score(c, p, signals, weights)
		if reason != "" {
			dropped.Add(c.id, reason)
			continue
		}
		items = append(items, item)
	}

	slices.SortFunc(items, func(a, b ScoredItem) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(items) > req.K {
		items = items[:req.K]
	}
	result.Items = items
	result.Dropped = dropped.Dropped

	r.recordDropped(req.UserID, dropped.Dropped)
	r.logger.Debug().
		Str("user_id", req.UserID).
		Str("strategy", result.Strategy).
		Int("candidates", len(req.CandidateIDs)).
		Int("filtered", result.Filtered).
		Int("dropped", len(result.Dropped)).
		Int("returned", len(items)).
		Bool("degraded", result.Degraded).
		Msg("Ranked candidates")

	return result, nil
}

func (r *Ranker) checkRequest(req *RankRequest) (Strategy, error) {
	if req.UserID == "" {
		return nil, apperr.Invalid("user_id is required")
	}
	if req.K <= 0 {
		return nil, apperr.Invalid("k must be positive, got %d", req.K)
	}
	if req.MinQuality < 0 || req.MinQuality > 1 || math.IsNaN(req.MinQuality) {
		return nil, apperr.Invalid("min_quality must be in [0, 1], got %v", req.MinQuality)
	}
	return ParseStrategy(req.Strategy)
}

// resolve looks up candidate nodes, dropping unknown ids and filtering by
// quality. Duplicate ids keep their first occurrence.
func (r *Ranker) resolve(snap *graph.Snapshot, req *RankRequest, result *RankResult, dropped *apperr.PartialFailure) []candidate {
	seen := make(map[string]struct{}, len(req.CandidateIDs))
	cands := make([]candidate, 0, len(req.CandidateIDs))
	for _, id := range req.CandidateIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		n, ok := snap.Node(id)
		if !ok {
			dropped.Add(id, DropUnknownNode)
			continue
		}
		if n.Quality < req.MinQuality {
			result.Filtered++
			continue
		}
		cands = append(cands, candidate{id: id, node: n})
	}
	return cands
}

// computeSignals computes the requested signals concurrently. Failures of a
// signal mark it unavailable; only cancellation fails the call.
func (r *Ranker) computeSignals(ctx context.Context, snap *graph.Snapshot, p *profile.Profile, cands []candidate, wanted []Signal) (*signalSet, error) {
	set := &signalSet{available: make(map[Signal]bool, len(wanted))}
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range wanted {
		switch s {
		case SignalContent:
			set.available[SignalContent] = len(p.InterestVector) > 0
		case SignalGraph:
			g.Go(func() error {
				scores, err := r.proximity.PathScores(gctx, snap, p.RecentIDs(r.cfg.Graph.MaxSeedResources), r.cfg.Graph.MaxHops)
				if err != nil {
					if errors.Is(err, apperr.ErrCanceled) || ctx.Err() != nil {
						return apperr.FromContext(err)
					}
					r.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("Graph signal unavailable")
					return nil
				}
				set.graph = scores
				return nil
			})
		case SignalCollaborative:
			if r.collab == nil {
				continue
			}
			g.Go(func() error {
				scores, err := r.collaborative(gctx, p.UserID, cands)
				if err != nil {
					if ctx.Err() != nil {
						return apperr.FromContext(ctx.Err())
					}
					r.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("Collaborative signal unavailable")
					return nil
				}
				set.collab = scores
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.FromContext(err)
	}
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}
	if set.graph != nil {
		set.available[SignalGraph] = true
	}
	if set.collab != nil {
		set.available[SignalCollaborative] = true
	}
	return set, nil
}

// collaborative scores every candidate with the collaborative scorer. The
// first failure aborts the signal.
func (r *Ranker) collaborative(ctx context.Context, userID string, cands []candidate) (map[string]float64, error) {
	scores := make([]float64, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Limits.CollaborativeConcurrency)
	for i, c := range cands {
		g.Go(func() error {
			s, err := r.collab.Score(gctx, userID, c.id)
			if err != nil {
				return err
			}
			scores[i] = clamp01(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(cands))
	for i, c := range cands {
		out[c.id] = scores[i]
	}
	return out, nil
}

func (s *signalSet) merge(o *signalSet) {
	for sig, ok := range o.available {
		s.available[sig] = ok
	}
	if o.graph != nil {
		s.graph = o.graph
	}
	if o.collab != nil {
		s.collab = o.collab
	}
}

func (r *Ranker) userWeights(p *profile.Profile) SignalWeights {
	if w := p.Settings.Weights; w != nil {
		return SignalWeights{Content: w.Content, Graph: w.Graph, Collaborative: w.Collaborative}
	}
	return r.cfg.Weights
}

// score fuses the signals of one candidate. It returns a drop reason when the
// candidate cannot be scored.
//
//nolint:gocritic // weights passed by value
func (r *Ranker) score(c candidate, p *profile.Profile, signals *signalSet, w SignalWeights) (ScoredItem, string) {
	var sub Subscores
	if signals.available[SignalContent] && w.Content > 0 {
		emb := c.node.ContentEmbedding
		switch {
		case len(emb) == 0:
			return ScoredItem{}, DropMissingEmbedding
		case len(emb) != len(p.InterestVector):
			return ScoredItem{}, DropDimensionMismatch
		}
		sub.Content = clamp01(embedding.Cosine(p.InterestVector, emb))
	}
	if signals.available[SignalGraph] {
		sub.Graph = clamp01(signals.graph[c.id])
	}
	if signals.available[SignalCollaborative] {
		sub.Collaborative = signals.collab[c.id]
	}

	fused := w.Content*sub.Content + w.Graph*sub.Graph + w.Collaborative*sub.Collaborative
	item := ScoredItem{
		ID:         c.id,
		Score:      clamp01(fused),
		Subscores:  sub,
		Quality:    c.node.Quality,
		Popularity: c.node.Popularity,
	}
	return item.WithContent(c.node.ContentEmbedding), ""
}

func (r *Ranker) recordDropped(userID string, dropped []apperr.Dropped) {
	if len(dropped) == 0 {
		return
	}
	counts := make(map[string]int)
	for _, d := range dropped {
		counts[d.Reason]++
		r.logger.Warn().
			Str("user_id", userID).
			Str("resource_id", d.ID).
			Str("reason", d.Reason).
			Msg("Dropped candidate")
	}
	for reason, n := range counts {
		metrics.RecordDroppedCandidates(reason, n)
	}
}

func availableOf(set *signalSet, signals []Signal) []Signal {
	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if set.available[s] {
			out = append(out, s)
		}
	}
	return out
}

func missing(all, have []Signal) []Signal {
	out := make([]Signal, 0, len(all))
	for _, s := range all {
		if !slices.Contains(have, s) {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
