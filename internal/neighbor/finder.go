// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package neighbor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/viterin/vek/vek32"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
	"github.com/tomtom215/scriptorium/internal/neighbor/hnsw"
)

// Refresh modes reported to metrics.
const (
	modeFull  = "full"
	modePatch = "patch"
	modeExact = "exact"
	modeNoop  = "noop"
)

// Finder answers k-hop and similarity queries. Similarity indexes are held
// behind atomic pointers and replaced wholesale by Refresh, so queries never
// wait on a rebuild.
type Finder struct {
	graph  *graph.Store
	cache  *embedding.Cache
	cfg    Config
	logger zerolog.Logger

	indexes   [2]atomic.Pointer[annIndex]
	refreshMu sync.Mutex
	pending   chan struct{}
}

// NewFinder creates a finder and registers it for embedding swaps.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewFinder(g *graph.Store, cache *embedding.Cache, cfg Config, logger zerolog.Logger) *Finder {
	f := &Finder{
		graph:   g,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With().Str("component", "neighbor").Logger(),
		pending: make(chan struct{}, 1),
	}
	cache.OnSwap(func(*embedding.Snapshot) { f.requestRefresh() })
	return f
}

func (f *Finder) requestRefresh() {
	select {
	case f.pending <- struct{}{}:
	default:
	}
}

// Similar returns up to k nodes most similar to id in space, excluding id,
// with similarity >= minSimilarity, ordered by similarity then id.
func (f *Finder) Similar(ctx context.Context, id string, k int, minSimilarity float64, space Space) ([]SimilarResult, error) {
	start := time.Now()
	res, err := f.similar(ctx, id, k, minSimilarity, space)
	metrics.RecordOperation("similar", time.Since(start), err)
	return res, err
}

func (f *Finder) similar(ctx context.Context, id string, k int, minSimilarity float64, space Space) ([]SimilarResult, error) {
	if k <= 0 {
		return nil, apperr.Invalid("k must be positive, got %d", k)
	}
	if math.IsNaN(minSimilarity) || minSimilarity > 1 {
		return nil, apperr.Invalid("min_similarity must be at most 1, got %v", minSimilarity)
	}
	if _, err := ParseSpace(string(space)); err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}
	if _, ok := f.graph.Snapshot().Lookup(id); !ok {
		return nil, apperr.NotFound("node", id)
	}

	ix := f.indexes[space.slot()].Load()
	if ix == nil {
		// No index published yet: scan the current embeddings exactly.
		ix = f.exactIndex(space, f.cache.Snapshot(), f.graph.Snapshot())
	}
	query, ok := ix.vectors[id]
	if !ok {
		return nil, apperr.NotFound("embedding", id)
	}
	return ix.search(query, k, minSimilarity, id), nil
}

// SimilarToVector searches space for the k nodes closest to an arbitrary
// vector, excluding the ids in exclude.
func (f *Finder) SimilarToVector(ctx context.Context, vec []float32, k int, space Space, exclude map[string]struct{}) ([]SimilarResult, error) {
	if k <= 0 {
		return nil, apperr.Invalid("k must be positive, got %d", k)
	}
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}
	ix := f.indexes[space.slot()].Load()
	if ix == nil {
		ix = f.exactIndex(space, f.cache.Snapshot(), f.graph.Snapshot())
	}
	query := embedding.Normalize(vec)
	hits := ix.search(query, k+len(exclude), math.Inf(-1), "")
	out := make([]SimilarResult, 0, k)
	for _, h := range hits {
		if _, skip := exclude[h.ID]; skip {
			continue
		}
		out = append(out, h)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Similarity returns the cosine similarity of a and b in space, false when
// either lacks an embedding.
func (f *Finder) Similarity(a, b string, space Space) (float64, bool) {
	ix := f.indexes[space.slot()].Load()
	if ix == nil {
		return 0, false
	}
	va, okA := ix.vectors[a]
	vb, okB := ix.vectors[b]
	if !okA || !okB {
		return 0, false
	}
	return clamp(float64(vek32.Dot(va, vb))), true
}

// IndexSize returns the number of vectors indexed in space.
func (f *Finder) IndexSize(space Space) int {
	if ix := f.indexes[space.slot()].Load(); ix != nil {
		return ix.size()
	}
	return 0
}

// Ready reports whether both similarity indexes have been published.
func (f *Finder) Ready() bool {
	return f.indexes[0].Load() != nil && f.indexes[1].Load() != nil
}

// Refresh brings both similarity indexes up to date with the current
// embedding snapshot. The next index is built off the serving path and
// published with one pointer swap.
func (f *Finder) Refresh(ctx context.Context) error {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	emb := f.cache.Snapshot()
	snap := f.graph.Snapshot()
	for _, space := range []Space{SpaceStructural, SpaceFusion} {
		if err := apperr.CheckContext(ctx); err != nil {
			return err
		}
		if err := f.refreshSpace(ctx, space, emb, snap); err != nil {
			return fmt.Errorf("refresh %s index: %w", space, err)
		}
	}
	return nil
}

func (f *Finder) refreshSpace(ctx context.Context, space Space, emb *embedding.Snapshot, snap *graph.Snapshot) error {
	start := time.Now()
	slot := &f.indexes[space.slot()]
	cur := slot.Load()

	if cur != nil && cur.generation == emb.Version() && (space == SpaceStructural || cur.graphVersion == snap.Version()) {
		metrics.RecordANNRefresh(string(space), modeNoop, time.Since(start), cur.size())
		return nil
	}

	vectors := collectVectors(space, emb, snap, f.cfg.FusionAlpha)
	next := &annIndex{space: space, generation: emb.Version(), graphVersion: snap.Version(), vectors: vectors}

	mode := modeExact
	if len(vectors) >= f.cfg.BruteForceThreshold && len(vectors) > 0 {
		var err error
		next.graph, mode, err = f.buildGraph(ctx, cur, vectors)
		if err != nil {
			return err
		}
	}

	slot.Store(next)
	duration := time.Since(start)
	metrics.RecordANNRefresh(string(space), mode, duration, len(vectors))
	f.logger.Debug().
		Str("space", string(space)).
		Str("mode", mode).
		Int("size", len(vectors)).
		Uint64("embedding_generation", emb.Version()).
		Dur("duration", duration).
		Msg("similarity index refreshed")
	return nil
}

// buildGraph patches a clone of the current HNSW graph when the diff is small
// and rebuilds it otherwise.
func (f *Finder) buildGraph(ctx context.Context, cur *annIndex, vectors map[string][]float32) (*hnsw.Index, string, error) {
	if cur != nil && cur.graph != nil && cur.graph.Dim() == dimOf(vectors) {
		if g, ok, err := f.patch(ctx, cur, vectors); err != nil || ok {
			return g, modePatch, err
		}
	}

	g := hnsw.New(f.cfg.HNSW)
	for i, id := range sortedIDs(vectors) {
		if i%256 == 0 {
			if err := apperr.CheckContext(ctx); err != nil {
				return nil, "", err
			}
		}
		if err := g.Insert(id, vectors[id]); err != nil {
			return nil, "", apperr.Invalid("index %s: %v", id, err)
		}
	}
	return g, modeFull, nil
}

func (f *Finder) patch(ctx context.Context, cur *annIndex, vectors map[string][]float32) (*hnsw.Index, bool, error) {
	var removed, relink, drift []string
	for id := range cur.vectors {
		if _, ok := vectors[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id, v := range vectors {
		old, ok := cur.vectors[id]
		switch {
		case !ok:
			relink = append(relink, id)
		case float64(vek32.Dot(old, v)) < f.cfg.RelinkBelow:
			relink = append(relink, id)
		case !equalVectors(old, v):
			drift = append(drift, id)
		}
	}
	if float64(len(removed)+len(relink)) > f.cfg.PatchFraction*float64(max(len(vectors), 1)) {
		return nil, false, nil
	}

	g, err := cur.graph.Clone()
	if err != nil {
		f.logger.Warn().Err(err).Msg("cloning similarity graph failed, rebuilding")
		return nil, false, nil
	}
	for _, id := range removed {
		if err := g.Delete(id); err != nil {
			return nil, false, nil
		}
	}
	for i, id := range sortStrings(relink) {
		if i%256 == 0 {
			if err := apperr.CheckContext(ctx); err != nil {
				return nil, false, err
			}
		}
		if err := g.Insert(id, vectors[id]); err != nil {
			return nil, false, nil
		}
	}
	for _, id := range drift {
		if err := g.UpdateVector(id, vectors[id]); err != nil {
			return nil, false, nil
		}
	}
	return g, true, nil
}

func (f *Finder) exactIndex(space Space, emb *embedding.Snapshot, snap *graph.Snapshot) *annIndex {
	return &annIndex{
		space:        space,
		generation:   emb.Version(),
		graphVersion: snap.Version(),
		vectors:      collectVectors(space, emb, snap, f.cfg.FusionAlpha),
	}
}

// RunWithContext refreshes the indexes whenever embeddings are swapped. It
// performs an initial refresh and returns when ctx is canceled.
func (f *Finder) RunWithContext(ctx context.Context) error {
	f.requestRefresh()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.pending:
			if err := f.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.logger.Error().Err(err).Msg("similarity index refresh failed, serving previous index")
			}
		}
	}
}
