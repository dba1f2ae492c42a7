// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package neighbor

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// HopResult is one node reached by KHop.
type HopResult struct {
	ID string `json:"id"`
	// Hops is the length of the best path.
	Hops int `json:"hops"`
	// PathScore is the product of edge weights times decay^(hops-1).
	PathScore float64 `json:"path_score"`
	// Path holds the intermediate node ids, source and target excluded.
	Path []string `json:"path,omitempty"`
}

// hopEntry is the best path into a node at one layer.
type hopEntry struct {
	score  float64
	parent int32
}

// KHop returns the nodes reachable from id within maxHops over edges in
// filter, each with its best path. Results are ordered by path score
// descending, then hops ascending, then id.
func (f *Finder) KHop(ctx context.Context, id string, maxHops int, filter graph.EdgeTypeSet) ([]HopResult, error) {
	start := time.Now()
	res, err := f.kHop(ctx, f.graph.Snapshot(), id, maxHops, filter)
	metrics.RecordOperation("k_hop", time.Since(start), err)
	return res, err
}

// KHopSnapshot is KHop against a caller-held snapshot.
func (f *Finder) KHopSnapshot(ctx context.Context, snap *graph.Snapshot, id string, maxHops int, filter graph.EdgeTypeSet) ([]HopResult, error) {
	return f.kHop(ctx, snap, id, maxHops, filter)
}

func (f *Finder) kHop(ctx context.Context, snap *graph.Snapshot, id string, maxHops int, filter graph.EdgeTypeSet) ([]HopResult, error) {
	if maxHops < 0 {
		return nil, apperr.Invalid("max_hops must be non-negative, got %d", maxHops)
	}
	if maxHops > f.cfg.MaxHops {
		return nil, apperr.Invalid("max_hops must be at most %d, got %d", f.cfg.MaxHops, maxHops)
	}
	src, ok := snap.Lookup(id)
	if !ok {
		return nil, apperr.NotFound("node", id)
	}
	if maxHops == 0 {
		return []HopResult{}, nil
	}

	// layers[h] holds the nodes whose best path improved at exactly h hops.
	// Only improved nodes are expanded: a path through a node that was
	// already reached with a better or equal score in fewer hops is dominated.
	layers := make([]map[int32]hopEntry, maxHops+1)
	layers[0] = map[int32]hopEntry{src: {score: 1, parent: -1}}
	bestScore := map[int32]float64{src: 1}
	bestHops := map[int32]int{src: 0}

	expanded := 0
	for h := 1; h <= maxHops && len(layers[h-1]) > 0; h++ {
		if err := apperr.CheckContext(ctx); err != nil {
			return nil, err
		}
		factor := 1.0
		if h > 1 {
			factor = f.cfg.HopDecay
		}

		next := make(map[int32]hopEntry)
		for _, u := range sortedKeys(layers[h-1], snap) {
			from := layers[h-1][u]
			for _, nb := range snap.Neighbors(u, filter, graph.AggregateMax) {
				if nb.Index == src {
					continue
				}
				expanded++
				if expanded%4096 == 0 {
					if err := apperr.CheckContext(ctx); err != nil {
						return nil, err
					}
				}
				score := from.score * nb.Weight * factor
				cur, seen := next[nb.Index]
				if seen && score <= cur.score {
					continue
				}
				next[nb.Index] = hopEntry{score: score, parent: u}
			}
		}

		for v, e := range next {
			if prev, ok := bestScore[v]; ok && e.score <= prev {
				delete(next, v)
				continue
			}
			bestScore[v] = e.score
			bestHops[v] = h
		}
		layers[h] = next
	}

	out := make([]HopResult, 0, len(bestHops)-1)
	for v, h := range bestHops {
		if v == src {
			continue
		}
		out = append(out, HopResult{
			ID:        snap.ExternalID(v),
			Hops:      h,
			PathScore: bestScore[v],
			Path:      tracePath(layers, v, h, snap),
		})
	}
	slices.SortFunc(out, compareHops)
	return out, nil
}

// sortedKeys returns the layer's nodes in external id order so that equal
// scores resolve to the lexicographically smallest parent.
func sortedKeys(layer map[int32]hopEntry, snap *graph.Snapshot) []int32 {
	keys := make([]int32, 0, len(layer))
	for k := range layer {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b int32) int {
		return cmp.Compare(snap.ExternalID(a), snap.ExternalID(b))
	})
	return keys
}

func tracePath(layers []map[int32]hopEntry, v int32, h int, snap *graph.Snapshot) []string {
	if h <= 1 {
		return nil
	}
	path := make([]string, h-1)
	cur := layers[h][v].parent
	for i := h - 1; i >= 1; i-- {
		path[i-1] = snap.ExternalID(cur)
		cur = layers[i][cur].parent
	}
	return path
}

func compareHops(a, b HopResult) int {
	if c := cmp.Compare(b.PathScore, a.PathScore); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Hops, b.Hops); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// PathScores returns the best path score within maxHops from any seed to
// each reachable node. Seeds themselves are excluded.
func (f *Finder) PathScores(ctx context.Context, snap *graph.Snapshot, seeds []string, maxHops int) (map[string]float64, error) {
	scores := make(map[string]float64)
	for _, seed := range seeds {
		if _, ok := snap.Lookup(seed); !ok {
			continue
		}
		hops, err := f.kHop(ctx, snap, seed, maxHops, graph.AllEdges)
		if err != nil {
			return nil, err
		}
		for _, r := range hops {
			if r.PathScore > scores[r.ID] {
				scores[r.ID] = r.PathScore
			}
		}
	}
	for _, seed := range seeds {
		delete(scores, seed)
	}
	return scores, nil
}
