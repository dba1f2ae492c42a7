// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package embedding

import (
	"cmp"
	"context"
	"hash/fnv"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/graph"
)

// walkGraph is a read-only adjacency view of a graph snapshot. Local indices
// follow lexicographic id order so walks do not depend on arena layout.
type walkGraph struct {
	ids   []string
	index map[string]int32
	nbrs  [][]int32 // ascending
	wts   [][]float64
}

func newWalkGraph(snap *graph.Snapshot) *walkGraph {
	ids := snap.IDs()
	g := &walkGraph{
		ids:   ids,
		index: make(map[string]int32, len(ids)),
		nbrs:  make([][]int32, len(ids)),
		wts:   make([][]float64, len(ids)),
	}
	for i, id := range ids {
		g.index[id] = int32(i)
	}

	type pair struct {
		to int32
		w  float64
	}
	for i, id := range ids {
		arena, _ := snap.Lookup(id)
		ns := snap.Neighbors(arena, graph.AllEdges, graph.AggregateMax)
		pairs := make([]pair, 0, len(ns))
		for _, n := range ns {
			local, ok := g.index[snap.ExternalID(n.Index)]
			if !ok {
				continue
			}
			pairs = append(pairs, pair{to: local, w: n.Weight})
		}
		slices.SortFunc(pairs, func(a, b pair) int { return cmp.Compare(a.to, b.to) })

		g.nbrs[i] = make([]int32, len(pairs))
		g.wts[i] = make([]float64, len(pairs))
		for j, p := range pairs {
			g.nbrs[i][j] = p.to
			g.wts[i][j] = p.w
		}
	}
	return g
}

// adjacent reports whether b is one step from a.
func (g *walkGraph) adjacent(a, b int32) bool {
	_, ok := slices.BinarySearch(g.nbrs[a], b)
	return ok
}

// neighborhood returns the local indices within hops of seeds, seeds included.
func (g *walkGraph) neighborhood(seeds []int32, hops int) []int32 {
	seen := make(map[int32]struct{}, len(seeds))
	frontier := make([]int32, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			frontier = append(frontier, s)
		}
	}
	for h := 0; h < hops && len(frontier) > 0; h++ {
		var next []int32
		for _, v := range frontier {
			for _, x := range g.nbrs[v] {
				if _, ok := seen[x]; ok {
					continue
				}
				seen[x] = struct{}{}
				next = append(next, x)
			}
		}
		frontier = next
	}
	out := make([]int32, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// walk generates one walk from start. The first step is proportional to edge
// weight; later steps from t->v pick x with weight w(v,x)*alpha(t,x), where
// alpha is 1/p to return to t, 1 to stay adjacent to t and 1/q to move away.
func (g *walkGraph) walk(start int32, length int, p, q float64, src rand.Source) []int32 {
	path := make([]int32, 1, length)
	path[0] = start
	unbiased := p == 1 && q == 1

	var buf []float64
	for len(path) < length {
		cur := path[len(path)-1]
		nbrs := g.nbrs[cur]
		if len(nbrs) == 0 {
			break
		}

		weights := g.wts[cur]
		if len(path) > 1 && !unbiased {
			prev := path[len(path)-2]
			buf = buf[:0]
			for i, x := range nbrs {
				alpha := 1 / q
				switch {
				case x == prev:
					alpha = 1 / p
				case g.adjacent(prev, x):
					alpha = 1
				}
				buf = append(buf, g.wts[cur][i]*alpha)
			}
			weights = buf
		}

		sampler := sampleuv.NewWeighted(weights, src)
		i, ok := sampler.Take()
		if !ok {
			break
		}
		path = append(path, nbrs[i])
	}
	return path
}

// walkSeed derives the RNG stream of one (node, walk) pair from the node id so
// the corpus is identical regardless of scheduling.
func walkSeed(seed uint64, id string, walk int) *rand.PCG {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id)) //nolint:errcheck // hash writes never fail
	return rand.NewPCG(seed^h.Sum64(), uint64(walk))
}

// generateWalks produces numWalks walks from every start node with a bounded
// worker pool. Walks are returned ordered by walk round, then start node.
func generateWalks(ctx context.Context, g *walkGraph, starts []int32, params *Params, workers int) ([][]int32, error) {
	perNode := make([][][]int32, len(starts))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, start := range starts {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			walks := make([][]int32, params.NumWalks)
			for w := range params.NumWalks {
				walks[w] = g.walk(start, params.WalkLength, params.P, params.Q, walkSeed(params.Seed, g.ids[start], w))
			}
			perNode[i] = walks
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, apperr.FromContext(err)
	}

	corpus := make([][]int32, 0, len(starts)*params.NumWalks)
	for w := range params.NumWalks {
		for i := range starts {
			corpus = append(corpus, perNode[i][w])
		}
	}
	return corpus, nil
}
