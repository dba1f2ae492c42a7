// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package neighbor

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/viterin/vek/vek32"

	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/neighbor/hnsw"
)

// Space selects the embedding space for similarity search.
type Space string

const (
	// SpaceStructural searches structural embeddings.
	SpaceStructural Space = "structural"
	// SpaceFusion searches concatenated content and structural embeddings.
	SpaceFusion Space = "fusion"
)

// ParseSpace parses a space name. The empty string is structural.
func ParseSpace(s string) (Space, error) {
	switch Space(s) {
	case "", SpaceStructural:
		return SpaceStructural, nil
	case SpaceFusion:
		return SpaceFusion, nil
	default:
		return "", fmt.Errorf("unknown embedding space %q", s)
	}
}

func (s Space) slot() int {
	if s == SpaceFusion {
		return 1
	}
	return 0
}

// SimilarResult is one similarity hit.
type SimilarResult struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// annIndex is an immutable similarity index over one embedding snapshot.
// Without an HNSW graph, search scans vectors exactly.
type annIndex struct {
	space        Space
	generation   uint64 // embedding cache generation
	graphVersion uint64
	vectors      map[string][]float32 // normalized
	graph        *hnsw.Index          // nil below the brute force threshold
}

func (ix *annIndex) size() int { return len(ix.vectors) }

// search returns up to k results with similarity >= minSim, never exclude.
func (ix *annIndex) search(query []float32, k int, minSim float64, exclude string) []SimilarResult {
	var hits []SimilarResult
	if ix.graph != nil {
		for _, r := range ix.graph.Search(query, k+1) {
			hits = append(hits, SimilarResult{ID: r.ID, Similarity: r.Similarity})
		}
	} else {
		hits = make([]SimilarResult, 0, len(ix.vectors))
		for id, v := range ix.vectors {
			hits = append(hits, SimilarResult{ID: id, Similarity: float64(vek32.Dot(query, v))})
		}
	}

	out := make([]SimilarResult, 0, k)
	for _, h := range hits {
		if h.ID == exclude || h.Similarity < minSim {
			continue
		}
		h.Similarity = clamp(h.Similarity)
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b SimilarResult) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func clamp(s float64) float64 {
	return max(-1, min(1, s))
}

// collectVectors gathers the normalized vectors of one space.
func collectVectors(space Space, emb *embedding.Snapshot, snap *graph.Snapshot, alpha float64) map[string][]float32 {
	out := make(map[string][]float32, emb.Len())
	switch space {
	case SpaceFusion:
		dim := snap.ContentDim()
		snap.Range(func(_ int32, n *graph.Node) bool {
			v, err := emb.Fusion(n.ID, n.ContentEmbedding, dim, alpha)
			if err == nil {
				out[n.ID] = embedding.Normalize(v)
			}
			return true
		})
	default:
		for _, id := range emb.IDs() {
			if _, live := snap.Lookup(id); !live {
				continue
			}
			v, _ := emb.Get(id)
			out[id] = embedding.Normalize(v)
		}
	}
	return out
}

func sortedIDs(vectors map[string][]float32) []string {
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func sortStrings(s []string) []string {
	slices.Sort(s)
	return s
}

func dimOf(vectors map[string][]float32) int {
	for _, v := range vectors {
		return len(v)
	}
	return 0
}

func equalVectors(a, b []float32) bool {
	return slices.Equal(a, b)
}
