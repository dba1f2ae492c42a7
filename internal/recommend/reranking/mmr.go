// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package reranking

import (
	"context"
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/recommend"
)

// maxRerankSize limits slice allocations to prevent excessive memory usage.
// k is also bounded by len(items).
const maxRerankSize = 10000

// MMR implements Maximal Marginal Relevance reranking with a novelty boost.
// It balances relevance and diversity by iteratively selecting items
// that are both relevant and dissimilar to already selected items.
//
// The MMR formula is:
//
//	MMR = argmax[lambda * rel(i) - (1-lambda) * max(sim(i, s)) for s in selected]
//
// Where:
//   - lambda: 1 - diversity weight (1.0 = pure relevance, 0.0 = pure diversity)
//   - rel(i): the item's score plus its novelty boost
//   - sim(i, s): cosine similarity of the content embeddings of i and s
//
// Reference:
// Carbonell, J., & Goldstein, J. (1998). "The Use of MMR, Diversity-Based
// Reranking for Reordering Documents and Producing Summaries." SIGIR 1998.
type MMR struct{}

// NewMMR creates a new MMR reranker.
func NewMMR() *MMR {
	return &MMR{}
}

// Name returns the reranker identifier.
func (m *MMR) Name() string {
	return "mmr"
}

// NoveltyBoost returns the relevance added to an item for the given novelty
// weight: min(weight / log(1 + max(popularity, 1)), relevance).
func NoveltyBoost(weight, relevance float64, popularity int64) float64 {
	if weight <= 0 || relevance <= 0 {
		return 0
	}
	pop := float64(max(popularity, 1))
	return math.Min(weight/math.Log1p(pop), relevance)
}

// Diversify selects the top opts.K items. Each item's relevance is boosted
// for novelty first. With a zero diversity weight the input order is kept.
// Otherwise items are picked greedily by MMR; ties go to the earlier input
// position. A candidate whose similarity to the previously selected item
// exceeds opts.SimilarityCeiling is skipped while a candidate within the
// ceiling remains.
//
//nolint:gocritic // hugeParam: opts passed by value for immutability
func (m *MMR) Diversify(ctx context.Context, items []recommend.ScoredItem, opts recommend.DiversifyOptions) ([]recommend.ScoredItem, error) {
	k := min(opts.K, len(items), maxRerankSize)
	if k <= 0 {
		return []recommend.ScoredItem{}, nil
	}
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}

	relevance := make([]float64, len(items))
	boosted := make([]recommend.ScoredItem, len(items))
	for i := range items {
		boosted[i] = items[i]
		boosted[i].NoveltyBoost = NoveltyBoost(opts.NoveltyWeight, items[i].Score, items[i].Popularity)
		relevance[i] = items[i].Score + boosted[i].NoveltyBoost
	}

	if opts.DiversityWeight <= 0 {
		out := boosted[:k:k]
		for i := range out {
			out[i].MMRScore = relevance[i]
		}
		return out, nil
	}

	lambda := 1 - math.Min(opts.DiversityWeight, 1)
	ceiling := opts.SimilarityCeiling
	if ceiling <= 0 {
		ceiling = 1
	}

	norms := make([]float32, len(items))
	for i := range items {
		if v := items[i].Content(); len(v) > 0 {
			norms[i] = vek32.Norm(v)
		}
	}
	sim := func(i, j int) float64 {
		a, b := items[i].Content(), items[j].Content()
		if len(a) == 0 || len(a) != len(b) || norms[i] == 0 || norms[j] == 0 {
			return 0
		}
		return float64(vek32.Dot(a, b)) / (float64(norms[i]) * float64(norms[j]))
	}

	selected := make([]recommend.ScoredItem, 0, k)
	taken := make([]bool, len(items))
	maxSim := make([]float64, len(items))
	lastSim := make([]float64, len(items))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}

	for len(selected) < k {
		if err := apperr.CheckContext(ctx); err != nil {
			return nil, err
		}

		best, bestOver := -1, -1
		var bestScore, bestOverScore float64
		for i := range items {
			if taken[i] {
				continue
			}
			penalty := 0.0
			if len(selected) > 0 {
				penalty = maxSim[i]
			}
			score := lambda*relevance[i] - (1-lambda)*penalty

			// Strict comparison keeps the earliest input position on ties.
			if len(selected) > 0 && lastSim[i] > ceiling {
				if bestOver < 0 || score > bestOverScore {
					bestOver, bestOverScore = i, score
				}
				continue
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			best, bestScore = bestOver, bestOverScore
		}
		if best < 0 {
			break
		}

		taken[best] = true
		item := boosted[best]
		item.MMRScore = bestScore
		selected = append(selected, item)

		for i := range items {
			if taken[i] {
				continue
			}
			s := sim(i, best)
			lastSim[i] = s
			if s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	return selected, nil
}

// Ensure MMR implements the interface.
var _ recommend.Diversifier = (*MMR)(nil)
