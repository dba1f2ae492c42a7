// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package reranking implements post-processing algorithms for recommendation diversity.
//
// Rerankers operate on already-ranked recommendations and reorder them to
// balance relevance against redundancy and popularity:
//
//	Signals -> Fused Ranking -> Diversifier -> Final Ranking
//	(relevance)                 (novelty, diversity)
//
// # Novelty
//
// Before selection, every item's relevance is raised by
//
//	boost = min(novelty_weight / log(1 + max(popularity, 1)), relevance)
//
// so rarely used resources gain ground on popular ones. The boost never
// more than doubles an item's relevance.
//
// # MMR Algorithm
//
// Maximal Marginal Relevance iteratively selects items that are both
// relevant and dissimilar to already-selected items:
//
//	MMR = argmax[lambda * rel(i) - (1-lambda) * max_similarity(i, selected)]
//
// with lambda = 1 - diversity_weight and cosine similarity over content
// embeddings. Items without a content embedding have similarity 0 to
// everything.
//
// Lambda Guidelines:
//   - diversity 0: input order is preserved
//   - diversity 0.1-0.3: mostly relevance, redundant items pushed down
//   - diversity 0.5 and above: strong diversity push
//
// # Similarity Ceiling
//
// When the diversity weight is positive, a candidate whose similarity to the
// previously selected item exceeds the ceiling (default 0.9) is passed over
// as long as some candidate within the ceiling remains.
//
// # Performance
//
// MMR tracks the running maximum similarity of each candidate, so selection
// costs O(k * n) similarity computations for n candidates.
//
// # Thread Safety
//
// Rerankers are stateless and safe for concurrent use.
package reranking
