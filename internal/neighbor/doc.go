// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package neighbor answers proximity queries over the resource graph.

# K-Hop Traversal

Finder.KHop runs a layered best-path search. A path's score is the product of
its edge weights times HopDecay^(hops-1). Every reachable node keeps its best
path; equal scores prefer fewer hops, then the lexicographically smaller
parent. The source node is never returned and KHop(id, 0) is empty.

Results are ordered by path score descending, hops ascending, then id.

# Similarity

Finder.Similar searches structural or fusion embeddings. Each space has an
immutable index behind an atomic pointer. Refresh builds the next index from
the current embedding snapshot:

  - below BruteForceThreshold vectors, the index is an exact scan;
  - a small diff patches a clone of the current HNSW graph;
  - anything larger rebuilds the HNSW graph.

Queries keep serving the previous index until the new one is stored.
RunWithContext refreshes after every embedding swap.
*/
package neighbor
