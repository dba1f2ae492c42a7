// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package graph holds the multi-relational resource graph and the builder that
derives its edges from resource metadata.

# Storage Model

The graph is an adjacency-list arena indexed by int32 with a stable mapping to
external resource ids. Removed nodes leave a tombstone; their slot is never
reused within a process.

Every node owns its outgoing edge set per type. Rebuilding a type for a node
replaces exactly that set, which makes recomputation idempotent. Undirected
edges (coauthor, subject_sim, temporal) are traversable from both endpoints;
citation edges only from the citing resource.

# Concurrency

Readers call Store.Snapshot and work against an immutable *Snapshot for the
whole request. Writers go through Store.Update:

	snap, err := store.Update(ctx, func(tx *graph.Tx) error {
	    if _, _, err := tx.UpsertNode(node); err != nil {
	        return err
	    }
	    return tx.ReplaceEdges(node.ID, graph.EdgeCitation, edges)
	})

The transaction copies only what it touches, persists the delta through the
configured Persister, and publishes the new snapshot with one atomic pointer
swap. A failed persist publishes nothing.

# Edge Weights

  - citation: 1.0, directed
  - coauthor: shared authors / union of authors
  - subject_sim: Jaccard of subject sets, kept above BuilderConfig.SubjectThreshold
  - temporal: 1 - d/(window+1) for year distance d within the window

At most BuilderConfig.MaxEdgesPerType edges are kept per node and type,
strongest first, ties by target id.
*/
package graph
