// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package embedding learns structural node embeddings from the resource graph
with random walks and skip-gram training.

# Algorithms

  - node2vec: second-order biased walks. From t->v the next node x is drawn
    with weight w(v,x)/p when x == t, w(v,x) when x is adjacent to t and
    w(v,x)/q otherwise.
  - deepwalk: uniform first-order walks, equivalent to node2vec with p = q = 1.

Walks use every edge type, traversing citation edges only from the citing
resource. The corpus is fed to skip-gram with negative sampling.

# Determinism

Each (node, walk) pair draws from its own PCG stream derived from the seed and
the node id, so the corpus does not depend on worker scheduling. Skip-gram
training is single-threaded. The same graph, parameters and seed always
produce the same vectors.

# Updates

Embedder.Update regenerates walks only around changed nodes and fine-tunes the
current model with the parameters it was trained with, so parameters applied
by an admin Compute survive later updates. A full retrain, again with those
parameters, runs when no model is loaded or the changed fraction exceeds
Config.FullRetrainFraction. Restore only accepts a persisted model trained
with the configured parameters.

# Serving

Cache holds the current Snapshot. Readers take one snapshot per request;
fusion vectors ([alpha*content, (1-alpha)*structural], each half unit
normalized) are memoized per snapshot and dropped with it.
*/
package embedding
