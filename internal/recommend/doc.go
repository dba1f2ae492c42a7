// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package recommend produces personalized resource recommendations from the
// knowledge graph.
//
// # Architecture
//
// A request flows through three stages:
//
//	Candidates -> Ranker (signal fusion) -> Diversifier (novelty, MMR)
//
// Candidates are the k-hop neighborhoods and nearest embedding neighbors of
// the user's most recent resources, minus resources the user already used.
// A user without history gets every resource as a candidate.
//
// # Signals
//
// The Ranker fuses up to three signals, each in [0, 1]:
//
//   - content: cosine of the user's interest vector and the candidate's
//     content embedding, clamped at 0
//   - graph: the best path score from the user's recent resources
//   - collaborative: the score of a CollaborativeScorer (see package collab)
//
// A strategy selects the signals; hybrid uses all three with the configured
// (or per-user) weights. When a signal is unavailable its weight is spread
// over the remaining ones and the result is marked degraded.
//
// # Partial Failure
//
// Candidates that cannot be scored (unknown node, missing or mismatched
// content embedding) are dropped and reported in the result instead of
// failing the whole request.
//
// # Caching
//
// Responses are cached in ristretto keyed by the request, the profile
// computation time and the graph version. The cache is cleared when the
// embedding model version changes. Degraded responses are never cached.
//
// # Thread Safety
//
// Engine and Ranker are safe for concurrent use.
package recommend
