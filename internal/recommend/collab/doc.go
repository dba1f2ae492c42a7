// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package collab provides the collaborative signal for recommendation ranking.
//
// # Co-Visitation
//
// CoVisitScorer learns which resources are used together. Interactions are
// grouped per user into sessions (consecutive events no further apart than
// the session window), and every pair of distinct resources in a session
// counts once. Pairs seen in fewer than MinCoOccurrence sessions are dropped
// and at most MaxPairs pairs are kept, strongest first.
//
// A user's score for a resource is 1 - prod(1 - sim(resource, h)) over the
// resources h in the user's history, so one strong neighbor or several weak
// ones both raise the score.
//
// # Freshness
//
// Training publishes a new immutable model with an atomic swap. Interactions
// reported through Observe between runs are folded into scoring right away.
//
// # Circuit Breaker
//
// Breaker puts a sony/gobreaker circuit in front of any scorer. When the
// scorer keeps failing the circuit opens and calls fail fast with
// apperr.ErrUnavailable, so ranking proceeds without the collaborative
// signal instead of waiting on it.
package collab
