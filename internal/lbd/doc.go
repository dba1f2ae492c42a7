// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package lbd implements literature-based discovery over the subject tags of
the resource graph.

# ABC Discovery

Open discovery starts from two concepts A and C and looks for bridge
concepts B that co-occur with A in some resources and with C in others:

	A --(resources tagged A and B)--> B --(resources tagged B and C)--> C

A bridge that appears together with both A and C in a single resource is
not a hidden link and is never returned. For each remaining bridge:

	support    = min(|A,B resources|, |B,C resources|)
	novelty    = 1 / (1 + |resources tagged A and C|)
	confidence = support * novelty / max over candidates

Closed discovery fixes A and B and enumerates the targets C with the same
rules. Time-sliced validation predicts bridges from resources published
before a cutoff year and reports whether A and C were later co-tagged.

# Evidence

Every hypothesis carries two hops, each listing up to MaxEvidencePerHop
supporting resources ordered by quality then id. GraphProximity is the best
k-hop path score between the lead resources of the two hops.

# Caching

Results are cached per graph version for CacheTTL. Partial results, produced
when the context is canceled mid-scoring, are returned but never cached.
Validated hypotheses are stored without expiry.
*/
package lbd
