// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package profile maintains user interest profiles.

A profile reduces a user's interaction log to:

  - an interest vector: the decay-weighted mean of the unit content
    embeddings of the resources the user interacted with, normalized to
    unit length;
  - recent resources ordered by decayed weight, used as graph seeds;
  - subject affinities: decayed weight per subject tag, summing to 1;
  - the user's settings (diversity, novelty, recency half-life and
    optional fusion weights).

Each interaction contributes strength * 2^(-age_days / half_life_days).

# Caching

Profiles live in an expirable LRU for CacheTTL. TrackInteraction appends to
a pending log that is merged with the provider's history at the next
computation, so interactions are reflected before upstream ingestion
catches up. After RecomputeAfter tracked interactions the cached profile is
dropped. Concurrent cache misses for one user share a single computation.
*/
package profile
