// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package discovery

import (
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/lbd"
)

// DiscoverRequest asks for bridge concepts linking ConceptA to ConceptC.
type DiscoverRequest struct {
	ConceptA  string         `json:"concept_a" validate:"required,subject"`
	ConceptC  string         `json:"concept_c" validate:"required,subject"`
	TimeRange *lbd.TimeRange `json:"time_range,omitempty"`
	// Limit of zero uses the engine default.
	Limit int `json:"limit" validate:"gte=0,lte=500"`
}

// DiscoverClosedRequest fixes ConceptA and the bridge ConceptB and asks for
// target concepts.
type DiscoverClosedRequest struct {
	ConceptA  string         `json:"concept_a" validate:"required,subject"`
	ConceptB  string         `json:"concept_b" validate:"required,subject"`
	TimeRange *lbd.TimeRange `json:"time_range,omitempty"`
	Limit     int            `json:"limit" validate:"gte=0,lte=500"`
}

// TimeSlicedRequest replays discovery on resources published before Cutoff.
type TimeSlicedRequest struct {
	ConceptA string `json:"concept_a" validate:"required,subject"`
	ConceptC string `json:"concept_c" validate:"required,subject"`
	Cutoff   int    `json:"cutoff" validate:"gt=1"`
	Limit    int    `json:"limit" validate:"gte=0,lte=500"`
}

// SimilarRequest asks for the nearest neighbors of a resource.
type SimilarRequest struct {
	ID string `json:"id" validate:"required"`
	K  int    `json:"k" validate:"gt=0,lte=1000"`
	// MinSimilarity filters results below the threshold.
	MinSimilarity float64 `json:"min_similarity" validate:"gte=-1,lte=1"`
	// Space is structural (default) or fusion.
	Space string `json:"space,omitempty" validate:"omitempty,oneof=structural fusion"`
}

// KHopRequest asks for the multi-hop neighborhood of a resource.
type KHopRequest struct {
	ID      string `json:"id" validate:"required"`
	MaxHops int    `json:"max_hops" validate:"gte=0,lte=6"`
	// EdgeTypes restricts traversal; empty traverses every type.
	EdgeTypes []string `json:"edge_types,omitempty" validate:"omitempty,max=4,dive,edgetype"`
}

// EmbeddingReport describes the snapshot published by a retrain.
type EmbeddingReport struct {
	ModelVersion uint64 `json:"model_version"`
	Fingerprint  string `json:"fingerprint"`
	Nodes        int    `json:"nodes"`
	Dimensions   int    `json:"dimensions"`
}

func newEmbeddingReport(s *embedding.Snapshot) *EmbeddingReport {
	return &EmbeddingReport{
		ModelVersion: s.ModelVersion(),
		Fingerprint:  s.Fingerprint(),
		Nodes:        s.Len(),
		Dimensions:   s.Dim(),
	}
}
