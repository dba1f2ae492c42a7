// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package lbd

import (
	"context"
	"time"

	"github.com/tomtom215/scriptorium/internal/apperr"
)

// TimeRange restricts discovery to resources published in [From, To].
// A zero bound is open. Resources with an unknown year are excluded.
type TimeRange struct {
	From int `json:"from,omitempty" validate:"omitempty,min=0"`
	To   int `json:"to,omitempty" validate:"omitempty,min=0"`
}

func (r *TimeRange) contains(year int) bool {
	if r == nil {
		return true
	}
	if year == 0 {
		return false
	}
	if r.From != 0 && year < r.From {
		return false
	}
	if r.To != 0 && year > r.To {
		return false
	}
	return true
}

func (r *TimeRange) validate() error {
	if r == nil {
		return nil
	}
	if r.From < 0 || r.To < 0 {
		return apperr.Invalid("time range bounds must be non-negative, got [%d, %d]", r.From, r.To)
	}
	if r.From != 0 && r.To != 0 && r.From > r.To {
		return apperr.Invalid("time range from %d is after to %d", r.From, r.To)
	}
	return nil
}

// Query asks for bridges B linking ConceptA to ConceptC.
type Query struct {
	ConceptA  string     `json:"concept_a"`
	ConceptC  string     `json:"concept_c"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
	Limit     int        `json:"limit"`
}

// ClosedQuery fixes ConceptA and the bridge ConceptB and asks for targets C.
type ClosedQuery struct {
	ConceptA  string     `json:"concept_a"`
	ConceptB  string     `json:"concept_b"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
	Limit     int        `json:"limit"`
}

// Hop is one link of an evidence chain with the resources supporting it.
type Hop struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Resources []string `json:"resources"`
	// Count is the total number of supporting resources, of which at most
	// MaxEvidencePerHop are listed.
	Count int `json:"count"`
}

// Hypothesis proposes that ConceptA relates to ConceptC through ConceptB.
type Hypothesis struct {
	ID         string  `json:"id"`
	ConceptA   string  `json:"concept_a"`
	ConceptB   string  `json:"concept_b"`
	ConceptC   string  `json:"concept_c"`
	Support    int     `json:"support"`
	Novelty    float64 `json:"novelty"`
	Confidence float64 `json:"confidence"`
	// Evidence holds the A->B hop followed by the B->C hop.
	Evidence []Hop `json:"evidence"`
	// GraphProximity is the best k-hop path score between the lead
	// resources of the two hops, 0 when unreachable.
	GraphProximity float64    `json:"graph_proximity"`
	ValidatedAt    *time.Time `json:"validated_at,omitempty"`
}

// Result is the outcome of one discovery run.
type Result struct {
	Hypotheses []Hypothesis `json:"hypotheses"`
	// Candidates is the number of bridge candidates scored.
	Candidates int `json:"candidates"`
	// Partial is set when the run was canceled before scoring finished.
	Partial      bool      `json:"partial"`
	Cached       bool      `json:"cached"`
	GraphVersion uint64    `json:"graph_version"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// TimeSlicedResult reports whether a link predicted from resources published
// before Cutoff was later observed.
type TimeSlicedResult struct {
	Cutoff    int          `json:"cutoff"`
	Predicted []Hypothesis `json:"predicted"`
	Partial   bool         `json:"partial"`
	// Confirmed is set when A and C were co-tagged in a resource published
	// at or after the cutoff.
	Confirmed           bool     `json:"confirmed"`
	FirstConfirmedYear  int      `json:"first_confirmed_year,omitempty"`
	ConfirmingResources []string `json:"confirming_resources,omitempty"`
	// ConfirmedBridges lists predicted bridges that appear in a confirming resource.
	ConfirmedBridges []string `json:"confirmed_bridges,omitempty"`
}

// Cache stores discovery results and validated hypotheses.
type Cache interface {
	GetHypotheses(ctx context.Context, key string) (*Result, bool, error)
	PutHypotheses(ctx context.Context, key string, r *Result, ttl time.Duration) error
	SaveValidated(ctx context.Context, h *Hypothesis) error
	GetValidated(ctx context.Context, id string) (*Hypothesis, bool, error)
}
