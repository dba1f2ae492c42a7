// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package recommend

import (
	"context"
	"time"

	"github.com/tomtom215/scriptorium/internal/apperr"
)

// Signal names a ranking input.
type Signal string

const (
	// SignalContent is the cosine between the interest vector and a candidate's content embedding.
	SignalContent Signal = "content"
	// SignalGraph is the best k-hop path score from the user's recent resources.
	SignalGraph Signal = "graph"
	// SignalCollaborative is the collaborative scorer's output.
	SignalCollaborative Signal = "collaborative"
)

// Subscores holds the per-signal scores of one candidate, each in [0, 1].
type Subscores struct {
	Content       float64 `json:"content"`
	Graph         float64 `json:"graph"`
	Collaborative float64 `json:"collaborative"`
}

// ScoredItem is a ranked candidate.
type ScoredItem struct {
	// ID is the resource id.
	ID string `json:"id"`

	// Score is the fused relevance in [0, 1].
	Score float64 `json:"score"`

	// Subscores breaks Score down by signal.
	Subscores Subscores `json:"subscores"`

	// MMRScore is the objective value at which the diversifier selected the
	// item. Zero until diversified.
	MMRScore float64 `json:"mmr_score,omitempty"`

	// NoveltyBoost is the amount added to Score before diversification.
	NoveltyBoost float64 `json:"novelty_boost,omitempty"`

	Quality    float64 `json:"quality"`
	Popularity int64   `json:"popularity"`

	// content is the candidate's content embedding, used for diversification.
	content []float32
}

// Content returns the candidate's content embedding.
func (s *ScoredItem) Content() []float32 { return s.content }

// WithContent returns a copy of s carrying the given content embedding.
//
//nolint:gocritic // value receiver keeps the original untouched
func (s ScoredItem) WithContent(v []float32) ScoredItem {
	s.content = v
	return s
}

// RankRequest asks the ranker to score candidates for a user.
type RankRequest struct {
	UserID       string   `json:"user_id" validate:"required"`
	CandidateIDs []string `json:"candidate_ids"`
	Strategy     string   `json:"strategy,omitempty" validate:"omitempty,oneof=content graph collaborative hybrid"`
	// MinQuality removes candidates below this quality before ranking.
	MinQuality float64 `json:"min_quality,omitempty" validate:"gte=0,lte=1"`
	K          int     `json:"k" validate:"gte=1"`
}

// RankResult is the outcome of ranking.
type RankResult struct {
	Items    []ScoredItem `json:"items"`
	Strategy string       `json:"strategy"`

	// Filtered counts candidates removed by MinQuality.
	Filtered int `json:"filtered"`

	// Dropped lists candidates whose scoring failed.
	Dropped []apperr.Dropped `json:"dropped,omitempty"`

	// Degraded is set when a signal the strategy relies on was unavailable.
	Degraded bool `json:"degraded"`

	// UnavailableSignals lists the signals left out of fusion.
	UnavailableSignals []Signal `json:"unavailable_signals,omitempty"`

	// CollaborativeUnavailable is set when the collaborative scorer could not serve.
	CollaborativeUnavailable bool `json:"collaborative_unavailable"`
}

// Partial returns the dropped candidates as a PartialFailure, or nil.
func (r *RankResult) Partial() *apperr.PartialFailure {
	if len(r.Dropped) == 0 {
		return nil
	}
	return &apperr.PartialFailure{Dropped: r.Dropped}
}

// Request is a recommendation request.
type Request struct {
	// RequestID is generated when empty.
	RequestID string `json:"request_id,omitempty"`

	UserID string `json:"user_id" validate:"required"`

	// K is the number of recommendations. Zero uses Limits.DefaultK.
	K int `json:"k" validate:"gte=0"`

	Strategy   string  `json:"strategy,omitempty" validate:"omitempty,oneof=content graph collaborative hybrid"`
	MinQuality float64 `json:"min_quality,omitempty" validate:"gte=0,lte=1"`

	// DiversityWeight and NoveltyWeight override the user's settings when set.
	DiversityWeight *float64 `json:"diversity_weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	NoveltyWeight   *float64 `json:"novelty_weight,omitempty" validate:"omitempty,gte=0,lte=1"`

	// Exclude lists resources never to recommend.
	Exclude []string `json:"exclude,omitempty"`
}

// Response is a recommendation response.
type Response struct {
	Items []ScoredItem `json:"items"`

	// TotalCandidates is the number of candidates collected before ranking.
	TotalCandidates int `json:"total_candidates"`

	Degraded bool             `json:"degraded"`
	Dropped  []apperr.Dropped `json:"dropped,omitempty"`

	Metadata ResponseMetadata `json:"metadata"`
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	Strategy     string    `json:"strategy"`
	LatencyMS    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	ModelVersion uint64    `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// CollaborativeScorer scores a resource for a user in [0, 1]. It returns an
// error wrapping apperr.ErrUnavailable when it cannot serve.
type CollaborativeScorer interface {
	Score(ctx context.Context, userID, resourceID string) (float64, error)
}

// DiversifyOptions controls the diversifier.
type DiversifyOptions struct {
	DiversityWeight   float64
	NoveltyWeight     float64
	K                 int
	SimilarityCeiling float64
}

// Diversifier selects a diverse top K from ranked items.
type Diversifier interface {
	Name() string
	Diversify(ctx context.Context, items []ScoredItem, opts DiversifyOptions) ([]ScoredItem, error)
}
