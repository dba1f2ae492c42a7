// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package profile

import (
	"context"
	"fmt"
	"math"
	"time"
)

// InteractionType classifies how a user engaged with a resource.
type InteractionType string

const (
	// InteractionView is a resource page view or preview.
	InteractionView InteractionType = "view"
	// InteractionRead indicates the resource was opened and read.
	InteractionRead InteractionType = "read"
	// InteractionBookmark indicates the resource was saved to a collection.
	InteractionBookmark InteractionType = "bookmark"
	// InteractionAnnotate indicates the user annotated the resource.
	InteractionAnnotate InteractionType = "annotate"
	// InteractionCite indicates the user cited the resource in their work.
	InteractionCite InteractionType = "cite"
)

// Strength returns the default signal strength of the interaction type.
// Higher values indicate a stronger positive signal.
func (t InteractionType) Strength() float64 {
	switch t {
	case InteractionCite:
		return 1.0
	case InteractionAnnotate:
		return 0.9
	case InteractionBookmark:
		return 0.8
	case InteractionRead:
		return 0.6
	case InteractionView:
		return 0.2
	default:
		return 0
	}
}

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool { return t.Strength() > 0 }

// Interaction is one tracked user-resource event.
type Interaction struct {
	ResourceID string          `json:"resource_id" validate:"required"`
	Type       InteractionType `json:"type" validate:"required,oneof=view read bookmark annotate cite"`
	// Strength overrides the type's default strength when positive.
	Strength  float64   `json:"strength,omitempty" validate:"gte=0,lte=1"`
	Timestamp time.Time `json:"timestamp"`
}

func (i *Interaction) strength() float64 {
	if i.Strength > 0 {
		return i.Strength
	}
	return i.Type.Strength()
}

func (i *Interaction) key() string {
	return fmt.Sprintf("%s|%s|%d", i.ResourceID, i.Type, i.Timestamp.UnixNano())
}

// FusionWeights are per-user weights of the ranking signals.
type FusionWeights struct {
	Content       float64 `json:"content" koanf:"content" validate:"gte=0,lte=1"`
	Graph         float64 `json:"graph" koanf:"graph" validate:"gte=0,lte=1"`
	Collaborative float64 `json:"collaborative" koanf:"collaborative" validate:"gte=0,lte=1"`
}

// Validate checks that the weights are non-negative and not all zero.
func (w *FusionWeights) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{{"content", w.Content}, {"graph", w.Graph}, {"collaborative", w.Collaborative}} {
		if f.value < 0 || f.value > 1 || math.IsNaN(f.value) {
			return fmt.Errorf("%s weight must be in [0, 1], got %v", f.name, f.value)
		}
	}
	if w.Content+w.Graph+w.Collaborative == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}
	return nil
}

// Settings are the per-user tunables of recommendation.
type Settings struct {
	DiversityWeight     float64 `json:"diversity_weight" koanf:"diversity_weight" validate:"gte=0,lte=1"`
	NoveltyWeight       float64 `json:"novelty_weight" koanf:"novelty_weight" validate:"gte=0,lte=1"`
	RecencyHalfLifeDays float64 `json:"recency_half_life_days" koanf:"recency_half_life_days" validate:"gt=0"`
	// Weights overrides the default fusion weights when set.
	Weights *FusionWeights `json:"weights,omitempty" koanf:"weights"`
}

// DefaultSettings returns the settings used for users without stored ones.
func DefaultSettings() Settings {
	return Settings{
		DiversityWeight:     0.3,
		NoveltyWeight:       0.1,
		RecencyHalfLifeDays: 30,
	}
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if s.DiversityWeight < 0 || s.DiversityWeight > 1 {
		return fmt.Errorf("diversity_weight must be in [0, 1], got %v", s.DiversityWeight)
	}
	if s.NoveltyWeight < 0 || s.NoveltyWeight > 1 {
		return fmt.Errorf("novelty_weight must be in [0, 1], got %v", s.NoveltyWeight)
	}
	if s.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("recency_half_life_days must be positive, got %v", s.RecencyHalfLifeDays)
	}
	if s.Weights != nil {
		return s.Weights.Validate()
	}
	return nil
}

// WeightedResource is a resource the user interacted with and its decayed weight.
type WeightedResource struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// Profile is a user's computed interest profile.
type Profile struct {
	UserID string `json:"user_id"`
	// InterestVector is unit length in the content embedding space, or nil
	// when none of the user's resources has a content embedding.
	InterestVector []float32 `json:"interest_vector,omitempty"`
	// Recent holds the interacted resources by decayed weight, highest first.
	Recent []WeightedResource `json:"recent"`
	// SubjectAffinities are normalized to sum to 1.
	SubjectAffinities map[string]float64 `json:"subject_affinities"`
	Settings          Settings           `json:"settings"`
	ComputedAt        time.Time          `json:"computed_at"`
	InteractionCount  int                `json:"interaction_count"`

	seen map[string]struct{}
}

// Interacted reports whether the user interacted with id.
func (p *Profile) Interacted(id string) bool {
	if p.seen != nil {
		_, ok := p.seen[id]
		return ok
	}
	for _, r := range p.Recent {
		if r.ID == id {
			return true
		}
	}
	return false
}

// RecentIDs returns up to n resource ids from Recent, highest weight first.
// n <= 0 returns all of them.
func (p *Profile) RecentIDs(n int) []string {
	if n <= 0 || n > len(p.Recent) {
		n = len(p.Recent)
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = p.Recent[i].ID
	}
	return ids
}

// InteractionProvider supplies the interaction log of a user. It returns
// an error wrapping apperr.ErrNotFound for unknown users.
type InteractionProvider interface {
	GetInteractions(ctx context.Context, userID string, since time.Time) ([]Interaction, error)
}

// SettingsStore persists per-user settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (*Settings, bool, error)
	PutSettings(ctx context.Context, userID string, s *Settings) error
}

// Features returns the content embedding and subject tags of a resource.
type Features interface {
	Features(id string) (content []float32, subjects []string, ok bool)
}
