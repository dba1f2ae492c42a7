// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package recommend

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Config contains all configuration for the recommendation engine.
type Config struct {
	// Weights defines the default contribution of each signal.
	// Weights are renormalized over the available signals at runtime, so
	// they don't need to sum to 1.0.
	Weights SignalWeights `json:"weights" koanf:"weights"`

	// Graph contains parameters for the graph proximity signal.
	Graph GraphSignalConfig `json:"graph" koanf:"graph"`

	// Candidates contains parameters for candidate generation.
	Candidates CandidateConfig `json:"candidates" koanf:"candidates"`

	// Diversity contains parameters for diversity reranking.
	Diversity DiversityConfig `json:"diversity" koanf:"diversity"`

	// Limits contains operational limits.
	Limits LimitsConfig `json:"limits" koanf:"limits"`

	// Cache contains caching parameters.
	Cache CacheConfig `json:"cache" koanf:"cache"`
}

// SignalWeights defines the relative contribution of each ranking signal.
type SignalWeights struct {
	// Content is the weight of interest-vector similarity.
	Content float64 `json:"content" koanf:"content"`

	// Graph is the weight of k-hop proximity to recent resources.
	Graph float64 `json:"graph" koanf:"graph"`

	// Collaborative is the weight of the collaborative scorer.
	Collaborative float64 `json:"collaborative" koanf:"collaborative"`
}

// Of returns the weight of signal s.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w SignalWeights) Of(s Signal) float64 {
	switch s {
	case SignalContent:
		return w.Content
	case SignalGraph:
		return w.Graph
	case SignalCollaborative:
		return w.Collaborative
	default:
		return 0
	}
}

// Normalize returns a copy with the weights of the given signals scaled to
// sum to 1.0. Signals not listed get weight 0. When the listed weights sum
// to zero they are weighted equally.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w SignalWeights) Normalize(available ...Signal) SignalWeights {
	var sum float64
	for _, s := range available {
		sum += w.Of(s)
	}
	var out SignalWeights
	for _, s := range available {
		v := w.Of(s)
		if sum == 0 {
			v = 1.0 / float64(len(available))
		} else {
			v /= sum
		}
		switch s {
		case SignalContent:
			out.Content = v
		case SignalGraph:
			out.Graph = v
		case SignalCollaborative:
			out.Collaborative = v
		}
	}
	return out
}

// GraphSignalConfig contains parameters for the graph proximity signal.
type GraphSignalConfig struct {
	// MaxHops bounds the path from a recent resource to a candidate.
	// Default: 2.
	MaxHops int `json:"max_hops" koanf:"max_hops"`

	// MaxSeedResources caps the recent resources used as path seeds.
	// Default: 20.
	MaxSeedResources int `json:"max_seed_resources" koanf:"max_seed_resources"`
}

// CandidateConfig contains parameters for candidate generation.
type CandidateConfig struct {
	// Hops is the neighborhood radius around each recent resource.
	// Default: 2.
	Hops int `json:"hops" koanf:"hops"`

	// SimilarPerSeed is the number of ANN neighbors taken per recent resource.
	// Default: 50.
	SimilarPerSeed int `json:"similar_per_seed" koanf:"similar_per_seed"`

	// Space is the embedding space searched for ANN neighbors.
	// Default: structural.
	Space string `json:"space" koanf:"space"`
}

// DiversityConfig contains parameters for diversity reranking.
type DiversityConfig struct {
	// SimilarityCeiling is the similarity to the previously selected item
	// above which a candidate is skipped while alternatives remain.
	// Default: 0.9.
	SimilarityCeiling float64 `json:"similarity_ceiling" koanf:"similarity_ceiling"`
}

// LimitsConfig contains operational limits.
type LimitsConfig struct {
	// MaxCandidates is the maximum number of candidate items to score.
	// Default: 1000.
	MaxCandidates int `json:"max_candidates" koanf:"max_candidates"`

	// DefaultK is the default number of recommendations to return.
	// Default: 20.
	DefaultK int `json:"default_k" koanf:"default_k"`

	// MaxK is the maximum allowed K value.
	// Default: 100.
	MaxK int `json:"max_k" koanf:"max_k"`

	// RerankPoolFactor multiplies K to size the pool handed to the diversifier.
	// Default: 3.
	RerankPoolFactor int `json:"rerank_pool_factor" koanf:"rerank_pool_factor"`

	// CollaborativeConcurrency bounds concurrent collaborative scorer calls.
	// Default: 8.
	CollaborativeConcurrency int `json:"collaborative_concurrency" koanf:"collaborative_concurrency"`
}

// CacheConfig contains caching parameters.
type CacheConfig struct {
	// Enabled controls whether caching is active.
	// Default: true.
	Enabled bool `json:"enabled" koanf:"enabled"`

	// TTL is the cache entry time-to-live.
	// Default: 5m.
	TTL time.Duration `json:"ttl" koanf:"ttl"`

	// MaxEntries is the maximum number of cached entries.
	// Default: 10000.
	MaxEntries int `json:"max_entries" koanf:"max_entries"`
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() *Config {
	return &Config{
		Weights: SignalWeights{
			Content:       0.4,
			Graph:         0.35,
			Collaborative: 0.25,
		},
		Graph: GraphSignalConfig{
			MaxHops:          2,
			MaxSeedResources: 20,
		},
		Candidates: CandidateConfig{
			Hops:           2,
			SimilarPerSeed: 50,
			Space:          "structural",
		},
		Diversity: DiversityConfig{
			SimilarityCeiling: 0.9,
		},
		Limits: LimitsConfig{
			MaxCandidates:            1000,
			DefaultK:                 20,
			MaxK:                     100,
			RerankPoolFactor:         3,
			CollaborativeConcurrency: 8,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
	}
}

// Validate checks the configuration for errors.
//
//nolint:gocyclo // validation needs to check many fields
func (c *Config) Validate() error {
	for _, w := range []struct {
		name  string
		value float64
	}{{"content", c.Weights.Content}, {"graph", c.Weights.Graph}, {"collaborative", c.Weights.Collaborative}} {
		if w.value < 0 {
			return fmt.Errorf("weights.%s must be non-negative, got %f", w.name, w.value)
		}
	}
	if c.Weights.Content+c.Weights.Graph+c.Weights.Collaborative == 0 {
		return fmt.Errorf("at least one signal weight must be positive")
	}

	if c.Graph.MaxHops < 1 {
		return fmt.Errorf("graph.max_hops must be positive, got %d", c.Graph.MaxHops)
	}
	if c.Graph.MaxSeedResources < 1 {
		return fmt.Errorf("graph.max_seed_resources must be positive, got %d", c.Graph.MaxSeedResources)
	}

	if c.Candidates.Hops < 0 {
		return fmt.Errorf("candidates.hops must be non-negative, got %d", c.Candidates.Hops)
	}
	if c.Candidates.SimilarPerSeed < 0 {
		return fmt.Errorf("candidates.similar_per_seed must be non-negative, got %d", c.Candidates.SimilarPerSeed)
	}
	if c.Candidates.Space != "structural" && c.Candidates.Space != "fusion" {
		return fmt.Errorf("candidates.space must be structural or fusion, got %q", c.Candidates.Space)
	}

	if c.Diversity.SimilarityCeiling <= 0 || c.Diversity.SimilarityCeiling > 1 {
		return fmt.Errorf("diversity.similarity_ceiling must be in (0, 1], got %f", c.Diversity.SimilarityCeiling)
	}

	if c.Limits.MaxCandidates < 1 {
		return fmt.Errorf("limits.max_candidates must be positive, got %d", c.Limits.MaxCandidates)
	}
	if c.Limits.DefaultK < 1 {
		return fmt.Errorf("limits.default_k must be positive, got %d", c.Limits.DefaultK)
	}
	if c.Limits.MaxK < c.Limits.DefaultK {
		return fmt.Errorf("limits.max_k must be >= limits.default_k, got %d < %d", c.Limits.MaxK, c.Limits.DefaultK)
	}
	if c.Limits.RerankPoolFactor < 1 {
		return fmt.Errorf("limits.rerank_pool_factor must be positive, got %d", c.Limits.RerankPoolFactor)
	}
	if c.Limits.CollaborativeConcurrency < 1 {
		return fmt.Errorf("limits.collaborative_concurrency must be positive, got %d", c.Limits.CollaborativeConcurrency)
	}

	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
		}
		if c.Cache.MaxEntries < 1 {
			return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
		}
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	// Direct field copy - all nested structs contain only value types (no pointers/slices)
	return &Config{
		Weights:    c.Weights,
		Graph:      c.Graph,
		Candidates: c.Candidates,
		Diversity:  c.Diversity,
		Limits:     c.Limits,
		Cache:      c.Cache,
	}
}

// MarshalJSON implements custom JSON marshaling for duration fields.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	type cacheJSON struct {
		Enabled    bool   `json:"enabled"`
		TTL        string `json:"ttl"`
		MaxEntries int    `json:"max_entries"`
	}
	return json.Marshal(&struct {
		*Alias
		Cache cacheJSON `json:"cache"`
	}{
		Alias: (*Alias)(c),
		Cache: cacheJSON{
			Enabled:    c.Cache.Enabled,
			TTL:        c.Cache.TTL.String(),
			MaxEntries: c.Cache.MaxEntries,
		},
	})
}
