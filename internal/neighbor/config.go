// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package neighbor

import (
	"fmt"

	"github.com/tomtom215/scriptorium/internal/neighbor/hnsw"
)

// Config controls neighborhood traversal and the ANN indexes.
type Config struct {
	// HopDecay multiplies the path score once per hop after the first.
	HopDecay float64 `koanf:"hop_decay"`

	// MaxHops caps the hop count a caller may request.
	MaxHops int `koanf:"max_hops"`

	// BruteForceThreshold is the node count below which Similar scans exactly.
	BruteForceThreshold int `koanf:"brute_force_threshold"`

	// PatchFraction is the largest changed fraction of an index that is
	// patched in a clone; larger diffs rebuild the index.
	PatchFraction float64 `koanf:"patch_fraction"`

	// RelinkBelow is the cosine between a node's old and new vector under
	// which a patch reinserts the node instead of updating it in place.
	RelinkBelow float64 `koanf:"relink_below"`

	// FusionAlpha is the content weight of the fusion space.
	FusionAlpha float64 `koanf:"fusion_alpha"`

	HNSW hnsw.Config `koanf:"hnsw"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HopDecay:            0.7,
		MaxHops:             6,
		BruteForceThreshold: 1000,
		PatchFraction:       0.1,
		RelinkBelow:         0.95,
		FusionAlpha:         0.5,
		HNSW:                hnsw.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HopDecay <= 0 || c.HopDecay > 1 {
		return fmt.Errorf("hop_decay must be in (0,1], got %v", c.HopDecay)
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("max_hops must be positive, got %d", c.MaxHops)
	}
	if c.BruteForceThreshold < 0 {
		return fmt.Errorf("brute_force_threshold must be non-negative, got %d", c.BruteForceThreshold)
	}
	if c.PatchFraction < 0 || c.PatchFraction > 1 {
		return fmt.Errorf("patch_fraction must be in [0,1], got %v", c.PatchFraction)
	}
	if c.RelinkBelow < -1 || c.RelinkBelow > 1 {
		return fmt.Errorf("relink_below must be in [-1,1], got %v", c.RelinkBelow)
	}
	if c.FusionAlpha < 0 || c.FusionAlpha > 1 {
		return fmt.Errorf("fusion_alpha must be in [0,1], got %v", c.FusionAlpha)
	}
	return c.HNSW.Validate()
}
