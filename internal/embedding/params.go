// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package embedding

import (
	"fmt"
	"runtime"

	"github.com/tomtom215/scriptorium/internal/apperr"
)

// Algorithm selects the random-walk strategy.
type Algorithm string

const (
	// Node2Vec uses second-order biased walks controlled by P and Q.
	Node2Vec Algorithm = "node2vec"
	// DeepWalk uses uniform first-order walks (P = Q = 1).
	DeepWalk Algorithm = "deepwalk"
)

// Params controls walk generation and skip-gram training.
type Params struct {
	Algorithm       Algorithm `koanf:"algorithm" json:"algorithm" validate:"omitempty,oneof=node2vec deepwalk"`
	Dimensions      int       `koanf:"dimensions" json:"dimensions" validate:"omitempty,min=2,max=1024"`
	WalkLength      int       `koanf:"walk_length" json:"walk_length" validate:"omitempty,min=2,max=1000"`
	NumWalks        int       `koanf:"num_walks" json:"num_walks" validate:"omitempty,min=1,max=1000"`
	P               float64   `koanf:"p" json:"p" validate:"omitempty,gt=0"`
	Q               float64   `koanf:"q" json:"q" validate:"omitempty,gt=0"`
	WindowSize      int       `koanf:"window_size" json:"window_size" validate:"omitempty,min=1,max=50"`
	NegativeSamples int       `koanf:"negative_samples" json:"negative_samples" validate:"omitempty,min=1,max=50"`
	Epochs          int       `koanf:"epochs" json:"epochs" validate:"omitempty,min=1,max=100"`
	LearningRate    float64   `koanf:"learning_rate" json:"learning_rate" validate:"omitempty,gt=0,lte=1"`
	Seed            uint64    `koanf:"seed" json:"seed"`
}

// DefaultParams returns the default embedding parameters.
func DefaultParams() Params {
	return Params{
		Algorithm:       Node2Vec,
		Dimensions:      64,
		WalkLength:      40,
		NumWalks:        10,
		P:               1.0,
		Q:               1.0,
		WindowSize:      5,
		NegativeSamples: 5,
		Epochs:          5,
		LearningRate:    0.025,
		Seed:            42,
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.Algorithm == "" {
		p.Algorithm = d.Algorithm
	}
	if p.Dimensions == 0 {
		p.Dimensions = d.Dimensions
	}
	if p.WalkLength == 0 {
		p.WalkLength = d.WalkLength
	}
	if p.NumWalks == 0 {
		p.NumWalks = d.NumWalks
	}
	if p.P == 0 {
		p.P = d.P
	}
	if p.Q == 0 {
		p.Q = d.Q
	}
	if p.WindowSize == 0 {
		p.WindowSize = d.WindowSize
	}
	if p.NegativeSamples == 0 {
		p.NegativeSamples = d.NegativeSamples
	}
	if p.Epochs == 0 {
		p.Epochs = d.Epochs
	}
	if p.LearningRate == 0 {
		p.LearningRate = d.LearningRate
	}
	if p.Algorithm == DeepWalk {
		p.P, p.Q = 1, 1
	}
	return p
}

// Validate checks the parameters after defaults are applied.
func (p *Params) Validate() error {
	switch p.Algorithm {
	case Node2Vec, DeepWalk:
	default:
		return apperr.Invalid("unknown embedding algorithm %q", p.Algorithm)
	}
	if p.Dimensions < 2 {
		return apperr.Invalid("dimensions must be at least 2, got %d", p.Dimensions)
	}
	if p.WalkLength < 2 {
		return apperr.Invalid("walk_length must be at least 2, got %d", p.WalkLength)
	}
	if p.NumWalks <= 0 {
		return apperr.Invalid("num_walks must be positive, got %d", p.NumWalks)
	}
	if p.P <= 0 || p.Q <= 0 {
		return apperr.Invalid("p and q must be positive, got p=%v q=%v", p.P, p.Q)
	}
	if p.WindowSize <= 0 {
		return apperr.Invalid("window_size must be positive, got %d", p.WindowSize)
	}
	if p.NegativeSamples <= 0 {
		return apperr.Invalid("negative_samples must be positive, got %d", p.NegativeSamples)
	}
	if p.Epochs <= 0 {
		return apperr.Invalid("epochs must be positive, got %d", p.Epochs)
	}
	if p.LearningRate <= 0 || p.LearningRate > 1 {
		return apperr.Invalid("learning_rate must be in (0,1], got %v", p.LearningRate)
	}
	return nil
}

// Fingerprint identifies the parameters that make two models incompatible.
// A stored model whose fingerprint differs forces a full retrain.
func (p *Params) Fingerprint() string {
	return fmt.Sprintf("%s/d%d/l%d/n%d/p%g/q%g/w%d/k%d/s%d",
		p.Algorithm, p.Dimensions, p.WalkLength, p.NumWalks, p.P, p.Q, p.WindowSize, p.NegativeSamples, p.Seed)
}

// Config controls the embedder beyond the training parameters.
type Config struct {
	Params Params `koanf:"params"`

	// FineTuneEpochs is the number of epochs an incremental update trains.
	FineTuneEpochs int `koanf:"fine_tune_epochs"`

	// FullRetrainFraction is the changed-node fraction above which an update
	// retrains from scratch.
	FullRetrainFraction float64 `koanf:"full_retrain_fraction"`

	// UpdateHops is the neighborhood radius whose walks are regenerated on update.
	UpdateHops int `koanf:"update_hops"`

	// WalkWorkers bounds the walk generation worker pool.
	WalkWorkers int `koanf:"walk_workers"`

	// ModelDir is where trained models are stored. Empty disables model persistence.
	ModelDir string `koanf:"model_dir"`

	// KeepVersions is how many model versions Prune keeps on disk.
	KeepVersions int `koanf:"keep_versions"`

	// WriteBack stores structural embeddings on graph nodes after training.
	WriteBack bool `koanf:"write_back"`
}

// DefaultConfig returns the default embedder configuration.
func DefaultConfig() Config {
	return Config{
		Params:              DefaultParams(),
		FineTuneEpochs:      1,
		FullRetrainFraction: 0.2,
		UpdateHops:          2,
		WalkWorkers:         runtime.GOMAXPROCS(0),
		ModelDir:            "/data/models",
		KeepVersions:        3,
		WriteBack:           true,
	}
}

// Validate checks the embedder configuration.
func (c *Config) Validate() error {
	p := c.Params.WithDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	if c.FineTuneEpochs <= 0 {
		return fmt.Errorf("fine_tune_epochs must be positive, got %d", c.FineTuneEpochs)
	}
	if c.FullRetrainFraction <= 0 || c.FullRetrainFraction > 1 {
		return fmt.Errorf("full_retrain_fraction must be in (0,1], got %v", c.FullRetrainFraction)
	}
	if c.UpdateHops < 0 {
		return fmt.Errorf("update_hops must be non-negative, got %d", c.UpdateHops)
	}
	if c.WalkWorkers <= 0 {
		return fmt.Errorf("walk_workers must be positive, got %d", c.WalkWorkers)
	}
	if c.KeepVersions <= 0 {
		return fmt.Errorf("keep_versions must be positive, got %d", c.KeepVersions)
	}
	return nil
}
