// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package recommend

import (
	"github.com/tomtom215/scriptorium/internal/apperr"
)

// Strategy names.
const (
	StrategyContent       = "content"
	StrategyGraph         = "graph"
	StrategyCollaborative = "collaborative"
	StrategyHybrid        = "hybrid"
)

// Strategy selects the signals that contribute to a ranking and how they
// are weighted.
type Strategy interface {
	// Name returns the strategy name.
	Name() string

	// Signals returns the signals the strategy relies on.
	Signals() []Signal

	// Weights returns the raw weights of the strategy's signals given the
	// user's weights. The ranker renormalizes them over available signals.
	Weights(user SignalWeights) SignalWeights
}

// singleSignal ranks by one signal alone.
type singleSignal struct {
	name   string
	signal Signal
}

func (s singleSignal) Name() string      { return s.name }
func (s singleSignal) Signals() []Signal { return []Signal{s.signal} }

//nolint:gocritic // value receiver is intentional for immutable semantics
func (s singleSignal) Weights(SignalWeights) SignalWeights {
	var w SignalWeights
	switch s.signal {
	case SignalContent:
		w.Content = 1
	case SignalGraph:
		w.Graph = 1
	case SignalCollaborative:
		w.Collaborative = 1
	}
	return w
}

// hybrid fuses every signal with the user's weights.
type hybrid struct{}

func (hybrid) Name() string { return StrategyHybrid }
func (hybrid) Signals() []Signal {
	return []Signal{SignalContent, SignalGraph, SignalCollaborative}
}

//nolint:gocritic // value receiver is intentional for immutable semantics
func (hybrid) Weights(user SignalWeights) SignalWeights { return user }

var strategies = map[string]Strategy{
	StrategyContent:       singleSignal{name: StrategyContent, signal: SignalContent},
	StrategyGraph:         singleSignal{name: StrategyGraph, signal: SignalGraph},
	StrategyCollaborative: singleSignal{name: StrategyCollaborative, signal: SignalCollaborative},
	StrategyHybrid:        hybrid{},
}

// ParseStrategy returns the named strategy. The empty string is hybrid.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return strategies[StrategyHybrid], nil
	}
	s, ok := strategies[name]
	if !ok {
		return nil, apperr.Invalid("unknown strategy %q", name)
	}
	return s, nil
}
