// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/metrics"
	"github.com/tomtom215/scriptorium/internal/recommend"
)

// BreakerConfig configures the circuit breaker in front of a collaborative scorer.
type BreakerConfig struct {
	Name string `koanf:"name"`

	// MaxRequests is the number of requests allowed in half-open state.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval resets the counts while closed.
	Interval time.Duration `koanf:"interval"`

	// Timeout is the time spent open before trying half-open.
	Timeout time.Duration `koanf:"timeout"`

	// MinRequests and FailureRatio decide when the circuit opens.
	MinRequests  uint32  `koanf:"min_requests"`
	FailureRatio float64 `koanf:"failure_ratio"`
}

// DefaultBreakerConfig returns the default breaker configuration.
// The circuit opens after a 60% failure rate with at least 10 requests.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "collaborative-scorer",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// Validate checks the breaker configuration.
func (c *BreakerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("breaker name is required")
	}
	if c.MaxRequests == 0 {
		return fmt.Errorf("breaker max_requests must be positive, got %d", c.MaxRequests)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("breaker timeout must be positive, got %s", c.Timeout)
	}
	if c.Interval < 0 {
		return fmt.Errorf("breaker interval must be non-negative, got %s", c.Interval)
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		return fmt.Errorf("breaker failure_ratio must be in (0, 1], got %f", c.FailureRatio)
	}
	return nil
}

// Breaker wraps a collaborative scorer with the circuit breaker pattern.
// While open, Score fails fast with an error wrapping apperr.ErrUnavailable,
// which the ranker treats as a missing signal.
//
// The breaker uses real time for its interval and timeout. Tests drive it
// through request counts.
type Breaker struct {
	scorer recommend.CollaborativeScorer
	cb     *gobreaker.CircuitBreaker[float64]
	name   string
	logger zerolog.Logger
}

// NewBreaker creates a circuit breaker around scorer.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBreaker(scorer recommend.CollaborativeScorer, cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	b := &Breaker{
		scorer: scorer,
		name:   cfg.Name,
		logger: logger.With().Str("component", "circuit_breaker").Str("breaker", cfg.Name).Logger(),
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[float64](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= cfg.FailureRatio
			if shouldTrip {
				b.logger.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			b.logger.Info().Str("from", fromStr).Str("to", toStr).Msg("circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},

		// Cancellation belongs to the caller, not the scorer.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) || errors.Is(err, apperr.ErrCanceled)
		},
	})

	return b
}

// Score scores resourceID for userID through the breaker.
func (b *Breaker) Score(ctx context.Context, userID, resourceID string) (float64, error) {
	score, err := b.cb.Execute(func() (float64, error) {
		return b.scorer.Score(ctx, userID, resourceID)
	})
	if err == nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return score, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		b.logger.Debug().Err(err).Msg("request rejected")
		return 0, apperr.Unavailable(b.name, err)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, apperr.ErrCanceled):
		return 0, apperr.FromContext(err)
	case errors.Is(err, apperr.ErrUnavailable):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return 0, err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return 0, apperr.Unavailable(b.name, err)
	}
}

// State returns the current breaker state as a string.
func (b *Breaker) State() string {
	return stateToString(b.cb.State())
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	_ recommend.CollaborativeScorer = (*Breaker)(nil)
	_ recommend.CollaborativeScorer = (*CoVisitScorer)(nil)
)
