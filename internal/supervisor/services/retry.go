// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// RetryPolicy bounds the exponential backoff between failed job attempts.
type RetryPolicy struct {
	// Base is the delay after the first failure.
	Base time.Duration

	// Max caps the delay between attempts.
	Max time.Duration
}

// DefaultRetryPolicy returns a 2s base delay capped at 5 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 2 * time.Second, Max: 5 * time.Minute}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	def := DefaultRetryPolicy()
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Max < p.Base {
		p.Max = max(def.Max, p.Base)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Max
	// Jobs retry until they succeed or the service is stopped.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// retry runs fn until it succeeds, ctx is done or fn fails with an invalid
// argument. Each failed attempt is counted against job.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func retry(ctx context.Context, job string, policy RetryPolicy, logger zerolog.Logger, fn func(context.Context) error) error {
	op := func() error {
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, apperr.ErrInvalidArgument):
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.RecordJobRetry(job)
		logger.Warn().Err(err).Str("job", job).Dur("retry_in", next).Msg("job attempt failed")
	}
	return backoff.RetryNotify(op, backoff.WithContext(policy.newBackOff(), ctx), notify)
}
