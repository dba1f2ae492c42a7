// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package apperr defines the error taxonomy shared by the discovery and
// recommendation components.
//
// Callers compare with errors.Is against the sentinels; component code wraps
// them with fmt.Errorf("...: %w", ErrX) so the message keeps its context:
//
//	if errors.Is(err, apperr.ErrNotFound) {
//	    // unknown node or user
//	}
//
// Data-quality problems on individual candidates are not errors at all: they
// are collected into a PartialFailure and returned next to the result.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for unknown nodes or users.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for non-positive k/hops, malformed
	// embedding dimensions and other rejected inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable is returned when a dependency cannot serve the request.
	// For optional signals it degrades the result; for the graph store it is fatal.
	ErrUnavailable = errors.New("unavailable")

	// ErrCanceled is returned when a deadline or cancellation was honored.
	ErrCanceled = errors.New("canceled")
)

// DefaultRetryAfter is the retry guidance attached to structural failures.
const DefaultRetryAfter = 30 * time.Second

// Dropped records a candidate or node removed from a result, with the reason.
type Dropped struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PartialFailure describes a call that succeeded with a subset of its inputs.
// It is returned alongside results, never instead of them.
type PartialFailure struct {
	Dropped []Dropped
}

// Error implements the error interface.
func (p *PartialFailure) Error() string {
	if p == nil || len(p.Dropped) == 0 {
		return "partial failure"
	}
	reasons := make([]string, 0, len(p.Dropped))
	for _, d := range p.Dropped {
		reasons = append(reasons, d.ID+": "+d.Reason)
	}
	return fmt.Sprintf("partial failure: %d dropped (%s)", len(p.Dropped), strings.Join(reasons, "; "))
}

// Add records a dropped id.
func (p *PartialFailure) Add(id, reason string) {
	p.Dropped = append(p.Dropped, Dropped{ID: id, Reason: reason})
}

// Empty reports whether nothing was dropped.
func (p *PartialFailure) Empty() bool {
	return p == nil || len(p.Dropped) == 0
}

// UnavailableError carries retry guidance for structural failures.
type UnavailableError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: unavailable (retry after %s): %v", e.Op, e.RetryAfter, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// Unavailable wraps err as a structural failure of op with default retry guidance.
func Unavailable(op string, err error) error {
	return &UnavailableError{Op: op, RetryAfter: DefaultRetryAfter, Err: err}
}

// RetryAfter returns the retry guidance carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.RetryAfter, true
	}
	return 0, false
}

// NotFound formats an ErrNotFound for the given kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Invalid formats an ErrInvalidArgument.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// FromContext maps context cancellation and deadline errors to ErrCanceled.
// Other errors are returned unchanged.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, ErrCanceled) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return err
}

// CheckContext returns ErrCanceled when ctx is done.
func CheckContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return FromContext(err)
	}
	return nil
}

// Code returns a stable label for err, used for metrics and logs.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		var pf *PartialFailure
		if errors.As(err, &pf) {
			return "partial_failure"
		}
		return "internal"
	}
}
