// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"not found", NotFound("node", "r1"), "not_found"},
		{"invalid", Invalid("k must be positive, got %d", 0), "invalid_argument"},
		{"canceled sentinel", fmt.Errorf("rank: %w", ErrCanceled), "canceled"},
		{"context canceled", context.Canceled, "canceled"},
		{"deadline", context.DeadlineExceeded, "canceled"},
		{"unavailable", Unavailable("graph store", errors.New("closed")), "unavailable"},
		{"partial", &PartialFailure{Dropped: []Dropped{{ID: "x", Reason: "missing"}}}, "partial_failure"},
		{"other", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := CheckContext(ctx)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}

	plain := errors.New("plain")
	if got := FromContext(plain); got != plain {
		t.Errorf("non-context errors must pass through unchanged")
	}
	if FromContext(nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestUnavailableRetryGuidance(t *testing.T) {
	t.Parallel()

	cause := errors.New("db closed")
	err := fmt.Errorf("load: %w", Unavailable("graph store", cause))

	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected ErrUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	after, ok := RetryAfter(err)
	if !ok || after != DefaultRetryAfter {
		t.Errorf("RetryAfter() = %v, %v", after, ok)
	}
}

func TestPartialFailure(t *testing.T) {
	t.Parallel()

	var pf PartialFailure
	if !pf.Empty() {
		t.Error("new PartialFailure should be empty")
	}
	pf.Add("r1", "missing content embedding")
	pf.Add("r2", "unknown node")

	if pf.Empty() {
		t.Error("expected non-empty")
	}
	msg := pf.Error()
	if !strings.Contains(msg, "2 dropped") || !strings.Contains(msg, "r1: missing content embedding") {
		t.Errorf("unexpected message %q", msg)
	}
}
