// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*MockService)(nil)

func TestMockService(t *testing.T) {
	t.Parallel()

	t.Run("runs until context canceled", func(t *testing.T) {
		t.Parallel()
		svc := NewMockService("rebuild")
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() error = %v, want deadline exceeded", err)
		}
		if svc.StartCount() != 1 || svc.StopCount() != 1 {
			t.Errorf("counts = %d/%d, want 1/1", svc.StartCount(), svc.StopCount())
		}
		if !svc.WaitStarted(0) {
			t.Error("WaitStarted() should report the first start")
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		t.Parallel()
		svc := NewMockService("one-shot")
		svc.SetError(suture.ErrDoNotRestart)

		if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve() error = %v, want ErrDoNotRestart", err)
		}
	})

	t.Run("fails N times then runs", func(t *testing.T) {
		t.Parallel()
		svc := NewMockService("flaky")
		svc.SetFailCount(2)

		for i := 0; i < 2; i++ {
			if err := svc.Serve(context.Background()); !errors.Is(err, errSimulated) {
				t.Fatalf("call %d: error = %v, want simulated failure", i+1, err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("third call error = %v, want deadline exceeded", err)
		}
	})
}

func TestMockService_NotRestartedAfterDoNotRestart(t *testing.T) {
	t.Parallel()

	svc := NewMockService("one-shot")
	svc.SetError(suture.ErrDoNotRestart)

	sup := suture.New("no-restart", suture.Spec{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          100 * time.Millisecond,
	})
	sup.Add(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	done := sup.ServeBackground(ctx)
	<-done

	if svc.StartCount() != 1 {
		t.Errorf("StartCount() = %d, want 1", svc.StartCount())
	}
}
