// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*OpsServerService)(nil)

// stuckServer never drains: Shutdown fails and only Close stops Serve.
type stuckServer struct {
	started chan struct{}
	closed  chan struct{}
	closes  atomic.Int32
}

func newStuckServer() *stuckServer {
	return &stuckServer{started: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (s *stuckServer) Serve(l net.Listener) error {
	defer l.Close()
	s.started <- struct{}{}
	<-s.closed
	return http.ErrServerClosed
}

func (s *stuckServer) Shutdown(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stuckServer) Close() error {
	if s.closes.Add(1) == 1 {
		close(s.closed)
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewOpsServerService_Drain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 10 * time.Second},
		{-time.Second, 10 * time.Second},
		{3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		svc := NewOpsServerService(&http.Server{}, "127.0.0.1:0", tt.in, zerolog.Nop()) //nolint:gosec // never served
		if svc.drain != tt.want {
			t.Errorf("NewOpsServerService(%v).drain = %v, want %v", tt.in, svc.drain, tt.want)
		}
	}
	if name := NewOpsServerService(&http.Server{}, "", 0, zerolog.Nop()).String(); name != "ops-server" { //nolint:gosec // never served
		t.Errorf("String() = %q, want ops-server", name)
	}
}

func TestOpsServerService_ServesUntilCanceled(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	svc := NewOpsServerService(&http.Server{Handler: mux, ReadHeaderTimeout: time.Second}, "127.0.0.1:0", time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	waitFor(t, func() bool { return svc.Addr() != "" })
	resp, err := http.Get("http://" + svc.Addr() + "/healthz") //nolint:noctx // test request
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if svc.Addr() != "" {
		t.Errorf("Addr() = %q after stop, want empty", svc.Addr())
	}
}

func TestOpsServerService_BindFailure(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()

	server := newStuckServer()
	svc := NewOpsServerService(server, taken.Addr().String(), time.Second, zerolog.Nop())
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Serve() on a taken port returned nil")
	}
	select {
	case <-server.started:
		t.Error("server must not be started when the bind fails")
	default:
	}
}

func TestOpsServerService_ClosesWhenDrainTimesOut(t *testing.T) {
	t.Parallel()

	server := newStuckServer()
	svc := NewOpsServerService(server, "127.0.0.1:0", 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	<-server.started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() error = %v, want the drain deadline", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if server.closes.Load() != 1 {
		t.Errorf("Close called %d times, want 1", server.closes.Load())
	}
}

func TestOpsServerService_UnderSupervisor(t *testing.T) {
	t.Parallel()

	svc := NewOpsServerService(&http.Server{Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}, "127.0.0.1:0", time.Second, zerolog.Nop())
	sup := suture.New("ops-test", suture.Spec{FailureBackoff: 10 * time.Millisecond, Timeout: 2 * time.Second})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)
	waitFor(t, func() bool { return svc.Addr() != "" })

	cancel()
	<-errCh
	if svc.Addr() != "" {
		t.Errorf("Addr() = %q after the supervisor stopped, want empty", svc.Addr())
	}
}
