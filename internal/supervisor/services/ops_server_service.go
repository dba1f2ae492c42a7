// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OpsServer is the part of *http.Server the ops service drives.
type OpsServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
	Close() error
}

// OpsServerService serves the ops endpoint (health, metrics, admin) under
// supervision.
//
// Every Serve call binds a fresh listener, so a restart after a crash
// rebinds the port and a bind failure is reported before any goroutine
// starts. On cancellation open requests get the drain timeout; if they are
// still running afterwards the server is closed hard.
type OpsServerService struct {
	server OpsServer
	addr   string
	drain  time.Duration
	listen func(network, address string) (net.Listener, error)
	logger zerolog.Logger

	mu    sync.Mutex
	bound string
}

// NewOpsServerService creates the ops server service listening on addr.
// A non-positive drain defaults to 10s.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewOpsServerService(server OpsServer, addr string, drain time.Duration, logger zerolog.Logger) *OpsServerService {
	if drain <= 0 {
		drain = 10 * time.Second
	}
	return &OpsServerService{
		server: server,
		addr:   addr,
		drain:  drain,
		listen: net.Listen,
		logger: logger.With().Str("service", "ops-server").Logger(),
	}
}

// Addr returns the address of the current listener, empty while not serving.
func (s *OpsServerService) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *OpsServerService) setBound(addr string) {
	s.mu.Lock()
	s.bound = addr
	s.mu.Unlock()
}

// Serve implements suture.Service.
func (s *OpsServerService) Serve(ctx context.Context) error {
	l, err := s.listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ops server listen on %s: %w", s.addr, err)
	}
	s.setBound(l.Addr().String())
	defer s.setBound("")
	s.logger.Info().Str("addr", l.Addr().String()).Msg("ops endpoint listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(l)
	}()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.drain)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Dur("drain", s.drain).Msg("ops endpoint did not drain, closing connections")
			if cerr := s.server.Close(); cerr != nil {
				s.logger.Debug().Err(cerr).Msg("closing ops server")
			}
			<-errCh
			return fmt.Errorf("ops server shutdown: %w", err)
		}
		<-errCh
		s.logger.Info().Msg("ops endpoint stopped")
		return ctx.Err()
	}
}

// String returns the service name for logging.
func (s *OpsServerService) String() string {
	return "ops-server"
}
