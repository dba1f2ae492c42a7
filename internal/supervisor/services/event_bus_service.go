// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/scriptorium/internal/events"
)

// EventRouter runs the event handlers until ctx is canceled.
// Satisfied by *events.Bus.
type EventRouter interface {
	Run(ctx context.Context) error
}

// EventBusService runs the in-process event router under supervision.
//
// A watermill router cannot run twice, so once it stopped on its own the
// service asks not to be restarted.
type EventBusService struct {
	router EventRouter
	logger zerolog.Logger
	name   string
}

// NewEventBusService creates the bus service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEventBusService(router EventRouter, logger zerolog.Logger) *EventBusService {
	return &EventBusService{
		router: router,
		logger: logger.With().Str("service", "event-bus").Logger(),
		name:   "event-bus",
	}
}

// Serve implements suture.Service.
func (s *EventBusService) Serve(ctx context.Context) error {
	err := s.router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("event router stopped")
		return fmt.Errorf("event router: %w: %w", err, suture.ErrDoNotRestart)
	}
	s.logger.Info().Msg("event router closed")
	return suture.ErrDoNotRestart
}

// String returns the service name for logging.
func (s *EventBusService) String() string {
	return s.name
}

// ResourceRemover applies a resource removal to every derived structure.
// Satisfied by *discovery.Service.
type ResourceRemover interface {
	RemoveResource(ctx context.Context, id string) error
}

// RemovalHandler returns a resource.removed handler that applies removals.
func RemovalHandler(remover ResourceRemover) func(context.Context, *events.ResourceRemoved) error {
	return func(ctx context.Context, e *events.ResourceRemoved) error {
		return remover.RemoveResource(ctx, e.ID)
	}
}
