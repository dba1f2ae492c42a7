// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package logging provides centralized zerolog-based structured logging for Scriptorium.
//
// # Overview
//
// The package provides:
//   - A global zerolog logger configured once from the logging config section
//   - JSON output for production and console output for development
//   - Context-aware logging with request, correlation and user ids
//   - An slog adapter for the supervisor's sutureslog event hook
//
// Components do not log through the global functions. They receive a
// zerolog.Logger by value and derive a child logger:
//
//	logger = logger.With().Str("component", "lbd").Logger()
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  cfg.Logging.Level,
//	    Format: cfg.Logging.Format,
//	    Caller: cfg.Logging.Caller,
//	})
//
//	svc := discovery.NewService(cfg.Discovery, deps, logging.WithComponent("discovery"))
//
//	// In HTTP handlers
//	logging.Ctx(r.Context()).Debug().Str("route", route).Msg("request served")
//
// # Levels
//
// Dropped candidates, skipped edge types, breaker transitions and job retries
// are logged at warn. Per-request summaries are logged at debug.
//
// # Supervisor Integration
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
//	spec := suture.Spec{EventHook: handler.MustHook()}
//
// # Thread Safety
//
// The global logger is guarded by a RWMutex; Init may be called again to
// reconfigure it. zerolog.Logger values are safe to copy and share.
package logging
