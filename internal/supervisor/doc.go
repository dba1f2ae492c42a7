// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package supervisor provides process supervision for Scriptorium using suture v4.

Long-running work (rebuilds, retraining, event handling, the ops server) runs
as supervised services with automatic restart, failure isolation and
graceful shutdown.

# Overview

	RootSupervisor ("scriptorium")
	├── GraphSupervisor ("graph-layer")
	│   ├── GraphRebuildService
	│   ├── EmbeddingService
	│   ├── RunnerService ("similarity-index")
	│   ├── CollabService (if collab.enabled)
	│   └── StoreGCService
	├── EventsSupervisor ("events-layer")
	│   └── EventBusService
	└── OpsSupervisor ("ops-layer")
	    └── OpsServerService

Individual jobs are disabled with supervisor.disabled_jobs.

# Failure Handling

Each layer counts failures independently. A failure counter decays over
FailureDecay seconds; once it exceeds FailureThreshold the layer waits
FailureBackoff before the next restart.

Return behavior of a service:
  - error: restarted
  - suture.ErrDoNotRestart: stopped for good
  - ctx.Err() after cancellation: shutdown

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    FailureThreshold: cfg.Supervisor.FailureThreshold,
	    FailureDecay:     cfg.Supervisor.FailureDecay,
	    FailureBackoff:   cfg.Supervisor.FailureBackoff,
	    ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	tree.AddOpsService(services.NewOpsServerService(server, server.Addr, 10*time.Second, logger))
	errCh := tree.ServeBackground(ctx)

When services do not stop within ShutdownTimeout, UnstoppedServiceReport
names them.
*/
package supervisor
