// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package services provides suture.Service wrappers for Scriptorium's
background jobs and servers.

Each wrapper translates a component lifecycle (ticker loop, event queue,
ListenAndServe, RunWithContext) into suture's context-aware Serve and names
itself through fmt.Stringer for supervisor logs.

# Available Services

  - GraphRebuildService: scheduled full edge rebuild
  - EmbeddingService: model restore, startup training and throttled
    incremental updates fed by graph.changed events
  - CollabService: periodic co-visitation retraining
  - StoreGCService: BadgerDB value log garbage collection
  - EventBusService: the watermill router behind the event bus
  - RunnerService: any RunWithContext loop, used for the similarity indexes
  - OpsServerService: the ops HTTP endpoint, rebinding its listener on every restart

# Retries

Scheduled jobs retry failed runs with exponential backoff
(cenkalti/backoff) until they succeed or the service stops. Invalid
argument errors are not retried. Each failed attempt increments
scriptorium_job_retries_total.

# Usage

	tree.AddGraphService(services.NewGraphRebuildService(svc, services.GraphRebuildConfig{
	    Interval: 6 * time.Hour,
	    Retry:    services.DefaultRetryPolicy(),
	}, logger))

	embed := services.NewEmbeddingService(embedder, cfg, logger)
	bus.OnGraphChanged("embedding-updater", embed.HandleGraphChanged)
	tree.AddGraphService(embed)
*/
package services
