// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package main is the entry point for the Scriptorium server.

Scriptorium maintains a knowledge graph over a research library, learns
structural embeddings of it, and serves hypothesis discovery and
personalized recommendations through the discovery facade. The binary runs
the background jobs that keep the graph and the models current, plus a small
ops HTTP API.

# Application Architecture

	RootSupervisor ("scriptorium")
	├── GraphSupervisor ("graph-layer")
	│   ├── similarity-index  (rebuilds the ANN index on model swaps)
	│   ├── graph-rebuild     (scheduled full edge recomputation)
	│   ├── embedding         (restore, train, incremental updates)
	│   ├── collab-trainer    (co-visitation model, optional)
	│   └── store-gc          (Badger value log GC)
	├── EventsSupervisor ("events-layer")
	│   └── event-bus         (watermill router)
	└── OpsSupervisor ("ops-layer")
	    └── ops-server        (health, metrics, admin)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment variables
 2. Logging: zerolog with JSON/console output modes
 3. Store: Badger key-value store
 4. Graph: load the persisted graph into the in-memory store
 5. Event bus, graph builder, embedder, similarity finder
 6. Discovery engine, profile manager, collaborative scorer, recommender
 7. Discovery facade and event subscriptions
 8. Supervisor tree with background jobs and the ops server

# Configuration

	Priority: Environment variables > Config file > Defaults

Common environment variables:

	HTTP_PORT=9464               # ops API port
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console
	BADGER_PATH=/data/scriptorium
	EMBEDDING_MODEL_DIR=/data/models
	COLLAB_ENABLED=true
	DISABLED_JOBS=store-gc       # comma separated job names

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops every job
within SUPERVISOR_SHUTDOWN_TIMEOUT, then the event bus and the store are
closed.
*/
package main
