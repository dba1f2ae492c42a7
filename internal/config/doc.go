// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package config provides centralized configuration management for Scriptorium.

# Configuration Sources

Configuration is loaded with koanf in three layers, later layers winning:
  - Built-in defaults (the component DefaultConfig functions)
  - An optional YAML file: $CONFIG_PATH, then ./config.yaml, ./config.yml,
    /etc/scriptorium/config.yaml and /etc/scriptorium/config.yml
  - Environment variables with an explicit name mapping

# Configuration Structure

  - logging: level, format, caller
  - server: ops HTTP server (port, host, timeout, environment, rate limit)
  - store: BadgerDB path, in-memory mode, value log GC
  - graph: edge construction and the rebuild job schedule
  - embedding: walk and skip-gram parameters, model directory, update throttle
  - neighbor: k-hop decay, HNSW parameters, fusion weight
  - lbd: hypothesis limits and cache TTL
  - profile: interest profile cache and default user settings
  - recommend: signal weights, candidate generation, diversity, cache
  - collab: co-visitation scorer, training schedule, circuit breaker
  - events: event bus buffering and handler retry
  - discovery: request concurrency limit
  - supervisor: tree failure handling, job retry backoff, disabled jobs

Component sections reuse the component's own config type; the YAML keys are
the koanf tags declared next to each component.

# Environment Variables

Only mapped names are read. A selection:

  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER
  - HTTP_PORT (default 9464), HTTP_HOST, ENVIRONMENT (development, production)
  - BADGER_PATH (default /data/scriptorium), BADGER_IN_MEMORY
  - GRAPH_REBUILD_INTERVAL (default 6h, 0 disables)
  - EMBEDDING_DIMENSIONS, EMBEDDING_ALGORITHM (node2vec, deepwalk),
    EMBEDDING_MODEL_DIR (default /data/models)
  - RECOMMEND_WEIGHT_CONTENT, RECOMMEND_WEIGHT_GRAPH,
    RECOMMEND_WEIGHT_COLLABORATIVE
  - COLLAB_ENABLED, COLLAB_TRAIN_INTERVAL
  - MAX_CONCURRENT_REQUESTS
  - DISABLED_JOBS: comma-separated, any of graph-rebuild, embedding,
    collab-trainer, store-gc

# Example

	cfg, err := config.Load()
	if err != nil {
	    return fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

# Validation

Load validates the result: each section's own Validate plus cross-section
rules, such as rejecting an in-memory store in production.
*/
package config
