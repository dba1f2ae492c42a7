// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry with promauto at package
initialization. Components never touch the collectors directly; they call the
Record* and Set* helpers so label values stay consistent.

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint of the ops server in Prometheus
text format:

	curl http://localhost:8380/metrics

# Available Metrics

Operation Metrics:
  - scriptorium_operation_duration_seconds: facade latency (histogram)
    Labels: operation
  - scriptorium_operation_errors_total: failures (counter)
    Labels: operation, code

Graph Metrics:
  - scriptorium_graph_nodes, scriptorium_graph_edges: current size (gauges)
  - scriptorium_graph_rebuild_duration_seconds: rebuild latency (histogram)
  - scriptorium_graph_rebuild_resources_total: Labels: result
  - scriptorium_graph_skipped_edge_types_total: Labels: edge_type

Embedding and Index Metrics:
  - scriptorium_embedding_train_duration_seconds: Labels: mode
  - scriptorium_embedding_model_version: served snapshot version (gauge)
  - scriptorium_ann_index_size: Labels: space
  - scriptorium_ann_refresh_duration_seconds: Labels: space, mode

Discovery and Ranking Metrics:
  - scriptorium_lbd_hypotheses: hypotheses per query (histogram)
  - scriptorium_lbd_partial_results_total: cancelled queries (counter)
  - scriptorium_dropped_candidates_total: Labels: reason
  - scriptorium_degraded_responses_total: Labels: signal
  - scriptorium_recommend_cache_requests_total: Labels: result

Circuit Breaker Metrics:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Labels: name, result
  - circuit_breaker_state_transitions_total: Labels: name, from_state, to_state

# Usage

	start := time.Now()
	result, err := engine.Discover(ctx, query)
	metrics.RecordOperation("discover", time.Since(start), err)

# Testing

Tests read collector values with prometheus/testutil:

	before := testutil.ToFloat64(metrics.GraphNodes)
*/
package metrics
