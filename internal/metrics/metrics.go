// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/scriptorium/internal/apperr"
)

var (
	// Operation Metrics
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptorium_operation_duration_seconds",
			Help:    "Duration of discovery and recommendation operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_operation_errors_total",
			Help: "Total number of failed operations by error code",
		},
		[]string{"operation", "code"}, // code: not_found, invalid_argument, canceled, unavailable, internal
	)

	// Graph Metrics
	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptorium_graph_nodes",
			Help: "Current number of live nodes in the knowledge graph",
		},
	)

	GraphEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptorium_graph_edges",
			Help: "Current number of owned edges in the knowledge graph",
		},
	)

	GraphRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scriptorium_graph_rebuild_duration_seconds",
			Help:    "Duration of graph rebuilds in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	GraphRebuildResources = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_graph_rebuild_resources_total",
			Help: "Resources processed by graph rebuilds",
		},
		[]string{"result"}, // result: "rebuilt", "failed"
	)

	GraphSkippedEdgeTypes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_graph_skipped_edge_types_total",
			Help: "Edge types skipped during rebuild because metadata was missing",
		},
		[]string{"edge_type"},
	)

	// Embedding Metrics
	EmbeddingTrainDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptorium_embedding_train_duration_seconds",
			Help:    "Duration of structural embedding training in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"mode"}, // mode: "full", "incremental"
	)

	EmbeddingTrainErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_embedding_train_errors_total",
			Help: "Total number of failed embedding trainings",
		},
		[]string{"mode"},
	)

	EmbeddingNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptorium_embedding_nodes",
			Help: "Number of nodes with a structural embedding in the current snapshot",
		},
	)

	EmbeddingModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptorium_embedding_model_version",
			Help: "Version of the embedding snapshot currently served",
		},
	)

	// ANN Index Metrics
	ANNIndexSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scriptorium_ann_index_size",
			Help: "Number of vectors in the nearest-neighbor index",
		},
		[]string{"space"}, // space: "structural", "fusion"
	)

	ANNRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptorium_ann_refresh_duration_seconds",
			Help:    "Duration of nearest-neighbor index refreshes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"space", "mode"}, // mode: "patch", "rebuild", "exact"
	)

	// Discovery Metrics
	HypothesesReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scriptorium_lbd_hypotheses",
			Help:    "Number of hypotheses returned per discovery query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	HypothesesPartial = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptorium_lbd_partial_results_total",
			Help: "Discovery queries that returned a partial result after cancellation",
		},
	)

	HypothesisCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_lbd_cache_requests_total",
			Help: "Hypothesis cache lookups",
		},
		[]string{"result"}, // result: "hit", "miss"
	)

	// Ranking Metrics
	DroppedCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_dropped_candidates_total",
			Help: "Candidates dropped from a ranking because fusion failed",
		},
		[]string{"reason"},
	)

	DegradedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_degraded_responses_total",
			Help: "Responses returned with an unavailable signal",
		},
		[]string{"signal"},
	)

	RecommendCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_recommend_cache_requests_total",
			Help: "Recommendation response cache lookups",
		},
		[]string{"result"},
	)

	ProfileCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_profile_cache_requests_total",
			Help: "User interest profile cache lookups",
		},
		[]string{"result"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_events_published_total",
			Help: "Events published on the internal bus",
		},
		[]string{"topic"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_events_consumed_total",
			Help: "Events handled by internal subscribers",
		},
		[]string{"topic", "result"}, // result: "ack", "nack"
	)

	// Background Job Metrics
	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_job_retries_total",
			Help: "Background job attempts that failed and were scheduled for retry",
		},
		[]string{"job"},
	)

	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptorium_http_requests_total",
			Help: "Total number of ops HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordOperation records the latency and outcome of a facade operation
func RecordOperation(operation string, duration time.Duration, err error) {
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(operation, apperr.Code(err)).Inc()
	}
}

// SetGraphSize updates the graph size gauges
func SetGraphSize(nodes, edges int) {
	GraphNodes.Set(float64(nodes))
	GraphEdges.Set(float64(edges))
}

// RecordGraphRebuild records a completed rebuild
func RecordGraphRebuild(duration time.Duration, rebuilt, failed int) {
	GraphRebuildDuration.Observe(duration.Seconds())
	GraphRebuildResources.WithLabelValues("rebuilt").Add(float64(rebuilt))
	GraphRebuildResources.WithLabelValues("failed").Add(float64(failed))
}

// RecordSkippedEdgeType records an edge type skipped for one resource
func RecordSkippedEdgeType(edgeType string) {
	GraphSkippedEdgeTypes.WithLabelValues(edgeType).Inc()
}

// RecordEmbeddingTrain records a training run
func RecordEmbeddingTrain(mode string, duration time.Duration, nodes int, err error) {
	if err != nil {
		EmbeddingTrainErrors.WithLabelValues(mode).Inc()
		return
	}
	EmbeddingTrainDuration.WithLabelValues(mode).Observe(duration.Seconds())
	EmbeddingNodes.Set(float64(nodes))
}

// SetEmbeddingModelVersion publishes the served embedding snapshot version
func SetEmbeddingModelVersion(version uint64) {
	EmbeddingModelVersion.Set(float64(version))
}

// RecordANNRefresh records an index refresh and its resulting size
func RecordANNRefresh(space, mode string, duration time.Duration, size int) {
	ANNRefreshDuration.WithLabelValues(space, mode).Observe(duration.Seconds())
	ANNIndexSize.WithLabelValues(space).Set(float64(size))
}

// RecordHypotheses records the outcome of a discovery query
func RecordHypotheses(count int, partial bool) {
	HypothesesReturned.Observe(float64(count))
	if partial {
		HypothesesPartial.Inc()
	}
}

// RecordHypothesisCache records a hypothesis cache lookup
func RecordHypothesisCache(hit bool) {
	HypothesisCacheRequests.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordDroppedCandidates records candidates dropped for a reason
func RecordDroppedCandidates(reason string, count int) {
	if count <= 0 {
		return
	}
	DroppedCandidates.WithLabelValues(reason).Add(float64(count))
}

// RecordDegraded records a response served without one of its signals
func RecordDegraded(signal string) {
	DegradedResponses.WithLabelValues(signal).Inc()
}

// RecordRecommendCache records a recommendation cache lookup
func RecordRecommendCache(hit bool) {
	RecommendCacheRequests.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordProfileCache records a profile cache lookup
func RecordProfileCache(hit bool) {
	ProfileCacheRequests.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordEventPublished records a published event
func RecordEventPublished(topic string) {
	EventsPublished.WithLabelValues(topic).Inc()
}

// RecordEventConsumed records a handled event
func RecordEventConsumed(topic string, err error) {
	result := "ack"
	if err != nil {
		result = "nack"
	}
	EventsConsumed.WithLabelValues(topic, result).Inc()
}

// RecordJobRetry records a failed background job attempt
func RecordJobRetry(job string) {
	JobRetries.WithLabelValues(job).Inc()
}

// RecordHTTPRequest records an ops HTTP request
func RecordHTTPRequest(method, route string, status int) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
