// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package api provides the ops HTTP surface of Scriptorium using the Chi router.

Routes:

	GET    /healthz                          liveness
	GET    /readyz                           store reachable and indexes published
	GET    /metrics                          Prometheus exposition
	GET    /api/v1/stats                     graph, embedding and index summary
	POST   /api/v1/admin/graph/rebuild       rebuild edges ({"ids": [...]}, empty = all)
	POST   /api/v1/admin/embeddings/recompute  full retrain with optional params
	DELETE /api/v1/admin/resources/{id}      announce a resource removal

Every request gets an X-Request-ID (logged as request_id) and is counted in
scriptorium_http_requests_total by route pattern. /api/v1 routes are rate
limited per client IP with go-chi/httprate.

Responses use one envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}}
*/
package api
