// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/logging"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 1 << 20

// HealthStatus is the body of /healthz and /readyz.
type HealthStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RebuildRequest is the body of the graph rebuild endpoint.
type RebuildRequest struct {
	IDs []string `json:"ids"`
}

// RemovalAccepted is the body returned after a removal was announced.
type RemovalAccepted struct {
	ID string `json:"id"`
}

// Live reports that the process is serving HTTP.
func (router *Router) Live(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthStatus{Status: "ok"})
}

// Ready reports whether queries can be answered.
func (router *Router) Ready(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := router.svc.Ready(r.Context()); err != nil {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready",
			HealthStatus{Status: "unavailable", Reason: err.Error()})
		return
	}
	rw.Success(HealthStatus{Status: "ready"})
}

// Stats returns the engine summary.
func (router *Router) Stats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(router.svc.Stats())
}

// RebuildGraph rebuilds the edges of the requested ids, or of every node.
func (router *Router) RebuildGraph(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req RebuildRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	report, err := router.svc.RebuildGraph(r.Context(), req.IDs)
	if err != nil {
		rw.FromError(err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int("requested", len(req.IDs)).
		Int("rebuilt", len(report.Rebuilt)).
		Msg("graph rebuild requested over ops api")
	rw.Success(report)
}

// RecomputeEmbeddings retrains the embedding model. Omitted parameters take
// the configured defaults.
func (router *Router) RecomputeEmbeddings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var params embedding.Params
	if err := decodeOptionalBody(r, &params); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	report, err := router.svc.RecomputeEmbeddings(r.Context(), params)
	if err != nil {
		rw.FromError(err)
		return
	}
	rw.Success(report)
}

// RemoveResource announces that a resource left the library. Removal
// completes asynchronously.
func (router *Router) RemoveResource(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if err := router.svc.OnResourceRemoved(r.Context(), id); err != nil {
		rw.FromError(err)
		return
	}
	rw.Accepted(RemovalAccepted{ID: id})
}

// decodeOptionalBody decodes a JSON body into v. An empty body leaves v as is.
func decodeOptionalBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("malformed JSON body: " + err.Error())
	}
	return nil
}
