// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package store persists Scriptorium state in BadgerDB.
//
// One Store implements the persistence interfaces of the other packages:
//
//   - graph.Persister: node records and owned edge sets
//   - embedding.MarkerStore: the published model version marker
//   - lbd.Cache: discovery results with a TTL, validated hypotheses
//   - profile.SettingsStore and profile.InteractionProvider
//   - collab.InteractionFeed: bulk interactions for co-visitation training
//
// # Key Layout
//
//	node/<id>                      graph.Node as JSON
//	edge/<source>/<type>           owned edge set as JSON
//	hyp/cache/<key>                lbd.Result, expires with the cache TTL
//	hyp/valid/<id>                 validated lbd.Hypothesis
//	meta/model_version             embedding.Marker
//	settings/<user>                profile.Settings
//	interaction/<user>/<ts>/...    profile.Interaction with its user
//
// Values are encoded with goccy/go-json.
//
// # Garbage Collection
//
// BadgerDB reclaims value log space only when asked. RunGC should be
// called periodically; the supervisor runs it every GCInterval.
package store
