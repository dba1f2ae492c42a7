// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package modelstore persists trained models: structural embedding models and
// the co-visitation model of the collaborative scorer.
//
// # Storage Format
//
// Each version is one file:
//
//	filename: {name}_v{version}.gob.gz
//
//	structure:
//	  - Metadata (ModelMetadata)
//	  - CompressedData (gzip-compressed gob-encoded model state)
//
// The SHA-256 checksum of the uncompressed state is stored in the metadata
// and verified on Load. Files are written to a temporary name and renamed, so
// a crash never leaves a truncated model behind.
//
// # Usage
//
//	store, err := modelstore.NewStore("/data/models")
//	err = store.Save(ctx, "node2vec", 3, state, modelstore.ModelMetadata{NodeCount: n})
//
//	var state embedding.ModelState
//	meta, err := store.Load(ctx, "node2vec", 0, &state) // 0 = latest version
//
// Old versions are removed with Prune.
package modelstore
