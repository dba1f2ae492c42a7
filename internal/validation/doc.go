// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with domain validators and readable messages.
// Failures match apperr.ErrInvalidArgument, so the discovery facade returns
// them unchanged.
//
// # Quick Start
//
//	type KHopRequest struct {
//	    ID        string   `json:"id" validate:"required"`
//	    MaxHops   int      `json:"max_hops" validate:"gte=0,lte=6"`
//	    EdgeTypes []string `json:"edge_types" validate:"omitempty,dive,edgetype"`
//	}
//
//	if err := validation.Validate(&req); err != nil {
//	    return nil, err // errors.Is(err, apperr.ErrInvalidArgument)
//	}
//
// # Field Names
//
// Messages and Field() use the json tag name when present, so
// "max_hops must be less than or equal to 6" refers to the payload key.
//
// # Custom Validation Tags
//
//   - edgetype: citation, coauthor, subject_sim or temporal (case-insensitive)
//   - subject: a subject tag that is non-empty after normalization
//
// The built-in tags used across the codebase are required, oneof, gte, lte,
// min, max and dive.
//
// # Thread Safety
//
// The singleton is initialized once and caches struct metadata; it is safe
// for concurrent use.
package validation
