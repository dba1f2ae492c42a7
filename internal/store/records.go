// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package store

import (
	"context"
	"time"

	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/lbd"
	"github.com/tomtom215/scriptorium/internal/profile"
)

// LoadModelMarker returns the marker of the last published embedding model.
func (s *Store) LoadModelMarker(_ context.Context) (*embedding.Marker, bool, error) {
	var m embedding.Marker
	ok, err := s.getJSON(modelMarkerKey, &m)
	if err != nil || !ok {
		return nil, false, err
	}
	return &m, true, nil
}

// SaveModelMarker records the marker of a newly published embedding model.
func (s *Store) SaveModelMarker(_ context.Context, m *embedding.Marker) error {
	return s.putJSON(modelMarkerKey, m, 0)
}

// GetHypotheses returns a cached discovery result. Expired entries are
// invisible because badger drops them on read.
func (s *Store) GetHypotheses(_ context.Context, key string) (*lbd.Result, bool, error) {
	var r lbd.Result
	ok, err := s.getJSON(hypothesisCachePrefix+key, &r)
	if err != nil || !ok {
		return nil, false, err
	}
	return &r, true, nil
}

// PutHypotheses caches a discovery result for ttl.
func (s *Store) PutHypotheses(_ context.Context, key string, r *lbd.Result, ttl time.Duration) error {
	return s.putJSON(hypothesisCachePrefix+key, r, ttl)
}

// SaveValidated stores a validated hypothesis permanently.
func (s *Store) SaveValidated(_ context.Context, h *lbd.Hypothesis) error {
	return s.putJSON(hypothesisValidPrefix+h.ID, h, 0)
}

// GetValidated returns a validated hypothesis by id.
func (s *Store) GetValidated(_ context.Context, id string) (*lbd.Hypothesis, bool, error) {
	var h lbd.Hypothesis
	ok, err := s.getJSON(hypothesisValidPrefix+id, &h)
	if err != nil || !ok {
		return nil, false, err
	}
	return &h, true, nil
}

// GetSettings returns the stored settings of a user.
func (s *Store) GetSettings(_ context.Context, userID string) (*profile.Settings, bool, error) {
	var st profile.Settings
	ok, err := s.getJSON(settingsKeyPrefix+userID, &st)
	if err != nil || !ok {
		return nil, false, err
	}
	return &st, true, nil
}

// PutSettings stores the settings of a user.
func (s *Store) PutSettings(_ context.Context, userID string, st *profile.Settings) error {
	return s.putJSON(settingsKeyPrefix+userID, st, 0)
}

var (
	_ embedding.MarkerStore       = (*Store)(nil)
	_ lbd.Cache                   = (*Store)(nil)
	_ profile.SettingsStore       = (*Store)(nil)
	_ profile.InteractionProvider = (*Store)(nil)
)
