// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/profile"
	"github.com/tomtom215/scriptorium/internal/recommend/collab"
)

// interactionRecord is the stored form of one interaction.
type interactionRecord struct {
	UserID      string              `json:"user_id"`
	Interaction profile.Interaction `json:"interaction"`
}

// interactionKey orders a user's interactions by time. The zero-padded
// timestamp keeps lexical and chronological order equal.
func interactionKey(userID string, in *profile.Interaction) string {
	return fmt.Sprintf("%s%s/%020d/%s/%s", interactionKeyPrefix, userID,
		in.Timestamp.UnixNano(), in.Type, in.ResourceID)
}

// AppendInteraction records an interaction of userID. The timestamp must be set.
//
//nolint:gocritic // hugeParam: in passed by value for immutability
func (s *Store) AppendInteraction(_ context.Context, userID string, in profile.Interaction) error {
	if userID == "" || in.ResourceID == "" {
		return apperr.Invalid("user_id and resource_id are required")
	}
	if in.Timestamp.IsZero() {
		return apperr.Invalid("interaction timestamp is required")
	}
	return s.putJSON(interactionKey(userID, &in), interactionRecord{UserID: userID, Interaction: in}, 0)
}

// GetInteractions returns the interactions of userID since the given time,
// oldest first. A user without interactions is reported as not found.
func (s *Store) GetInteractions(ctx context.Context, userID string, since time.Time) ([]profile.Interaction, error) {
	var out []profile.Interaction
	err := s.scanPrefix(ctx, interactionKeyPrefix+userID+"/", func(key, val []byte) error {
		var rec interactionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("skipping unreadable interaction")
			return nil
		}
		// The prefix also matches users whose id extends userID with "/".
		if rec.UserID != userID || rec.Interaction.Timestamp.Before(since) {
			return nil
		}
		out = append(out, rec.Interaction)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load interactions of %s: %w", userID, err)
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("user", userID)
	}
	return out, nil
}

// ListInteractions returns the interactions of every user since the given time.
func (s *Store) ListInteractions(ctx context.Context, since time.Time) ([]collab.Interaction, error) {
	var out []collab.Interaction
	err := s.scanPrefix(ctx, interactionKeyPrefix, func(key, val []byte) error {
		var rec interactionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("skipping unreadable interaction")
			return nil
		}
		if rec.Interaction.Timestamp.Before(since) {
			return nil
		}
		out = append(out, collab.Interaction{
			UserID:     rec.UserID,
			ResourceID: rec.Interaction.ResourceID,
			Timestamp:  rec.Interaction.Timestamp,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return out, nil
}

var _ collab.InteractionFeed = (*Store)(nil)
