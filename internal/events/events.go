// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package events

import (
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
)

// Topics on the internal bus.
const (
	TopicGraphChanged    = "graph.changed"
	TopicResourceRemoved = "resource.removed"
	TopicInteraction     = "interaction.tracked"
)

// GraphChanged announces that a committed rebuild touched the given nodes.
type GraphChanged struct {
	IDs        []string  `json:"ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ResourceRemoved announces that a resource left the library.
type ResourceRemoved struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InteractionTracked announces a user interaction.
type InteractionTracked struct {
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate checks the event payload.
func (e *GraphChanged) Validate() error {
	if len(e.IDs) == 0 {
		return fmt.Errorf("graph.changed without ids")
	}
	if slices.Contains(e.IDs, "") {
		return fmt.Errorf("graph.changed with empty id")
	}
	return nil
}

// Validate checks the event payload.
func (e *ResourceRemoved) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("resource.removed without id")
	}
	return nil
}

// Validate checks the event payload.
func (e *InteractionTracked) Validate() error {
	if e.UserID == "" || e.ResourceID == "" {
		return fmt.Errorf("interaction.tracked requires user_id and resource_id")
	}
	return nil
}

type validatable interface {
	Validate() error
}

// encode serializes and validates an event.
func encode(event validatable) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// decode deserializes and validates an event.
func decode(data []byte, event validatable) error {
	if err := json.Unmarshal(data, event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	return event.Validate()
}
