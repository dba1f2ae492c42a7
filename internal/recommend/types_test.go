// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package recommend

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/scriptorium/internal/apperr"
)

func TestScoredItem_WithContent(t *testing.T) {
	orig := ScoredItem{ID: "a", Score: 0.5}
	withVec := orig.WithContent([]float32{1, 0})

	if len(orig.Content()) != 0 {
		t.Error("WithContent modified the original item")
	}
	if len(withVec.Content()) != 2 {
		t.Errorf("Content() len = %d, want 2", len(withVec.Content()))
	}
}

func TestScoredItem_JSONOmitsContent(t *testing.T) {
	item := ScoredItem{ID: "a", Score: 0.5}.WithContent([]float32{1, 0})
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := fields["content"]; ok {
		t.Error("content embedding leaked into JSON")
	}
	if fields["id"] != "a" {
		t.Errorf("id = %v, want a", fields["id"])
	}
}

func TestRankResult_Partial(t *testing.T) {
	var r RankResult
	if r.Partial() != nil {
		t.Error("Partial() without drops should be nil")
	}

	r.Dropped = []apperr.Dropped{{ID: "c5", Reason: DropMissingEmbedding}}
	p := r.Partial()
	if p == nil || p.Empty() {
		t.Fatal("Partial() = empty, want one dropped candidate")
	}
	if p.Dropped[0].ID != "c5" {
		t.Errorf("Dropped[0].ID = %q, want c5", p.Dropped[0].ID)
	}
}
