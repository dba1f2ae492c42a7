// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/lbd"
	"github.com/tomtom215/scriptorium/internal/profile"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	cfg := DefaultConfig()
	cfg.InMemory = true
	s := New(db, cfg, zerolog.Nop())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"in memory without path", func(c *Config) { c.Path = ""; c.InMemory = true }, false},
		{"missing path", func(c *Config) { c.Path = "" }, true},
		{"zero gc interval", func(c *Config) { c.GCInterval = 0 }, true},
		{"discard ratio of one", func(c *Config) { c.GCDiscardRatio = 1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestOpen_OnDisk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.SyncWrites = false

	s, err := Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := s.RunGC(context.Background()); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() after Close should fail")
	}
}

func TestGraphPersistence(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := graph.NewStore(s, zerolog.Nop())
	_, err := g.Update(ctx, func(tx *graph.Tx) error {
		for _, n := range []*graph.Node{
			{ID: "r1", ContentEmbedding: []float32{1, 0}, Quality: 0.9, Year: 2019, Subjects: []string{"genomics"}},
			{ID: "r2", ContentEmbedding: []float32{0, 1}, Quality: 0.5, Year: 2021},
			{ID: "r3", Quality: 0.2},
		} {
			if _, _, err := tx.UpsertNode(n); err != nil {
				return err
			}
		}
		if err := tx.ReplaceEdges("r1", graph.EdgeCitation, []graph.Edge{{Target: "r2", Type: graph.EdgeCitation, Weight: 0.8}}); err != nil {
			return err
		}
		return tx.ReplaceEdges("r3", graph.EdgeCitation, []graph.Edge{{Target: "r1", Type: graph.EdgeCitation, Weight: 0.4}})
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	reloaded := graph.NewStore(s, zerolog.Nop())
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.Len() != 3 || snap.EdgeCount() != g.Snapshot().EdgeCount() {
		t.Fatalf("reloaded %d nodes / %d edges, want 3 / %d", snap.Len(), snap.EdgeCount(), g.Snapshot().EdgeCount())
	}
	r1, ok := snap.Node("r1")
	if !ok || r1.Year != 2019 || len(r1.ContentEmbedding) != 2 || !r1.HasSubject("genomics") {
		t.Errorf("r1 = %+v, want persisted fields", r1)
	}
	edges := snap.Edges("r1", graph.EdgeCitation)
	if len(edges) != 1 || edges[0].Target != "r2" || edges[0].Weight != 0.8 {
		t.Errorf("r1 citations = %+v, want one edge to r2", edges)
	}

	t.Run("removal deletes owned and incoming edges", func(t *testing.T) {
		_, err := g.Update(ctx, func(tx *graph.Tx) error {
			tx.RemoveNode("r1")
			return nil
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		again := graph.NewStore(s, zerolog.Nop())
		if err := again.Load(ctx); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		snap := again.Snapshot()
		if _, ok := snap.Node("r1"); ok {
			t.Error("removed node r1 was reloaded")
		}
		if snap.Len() != 2 || snap.EdgeCount() != 0 {
			t.Errorf("reloaded %d nodes / %d edges, want 2 / 0", snap.Len(), snap.EdgeCount())
		}
	})
}

func TestModelMarker(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LoadModelMarker(ctx); err != nil || ok {
		t.Fatalf("LoadModelMarker() on empty store = %v, %v", ok, err)
	}
	want := &embedding.Marker{Version: 4, Fingerprint: "abc", Nodes: 12, TrainedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := s.SaveModelMarker(ctx, want); err != nil {
		t.Fatalf("SaveModelMarker() error = %v", err)
	}
	got, ok, err := s.LoadModelMarker(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadModelMarker() = %v, %v", ok, err)
	}
	if got.Version != 4 || got.Fingerprint != "abc" || !got.TrainedAt.Equal(want.TrainedAt) {
		t.Errorf("LoadModelMarker() = %+v, want %+v", got, want)
	}
}

func TestHypotheses(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	result := &lbd.Result{
		Hypotheses:   []lbd.Hypothesis{{ID: "h1", ConceptA: "a", ConceptB: "b", ConceptC: "c", Support: 3}},
		Candidates:   5,
		GraphVersion: 9,
	}
	if err := s.PutHypotheses(ctx, "k1", result, time.Hour); err != nil {
		t.Fatalf("PutHypotheses() error = %v", err)
	}
	got, ok, err := s.GetHypotheses(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("GetHypotheses() = %v, %v", ok, err)
	}
	if len(got.Hypotheses) != 1 || got.Hypotheses[0].ConceptB != "b" || got.GraphVersion != 9 {
		t.Errorf("GetHypotheses() = %+v", got)
	}
	if _, ok, _ := s.GetHypotheses(ctx, "missing"); ok {
		t.Error("GetHypotheses() found a missing key")
	}

	validatedAt := time.Now().UTC()
	h := result.Hypotheses[0]
	h.ValidatedAt = &validatedAt
	if err := s.SaveValidated(ctx, &h); err != nil {
		t.Fatalf("SaveValidated() error = %v", err)
	}
	v, ok, err := s.GetValidated(ctx, "h1")
	if err != nil || !ok {
		t.Fatalf("GetValidated() = %v, %v", ok, err)
	}
	if v.ValidatedAt == nil || !v.ValidatedAt.Equal(validatedAt) {
		t.Errorf("ValidatedAt = %v, want %v", v.ValidatedAt, validatedAt)
	}
}

func TestSettings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetSettings(ctx, "u1"); err != nil || ok {
		t.Fatalf("GetSettings() on empty store = %v, %v", ok, err)
	}
	want := profile.DefaultSettings()
	want.DiversityWeight = 0.7
	want.Weights = &profile.FusionWeights{Content: 0.5, Graph: 0.5}
	if err := s.PutSettings(ctx, "u1", &want); err != nil {
		t.Fatalf("PutSettings() error = %v", err)
	}
	got, ok, err := s.GetSettings(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("GetSettings() = %v, %v", ok, err)
	}
	if got.DiversityWeight != 0.7 || got.Weights == nil || got.Weights.Graph != 0.5 {
		t.Errorf("GetSettings() = %+v, want %+v", got, want)
	}
}

func TestInteractions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	add := func(user, resource string, day int) {
		t.Helper()
		err := s.AppendInteraction(ctx, user, profile.Interaction{
			ResourceID: resource,
			Type:       profile.InteractionRead,
			Timestamp:  base.AddDate(0, 0, day),
		})
		if err != nil {
			t.Fatalf("AppendInteraction() error = %v", err)
		}
	}
	add("u1", "r2", 2)
	add("u1", "r1", 1)
	add("u1", "r3", 10)
	add("u1/x", "r9", 3)
	add("u2", "r1", 4)

	got, err := s.GetInteractions(ctx, "u1", base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("GetInteractions() error = %v", err)
	}
	if len(got) != 2 || got[0].ResourceID != "r2" || got[1].ResourceID != "r3" {
		t.Errorf("GetInteractions() = %+v, want r2 then r3", got)
	}

	if _, err := s.GetInteractions(ctx, "ghost", base); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetInteractions(ghost) error = %v, want not found", err)
	}

	all, err := s.ListInteractions(ctx, base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	users := make(map[string]int)
	for _, in := range all {
		users[in.UserID]++
	}
	if len(all) != 3 || users["u1"] != 1 || users["u1/x"] != 1 || users["u2"] != 1 {
		t.Errorf("ListInteractions() = %+v", all)
	}

	if err := s.AppendInteraction(ctx, "u1", profile.Interaction{ResourceID: "r1", Type: profile.InteractionRead}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("AppendInteraction() without timestamp error = %v, want invalid", err)
	}
}
