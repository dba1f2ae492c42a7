// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package modelstore

import (
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testState struct {
	Vocab   []string
	Weights []float64
	Dim     int
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "creates directory if not exists",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "new_dir")
			},
		},
		{
			name: "uses existing directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.setup(t))
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}
			if store == nil {
				t.Fatal("NewStore() returned nil store without error")
			}
		})
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	state := testState{Vocab: []string{"r1", "r2"}, Weights: []float64{0.1, 0.2, 0.3, 0.4}, Dim: 2}
	meta := ModelMetadata{Fingerprint: "node2vec:d2", NodeCount: 2, Dimensions: 2, TrainedAt: time.Now()}

	if err := store.Save(ctx, "node2vec", 1, state, meta); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var loaded testState
	got, err := store.Load(ctx, "node2vec", 0, &loaded)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Version != 1 || got.Name != "node2vec" || got.Checksum == "" {
		t.Errorf("metadata = %+v", got)
	}
	if len(loaded.Weights) != 4 || loaded.Weights[3] != 0.4 || loaded.Vocab[1] != "r2" {
		t.Errorf("loaded state = %+v", loaded)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var s testState
	if _, err := store.Load(context.Background(), "deepwalk", 0, &s); !errors.Is(err, ErrNoModel) {
		t.Errorf("Load() error = %v, want ErrNoModel", err)
	}
}

func TestStore_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "covisit", 1, testState{Dim: 1}, ModelMetadata{}); err != nil {
		t.Fatal(err)
	}

	// Overwrite with a file carrying a wrong checksum.
	if err := store.Save(ctx, "covisit", 2, testState{Dim: 2}, ModelMetadata{}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "covisit_v2.gob.gz")
	sf, err := readStoredFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sf.Metadata.Checksum = "deadbeef"
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := gob.NewEncoder(f).Encode(sf); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	var s testState
	if _, err := store.Load(ctx, "covisit", 2, &s); err == nil {
		t.Error("expected checksum error")
	}
}

func TestStore_ScanAndPrune(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for v := uint64(1); v <= 4; v++ {
		if err := store.Save(ctx, "node2vec", v, testState{Dim: int(v)}, ModelMetadata{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Save(ctx, "covisit", 7, testState{}, ModelMetadata{}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reopened.LatestVersion("node2vec"); !ok || v != 4 {
		t.Errorf("LatestVersion() = %d, %v; want 4", v, ok)
	}

	removed, err := reopened.Prune(ctx, "node2vec", 2)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("Prune() removed %d, want 2", removed)
	}
	var s testState
	if _, err := reopened.Load(ctx, "node2vec", 1, &s); err == nil {
		t.Error("pruned version still loadable")
	}
	if _, err := reopened.Load(ctx, "node2vec", 0, &s); err != nil || s.Dim != 4 {
		t.Errorf("latest load = %+v, %v", s, err)
	}

	models, err := reopened.ListModels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].Name != "covisit" || models[1].Name != "node2vec" {
		t.Errorf("ListModels() = %+v", models)
	}
}

func TestParseModelFilename(t *testing.T) {
	tests := []struct {
		file    string
		name    string
		version uint64
		ok      bool
	}{
		{"node2vec_v12.gob.gz", "node2vec", 12, true},
		{"deep_walk_v3.gob.gz", "deep_walk", 3, true},
		{"node2vec_v12.gob", "", 0, false},
		{"_v1.gob.gz", "", 0, false},
		{"node2vec_vx.gob.gz", "", 0, false},
	}
	for _, tt := range tests {
		name, version, ok := parseModelFilename(tt.file)
		if name != tt.name || version != tt.version || ok != tt.ok {
			t.Errorf("parseModelFilename(%q) = %q, %d, %v", tt.file, name, version, ok)
		}
	}
}
