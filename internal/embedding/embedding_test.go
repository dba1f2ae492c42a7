// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/modelstore"
)

// ringGraph builds n nodes connected in a coauthor ring plus one isolated node.
func ringGraph(t *testing.T, n int) *graph.Store {
	t.Helper()
	store := graph.NewStore(nil, zerolog.Nop())
	_, err := store.Update(context.Background(), func(tx *graph.Tx) error {
		for i := range n {
			if _, _, err := tx.UpsertNode(&graph.Node{ID: nodeID(i)}); err != nil {
				return err
			}
		}
		if _, _, err := tx.UpsertNode(&graph.Node{ID: "isolated"}); err != nil {
			return err
		}
		for i := range n {
			e := graph.Edge{Target: nodeID((i + 1) % n), Type: graph.EdgeCoauthor, Weight: 0.5}
			if err := tx.ReplaceEdges(nodeID(i), graph.EdgeCoauthor, []graph.Edge{e}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("building ring graph: %v", err)
	}
	return store
}

func nodeID(i int) string { return fmt.Sprintf("n%02d", i) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params = Params{
		Algorithm:       Node2Vec,
		Dimensions:      8,
		WalkLength:      6,
		NumWalks:        2,
		P:               0.5,
		Q:               2,
		WindowSize:      2,
		NegativeSamples: 2,
		Epochs:          1,
		LearningRate:    0.025,
		Seed:            7,
	}
	cfg.WalkWorkers = 4
	cfg.ModelDir = ""
	return cfg
}

func TestParamsWithDefaults(t *testing.T) {
	t.Parallel()

	p := Params{Algorithm: DeepWalk, P: 4, Q: 0.25}.WithDefaults()
	if p.P != 1 || p.Q != 1 {
		t.Errorf("deepwalk P, Q = %v, %v, want 1, 1", p.P, p.Q)
	}
	if p.Dimensions != DefaultParams().Dimensions {
		t.Errorf("Dimensions = %d, want default", p.Dimensions)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"unknown algorithm", func(p *Params) { p.Algorithm = "line" }},
		{"tiny dimensions", func(p *Params) { p.Dimensions = 1 }},
		{"short walk", func(p *Params) { p.WalkLength = 1 }},
		{"negative p", func(p *Params) { p.P = -1 }},
		{"learning rate above one", func(p *Params) { p.LearningRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultParams()
			tt.modify(&p)
			err := p.Validate()
			if !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want invalid argument", err)
			}
		})
	}
}

func TestFingerprintChangesWithParams(t *testing.T) {
	t.Parallel()

	a := DefaultParams()
	b := DefaultParams()
	b.Q = 2
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprints must differ when q differs")
	}
	b.Q = a.Q
	b.Epochs = 50
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("epochs must not change the fingerprint")
	}
}

func TestGenerateWalksDeterministic(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 12)
	wg := newWalkGraph(store.Snapshot())
	starts := make([]int32, len(wg.ids))
	for i := range starts {
		starts[i] = int32(i)
	}
	params := testConfig().Params

	a, err := generateWalks(context.Background(), wg, starts, &params, 1)
	if err != nil {
		t.Fatalf("generateWalks() error = %v", err)
	}
	b, err := generateWalks(context.Background(), wg, starts, &params, 8)
	if err != nil {
		t.Fatalf("generateWalks() error = %v", err)
	}
	if len(a) != len(starts)*params.NumWalks {
		t.Fatalf("len(walks) = %d, want %d", len(a), len(starts)*params.NumWalks)
	}
	for i := range a {
		if !slices.Equal(a[i], b[i]) {
			t.Fatalf("walk %d differs between worker counts: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestWalkFollowsEdges(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 6)
	wg := newWalkGraph(store.Snapshot())
	for i := range wg.ids {
		w := wg.walk(int32(i), 10, 0.5, 2, walkSeed(1, wg.ids[i], 0))
		for j := 1; j < len(w); j++ {
			if !wg.adjacent(w[j-1], w[j]) {
				t.Fatalf("walk %v steps across a missing edge at %d", w, j)
			}
		}
	}

	iso := wg.index["isolated"]
	if w := wg.walk(iso, 10, 1, 1, walkSeed(1, "isolated", 0)); len(w) != 1 {
		t.Errorf("walk from isolated node = %v, want only the start", w)
	}
}

func TestWalkCitationDirection(t *testing.T) {
	t.Parallel()

	store := graph.NewStore(nil, zerolog.Nop())
	_, err := store.Update(context.Background(), func(tx *graph.Tx) error {
		for _, id := range []string{"citing", "cited"} {
			if _, _, err := tx.UpsertNode(&graph.Node{ID: id}); err != nil {
				return err
			}
		}
		return tx.ReplaceEdges("citing", graph.EdgeCitation, []graph.Edge{{Target: "cited", Type: graph.EdgeCitation, Weight: 1}})
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	wg := newWalkGraph(store.Snapshot())

	if w := wg.walk(wg.index["citing"], 5, 1, 1, walkSeed(1, "citing", 0)); len(w) != 2 {
		t.Errorf("walk from citing = %v, want one step to the cited resource", w)
	}
	if w := wg.walk(wg.index["cited"], 5, 1, 1, walkSeed(1, "cited", 0)); len(w) != 1 {
		t.Errorf("walk from cited = %v, want a dead end", w)
	}
}

func TestGenerateWalksCanceled(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 4)
	wg := newWalkGraph(store.Snapshot())
	params := testConfig().Params
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := generateWalks(ctx, wg, []int32{0, 1, 2}, &params, 2)
	if !errors.Is(err, apperr.ErrCanceled) {
		t.Errorf("generateWalks() error = %v, want canceled", err)
	}
}

func TestNewSnapshotDimensionMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewSnapshot(1, "fp", map[string][]float32{
		"a": {1, 0},
		"b": {1, 0, 0},
	})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("NewSnapshot() error = %v, want invalid argument", err)
	}
}

func TestSnapshotFusion(t *testing.T) {
	t.Parallel()

	snap, err := NewSnapshot(1, "fp", map[string][]float32{
		"a": {3, 4},
		"b": {0, 2},
	})
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}

	t.Run("both halves", func(t *testing.T) {
		v, err := snap.Fusion("a", []float32{2, 0, 0}, 3, 0.5)
		if err != nil {
			t.Fatalf("Fusion() error = %v", err)
		}
		want := []float32{0.5, 0, 0, 0.3, 0.4}
		for i := range want {
			if math.Abs(float64(v[i]-want[i])) > 1e-6 {
				t.Fatalf("Fusion() = %v, want %v", v, want)
			}
		}
	})

	t.Run("memoized", func(t *testing.T) {
		v1, _ := snap.Fusion("b", nil, 3, 0.3)
		v2, _ := snap.Fusion("b", nil, 3, 0.3)
		if &v1[0] != &v2[0] {
			t.Error("Fusion() should return the memoized vector")
		}
	})

	t.Run("structural only zero fills content", func(t *testing.T) {
		v, err := snap.Fusion("b", nil, 3, 0.3)
		if err != nil {
			t.Fatalf("Fusion() error = %v", err)
		}
		if len(v) != 5 || v[0] != 0 || v[1] != 0 || v[2] != 0 {
			t.Errorf("Fusion() = %v, want zero content half", v)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := snap.Fusion("zzz", nil, 3, 0.5); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Fusion() error = %v, want not found", err)
		}
	})

	t.Run("bad alpha", func(t *testing.T) {
		if _, err := snap.Fusion("a", nil, 3, 1.5); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("Fusion() error = %v, want invalid argument", err)
		}
	})

	t.Run("content dimension mismatch", func(t *testing.T) {
		if _, err := snap.Fusion("a", []float32{1, 1}, 3, 0.5); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("Fusion() error = %v, want invalid argument", err)
		}
	})
}

func TestCacheSwapAndRemove(t *testing.T) {
	t.Parallel()

	c := NewCache()
	var seen []uint64
	c.OnSwap(func(s *Snapshot) { seen = append(seen, s.Version()) })

	first, _ := NewSnapshot(3, "fp", map[string][]float32{"a": {1, 0}, "b": {0, 1}})
	c.Swap(first)
	old := c.Snapshot()

	c.Remove("a")
	cur := c.Snapshot()
	if _, ok := cur.Get("a"); ok {
		t.Error("removed id still served")
	}
	if _, ok := old.Get("a"); !ok {
		t.Error("held snapshot must not change")
	}
	if cur.ModelVersion() != 3 {
		t.Errorf("ModelVersion() = %d, want 3", cur.ModelVersion())
	}

	c.Remove("missing")
	if !slices.Equal(seen, []uint64{1, 2}) {
		t.Errorf("swap generations = %v, want [1 2]", seen)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{2, 4}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"dimension mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeEmbedsEveryNode(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 10)
	e := NewEmbedder(store, NewCache(), nil, nil, testConfig(), zerolog.Nop())

	snap, err := e.Compute(context.Background(), Params{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if snap.Len() != 11 {
		t.Errorf("Len() = %d, want 11 including the isolated node", snap.Len())
	}
	if snap.Dim() != 8 {
		t.Errorf("Dim() = %d, want 8", snap.Dim())
	}
	if snap.ModelVersion() != 1 {
		t.Errorf("ModelVersion() = %d, want 1", snap.ModelVersion())
	}
	if e.Cache().Snapshot() != snap {
		t.Error("Compute() must publish its snapshot")
	}

	n, _ := store.Snapshot().Node("n03")
	if len(n.StructuralEmbedding) != 8 {
		t.Errorf("written back embedding has length %d, want 8", len(n.StructuralEmbedding))
	}
}

func TestComputeReproducible(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 8)
	cfg := testConfig()
	cfg.WriteBack = false

	a, err := NewEmbedder(store, NewCache(), nil, nil, cfg, zerolog.Nop()).Compute(context.Background(), Params{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	b, err := NewEmbedder(store, NewCache(), nil, nil, cfg, zerolog.Nop()).Compute(context.Background(), Params{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	for _, id := range a.IDs() {
		va, _ := a.Get(id)
		vb, _ := b.Get(id)
		if !slices.Equal(va, vb) {
			t.Fatalf("embedding of %s differs between runs", id)
		}
	}
}

func TestComputeRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	e := NewEmbedder(ringGraph(t, 3), NewCache(), nil, nil, testConfig(), zerolog.Nop())
	_, err := e.Compute(context.Background(), Params{Algorithm: "spectral"})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Compute() error = %v, want invalid argument", err)
	}
}

func TestComputeTrainingInProgress(t *testing.T) {
	t.Parallel()

	e := NewEmbedder(ringGraph(t, 3), NewCache(), nil, nil, testConfig(), zerolog.Nop())
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	_, err := e.Compute(context.Background(), Params{})
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("Compute() error = %v, want unavailable", err)
	}
}

func TestUpdateModes(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 20)
	e := NewEmbedder(store, NewCache(), nil, nil, testConfig(), zerolog.Nop())
	ctx := context.Background()

	_, mode, err := e.Update(ctx, []string{"n01"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if mode != ModeFull {
		t.Errorf("first Update() mode = %s, want full", mode)
	}

	_, err = store.Update(ctx, func(tx *graph.Tx) error {
		if _, _, err := tx.UpsertNode(&graph.Node{ID: "fresh"}); err != nil {
			return err
		}
		return tx.ReplaceEdges("fresh", graph.EdgeCoauthor, []graph.Edge{{Target: "n05", Type: graph.EdgeCoauthor, Weight: 1}})
	})
	if err != nil {
		t.Fatalf("adding node: %v", err)
	}

	snap, mode, err := e.Update(ctx, []string{"fresh"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if mode != ModeIncremental {
		t.Errorf("Update() mode = %s, want incremental", mode)
	}
	if _, ok := snap.Get("fresh"); !ok {
		t.Error("new node must be embedded after an incremental update")
	}
	if snap.ModelVersion() != 2 {
		t.Errorf("ModelVersion() = %d, want 2", snap.ModelVersion())
	}

	many := make([]string, 10)
	for i := range many {
		many[i] = nodeID(i)
	}
	if _, mode, err = e.Update(ctx, many); err != nil || mode != ModeFull {
		t.Errorf("Update(10 of 22) = %s, %v, want full retrain", mode, err)
	}
}

func TestUpdateKeepsComputedParams(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 20)
	e := NewEmbedder(store, NewCache(), nil, nil, testConfig(), zerolog.Nop())
	ctx := context.Background()

	custom := Params{Dimensions: 4, Seed: 11}
	computed, err := e.Compute(ctx, custom)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if computed.Dim() != 4 {
		t.Fatalf("Compute() Dim() = %d, want 4", computed.Dim())
	}

	tests := []struct {
		name    string
		changed []string
		want    Mode
	}{
		{"small change fine-tunes", []string{"n01"}, ModeIncremental},
		{"large change retrains", []string{"n00", "n01", "n02", "n03", "n04", "n05", "n06", "n07", "n08", "n09"}, ModeFull},
	}
	for _, tt := range tests {
		snap, mode, err := e.Update(ctx, tt.changed)
		if err != nil {
			t.Fatalf("%s: Update() error = %v", tt.name, err)
		}
		if mode != tt.want {
			t.Errorf("%s: mode = %s, want %s", tt.name, mode, tt.want)
		}
		if snap.Dim() != 4 || snap.Fingerprint() != computed.Fingerprint() {
			t.Errorf("%s: Dim() = %d fingerprint %q, want the computed 4 and %q", tt.name, snap.Dim(), snap.Fingerprint(), computed.Fingerprint())
		}
	}
}

func TestRestoreFromModelStore(t *testing.T) {
	t.Parallel()

	models, err := modelstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("modelstore.NewStore() error = %v", err)
	}
	store := ringGraph(t, 6)
	cfg := testConfig()
	cfg.WriteBack = false

	trained, err := NewEmbedder(store, NewCache(), models, nil, cfg, zerolog.Nop()).Compute(context.Background(), Params{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	restored := NewEmbedder(store, NewCache(), models, nil, cfg, zerolog.Nop())
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	snap := restored.Cache().Snapshot()
	if snap.ModelVersion() != trained.ModelVersion() {
		t.Errorf("restored ModelVersion() = %d, want %d", snap.ModelVersion(), trained.ModelVersion())
	}
	want, _ := trained.Get("n02")
	got, _ := snap.Get("n02")
	if !slices.Equal(got, want) {
		t.Error("restored embedding differs from trained embedding")
	}

	// A restored model is fine-tuned rather than retrained.
	if _, mode, err := restored.Update(context.Background(), []string{"n02"}); err != nil || mode != ModeIncremental {
		t.Errorf("Update() after Restore = %s, %v, want incremental", mode, err)
	}
}

func TestRestoreFallsBackToStoredEmbeddings(t *testing.T) {
	t.Parallel()

	store := ringGraph(t, 4)
	_, err := store.Update(context.Background(), func(tx *graph.Tx) error {
		tx.SetStructuralEmbeddings(map[string][]float32{"n00": {1, 0}, "n01": {0, 1}})
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	e := NewEmbedder(store, NewCache(), nil, nil, testConfig(), zerolog.Nop())
	if err := e.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := e.Cache().Snapshot().Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
