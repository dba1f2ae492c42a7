// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package recommend

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/neighbor"
	"github.com/tomtom215/scriptorium/internal/profile"
)

// testNode describes one resource of the test library.
type testNode struct {
	id         string
	content    []float32
	quality    float64
	popularity int64
	cites      map[string]float64
}

// testLibrary is the graph used by the ranker and engine tests:
//
//	r1 -0.8-> c1 -0.5-> c2
//
// c3 is content-aligned but unconnected, c4 is low quality and c5 has no
// content embedding.
func testLibrary() []testNode {
	return []testNode{
		{id: "r1", content: []float32{1, 0}, quality: 0.9, popularity: 10, cites: map[string]float64{"c1": 0.8}},
		{id: "c1", content: []float32{1, 0}, quality: 0.8, popularity: 5, cites: map[string]float64{"c2": 0.5}},
		{id: "c2", content: []float32{0, 1}, quality: 0.7, popularity: 1},
		{id: "c3", content: []float32{0.6, 0.8}, quality: 0.9, popularity: 100},
		{id: "c4", content: []float32{1, 0}, quality: 0.1},
		{id: "c5", quality: 0.5},
	}
}

func buildGraph(t *testing.T, nodes []testNode) *graph.Store {
	t.Helper()
	store := graph.NewStore(nil, zerolog.Nop())
	_, err := store.Update(context.Background(), func(tx *graph.Tx) error {
		for _, n := range nodes {
			node := &graph.Node{ID: n.id, ContentEmbedding: n.content, Quality: n.quality, Popularity: n.popularity}
			if _, _, err := tx.UpsertNode(node); err != nil {
				return err
			}
		}
		for _, n := range nodes {
			if len(n.cites) == 0 {
				continue
			}
			edges := make([]graph.Edge, 0, len(n.cites))
			for target, w := range n.cites {
				edges = append(edges, graph.Edge{Target: target, Type: graph.EdgeCitation, Weight: w})
			}
			if err := tx.ReplaceEdges(n.id, graph.EdgeCitation, edges); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return store
}

// mockProfiles serves fixed profiles.
type mockProfiles struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile
	calls    int
}

func (m *mockProfiles) Get(_ context.Context, userID string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.profiles[userID]
	if !ok {
		return nil, apperr.NotFound("user", userID)
	}
	return p, nil
}

func reader() *profile.Profile {
	return &profile.Profile{
		UserID:         "u1",
		InterestVector: []float32{1, 0},
		Recent:         []profile.WeightedResource{{ID: "r1", Weight: 1}},
		Settings:       profile.DefaultSettings(),
	}
}

// mockCollab returns fixed scores or a fixed error.
type mockCollab struct {
	mu     sync.Mutex
	scores map[string]float64
	err    error
	calls  int
}

func (m *mockCollab) Score(_ context.Context, _, resourceID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.scores[resourceID], nil
}

func newTestRanker(t *testing.T, collab CollaborativeScorer, profiles ...*profile.Profile) (*Ranker, *graph.Store) {
	t.Helper()
	store := buildGraph(t, testLibrary())
	finder := neighbor.NewFinder(store, embedding.NewCache(), neighbor.DefaultConfig(), zerolog.Nop())
	src := &mockProfiles{profiles: make(map[string]*profile.Profile)}
	for _, p := range profiles {
		src.profiles[p.UserID] = p
	}
	return NewRanker(store, src, finder, collab, DefaultConfig(), zerolog.Nop()), store
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func ids(items []ScoredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRankHybrid(t *testing.T) {
	t.Parallel()
	collab := &mockCollab{scores: map[string]float64{"c1": 0.5, "c2": 1.0}}
	r, _ := newTestRanker(t, collab, reader())

	res, err := r.Rank(context.Background(), RankRequest{
		UserID:       "u1",
		CandidateIDs: []string{"c1", "c2", "c3"},
		K:            10,
	})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if res.Strategy != StrategyHybrid {
		t.Errorf("Strategy = %q, want hybrid", res.Strategy)
	}
	if res.Degraded {
		t.Errorf("Degraded = true, want false")
	}
	if got, want := ids(res.Items), []string{"c1", "c2", "c3"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	want := map[string]float64{
		"c1": 0.4*1 + 0.35*0.8 + 0.25*0.5,
		"c2": 0.35*0.8*0.5*0.7 + 0.25*1,
		"c3": 0.4 * 0.6,
	}
	for _, it := range res.Items {
		if !approx(it.Score, want[it.ID]) {
			t.Errorf("%s score = %f, want %f", it.ID, it.Score, want[it.ID])
		}
		if it.Score < 0 || it.Score > 1 {
			t.Errorf("%s score %f outside [0, 1]", it.ID, it.Score)
		}
	}
	if s := res.Items[0].Subscores; !approx(s.Content, 1) || !approx(s.Graph, 0.8) || !approx(s.Collaborative, 0.5) {
		t.Errorf("c1 subscores = %+v", s)
	}
	if len(res.Items[0].Content()) != 2 {
		t.Errorf("ranked items should carry content embeddings")
	}
}

func TestRankCollaborativeUnavailable(t *testing.T) {
	t.Parallel()
	collab := &mockCollab{err: apperr.Unavailable("collaborative", errors.New("connection refused"))}
	r, _ := newTestRanker(t, collab, reader())

	res, err := r.Rank(context.Background(), RankRequest{
		UserID:       "u1",
		CandidateIDs: []string{"c1", "c2", "c3"},
		K:            10,
	})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if !res.Degraded || !res.CollaborativeUnavailable {
		t.Fatalf("Degraded = %v, CollaborativeUnavailable = %v, want both true", res.Degraded, res.CollaborativeUnavailable)
	}
	if got, want := ids(res.Items), []string{"c1", "c3", "c2"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	wc, wg := 0.4/0.75, 0.35/0.75
	want := map[string]float64{
		"c1": wc*1 + wg*0.8,
		"c2": wg * 0.28,
		"c3": wc * 0.6,
	}
	for _, it := range res.Items {
		if it.Subscores.Collaborative != 0 {
			t.Errorf("%s collaborative subscore = %f, want 0", it.ID, it.Subscores.Collaborative)
		}
		if !approx(it.Score, want[it.ID]) {
			t.Errorf("%s score = %f, want %f", it.ID, it.Score, want[it.ID])
		}
	}
}

func TestRankWithoutCollaborativeScorer(t *testing.T) {
	t.Parallel()
	r, _ := newTestRanker(t, nil, reader())

	res, err := r.Rank(context.Background(), RankRequest{UserID: "u1", CandidateIDs: []string{"c1"}, K: 1})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if !res.CollaborativeUnavailable {
		t.Error("CollaborativeUnavailable = false without a scorer")
	}
}

func TestRankFiltersAndDrops(t *testing.T) {
	t.Parallel()
	r, _ := newTestRanker(t, &mockCollab{}, reader())

	res, err := r.Rank(context.Background(), RankRequest{
		UserID:       "u1",
		CandidateIDs: []string{"c1", "c4", "c5", "ghost", "c1"},
		MinQuality:   0.3,
		K:            1,
	})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if res.Filtered != 1 {
		t.Errorf("Filtered = %d, want 1", res.Filtered)
	}
	if got, want := ids(res.Items), []string{"c1"}; !equalIDs(got, want) {
		t.Errorf("items = %v, want %v", got, want)
	}

	reasons := map[string]string{}
	for _, d := range res.Dropped {
		reasons[d.ID] = d.Reason
	}
	if reasons["ghost"] != DropUnknownNode {
		t.Errorf("ghost reason = %q, want %q", reasons["ghost"], DropUnknownNode)
	}
	if reasons["c5"] != DropMissingEmbedding {
		t.Errorf("c5 reason = %q, want %q", reasons["c5"], DropMissingEmbedding)
	}
	if len(res.Dropped) != 2 {
		t.Errorf("Dropped = %v, want 2 entries", res.Dropped)
	}
	if pf := res.Partial(); pf == nil || pf.Empty() {
		t.Error("Partial() = nil, want partial failure")
	}
}

func TestRankDimensionMismatch(t *testing.T) {
	t.Parallel()
	p := reader()
	p.InterestVector = []float32{1, 0, 0}
	r, _ := newTestRanker(t, &mockCollab{}, p)

	res, err := r.Rank(context.Background(), RankRequest{UserID: "u1", CandidateIDs: []string{"c1", "c2"}, K: 5})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(res.Items) != 0 || len(res.Dropped) != 2 {
		t.Fatalf("items = %v, dropped = %v", ids(res.Items), res.Dropped)
	}
	for _, d := range res.Dropped {
		if d.Reason != DropDimensionMismatch {
			t.Errorf("%s reason = %q, want %q", d.ID, d.Reason, DropDimensionMismatch)
		}
	}
}

func TestRankStrategies(t *testing.T) {
	t.Parallel()
	collab := &mockCollab{scores: map[string]float64{"c3": 0.9, "c2": 0.2}}

	tests := []struct {
		strategy string
		want     []string
	}{
		{StrategyContent, []string{"c1", "c3", "c2"}},
		{StrategyGraph, []string{"c1", "c2", "c3"}},
		{StrategyCollaborative, []string{"c3", "c2", "c1"}},
		{"", []string{"c1", "c3", "c2"}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			t.Parallel()
			r, _ := newTestRanker(t, collab, reader())
			res, err := r.Rank(context.Background(), RankRequest{
				UserID:       "u1",
				CandidateIDs: []string{"c3", "c2", "c1"},
				Strategy:     tt.strategy,
				K:            3,
			})
			if err != nil {
				t.Fatalf("Rank() error = %v", err)
			}
			if got := ids(res.Items); !equalIDs(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
			if res.Degraded {
				t.Error("Degraded = true, want false")
			}
		})
	}
}

func TestRankStrategyFallback(t *testing.T) {
	t.Parallel()
	p := reader()
	p.InterestVector = nil
	r, _ := newTestRanker(t, &mockCollab{}, p)

	res, err := r.Rank(context.Background(), RankRequest{
		UserID:       "u1",
		CandidateIDs: []string{"c2", "c1", "c5"},
		Strategy:     StrategyContent,
		K:            3,
	})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if !res.Degraded || len(res.UnavailableSignals) != 1 || res.UnavailableSignals[0] != SignalContent {
		t.Fatalf("Degraded = %v, UnavailableSignals = %v", res.Degraded, res.UnavailableSignals)
	}
	// Without content, c5 needs no embedding and graph proximity orders c1 first.
	if got, want := ids(res.Items), []string{"c1", "c2", "c5"}; !equalIDs(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestRankUserWeights(t *testing.T) {
	t.Parallel()
	p := reader()
	p.Settings.Weights = &profile.FusionWeights{Graph: 1}
	r, _ := newTestRanker(t, &mockCollab{}, p)

	res, err := r.Rank(context.Background(), RankRequest{UserID: "u1", CandidateIDs: []string{"c1", "c3"}, K: 2})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if !approx(res.Items[0].Score, 0.8) || res.Items[1].Score != 0 {
		t.Errorf("scores = %f, %f, want graph-only 0.8, 0", res.Items[0].Score, res.Items[1].Score)
	}
}

func TestRankErrors(t *testing.T) {
	t.Parallel()
	r, _ := newTestRanker(t, &mockCollab{}, reader())

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		req  RankRequest
		want error
	}{
		{"unknown user", context.Background(), RankRequest{UserID: "nobody", K: 5}, apperr.ErrNotFound},
		{"missing user", context.Background(), RankRequest{K: 5}, apperr.ErrInvalidArgument},
		{"zero k", context.Background(), RankRequest{UserID: "u1"}, apperr.ErrInvalidArgument},
		{"bad quality", context.Background(), RankRequest{UserID: "u1", K: 5, MinQuality: 2}, apperr.ErrInvalidArgument},
		{"bad strategy", context.Background(), RankRequest{UserID: "u1", K: 5, Strategy: "popular"}, apperr.ErrInvalidArgument},
		{"canceled", canceled, RankRequest{UserID: "u1", K: 5, CandidateIDs: []string{"c1"}}, apperr.ErrCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Rank(tt.ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Rank() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"", StrategyContent, StrategyGraph, StrategyCollaborative, StrategyHybrid} {
		s, err := ParseStrategy(name)
		if err != nil {
			t.Errorf("ParseStrategy(%q) error = %v", name, err)
			continue
		}
		if name == "" && s.Name() != StrategyHybrid {
			t.Errorf("ParseStrategy(\"\") = %q, want hybrid", s.Name())
		}
	}
	if _, err := ParseStrategy("random"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("ParseStrategy(random) error = %v, want invalid argument", err)
	}
}
