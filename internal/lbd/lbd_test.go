// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package lbd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/neighbor"
)

type doc struct {
	id       string
	year     int
	quality  float64
	subjects []string
	cites    []string
}

func buildStore(t *testing.T, docs []doc) *graph.Store {
	t.Helper()
	store := graph.NewStore(nil, zerolog.Nop())
	_, err := store.Update(context.Background(), func(tx *graph.Tx) error {
		for _, d := range docs {
			subjects := slices.Clone(d.subjects)
			slices.Sort(subjects)
			n := &graph.Node{ID: d.id, Year: d.year, Quality: d.quality, Subjects: subjects}
			if _, _, err := tx.UpsertNode(n); err != nil {
				return err
			}
		}
		for _, d := range docs {
			if len(d.cites) == 0 {
				continue
			}
			edges := make([]graph.Edge, 0, len(d.cites))
			for _, target := range d.cites {
				edges = append(edges, graph.Edge{Target: target, Type: graph.EdgeCitation, Weight: 1})
			}
			if err := tx.ReplaceEdges(d.id, graph.EdgeCitation, edges); err != nil {
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

func newTestEngine(t *testing.T, docs []doc, cache Cache) *Engine {
	t.Helper()
	store := buildStore(t, docs)
	finder := neighbor.NewFinder(store, embedding.NewCache(), neighbor.DefaultConfig(), zerolog.Nop())
	return NewEngine(store, finder, cache, DefaultConfig(), zerolog.Nop())
}

type memCache struct {
	mu        sync.Mutex
	results   map[string]*Result
	validated map[string]*Hypothesis
	puts      int
}

func newMemCache() *memCache {
	return &memCache{results: make(map[string]*Result), validated: make(map[string]*Hypothesis)}
}

func (m *memCache) GetHypotheses(_ context.Context, key string) (*Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[key]
	if !ok {
		return nil, false, nil
	}
	c := *r
	return &c, true, nil
}

func (m *memCache) PutHypotheses(_ context.Context, key string, r *Result, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.results[key] = &c
	m.puts++
	return nil
}

func (m *memCache) SaveValidated(_ context.Context, h *Hypothesis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *h
	m.validated[h.ID] = &c
	return nil
}

func (m *memCache) GetValidated(_ context.Context, id string) (*Hypothesis, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.validated[id]
	return h, ok, nil
}

func TestDiscoverBridge(t *testing.T) {
	e := newTestEngine(t, []doc{
		{id: "r1", year: 2001, quality: 0.5, subjects: []string{"x", "z"}},
		{id: "r2", year: 2002, quality: 0.5, subjects: []string{"z", "y"}},
	}, nil)

	res, err := e.Discover(context.Background(), Query{ConceptA: "X", ConceptC: " y "})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Hypotheses) != 1 {
		t.Fatalf("got %d hypotheses, want 1", len(res.Hypotheses))
	}
	h := res.Hypotheses[0]
	if h.ConceptA != "x" || h.ConceptB != "z" || h.ConceptC != "y" {
		t.Errorf("hypothesis = %s-%s-%s, want x-z-y", h.ConceptA, h.ConceptB, h.ConceptC)
	}
	if h.Support != 1 || h.Novelty != 1 || h.Confidence != 1 {
		t.Errorf("support/novelty/confidence = %d/%v/%v, want 1/1/1", h.Support, h.Novelty, h.Confidence)
	}
	if !slices.Equal(h.Evidence[0].Resources, []string{"r1"}) || !slices.Equal(h.Evidence[1].Resources, []string{"r2"}) {
		t.Errorf("evidence = %+v", h.Evidence)
	}
	if h.ID == "" || h.ID != hypothesisID("x", "z", "y") {
		t.Errorf("ID = %q, want deterministic id", h.ID)
	}
	if res.Partial || res.Cached {
		t.Errorf("Partial=%v Cached=%v, want false", res.Partial, res.Cached)
	}
}

func TestDiscoverExcludesCoTaggedBridge(t *testing.T) {
	e := newTestEngine(t, []doc{
		{id: "r1", subjects: []string{"x", "z"}},
		{id: "r2", subjects: []string{"z", "y"}},
		{id: "r3", subjects: []string{"x", "y", "w"}},
		{id: "r4", subjects: []string{"x", "w"}},
		{id: "r5", subjects: []string{"w", "y"}},
	}, nil)

	res, err := e.Discover(context.Background(), Query{ConceptA: "x", ConceptC: "y"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var bridges []string
	for _, h := range res.Hypotheses {
		bridges = append(bridges, h.ConceptB)
	}
	if !slices.Equal(bridges, []string{"z"}) {
		t.Fatalf("bridges = %v, want [z]", bridges)
	}
	if got := res.Hypotheses[0].Novelty; got != 0.5 {
		t.Errorf("Novelty = %v, want 0.5 with one direct co-occurrence", got)
	}
}

func TestDiscoverRankingAndLimit(t *testing.T) {
	docs := []doc{
		// b1: support 2, b2: support 1, b3: support 1.
		{id: "ab1", subjects: []string{"a", "b1"}},
		{id: "ab2", subjects: []string{"a", "b1"}},
		{id: "bc1", subjects: []string{"b1", "c"}},
		{id: "bc2", subjects: []string{"b1", "c"}},
		{id: "ab3", subjects: []string{"a", "b2", "b3"}},
		{id: "bc3", subjects: []string{"b2", "b3", "c"}},
	}
	e := newTestEngine(t, docs, nil)

	res, err := e.Discover(context.Background(), Query{ConceptA: "a", ConceptC: "c"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var bridges []string
	for _, h := range res.Hypotheses {
		bridges = append(bridges, h.ConceptB)
	}
	if !slices.Equal(bridges, []string{"b1", "b2", "b3"}) {
		t.Fatalf("bridges = %v, want [b1 b2 b3]", bridges)
	}
	if res.Hypotheses[0].Confidence != 1 || res.Hypotheses[1].Confidence != 0.5 {
		t.Errorf("confidences = %v, %v, want 1, 0.5", res.Hypotheses[0].Confidence, res.Hypotheses[1].Confidence)
	}
	if res.Candidates != 3 {
		t.Errorf("Candidates = %d, want 3", res.Candidates)
	}

	res, err = e.Discover(context.Background(), Query{ConceptA: "a", ConceptC: "c", Limit: 2})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Hypotheses) != 2 || res.Hypotheses[1].ConceptB != "b2" {
		t.Errorf("limited hypotheses = %+v", res.Hypotheses)
	}
}

func TestDiscoverEvidenceOrder(t *testing.T) {
	store := buildStore(t, []doc{
		{id: "ab-low", quality: 0.1, subjects: []string{"a", "b"}},
		{id: "ab-high", quality: 0.9, subjects: []string{"a", "b"}},
		{id: "ab-mid-2", quality: 0.5, subjects: []string{"a", "b"}},
		{id: "ab-mid-1", quality: 0.5, subjects: []string{"a", "b"}},
		{id: "bc", quality: 0.3, subjects: []string{"b", "c"}},
	})
	cfg := DefaultConfig()
	cfg.MaxEvidencePerHop = 3
	e := NewEngine(store, nil, nil, cfg, zerolog.Nop())

	res, err := e.Discover(context.Background(), Query{ConceptA: "a", ConceptC: "c"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	hop := res.Hypotheses[0].Evidence[0]
	if want := []string{"ab-high", "ab-mid-1", "ab-mid-2"}; !slices.Equal(hop.Resources, want) {
		t.Errorf("evidence = %v, want %v", hop.Resources, want)
	}
	if hop.Count != 4 {
		t.Errorf("Count = %d, want 4", hop.Count)
	}
	if h := res.Hypotheses[0]; h.Support != 1 {
		t.Errorf("Support = %d, want min(4, 1) = 1", h.Support)
	}
}

func TestDiscoverNoBridge(t *testing.T) {
	e := newTestEngine(t, []doc{
		{id: "r1", subjects: []string{"x", "z"}},
		{id: "r2", subjects: []string{"q", "y"}},
	}, nil)

	res, err := e.Discover(context.Background(), Query{ConceptA: "x", ConceptC: "y"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Hypotheses) != 0 {
		t.Errorf("got %d hypotheses, want none", len(res.Hypotheses))
	}

	res, err = e.Discover(context.Background(), Query{ConceptA: "unknown", ConceptC: "y"})
	if err != nil || len(res.Hypotheses) != 0 {
		t.Errorf("unknown concept: %v, %v", res, err)
	}
}

func TestDiscoverArguments(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	tests := []struct {
		name string
		q    Query
	}{
		{"missing a", Query{ConceptC: "y"}},
		{"missing c", Query{ConceptA: "x"}},
		{"same concept", Query{ConceptA: "X", ConceptC: "x "}},
		{"negative limit", Query{ConceptA: "x", ConceptC: "y", Limit: -1}},
		{"limit above max", Query{ConceptA: "x", ConceptC: "y", Limit: 1000}},
		{"inverted range", Query{ConceptA: "x", ConceptC: "y", TimeRange: &TimeRange{From: 2010, To: 2000}}},
		{"negative range", Query{ConceptA: "x", ConceptC: "y", TimeRange: &TimeRange{From: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Discover(context.Background(), tt.q)
			if !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestDiscoverTimeRange(t *testing.T) {
	e := newTestEngine(t, []doc{
		{id: "r1", year: 1990, subjects: []string{"x", "old"}},
		{id: "r2", year: 1991, subjects: []string{"old", "y"}},
		{id: "r3", year: 2010, subjects: []string{"x", "new"}},
		{id: "r4", year: 2011, subjects: []string{"new", "y"}},
		{id: "r5", subjects: []string{"x", "undated"}},
		{id: "r6", subjects: []string{"undated", "y"}},
	}, nil)

	bridges := func(tr *TimeRange) []string {
		res, err := e.Discover(context.Background(), Query{ConceptA: "x", ConceptC: "y", TimeRange: tr})
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		var out []string
		for _, h := range res.Hypotheses {
			out = append(out, h.ConceptB)
		}
		slices.Sort(out)
		return out
	}

	if got := bridges(nil); !slices.Equal(got, []string{"new", "old", "undated"}) {
		t.Errorf("no range: %v", got)
	}
	if got := bridges(&TimeRange{To: 2000}); !slices.Equal(got, []string{"old"}) {
		t.Errorf("to 2000: %v", got)
	}
	if got := bridges(&TimeRange{From: 2000}); !slices.Equal(got, []string{"new"}) {
		t.Errorf("from 2000: %v", got)
	}
	if got := bridges(&TimeRange{From: 1991, To: 2010}); len(got) != 0 {
		t.Errorf("1991-2010 splits both chains, got %v", got)
	}
}

func TestDiscoverPartialOnCancel(t *testing.T) {
	cache := newMemCache()
	e := newTestEngine(t, []doc{
		{id: "r1", subjects: []string{"x", "z"}},
		{id: "r2", subjects: []string{"z", "y"}},
	}, cache)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Discover(ctx, Query{ConceptA: "x", ConceptC: "y"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !res.Partial {
		t.Error("Partial = false, want true")
	}
	if cache.puts != 0 {
		t.Errorf("partial result cached %d times", cache.puts)
	}
}

func TestDiscoverCache(t *testing.T) {
	cache := newMemCache()
	docs := []doc{
		{id: "r1", subjects: []string{"x", "z"}},
		{id: "r2", subjects: []string{"z", "y"}},
	}
	store := buildStore(t, docs)
	e := NewEngine(store, nil, cache, DefaultConfig(), zerolog.Nop())
	q := Query{ConceptA: "x", ConceptC: "y"}

	first, err := e.Discover(context.Background(), q)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if first.Cached {
		t.Error("first call reported cached")
	}
	second, err := e.Discover(context.Background(), q)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !second.Cached || len(second.Hypotheses) != 1 {
		t.Errorf("second call Cached=%v hypotheses=%d", second.Cached, len(second.Hypotheses))
	}

	// A graph change moves the key to the new version.
	_, err = store.Update(context.Background(), func(tx *graph.Tx) error {
		_, _, err := tx.UpsertNode(&graph.Node{ID: "r3", Subjects: []string{"w", "x"}})
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	third, err := e.Discover(context.Background(), q)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if third.Cached {
		t.Error("result cached across graph versions")
	}
	if third.GraphVersion == first.GraphVersion {
		t.Errorf("GraphVersion unchanged: %d", third.GraphVersion)
	}
}

func TestDiscoverProximity(t *testing.T) {
	e := newTestEngine(t, []doc{
		{id: "r1", subjects: []string{"x", "z"}, cites: []string{"r2"}},
		{id: "r2", subjects: []string{"z", "y"}},
		{id: "r3", subjects: []string{"x", "w"}},
		{id: "r4", subjects: []string{"w", "y"}},
	}, nil)

	res, err := e.Discover(context.Background(), Query{ConceptA: "x", ConceptC: "y"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	got := make(map[string]float64)
	for _, h := range res.Hypotheses {
		got[h.ConceptB] = h.GraphProximity
	}
	if got["z"] != 1 {
		t.Errorf("proximity via citation = %v, want 1", got["z"])
	}
	if got["w"] != 0 {
		t.Errorf("proximity without path = %v, want 0", got["w"])
	}
}

func TestDiscoverClosed(t *testing.T) {
	e := newTestEngine(t, []doc{
		{id: "r1", subjects: []string{"a", "b"}},
		{id: "r2", subjects: []string{"b", "c1"}},
		{id: "r3", subjects: []string{"b", "c1"}},
		{id: "r4", subjects: []string{"b", "c2"}},
		{id: "r5", subjects: []string{"a", "b", "c3"}},
		{id: "r6", subjects: []string{"b", "c3"}},
	}, nil)

	res, err := e.DiscoverClosed(context.Background(), ClosedQuery{ConceptA: "a", ConceptB: "b"})
	if err != nil {
		t.Fatalf("DiscoverClosed: %v", err)
	}
	var targets []string
	for _, h := range res.Hypotheses {
		if h.ConceptA != "a" || h.ConceptB != "b" {
			t.Errorf("hypothesis %s-%s-%s does not keep a and b fixed", h.ConceptA, h.ConceptB, h.ConceptC)
		}
		targets = append(targets, h.ConceptC)
	}
	// c3 is co-tagged with a and b in r5.
	if !slices.Equal(targets, []string{"c1", "c2"}) {
		t.Errorf("targets = %v, want [c1 c2]", targets)
	}

	res, err = e.DiscoverClosed(context.Background(), ClosedQuery{ConceptA: "a", ConceptB: "unlinked"})
	if err != nil || len(res.Hypotheses) != 0 {
		t.Errorf("unlinked bridge: %+v, %v", res, err)
	}
}

func TestValidateTimeSliced(t *testing.T) {
	e := newTestEngine(t, []doc{
		{id: "r1", year: 1980, subjects: []string{"fish oil", "blood viscosity"}},
		{id: "r2", year: 1982, subjects: []string{"blood viscosity", "raynaud"}},
		{id: "r3", year: 1989, subjects: []string{"fish oil", "raynaud", "blood viscosity"}},
		{id: "r4", year: 1992, subjects: []string{"fish oil", "raynaud"}},
	}, nil)

	res, err := e.ValidateTimeSliced(context.Background(), "Fish Oil", "Raynaud", 1986, 0)
	if err != nil {
		t.Fatalf("ValidateTimeSliced: %v", err)
	}
	if len(res.Predicted) != 1 || res.Predicted[0].ConceptB != "blood viscosity" {
		t.Fatalf("Predicted = %+v", res.Predicted)
	}
	if !res.Confirmed || res.FirstConfirmedYear != 1989 {
		t.Errorf("Confirmed=%v FirstConfirmedYear=%d, want true 1989", res.Confirmed, res.FirstConfirmedYear)
	}
	if !slices.Equal(res.ConfirmingResources, []string{"r3", "r4"}) {
		t.Errorf("ConfirmingResources = %v", res.ConfirmingResources)
	}
	if !slices.Equal(res.ConfirmedBridges, []string{"blood viscosity"}) {
		t.Errorf("ConfirmedBridges = %v", res.ConfirmedBridges)
	}

	res, err = e.ValidateTimeSliced(context.Background(), "fish oil", "raynaud", 2000, 0)
	if err != nil {
		t.Fatalf("ValidateTimeSliced: %v", err)
	}
	if res.Confirmed || len(res.Predicted) != 0 {
		t.Errorf("cutoff 2000: Confirmed=%v Predicted=%d", res.Confirmed, len(res.Predicted))
	}

	if _, err := e.ValidateTimeSliced(context.Background(), "a", "b", 0, 0); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("zero cutoff err = %v", err)
	}
}

func TestValidateHypothesis(t *testing.T) {
	docs := []doc{
		{id: "r1", subjects: []string{"x", "z"}},
		{id: "r2", subjects: []string{"z", "y"}},
	}
	h := Hypothesis{
		ConceptA: "X", ConceptB: "z", ConceptC: "y",
		Evidence: []Hop{{From: "x", To: "z", Resources: []string{"r1"}}, {From: "z", To: "y", Resources: []string{"r2"}}},
	}

	noCache := newTestEngine(t, docs, nil)
	if _, err := noCache.ValidateHypothesis(context.Background(), &h); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("without store err = %v, want ErrUnavailable", err)
	}

	cache := newMemCache()
	e := newTestEngine(t, docs, cache)
	saved, err := e.ValidateHypothesis(context.Background(), &h)
	if err != nil {
		t.Fatalf("ValidateHypothesis: %v", err)
	}
	if saved.ValidatedAt == nil || saved.ConceptA != "x" {
		t.Errorf("saved = %+v", saved)
	}
	got, err := e.GetValidated(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("GetValidated: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("GetValidated ID = %q, want %q", got.ID, saved.ID)
	}
	if _, err := e.GetValidated(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}

	bad := h
	bad.Evidence = []Hop{h.Evidence[0], {From: "z", To: "y"}}
	if _, err := e.ValidateHypothesis(context.Background(), &bad); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty hop err = %v", err)
	}
	if _, err := e.ValidateHypothesis(context.Background(), nil); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("nil err = %v", err)
	}
}

// TestDiscoverProperties checks random corpora: no returned bridge shares a
// resource with both A and C, every hop has evidence, hop leads differ and
// confidences are normalized and non-increasing.
func TestDiscoverProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	vocab := []string{"a", "c", "s1", "s2", "s3", "s4", "s5", "s6"}
	for round := range 20 {
		var docs []doc
		for i := range 40 {
			var subjects []string
			for _, s := range vocab {
				if rng.Float64() < 0.3 {
					subjects = append(subjects, s)
				}
			}
			docs = append(docs, doc{id: fmt.Sprintf("r%02d", i), quality: rng.Float64(), subjects: subjects})
		}
		e := NewEngine(buildStore(t, docs), nil, nil, DefaultConfig(), zerolog.Nop())
		res, err := e.Discover(context.Background(), Query{ConceptA: "a", ConceptC: "c", Limit: 100})
		if err != nil {
			t.Fatalf("round %d: Discover: %v", round, err)
		}

		prev := math.Inf(1)
		for _, h := range res.Hypotheses {
			for _, d := range docs {
				if slices.Contains(d.subjects, "a") && slices.Contains(d.subjects, "c") && slices.Contains(d.subjects, h.ConceptB) {
					t.Errorf("round %d: bridge %s co-tagged with a and c in %s", round, h.ConceptB, d.id)
				}
			}
			if len(h.Evidence) != 2 || len(h.Evidence[0].Resources) == 0 || len(h.Evidence[1].Resources) == 0 {
				t.Fatalf("round %d: bridge %s evidence = %+v", round, h.ConceptB, h.Evidence)
			}
			if h.Evidence[0].Resources[0] == h.Evidence[1].Resources[0] {
				t.Errorf("round %d: bridge %s hop leads equal", round, h.ConceptB)
			}
			if h.Confidence < 0 || h.Confidence > 1 || h.Confidence > prev {
				t.Errorf("round %d: confidence %v after %v", round, h.Confidence, prev)
			}
			prev = h.Confidence
		}
		if len(res.Hypotheses) > 0 && res.Hypotheses[0].Confidence != 1 {
			t.Errorf("round %d: top confidence = %v, want 1", round, res.Hypotheses[0].Confidence)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for name, mutate := range map[string]func(*Config){
		"default limit": func(c *Config) { c.DefaultLimit = 0 },
		"max limit":     func(c *Config) { c.MaxLimit = 1 },
		"evidence":      func(c *Config) { c.MaxEvidencePerHop = 0 },
		"hops":          func(c *Config) { c.ProximityHops = -1 },
		"ttl":           func(c *Config) { c.CacheTTL = -time.Second },
	} {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
