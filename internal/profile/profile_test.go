// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package profile

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/graph"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockProvider struct {
	mu    sync.Mutex
	users map[string][]Interaction
	err   error
	calls atomic.Int32
}

func (p *mockProvider) GetInteractions(_ context.Context, userID string, since time.Time) ([]Interaction, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	all, ok := p.users[userID]
	if !ok {
		return nil, apperr.NotFound("user", userID)
	}
	var out []Interaction
	for _, in := range all {
		if !in.Timestamp.Before(since) {
			out = append(out, in)
		}
	}
	return out, nil
}

type mockFeatures map[string]struct {
	content  []float32
	subjects []string
}

func (f mockFeatures) Features(id string) ([]float32, []string, bool) {
	v, ok := f[id]
	return v.content, v.subjects, ok
}

type mockSettings struct {
	mu   sync.Mutex
	data map[string]Settings
}

func (s *mockSettings) GetSettings(_ context.Context, userID string) (*Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[userID]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (s *mockSettings) PutSettings(_ context.Context, userID string, v *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = *v
	return nil
}

func testFeatures() mockFeatures {
	return mockFeatures{
		"r1": {content: []float32{2, 0}, subjects: []string{"biology", "genetics"}},
		"r2": {content: []float32{0, 3}, subjects: []string{"genetics"}},
		"r3": {subjects: []string{"history"}},
	}
}

func newTestManager(provider InteractionProvider, settings SettingsStore) *Manager {
	m := NewManager(provider, testFeatures(), settings, DefaultConfig(), zerolog.Nop())
	m.now = func() time.Time { return testNow }
	return m
}

func TestGetComputesProfile(t *testing.T) {
	provider := &mockProvider{users: map[string][]Interaction{
		"alice": {
			{ResourceID: "r1", Type: InteractionCite, Timestamp: testNow},
			{ResourceID: "r2", Type: InteractionCite, Timestamp: testNow.Add(-30 * 24 * time.Hour)},
		},
	}}
	m := newTestManager(provider, nil)

	p, err := m.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.InteractionCount != 2 {
		t.Errorf("InteractionCount = %d, want 2", p.InteractionCount)
	}
	if len(p.Recent) != 2 || p.Recent[0].ID != "r1" {
		t.Fatalf("Recent = %+v, want r1 first", p.Recent)
	}
	// One half-life old.
	if got := p.Recent[1].Weight; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("r2 weight = %v, want 0.5", got)
	}

	// Interest = (1*[1,0] + 0.5*[0,1]) normalized.
	want := []float64{1 / math.Sqrt(1.25), 0.5 / math.Sqrt(1.25)}
	for i := range want {
		if math.Abs(float64(p.InterestVector[i])-want[i]) > 1e-6 {
			t.Errorf("InterestVector = %v, want %v", p.InterestVector, want)
			break
		}
	}

	var sum float64
	for _, w := range p.SubjectAffinities {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("affinities sum to %v, want 1", sum)
	}
	if p.SubjectAffinities["genetics"] <= p.SubjectAffinities["biology"] {
		t.Errorf("genetics affinity %v should exceed biology %v", p.SubjectAffinities["genetics"], p.SubjectAffinities["biology"])
	}
	if !p.Interacted("r2") || p.Interacted("r3") {
		t.Error("Interacted does not match the interaction log")
	}
	if p.Settings != DefaultSettings() {
		t.Errorf("Settings = %+v, want defaults", p.Settings)
	}
}

func TestGetCachesProfile(t *testing.T) {
	provider := &mockProvider{users: map[string][]Interaction{
		"alice": {{ResourceID: "r1", Type: InteractionRead, Timestamp: testNow}},
	}}
	m := newTestManager(provider, nil)

	for range 3 {
		if _, err := m.Get(context.Background(), "alice"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}

	m.Invalidate("alice")
	if _, err := m.Get(context.Background(), "alice"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("provider called %d times after Invalidate, want 2", got)
	}
}

func TestGetErrors(t *testing.T) {
	m := newTestManager(&mockProvider{users: map[string][]Interaction{}}, nil)
	if _, err := m.Get(context.Background(), "nobody"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(context.Background(), ""); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty user err = %v, want ErrInvalidArgument", err)
	}

	down := newTestManager(&mockProvider{err: errors.New("connection refused")}, nil)
	if _, err := down.Get(context.Background(), "alice"); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("provider failure err = %v, want ErrUnavailable", err)
	}
}

func TestTrackInteractionCreatesProfile(t *testing.T) {
	m := newTestManager(&mockProvider{users: map[string][]Interaction{}}, nil)

	if err := m.TrackInteraction(context.Background(), "bob", Interaction{ResourceID: "r2", Type: InteractionBookmark}); err != nil {
		t.Fatalf("TrackInteraction: %v", err)
	}
	p, err := m.Get(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(p.Recent) != 1 || p.Recent[0].ID != "r2" {
		t.Fatalf("Recent = %+v", p.Recent)
	}
	if math.Abs(p.Recent[0].Weight-0.8) > 1e-9 {
		t.Errorf("weight = %v, want bookmark strength 0.8", p.Recent[0].Weight)
	}
}

func TestTrackInteractionRecomputesAfterThreshold(t *testing.T) {
	provider := &mockProvider{users: map[string][]Interaction{
		"alice": {{ResourceID: "r1", Type: InteractionRead, Timestamp: testNow}},
	}}
	m := newTestManager(provider, nil)

	first, err := m.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	for i := range m.cfg.RecomputeAfter - 1 {
		in := Interaction{ResourceID: "r2", Type: InteractionView, Timestamp: testNow.Add(-time.Duration(i) * time.Minute)}
		if err := m.TrackInteraction(context.Background(), "alice", in); err != nil {
			t.Fatalf("TrackInteraction: %v", err)
		}
	}
	p, _ := m.Get(context.Background(), "alice")
	if p != first {
		t.Error("profile recomputed before the threshold")
	}

	if err := m.TrackInteraction(context.Background(), "alice", Interaction{ResourceID: "r3", Type: InteractionView}); err != nil {
		t.Fatalf("TrackInteraction: %v", err)
	}
	p, err = m.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p == first {
		t.Fatal("profile not recomputed after the threshold")
	}
	if p.InteractionCount != 1+m.cfg.RecomputeAfter {
		t.Errorf("InteractionCount = %d, want %d", p.InteractionCount, 1+m.cfg.RecomputeAfter)
	}
	if !p.Interacted("r3") {
		t.Error("tracked interaction missing from recomputed profile")
	}
}

func TestTrackedInteractionsDeduplicatedOnceIngested(t *testing.T) {
	provider := &mockProvider{users: map[string][]Interaction{"alice": nil}}
	m := newTestManager(provider, nil)

	in := Interaction{ResourceID: "r1", Type: InteractionRead, Timestamp: testNow.Add(-time.Hour)}
	if err := m.TrackInteraction(context.Background(), "alice", in); err != nil {
		t.Fatalf("TrackInteraction: %v", err)
	}
	provider.mu.Lock()
	provider.users["alice"] = []Interaction{in}
	provider.mu.Unlock()

	p, err := m.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.InteractionCount != 1 {
		t.Errorf("InteractionCount = %d, want 1", p.InteractionCount)
	}
	m.mu.Lock()
	_, pending := m.pending["alice"]
	m.mu.Unlock()
	if pending {
		t.Error("ingested interaction still pending")
	}
}

func TestTrackInteractionValidation(t *testing.T) {
	m := newTestManager(nil, nil)
	tests := []struct {
		name string
		user string
		in   Interaction
	}{
		{"missing user", "", Interaction{ResourceID: "r1", Type: InteractionView}},
		{"missing resource", "u", Interaction{Type: InteractionView}},
		{"unknown type", "u", Interaction{ResourceID: "r1", Type: "like"}},
		{"strength above one", "u", Interaction{ResourceID: "r1", Type: InteractionView, Strength: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.TrackInteraction(context.Background(), tt.user, tt.in); !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	store := &mockSettings{data: make(map[string]Settings)}
	provider := &mockProvider{users: map[string][]Interaction{
		"alice": {{ResourceID: "r1", Type: InteractionRead, Timestamp: testNow.Add(-2 * 24 * time.Hour)}},
	}}
	m := newTestManager(provider, store)

	before, err := m.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	s := Settings{DiversityWeight: 0.8, NoveltyWeight: 0.2, RecencyHalfLifeDays: 1, Weights: &FusionWeights{Content: 1}}
	if err := m.UpdateSettings(context.Background(), "alice", s); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	after, err := m.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after == before {
		t.Fatal("profile not recomputed after settings change")
	}
	if after.Settings.DiversityWeight != 0.8 || after.Settings.Weights == nil {
		t.Errorf("Settings = %+v", after.Settings)
	}
	// Two days at a one day half-life.
	if got, want := after.Recent[0].Weight, 0.6*0.25; math.Abs(got-want) > 1e-9 {
		t.Errorf("weight = %v, want %v", got, want)
	}

	bad := s
	bad.RecencyHalfLifeDays = 0
	if err := m.UpdateSettings(context.Background(), "alice", bad); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("invalid settings err = %v", err)
	}
	if err := newTestManager(nil, nil).UpdateSettings(context.Background(), "alice", s); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("no store err = %v", err)
	}
}

func TestConcurrentGetSharesComputation(t *testing.T) {
	provider := &mockProvider{users: map[string][]Interaction{
		"alice": {{ResourceID: "r1", Type: InteractionRead, Timestamp: testNow}},
	}}
	m := newTestManager(provider, nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Get(context.Background(), "alice"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := provider.calls.Load(); got > 16 || got < 1 {
		t.Errorf("provider called %d times", got)
	}
}

func TestGraphFeatures(t *testing.T) {
	store := graph.NewStore(nil, zerolog.Nop())
	_, err := store.Update(context.Background(), func(tx *graph.Tx) error {
		_, _, err := tx.UpsertNode(&graph.Node{ID: "r1", ContentEmbedding: []float32{1, 2}, Subjects: []string{"x"}})
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	f := GraphFeatures{Store: store}
	content, subjects, ok := f.Features("r1")
	if !ok || len(content) != 2 || len(subjects) != 1 {
		t.Errorf("Features(r1) = %v, %v, %v", content, subjects, ok)
	}
	if _, _, ok := f.Features("missing"); ok {
		t.Error("Features(missing) reported ok")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for name, mutate := range map[string]func(*Config){
		"ttl":       func(c *Config) { c.CacheTTL = 0 },
		"size":      func(c *Config) { c.CacheSize = 0 },
		"recompute": func(c *Config) { c.RecomputeAfter = 0 },
		"recent":    func(c *Config) { c.MaxRecent = 0 },
		"pending":   func(c *Config) { c.MaxPending = 0 },
		"lookback":  func(c *Config) { c.Lookback = 0 },
		"defaults":  func(c *Config) { c.Defaults.DiversityWeight = 2 },
	} {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFusionWeightsValidate(t *testing.T) {
	if err := (&FusionWeights{}).Validate(); err == nil {
		t.Error("all-zero weights accepted")
	}
	if err := (&FusionWeights{Content: -0.1, Graph: 1}).Validate(); err == nil {
		t.Error("negative weight accepted")
	}
	if err := (&FusionWeights{Content: 0.4, Graph: 0.35, Collaborative: 0.25}).Validate(); err != nil {
		t.Errorf("default weights rejected: %v", err)
	}
}
