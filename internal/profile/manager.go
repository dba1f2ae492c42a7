// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package profile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/floats"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// Config controls profile caching and computation.
type Config struct {
	// CacheTTL is how long a computed profile is served before recomputation.
	CacheTTL time.Duration `koanf:"cache_ttl"`
	// CacheSize bounds the number of cached profiles.
	CacheSize int `koanf:"cache_size"`
	// RecomputeAfter forces recomputation after this many tracked interactions.
	RecomputeAfter int `koanf:"recompute_after"`
	// MaxRecent caps the resources listed in Profile.Recent.
	MaxRecent int `koanf:"max_recent"`
	// MaxPending caps the per-user log of tracked interactions not yet
	// returned by the interaction provider. Oldest entries are dropped.
	MaxPending int `koanf:"max_pending"`
	// Lookback is how far back interactions are requested from the provider.
	Lookback time.Duration `koanf:"lookback"`
	// Defaults apply to users without stored settings.
	Defaults Settings `koanf:"defaults"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       5 * time.Minute,
		CacheSize:      10000,
		RecomputeAfter: 10,
		MaxRecent:      200,
		MaxPending:     1000,
		Lookback:       365 * 24 * time.Hour,
		Defaults:       DefaultSettings(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.RecomputeAfter <= 0 {
		return fmt.Errorf("recompute_after must be positive, got %d", c.RecomputeAfter)
	}
	if c.MaxRecent <= 0 {
		return fmt.Errorf("max_recent must be positive, got %d", c.MaxRecent)
	}
	if c.MaxPending <= 0 {
		return fmt.Errorf("max_pending must be positive, got %d", c.MaxPending)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive, got %s", c.Lookback)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

// pendingLog holds interactions tracked in-process for one user.
type pendingLog struct {
	entries      []Interaction
	sinceCompute int
}

// Manager computes and caches user interest profiles.
//
// Profiles are cached for CacheTTL. Tracked interactions are appended to a
// per-user pending log and folded into the next computation; after
// RecomputeAfter tracked interactions the cached profile is dropped.
// Concurrent misses for the same user share one computation.
type Manager struct {
	provider InteractionProvider
	features Features
	settings SettingsStore
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	cache *expirable.LRU[string, *Profile]
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]*pendingLog
}

// NewManager creates a profile manager. provider and settings may be nil,
// in which case only tracked interactions and default settings are used.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewManager(provider InteractionProvider, features Features, settings SettingsStore, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		provider: provider,
		features: features,
		settings: settings,
		cfg:      cfg,
		logger:   logger.With().Str("component", "profile").Logger(),
		now:      time.Now,
		cache:    expirable.NewLRU[string, *Profile](cfg.CacheSize, nil, cfg.CacheTTL),
		pending:  make(map[string]*pendingLog),
	}
}

// Get returns the profile of userID, computing it on a cache miss.
// The returned profile is shared and must not be modified.
func (m *Manager) Get(ctx context.Context, userID string) (*Profile, error) {
	start := time.Now()
	p, err := m.get(ctx, userID)
	metrics.RecordOperation("profile", time.Since(start), err)
	return p, err
}

func (m *Manager) get(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, apperr.Invalid("user_id is required")
	}
	if p, ok := m.cache.Get(userID); ok && !m.stale(userID) {
		metrics.RecordProfileCache(true)
		return p, nil
	}
	metrics.RecordProfileCache(false)

	v, err, _ := m.group.Do(userID, func() (any, error) {
		return m.compute(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	p, ok := v.(*Profile)
	if !ok {
		return nil, fmt.Errorf("unexpected type from profile computation: %T", v)
	}
	return p, nil
}

func (m *Manager) stale(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.pending[userID]
	return log != nil && log.sinceCompute >= m.cfg.RecomputeAfter
}

// TrackInteraction appends an interaction to the user's pending log.
// A zero timestamp is set to now.
func (m *Manager) TrackInteraction(_ context.Context, userID string, in Interaction) error {
	if userID == "" {
		return apperr.Invalid("user_id is required")
	}
	if in.ResourceID == "" {
		return apperr.Invalid("resource_id is required")
	}
	if !in.Type.Valid() {
		return apperr.Invalid("unknown interaction type %q", in.Type)
	}
	if in.Strength < 0 || in.Strength > 1 || math.IsNaN(in.Strength) {
		return apperr.Invalid("strength must be in [0, 1], got %v", in.Strength)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = m.now()
	}

	m.mu.Lock()
	log, ok := m.pending[userID]
	if !ok {
		log = &pendingLog{}
		m.pending[userID] = log
	}
	log.entries = append(log.entries, in)
	if over := len(log.entries) - m.cfg.MaxPending; over > 0 {
		log.entries = slices.Delete(log.entries, 0, over)
	}
	log.sinceCompute++
	recompute := log.sinceCompute >= m.cfg.RecomputeAfter
	m.mu.Unlock()

	if recompute {
		m.cache.Remove(userID)
	}
	m.logger.Debug().
		Str("user_id", userID).
		Str("resource_id", in.ResourceID).
		Str("type", string(in.Type)).
		Bool("recompute", recompute).
		Msg("interaction tracked")
	return nil
}

// Settings returns the stored settings of userID, or the defaults.
func (m *Manager) Settings(ctx context.Context, userID string) (Settings, error) {
	if userID == "" {
		return Settings{}, apperr.Invalid("user_id is required")
	}
	return m.loadSettings(ctx, userID), nil
}

// UpdateSettings validates and stores the settings of userID and drops the
// cached profile.
func (m *Manager) UpdateSettings(ctx context.Context, userID string, s Settings) error {
	if userID == "" {
		return apperr.Invalid("user_id is required")
	}
	if err := s.Validate(); err != nil {
		return apperr.Invalid("%v", err)
	}
	if m.settings == nil {
		return apperr.Unavailable("update settings", errors.New("no settings store configured"))
	}
	if err := m.settings.PutSettings(ctx, userID, &s); err != nil {
		return apperr.Unavailable("update settings", err)
	}
	m.cache.Remove(userID)
	return nil
}

// Invalidate drops the cached profile of userID.
func (m *Manager) Invalidate(userID string) {
	m.cache.Remove(userID)
}

// Purge drops every cached profile.
func (m *Manager) Purge() {
	m.cache.Purge()
}

func (m *Manager) loadSettings(ctx context.Context, userID string) Settings {
	if m.settings == nil {
		return m.cfg.Defaults
	}
	s, ok, err := m.settings.GetSettings(ctx, userID)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load user settings, using defaults")
		return m.cfg.Defaults
	}
	if !ok {
		return m.cfg.Defaults
	}
	return *s
}

func (m *Manager) compute(ctx context.Context, userID string) (*Profile, error) {
	now := m.now()

	m.mu.Lock()
	var tracked []Interaction
	consumed := 0
	if log := m.pending[userID]; log != nil {
		tracked = slices.Clone(log.entries)
		consumed = log.sinceCompute
	}
	m.mu.Unlock()

	var history []Interaction
	if m.provider != nil {
		var err error
		history, err = m.provider.GetInteractions(ctx, userID, now.Add(-m.cfg.Lookback))
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrNotFound):
			if len(tracked) == 0 {
				return nil, apperr.NotFound("user", userID)
			}
		case ctx.Err() != nil:
			return nil, apperr.FromContext(ctx.Err())
		default:
			return nil, apperr.Unavailable("interaction provider", err)
		}
	} else if len(tracked) == 0 {
		return nil, apperr.NotFound("user", userID)
	}

	merged, ingested := mergeInteractions(history, tracked)
	p := m.build(userID, merged, m.loadSettings(ctx, userID), now)
	m.cache.Add(userID, p)

	m.mu.Lock()
	if log := m.pending[userID]; log != nil {
		log.entries = slices.DeleteFunc(log.entries, func(in Interaction) bool {
			_, done := ingested[in.key()]
			return done
		})
		log.sinceCompute = max(0, log.sinceCompute-consumed)
		if len(log.entries) == 0 && log.sinceCompute == 0 {
			delete(m.pending, userID)
		}
	}
	m.mu.Unlock()

	m.logger.Debug().
		Str("user_id", userID).
		Int("interactions", p.InteractionCount).
		Int("resources", len(p.Recent)).
		Bool("has_interest_vector", p.InterestVector != nil).
		Msg("profile computed")
	return p, nil
}

// mergeInteractions appends the tracked interactions the provider did not
// return and reports the keys of those it did.
func mergeInteractions(history, tracked []Interaction) ([]Interaction, map[string]struct{}) {
	known := make(map[string]struct{}, len(history))
	for i := range history {
		known[history[i].key()] = struct{}{}
	}
	merged := slices.Clone(history)
	ingested := make(map[string]struct{})
	for _, in := range tracked {
		k := in.key()
		if _, ok := known[k]; ok {
			ingested[k] = struct{}{}
			continue
		}
		merged = append(merged, in)
	}
	return merged, ingested
}

// build reduces interactions to a profile. Each interaction contributes its
// strength halved every RecencyHalfLifeDays.
func (m *Manager) build(userID string, interactions []Interaction, settings Settings, now time.Time) *Profile {
	weights := make(map[string]float64)
	for i := range interactions {
		in := &interactions[i]
		if !in.Type.Valid() && in.Strength <= 0 {
			continue
		}
		ageDays := max(0, now.Sub(in.Timestamp).Hours()/24)
		weights[in.ResourceID] += in.strength() * math.Exp2(-ageDays/settings.RecencyHalfLifeDays)
	}

	recent := make([]WeightedResource, 0, len(weights))
	seen := make(map[string]struct{}, len(weights))
	for id, w := range weights {
		recent = append(recent, WeightedResource{ID: id, Weight: w})
		seen[id] = struct{}{}
	}
	slices.SortFunc(recent, func(a, b WeightedResource) int {
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var interest []float64
	affinities := make(map[string]float64)
	for _, r := range recent {
		content, subjects, ok := m.features.Features(r.ID)
		if !ok {
			continue
		}
		for _, s := range subjects {
			affinities[s] += r.Weight
		}
		if len(content) == 0 {
			continue
		}
		if interest == nil {
			interest = make([]float64, len(content))
		}
		if len(content) != len(interest) {
			m.logger.Warn().Str("user_id", userID).Str("resource_id", r.ID).
				Int("dim", len(content)).Int("expected", len(interest)).
				Msg("skipping resource with mismatched content embedding")
			continue
		}
		v := toFloat64(content)
		if n := floats.Norm(v, 2); n > 0 {
			floats.AddScaled(interest, r.Weight/n, v)
		}
	}

	var total float64
	for _, w := range affinities {
		total += w
	}
	if total > 0 {
		for s := range affinities {
			affinities[s] /= total
		}
	}

	if len(recent) > m.cfg.MaxRecent {
		recent = recent[:m.cfg.MaxRecent]
	}
	return &Profile{
		UserID:            userID,
		InterestVector:    unit(interest),
		Recent:            recent,
		SubjectAffinities: affinities,
		Settings:          settings,
		ComputedAt:        now,
		InteractionCount:  len(interactions),
		seen:              seen,
	}
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// unit returns v scaled to unit length as float32, nil for a zero vector.
func unit(v []float64) []float32 {
	n := floats.Norm(v, 2)
	if n == 0 || math.IsNaN(n) {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x / n)
	}
	return out
}

// GraphFeatures reads resource features from the graph store.
type GraphFeatures struct {
	Store *graph.Store
}

// Features implements Features.
func (g GraphFeatures) Features(id string) ([]float32, []string, bool) {
	n, ok := g.Store.Snapshot().Node(id)
	if !ok {
		return nil, nil, false
	}
	return n.ContentEmbedding, n.Subjects, true
}
