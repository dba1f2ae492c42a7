// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package collab

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// ErrNotTrained is reported while no co-visitation model has been trained.
var ErrNotTrained = errors.New("co-visitation model not trained")

// Interaction is one user-resource event used for training.
type Interaction struct {
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// InteractionFeed lists interactions of all users in bulk.
type InteractionFeed interface {
	ListInteractions(ctx context.Context, since time.Time) ([]Interaction, error)
}

// Config contains configuration for the co-visitation scorer.
type Config struct {
	// MinCoOccurrence is the minimum number of co-occurrences to store.
	MinCoOccurrence int `koanf:"min_co_occurrence"`

	// SessionWindow is the largest gap between consecutive interactions of
	// one session.
	SessionWindow time.Duration `koanf:"session_window"`

	// MaxPairs is the maximum number of co-visitation pairs to store.
	MaxPairs int `koanf:"max_pairs"`

	// Lookback bounds the interactions read from the feed.
	Lookback time.Duration `koanf:"lookback"`

	// TrainInterval is the time between scheduled training runs.
	TrainInterval time.Duration `koanf:"train_interval"`

	// TrainTimeout bounds a single training run.
	TrainTimeout time.Duration `koanf:"train_timeout"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MinCoOccurrence: 2,
		SessionWindow:   24 * time.Hour,
		MaxPairs:        100000,
		Lookback:        365 * 24 * time.Hour,
		TrainInterval:   time.Hour,
		TrainTimeout:    10 * time.Minute,
		Breaker:         DefaultBreakerConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MinCoOccurrence < 1 {
		return fmt.Errorf("min_co_occurrence must be positive, got %d", c.MinCoOccurrence)
	}
	if c.SessionWindow <= 0 {
		return fmt.Errorf("session_window must be positive, got %s", c.SessionWindow)
	}
	if c.MaxPairs < 1 {
		return fmt.Errorf("max_pairs must be positive, got %d", c.MaxPairs)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive, got %s", c.Lookback)
	}
	if c.TrainInterval <= 0 {
		return fmt.Errorf("train_interval must be positive, got %s", c.TrainInterval)
	}
	if c.TrainTimeout <= 0 {
		return fmt.Errorf("train_timeout must be positive, got %s", c.TrainTimeout)
	}
	return c.Breaker.Validate()
}

// coVisitModel is an immutable trained model.
type coVisitModel struct {
	// similarity is symmetric: resource_a -> resource_b -> score in (0, 1].
	similarity map[string]map[string]float64
	// history maps users to the resources they interacted with.
	history   map[string]map[string]struct{}
	version   uint64
	trainedAt time.Time
	pairs     int
}

// Stats describes the current model.
type Stats struct {
	Trained   bool      `json:"trained"`
	Version   uint64    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
	Pairs     int       `json:"pairs"`
	Users     int       `json:"users"`
}

// CoVisitScorer scores resources by how often they are used in the same
// session as the resources a user already used.
//
// The model stores a Jaccard-like similarity per resource pair:
//
//	sim(a, b) = sessions(a, b) / (sessions(a) + sessions(b) - sessions(a, b))
//
// A user's score for a resource combines the similarities to the user's
// history as 1 - prod(1 - sim), which stays in [0, 1].
//
// Training swaps in a new model atomically; scoring never blocks on it.
type CoVisitScorer struct {
	cfg    Config
	feed   InteractionFeed
	logger zerolog.Logger
	now    func() time.Time

	model   atomic.Pointer[coVisitModel]
	trainMu sync.Mutex

	// observed holds interactions seen since the last training run.
	mu       sync.RWMutex
	observed map[string]map[string]struct{}
}

// NewCoVisitScorer creates an untrained scorer. feed may be nil, in which
// case the scorer is trained only through TrainFrom.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCoVisitScorer(feed InteractionFeed, cfg Config, logger zerolog.Logger) *CoVisitScorer {
	return &CoVisitScorer{
		cfg:      cfg,
		feed:     feed,
		logger:   logger.With().Str("component", "covisit").Logger(),
		now:      time.Now,
		observed: make(map[string]map[string]struct{}),
	}
}

// Train reads interactions within the lookback window from the feed and
// trains a new model.
func (c *CoVisitScorer) Train(ctx context.Context) error {
	if c.feed == nil {
		return fmt.Errorf("no interaction feed configured")
	}
	interactions, err := c.feed.ListInteractions(ctx, c.now().Add(-c.cfg.Lookback))
	if err != nil {
		return fmt.Errorf("list interactions: %w", err)
	}
	return c.TrainFrom(ctx, interactions)
}

// TrainFrom builds the co-visitation model from interactions and publishes it.
func (c *CoVisitScorer) TrainFrom(ctx context.Context, interactions []Interaction) error {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()

	start := time.Now()
	model, err := c.build(ctx, interactions)
	if err != nil {
		return apperr.FromContext(err)
	}
	if prev := c.model.Load(); prev != nil {
		model.version = prev.version + 1
	} else {
		model.version = 1
	}
	c.model.Store(model)
	c.pruneObserved(model)

	metrics.RecordOperation("covisit_train", time.Since(start), nil)
	c.logger.Info().
		Int("interactions", len(interactions)).
		Int("users", len(model.history)).
		Int("pairs", model.pairs).
		Uint64("version", model.version).
		Dur("duration", time.Since(start)).
		Msg("co-visitation model trained")
	return nil
}

// timedResource associates a resource with a timestamp.
type timedResource struct {
	id        string
	timestamp time.Time
}

func (c *CoVisitScorer) build(ctx context.Context, interactions []Interaction) (*coVisitModel, error) {
	model := &coVisitModel{
		similarity: make(map[string]map[string]float64),
		history:    make(map[string]map[string]struct{}),
		trainedAt:  c.now(),
	}

	// Group interactions by user
	byUser := make(map[string][]timedResource)
	for _, in := range interactions {
		if in.UserID == "" || in.ResourceID == "" {
			continue
		}
		byUser[in.UserID] = append(byUser[in.UserID], timedResource{id: in.ResourceID, timestamp: in.Timestamp})
		if model.history[in.UserID] == nil {
			model.history[in.UserID] = make(map[string]struct{})
		}
		model.history[in.UserID][in.ResourceID] = struct{}{}
	}

	sessionCounts := make(map[string]int)
	pairCounts := make(map[[2]string]int)
	for _, items := range byUser {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slices.SortStableFunc(items, func(a, b timedResource) int {
			return a.timestamp.Compare(b.timestamp)
		})

		for _, session := range groupIntoSessions(items, c.cfg.SessionWindow) {
			for _, id := range session {
				sessionCounts[id]++
			}
			for i := 0; i < len(session); i++ {
				for j := i + 1; j < len(session); j++ {
					pairCounts[orderedPair(session[i], session[j])]++
				}
			}
		}
	}

	type pair struct {
		key   [2]string
		count int
	}
	pairs := make([]pair, 0, len(pairCounts))
	for key, count := range pairCounts {
		if count >= c.cfg.MinCoOccurrence {
			pairs = append(pairs, pair{key, count})
		}
	}

	// Sort by count descending and take top MaxPairs
	slices.SortFunc(pairs, func(a, b pair) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.key[0], b.key[0]); c != 0 {
			return c
		}
		return cmp.Compare(a.key[1], b.key[1])
	})
	if len(pairs) > c.cfg.MaxPairs {
		pairs = pairs[:c.cfg.MaxPairs]
	}

	for _, p := range pairs {
		a, b := p.key[0], p.key[1]
		union := sessionCounts[a] + sessionCounts[b] - p.count
		if union <= 0 {
			continue
		}
		sim := float64(p.count) / float64(union)
		if model.similarity[a] == nil {
			model.similarity[a] = make(map[string]float64)
		}
		if model.similarity[b] == nil {
			model.similarity[b] = make(map[string]float64)
		}
		model.similarity[a][b] = sim
		model.similarity[b][a] = sim
		model.pairs++
	}
	return model, nil
}

// groupIntoSessions splits time-ordered resources into sessions separated by
// gaps longer than window. Each session lists a resource once.
func groupIntoSessions(items []timedResource, window time.Duration) [][]string {
	if len(items) == 0 {
		return nil
	}

	var sessions [][]string
	current := []string{items[0].id}
	seen := map[string]struct{}{items[0].id: {}}
	last := items[0].timestamp

	for _, it := range items[1:] {
		if it.timestamp.Sub(last) > window {
			sessions = append(sessions, current)
			current = nil
			seen = make(map[string]struct{})
		}
		last = it.timestamp
		if _, dup := seen[it.id]; dup {
			continue
		}
		seen[it.id] = struct{}{}
		current = append(current, it.id)
	}
	return append(sessions, current)
}

func orderedPair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Observe records an interaction for scoring before the next training run.
func (c *CoVisitScorer) Observe(userID, resourceID string) {
	if userID == "" || resourceID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observed[userID] == nil {
		c.observed[userID] = make(map[string]struct{})
	}
	c.observed[userID][resourceID] = struct{}{}
}

// pruneObserved drops observations the new model already contains.
func (c *CoVisitScorer) pruneObserved(model *coVisitModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for user, ids := range c.observed {
		for id := range ids {
			if _, ok := model.history[user][id]; ok {
				delete(ids, id)
			}
		}
		if len(ids) == 0 {
			delete(c.observed, user)
		}
	}
}

// Forget removes a resource from the scorer's view until the next training run.
func (c *CoVisitScorer) Forget(resourceID string) {
	c.mu.Lock()
	for _, ids := range c.observed {
		delete(ids, resourceID)
	}
	c.mu.Unlock()

	c.trainMu.Lock()
	defer c.trainMu.Unlock()
	prev := c.model.Load()
	if prev == nil || prev.similarity[resourceID] == nil {
		return
	}
	next := &coVisitModel{
		similarity: make(map[string]map[string]float64, len(prev.similarity)),
		history:    prev.history,
		version:    prev.version,
		trainedAt:  prev.trainedAt,
		pairs:      prev.pairs - len(prev.similarity[resourceID]),
	}
	for id, sims := range prev.similarity {
		if id == resourceID {
			continue
		}
		if _, ok := sims[resourceID]; !ok {
			next.similarity[id] = sims
			continue
		}
		trimmed := make(map[string]float64, len(sims)-1)
		for other, s := range sims {
			if other != resourceID {
				trimmed[other] = s
			}
		}
		if len(trimmed) > 0 {
			next.similarity[id] = trimmed
		}
	}
	c.model.Store(next)
}

// Score returns the co-visitation score of resourceID for userID in [0, 1].
// Users without history score 0. Before the first training run it returns
// an error wrapping apperr.ErrUnavailable.
func (c *CoVisitScorer) Score(ctx context.Context, userID, resourceID string) (float64, error) {
	if err := apperr.CheckContext(ctx); err != nil {
		return 0, err
	}
	model := c.model.Load()
	if model == nil {
		return 0, apperr.Unavailable("covisit", ErrNotTrained)
	}
	sims := model.similarity[resourceID]
	if len(sims) == 0 {
		return 0, nil
	}

	miss := 1.0
	for id := range model.history[userID] {
		if s, ok := sims[id]; ok && id != resourceID {
			miss *= 1 - s
		}
	}

	c.mu.RLock()
	for id := range c.observed[userID] {
		if _, counted := model.history[userID][id]; counted || id == resourceID {
			continue
		}
		if s, ok := sims[id]; ok {
			miss *= 1 - s
		}
	}
	c.mu.RUnlock()

	return 1 - miss, nil
}

// Stats returns a description of the current model.
func (c *CoVisitScorer) Stats() Stats {
	model := c.model.Load()
	if model == nil {
		return Stats{}
	}
	return Stats{
		Trained:   true,
		Version:   model.version,
		TrainedAt: model.trainedAt,
		Pairs:     model.pairs,
		Users:     len(model.history),
	}
}
