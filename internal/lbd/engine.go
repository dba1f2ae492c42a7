// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package lbd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
	"github.com/tomtom215/scriptorium/internal/neighbor"
)

// hypothesisNamespace scopes hypothesis ids derived from their concepts.
var hypothesisNamespace = uuid.MustParse("6f1c5a0e-2b7d-4f5e-9a3c-1d2e3f4a5b6c")

// ProximityFinder computes k-hop paths against a snapshot.
type ProximityFinder interface {
	KHopSnapshot(ctx context.Context, snap *graph.Snapshot, id string, maxHops int, filter graph.EdgeTypeSet) ([]neighbor.HopResult, error)
}

// Config controls hypothesis generation.
type Config struct {
	// DefaultLimit applies when a query leaves Limit at 0.
	DefaultLimit int `koanf:"default_limit"`
	// MaxLimit caps the number of hypotheses a query may request.
	MaxLimit int `koanf:"max_limit"`
	// MaxEvidencePerHop caps the resources listed per evidence hop.
	MaxEvidencePerHop int `koanf:"max_evidence_per_hop"`
	// ProximityHops bounds the k-hop search between evidence lead resources.
	// Zero disables proximity.
	ProximityHops int `koanf:"proximity_hops"`
	// CacheTTL is how long results are cached. Zero disables caching.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:      10,
		MaxLimit:          100,
		MaxEvidencePerHop: 3,
		ProximityHops:     3,
		CacheTTL:          time.Hour,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("default_limit must be positive, got %d", c.DefaultLimit)
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("max_limit must be at least default_limit (%d), got %d", c.DefaultLimit, c.MaxLimit)
	}
	if c.MaxEvidencePerHop <= 0 {
		return fmt.Errorf("max_evidence_per_hop must be positive, got %d", c.MaxEvidencePerHop)
	}
	if c.ProximityHops < 0 {
		return fmt.Errorf("proximity_hops must be non-negative, got %d", c.ProximityHops)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative, got %s", c.CacheTTL)
	}
	return nil
}

// Engine generates literature-based discovery hypotheses from subject tags.
type Engine struct {
	graph     *graph.Store
	proximity ProximityFinder
	cache     Cache
	cfg       Config
	logger    zerolog.Logger
}

// NewEngine creates an engine. proximity and cache may be nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(g *graph.Store, proximity ProximityFinder, cache Cache, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		graph:     g,
		proximity: proximity,
		cache:     cache,
		cfg:       cfg,
		logger:    logger.With().Str("component", "lbd").Logger(),
	}
}

// Discover runs open discovery: it finds bridges B such that A co-occurs with
// B in one resource and B with C in another, never in the same resource.
// No bridge yields an empty result. On cancellation the hypotheses scored so
// far are returned with Partial set.
func (e *Engine) Discover(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	a, c := graph.NormalizeSubject(q.ConceptA), graph.NormalizeSubject(q.ConceptC)
	limit, err := e.checkQuery(a, c, "concept_c", q.TimeRange, q.Limit)
	if err != nil {
		metrics.RecordOperation("discover", time.Since(start), err)
		return nil, err
	}

	res, err := e.run(ctx, runSpec{
		kind:  "open",
		a:     a,
		fixed: c,
		tr:    q.TimeRange,
		limit: limit,
		candidates: func(idx *subjectIndex) []string {
			return idx.coSubjects(idx.tagged(a), a, c)
		},
		triple: func(candidate string) (string, string, string) { return a, candidate, c },
	})
	metrics.RecordOperation("discover", time.Since(start), err)
	return res, err
}

// DiscoverClosed runs closed discovery: A and the bridge B are fixed and the
// targets C are enumerated with the same rules.
func (e *Engine) DiscoverClosed(ctx context.Context, q ClosedQuery) (*Result, error) {
	start := time.Now()
	a, b := graph.NormalizeSubject(q.ConceptA), graph.NormalizeSubject(q.ConceptB)
	limit, err := e.checkQuery(a, b, "concept_b", q.TimeRange, q.Limit)
	if err != nil {
		metrics.RecordOperation("discover_closed", time.Since(start), err)
		return nil, err
	}

	res, err := e.run(ctx, runSpec{
		kind:  "closed",
		a:     a,
		fixed: b,
		tr:    q.TimeRange,
		limit: limit,
		candidates: func(idx *subjectIndex) []string {
			if len(idx.taggedBoth(a, b)) == 0 {
				return nil
			}
			return idx.coSubjects(idx.tagged(b), a, b)
		},
		triple: func(candidate string) (string, string, string) { return a, b, candidate },
	})
	metrics.RecordOperation("discover_closed", time.Since(start), err)
	return res, err
}

// ValidateTimeSliced predicts bridges from resources published before cutoff
// and reports whether A and C were directly co-tagged from cutoff on.
func (e *Engine) ValidateTimeSliced(ctx context.Context, conceptA, conceptC string, cutoff, limit int) (*TimeSlicedResult, error) {
	if cutoff <= 1 {
		return nil, apperr.Invalid("cutoff year must be greater than 1, got %d", cutoff)
	}
	res, err := e.Discover(ctx, Query{
		ConceptA:  conceptA,
		ConceptC:  conceptC,
		TimeRange: &TimeRange{To: cutoff - 1},
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	a, c := graph.NormalizeSubject(conceptA), graph.NormalizeSubject(conceptC)
	out := &TimeSlicedResult{Cutoff: cutoff, Predicted: res.Hypotheses, Partial: res.Partial}
	bridges := make(map[string]bool, len(res.Hypotheses))
	for _, h := range res.Hypotheses {
		bridges[h.ConceptB] = false
	}

	idx := buildSubjectIndex(e.graph.Snapshot(), &TimeRange{From: cutoff})
	for _, r := range idx.taggedBoth(a, c) {
		entry := idx.resources[r]
		out.Confirmed = true
		if out.FirstConfirmedYear == 0 || entry.year < out.FirstConfirmedYear {
			out.FirstConfirmedYear = entry.year
		}
		out.ConfirmingResources = append(out.ConfirmingResources, entry.id)
		for _, s := range entry.subjects {
			if _, ok := bridges[s]; ok {
				bridges[s] = true
			}
		}
	}
	slices.Sort(out.ConfirmingResources)
	for b, seen := range bridges {
		if seen {
			out.ConfirmedBridges = append(out.ConfirmedBridges, b)
		}
	}
	slices.Sort(out.ConfirmedBridges)
	return out, nil
}

// ValidateHypothesis persists h as validated, without expiry.
func (e *Engine) ValidateHypothesis(ctx context.Context, h *Hypothesis) (*Hypothesis, error) {
	if h == nil {
		return nil, apperr.Invalid("hypothesis is required")
	}
	v := *h
	v.ConceptA = graph.NormalizeSubject(v.ConceptA)
	v.ConceptB = graph.NormalizeSubject(v.ConceptB)
	v.ConceptC = graph.NormalizeSubject(v.ConceptC)
	if v.ConceptA == "" || v.ConceptB == "" || v.ConceptC == "" {
		return nil, apperr.Invalid("hypothesis concepts are required")
	}
	if len(v.Evidence) != 2 {
		return nil, apperr.Invalid("hypothesis must have two evidence hops, got %d", len(v.Evidence))
	}
	for i, hop := range v.Evidence {
		if len(hop.Resources) == 0 {
			return nil, apperr.Invalid("evidence hop %d has no resources", i+1)
		}
	}
	if e.cache == nil {
		return nil, apperr.Unavailable("validate hypothesis", errors.New("no hypothesis store configured"))
	}

	v.ID = hypothesisID(v.ConceptA, v.ConceptB, v.ConceptC)
	now := time.Now().UTC()
	v.ValidatedAt = &now
	if err := e.cache.SaveValidated(ctx, &v); err != nil {
		return nil, apperr.Unavailable("validate hypothesis", err)
	}
	e.logger.Info().Str("hypothesis_id", v.ID).Str("a", v.ConceptA).Str("b", v.ConceptB).Str("c", v.ConceptC).Msg("hypothesis validated")
	return &v, nil
}

// GetValidated returns a validated hypothesis by id.
func (e *Engine) GetValidated(ctx context.Context, id string) (*Hypothesis, error) {
	if e.cache == nil {
		return nil, apperr.NotFound("hypothesis", id)
	}
	h, ok, err := e.cache.GetValidated(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get hypothesis", err)
	}
	if !ok {
		return nil, apperr.NotFound("hypothesis", id)
	}
	return h, nil
}

func (e *Engine) checkQuery(a, other, otherName string, tr *TimeRange, limit int) (int, error) {
	if a == "" {
		return 0, apperr.Invalid("concept_a is required")
	}
	if other == "" {
		return 0, apperr.Invalid("%s is required", otherName)
	}
	if a == other {
		return 0, apperr.Invalid("concept_a and %s must differ", otherName)
	}
	if err := tr.validate(); err != nil {
		return 0, err
	}
	switch {
	case limit < 0:
		return 0, apperr.Invalid("limit must be non-negative, got %d", limit)
	case limit == 0:
		return e.cfg.DefaultLimit, nil
	case limit > e.cfg.MaxLimit:
		return 0, apperr.Invalid("limit must be at most %d, got %d", e.cfg.MaxLimit, limit)
	}
	return limit, nil
}

// runSpec describes one discovery variant.
type runSpec struct {
	kind       string
	a, fixed   string
	tr         *TimeRange
	limit      int
	candidates func(*subjectIndex) []string
	triple     func(candidate string) (a, b, c string)
}

func (e *Engine) cacheKey(s *runSpec, version uint64) string {
	from, to := 0, 0
	if s.tr != nil {
		from, to = s.tr.From, s.tr.To
	}
	return fmt.Sprintf("%s/%s/%s/%d-%d/%d/g%d", s.kind, s.a, s.fixed, from, to, s.limit, version)
}

func (e *Engine) run(ctx context.Context, s runSpec) (*Result, error) {
	snap := e.graph.Snapshot()
	key := e.cacheKey(&s, snap.Version())
	if cached := e.cached(ctx, key); cached != nil {
		return cached, nil
	}

	idx := buildSubjectIndex(snap, s.tr)
	candidates := s.candidates(idx)
	slices.Sort(candidates)

	res := &Result{GraphVersion: snap.Version(), GeneratedAt: time.Now().UTC()}
	scored := make([]Hypothesis, 0, len(candidates))
	for i, cand := range candidates {
		if i%64 == 0 && ctx.Err() != nil {
			res.Partial = true
			break
		}
		a, b, c := s.triple(cand)
		if h, ok := e.score(idx, a, b, c); ok {
			scored = append(scored, h)
		}
	}
	res.Candidates = len(scored)

	normalize(scored)
	slices.SortFunc(scored, compareHypotheses)
	if len(scored) > s.limit {
		scored = scored[:s.limit]
	}

	if !res.Partial {
		if err := e.attachProximity(ctx, snap, scored); err != nil {
			res.Partial = true
		}
	}
	res.Hypotheses = scored

	metrics.RecordHypotheses(len(scored), res.Partial)
	e.logger.Debug().
		Str("kind", s.kind).
		Str("a", s.a).
		Str("fixed", s.fixed).
		Int("candidates", res.Candidates).
		Int("returned", len(scored)).
		Bool("partial", res.Partial).
		Msg("discovery finished")

	if !res.Partial && e.cache != nil && e.cfg.CacheTTL > 0 {
		if err := e.cache.PutHypotheses(ctx, key, res, e.cfg.CacheTTL); err != nil {
			e.logger.Warn().Err(err).Str("key", key).Msg("failed to cache hypotheses")
		}
	}
	return res, nil
}

func (e *Engine) cached(ctx context.Context, key string) *Result {
	if e.cache == nil || e.cfg.CacheTTL <= 0 {
		return nil
	}
	res, ok, err := e.cache.GetHypotheses(ctx, key)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("hypothesis cache lookup failed")
		return nil
	}
	metrics.RecordHypothesisCache(ok)
	if !ok {
		return nil
	}
	res.Cached = true
	return res
}

// score builds the hypothesis for one (a, b, c) triple. It reports false
// when b co-occurs with both a and c in a single resource or a hop has no
// supporting resource.
func (e *Engine) score(idx *subjectIndex, a, b, c string) (Hypothesis, bool) {
	if idx.anyTaggedAll(a, b, c) {
		return Hypothesis{}, false
	}
	ab := idx.taggedBoth(a, b)
	bc := idx.taggedBoth(b, c)
	if len(ab) == 0 || len(bc) == 0 {
		return Hypothesis{}, false
	}
	direct := len(idx.taggedBoth(a, c))

	support := min(len(ab), len(bc))
	novelty := 1 / (1 + float64(direct))
	return Hypothesis{
		ID:         hypothesisID(a, b, c),
		ConceptA:   a,
		ConceptB:   b,
		ConceptC:   c,
		Support:    support,
		Novelty:    novelty,
		Confidence: float64(support) * novelty,
		Evidence: []Hop{
			{From: a, To: b, Resources: idx.evidence(ab, e.cfg.MaxEvidencePerHop), Count: len(ab)},
			{From: b, To: c, Resources: idx.evidence(bc, e.cfg.MaxEvidencePerHop), Count: len(bc)},
		},
	}, true
}

// attachProximity sets GraphProximity from the lead resource of the first
// hop to the lead of the second.
func (e *Engine) attachProximity(ctx context.Context, snap *graph.Snapshot, hs []Hypothesis) error {
	if e.proximity == nil || e.cfg.ProximityHops == 0 {
		return nil
	}
	reach := make(map[string]map[string]float64)
	for i := range hs {
		from, to := hs[i].Evidence[0].Resources[0], hs[i].Evidence[1].Resources[0]
		scores, ok := reach[from]
		if !ok {
			hops, err := e.proximity.KHopSnapshot(ctx, snap, from, e.cfg.ProximityHops, graph.AllEdges)
			if err != nil {
				if errors.Is(err, apperr.ErrCanceled) {
					return err
				}
				e.logger.Warn().Err(err).Str("resource", from).Msg("proximity lookup failed")
			}
			scores = make(map[string]float64, len(hops))
			for _, h := range hops {
				scores[h.ID] = h.PathScore
			}
			reach[from] = scores
		}
		hs[i].GraphProximity = scores[to]
	}
	return nil
}

// normalize divides confidences by the maximum so the best is 1.
func normalize(hs []Hypothesis) {
	best := 0.0
	for _, h := range hs {
		best = max(best, h.Confidence)
	}
	if best == 0 {
		return
	}
	for i := range hs {
		hs[i].Confidence /= best
	}
}

func compareHypotheses(x, y Hypothesis) int {
	if c := cmp.Compare(y.Confidence, x.Confidence); c != 0 {
		return c
	}
	if c := cmp.Compare(y.Support, x.Support); c != 0 {
		return c
	}
	if c := cmp.Compare(x.ConceptB, y.ConceptB); c != 0 {
		return c
	}
	return cmp.Compare(x.ConceptC, y.ConceptC)
}

func hypothesisID(a, b, c string) string {
	return uuid.NewSHA1(hypothesisNamespace, []byte(a+"\x00"+b+"\x00"+c)).String()
}
