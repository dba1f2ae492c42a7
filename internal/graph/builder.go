// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// MetadataProvider supplies resource metadata to the builder.
type MetadataProvider interface {
	GetResource(ctx context.Context, id string) (*Resource, error)
	GetCitations(ctx context.Context, id string) ([]string, error)
}

// ChangeNotifier is told which nodes a committed rebuild touched.
type ChangeNotifier interface {
	GraphChanged(ctx context.Context, ids []string) error
}

// BuilderConfig controls edge construction.
type BuilderConfig struct {
	// SubjectThreshold is the Jaccard similarity a subject_sim edge must exceed.
	SubjectThreshold float64 `koanf:"subject_threshold"`

	// TemporalWindowYears is the maximum year distance of a temporal edge.
	TemporalWindowYears int `koanf:"temporal_window_years"`

	// MaxEdgesPerType caps the edges a node owns per edge type.
	MaxEdgesPerType int `koanf:"max_edges_per_type"`

	// FetchConcurrency bounds concurrent metadata provider calls.
	FetchConcurrency int `koanf:"fetch_concurrency"`
}

// DefaultBuilderConfig returns the default builder configuration.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		SubjectThreshold:    0.3,
		TemporalWindowYears: 2,
		MaxEdgesPerType:     64,
		FetchConcurrency:    8,
	}
}

// Validate checks the builder configuration.
func (c *BuilderConfig) Validate() error {
	if c.SubjectThreshold < 0 || c.SubjectThreshold >= 1 {
		return fmt.Errorf("subject_threshold must be in [0,1), got %v", c.SubjectThreshold)
	}
	if c.TemporalWindowYears < 0 {
		return fmt.Errorf("temporal_window_years must be non-negative, got %d", c.TemporalWindowYears)
	}
	if c.MaxEdgesPerType <= 0 {
		return fmt.Errorf("max_edges_per_type must be positive, got %d", c.MaxEdgesPerType)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch_concurrency must be positive, got %d", c.FetchConcurrency)
	}
	return nil
}

// SkippedEdge records an edge type that was not recomputed for a resource.
type SkippedEdge struct {
	ID     string   `json:"id"`
	Type   EdgeType `json:"type"`
	Reason string   `json:"reason"`
}

// RebuildReport summarizes one rebuild.
type RebuildReport struct {
	Rebuilt      []string         `json:"rebuilt"`
	Created      []string         `json:"created,omitempty"`
	Skipped      []SkippedEdge    `json:"skipped,omitempty"`
	Failed       []apperr.Dropped `json:"failed,omitempty"`
	Touched      []string         `json:"touched,omitempty"`
	EdgesWritten int              `json:"edges_written"`
	Version      uint64           `json:"version"`
	Duration     time.Duration    `json:"duration"`
}

// Builder recomputes the edges of resources from their metadata.
type Builder struct {
	store    *Store
	provider MetadataProvider
	notifier ChangeNotifier
	cfg      BuilderConfig
	logger   zerolog.Logger
}

// NewBuilder creates a graph builder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBuilder(store *Store, provider MetadataProvider, cfg BuilderConfig, logger zerolog.Logger) *Builder {
	return &Builder{
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "graph-builder").Logger(),
	}
}

// SetNotifier registers the receiver of graph.changed notifications.
func (b *Builder) SetNotifier(n ChangeNotifier) {
	b.notifier = n
}

// fetched is the metadata collected for one target resource.
type fetched struct {
	node      *Node
	citations []string
	citeErr   error
}

// Rebuild recomputes the edges of all four types for ids, or for every node
// already in the graph when ids is empty. Resources whose metadata cannot be
// fetched, or whose content embedding has the wrong dimension, are reported
// and skipped; everything else is committed in one transaction. Undirected
// edges that untouched nodes own towards a rebuilt node are reweighted or
// dropped to match its new metadata.
func (b *Builder) Rebuild(ctx context.Context, ids []string) (*RebuildReport, error) {
	start := time.Now()
	if err := apperr.CheckContext(ctx); err != nil {
		return nil, err
	}

	base := b.store.Snapshot()
	ids = normalizeSet(ids, false)
	if len(ids) == 0 {
		ids = base.IDs()
	}
	report := &RebuildReport{Version: base.Version()}
	if len(ids) == 0 {
		return report, nil
	}

	targets, failed, err := b.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	targets, mismatched := checkDimensions(base.ContentDim(), targets)
	failed = append(failed, mismatched...)
	report.Failed = failed
	for _, f := range failed {
		b.logger.Warn().Str("resource", f.ID).Str("reason", f.Reason).Msg("skipping resource in rebuild")
	}
	if len(targets) == 0 {
		report.Duration = time.Since(start)
		metrics.RecordGraphRebuild(report.Duration, 0, len(failed))
		return report, nil
	}

	view := newBuildView(base, targets)
	plans, err := b.computeEdges(ctx, view, targets)
	if err != nil {
		return nil, err
	}

	rebuilding := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		rebuilding[t.node.ID] = struct{}{}
	}

	snap, err := b.store.Update(ctx, func(tx *Tx) error {
		report.Created, report.Rebuilt = report.Created[:0], report.Rebuilt[:0]
		report.Skipped, report.EdgesWritten = report.Skipped[:0], 0
		touched := make(map[string]struct{})
		for _, t := range targets {
			_, created, err := tx.UpsertNode(t.node)
			if err != nil {
				return err
			}
			if created {
				report.Created = append(report.Created, t.node.ID)
			}
		}
		for i, t := range targets {
			plan := plans[i]
			for _, et := range AllEdgeTypes() {
				if reason, skipped := plan.skipped[et]; skipped {
					report.Skipped = append(report.Skipped, SkippedEdge{ID: t.node.ID, Type: et, Reason: reason})
					continue
				}
				if err := tx.ReplaceEdges(t.node.ID, et, plan.edges[et]); err != nil {
					return fmt.Errorf("replace %s edges of %q: %w", et, t.node.ID, err)
				}
				report.EdgesWritten += len(plan.edges[et])
				if !et.Directed() {
					if err := b.reconcileMirrors(tx, t.node, et, rebuilding, touched); err != nil {
						return fmt.Errorf("reconcile %s edges towards %q: %w", et, t.node.ID, err)
					}
				}
			}
			report.Rebuilt = append(report.Rebuilt, t.node.ID)
		}
		report.Touched = slices.Sorted(maps.Keys(touched))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit rebuild: %w", err)
	}

	report.Version = snap.Version()
	report.Duration = time.Since(start)
	for _, s := range report.Skipped {
		metrics.RecordSkippedEdgeType(s.Type.String())
	}
	metrics.RecordGraphRebuild(report.Duration, len(report.Rebuilt), len(report.Failed))

	b.logger.Info().
		Int("rebuilt", len(report.Rebuilt)).
		Int("created", len(report.Created)).
		Int("skipped_edge_types", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Int("touched", len(report.Touched)).
		Int("edges_written", report.EdgesWritten).
		Uint64("version", report.Version).
		Dur("duration", report.Duration).
		Msg("graph rebuilt")

	if b.notifier != nil {
		changed := append(slices.Clone(report.Rebuilt), report.Touched...)
		if err := b.notifier.GraphChanged(ctx, changed); err != nil {
			b.logger.Warn().Err(err).Msg("failed to publish graph change")
		}
	}
	return report, nil
}

// checkDimensions drops targets whose content embedding disagrees with the
// graph dimension, or with the first embedded target when the graph has none.
func checkDimensions(dim int, targets []fetched) ([]fetched, []apperr.Dropped) {
	kept := make([]fetched, 0, len(targets))
	var failed []apperr.Dropped
	for _, t := range targets {
		switch d := len(t.node.ContentEmbedding); {
		case d == 0:
		case dim == 0:
			dim = d
		case d != dim:
			failed = append(failed, apperr.Dropped{
				ID:     t.node.ID,
				Reason: fmt.Sprintf("content embedding has dimension %d, expected %d", d, dim),
			})
			continue
		}
		kept = append(kept, t)
	}
	return kept, failed
}

// reconcileMirrors recomputes the edges of type et that nodes outside the
// rebuild own towards n, so both owners of an undirected link agree on it.
// Owners whose edge changed are added to touched.
func (b *Builder) reconcileMirrors(tx *Tx, n *Node, et EdgeType, rebuilding, touched map[string]struct{}) error {
	view := tx.View()
	idx, ok := view.Lookup(n.ID)
	if !ok {
		return nil
	}
	for _, l := range slices.Clone(view.adj[idx].in[et]) {
		owner := view.ExternalID(l.to)
		if _, ok := rebuilding[owner]; ok {
			continue
		}
		changed, err := tx.ReweightEdge(owner, n.ID, et, b.pairWeight(et, n, view.NodeAt(l.to)))
		if err != nil {
			return err
		}
		if changed {
			touched[owner] = struct{}{}
		}
	}
	return nil
}

// pairWeight is the weight of an undirected edge of type t between x and y,
// zero when the pair no longer qualifies.
func (b *Builder) pairWeight(t EdgeType, x, y *Node) float64 {
	if x == nil || y == nil {
		return 0
	}
	switch t {
	case EdgeCoauthor:
		return jaccard(x.Authors, y.Authors)
	case EdgeSubjectSim:
		if w := jaccard(x.Subjects, y.Subjects); w > b.cfg.SubjectThreshold {
			return w
		}
	case EdgeTemporal:
		if x.Year != 0 && y.Year != 0 {
			return temporalWeight(x.Year, y.Year, b.cfg.TemporalWindowYears)
		}
	}
	return 0
}

// fetch loads metadata and citations for ids with bounded concurrency.
// Only context cancellation aborts the fetch; provider errors are reported per id.
func (b *Builder) fetch(ctx context.Context, ids []string) ([]fetched, []apperr.Dropped, error) {
	results := make([]*fetched, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.FetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := b.provider.GetResource(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			if res == nil {
				errs[i] = apperr.NotFound("resource", id)
				return nil
			}
			node := nodeFromResource(res, time.Now())
			node.ID = id

			cites, citeErr := b.provider.GetCitations(gctx, id)
			if citeErr != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = &fetched{node: node, citations: cites, citeErr: citeErr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, apperr.FromContext(err)
	}

	var (
		targets []fetched
		failed  []apperr.Dropped
	)
	for i, id := range ids {
		if errs[i] != nil {
			failed = append(failed, apperr.Dropped{ID: id, Reason: errs[i].Error()})
			continue
		}
		targets = append(targets, *results[i])
	}
	return targets, failed, nil
}

// edgePlan is the computed outcome for one target resource.
type edgePlan struct {
	edges   map[EdgeType][]Edge
	skipped map[EdgeType]string
}

// computeEdges derives all edge sets in parallel against the read view.
func (b *Builder) computeEdges(ctx context.Context, view *buildView, targets []fetched) ([]edgePlan, error) {
	plans := make([]edgePlan, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = b.planFor(view, &targets[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.FromContext(err)
	}
	return plans, nil
}

// planFor computes the four edge sets of one resource.
func (b *Builder) planFor(view *buildView, t *fetched) edgePlan {
	plan := edgePlan{
		edges:   make(map[EdgeType][]Edge, numEdgeTypes),
		skipped: make(map[EdgeType]string),
	}
	n := t.node

	if t.citeErr != nil {
		plan.skipped[EdgeCitation] = "citation provider error: " + t.citeErr.Error()
	} else {
		plan.edges[EdgeCitation] = b.citationEdges(view, n, t.citations)
	}

	if len(n.Authors) == 0 {
		plan.skipped[EdgeCoauthor] = "no authors"
	} else {
		plan.edges[EdgeCoauthor] = b.overlapEdges(view, n, EdgeCoauthor, n.Authors, view.byAuthor, func(o *Node) []string { return o.Authors }, 0)
	}

	if len(n.Subjects) == 0 {
		plan.skipped[EdgeSubjectSim] = "no subjects"
	} else {
		plan.edges[EdgeSubjectSim] = b.overlapEdges(view, n, EdgeSubjectSim, n.Subjects, view.bySubject, func(o *Node) []string { return o.Subjects }, b.cfg.SubjectThreshold)
	}

	if n.Year == 0 {
		plan.skipped[EdgeTemporal] = "unknown publication year"
	} else {
		plan.edges[EdgeTemporal] = b.temporalEdges(view, n)
	}
	return plan
}

// citationEdges links n to every cited resource known to the graph or batch.
func (b *Builder) citationEdges(view *buildView, n *Node, citations []string) []Edge {
	var edges []Edge
	for _, c := range normalizeSet(citations, false) {
		if c == n.ID {
			continue
		}
		if _, ok := view.nodes[c]; !ok {
			continue
		}
		edges = append(edges, Edge{Source: n.ID, Target: c, Type: EdgeCitation, Weight: 1.0, Directed: true})
	}
	return b.topEdges(edges)
}

// overlapEdges links n to resources sharing at least one key, weighted by
// Jaccard similarity of the key sets. Only similarities above threshold are kept.
func (b *Builder) overlapEdges(
	view *buildView,
	n *Node,
	t EdgeType,
	keys []string,
	index map[string][]string,
	keysOf func(*Node) []string,
	threshold float64,
) []Edge {
	seen := make(map[string]struct{})
	var edges []Edge
	for _, k := range keys {
		for _, other := range index[k] {
			if other == n.ID {
				continue
			}
			if _, dup := seen[other]; dup {
				continue
			}
			seen[other] = struct{}{}

			w := jaccard(keys, keysOf(view.nodes[other]))
			if w <= threshold || w <= 0 {
				continue
			}
			edges = append(edges, Edge{Source: n.ID, Target: other, Type: t, Weight: w})
		}
	}
	return b.topEdges(edges)
}

// temporalEdges links n to resources published within the configured window.
func (b *Builder) temporalEdges(view *buildView, n *Node) []Edge {
	window := b.cfg.TemporalWindowYears
	var edges []Edge
	for y := n.Year - window; y <= n.Year+window; y++ {
		w := temporalWeight(n.Year, y, window)
		for _, other := range view.byYear[y] {
			if other == n.ID {
				continue
			}
			edges = append(edges, Edge{Source: n.ID, Target: other, Type: EdgeTemporal, Weight: w})
		}
	}
	return b.topEdges(edges)
}

// temporalWeight decays linearly with year distance, zero outside the window.
func temporalWeight(a, b, window int) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > window {
		return 0
	}
	return 1 - float64(d)/float64(window+1)
}

// topEdges keeps the MaxEdgesPerType strongest edges, ties by target id.
func (b *Builder) topEdges(edges []Edge) []Edge {
	slices.SortFunc(edges, func(x, y Edge) int {
		if c := cmp.Compare(y.Weight, x.Weight); c != 0 {
			return c
		}
		return strings.Compare(x.Target, y.Target)
	})
	if len(edges) > b.cfg.MaxEdgesPerType {
		edges = edges[:b.cfg.MaxEdgesPerType]
	}
	return edges
}

// jaccard returns |a∩b| / |a∪b| for two sorted, de-duplicated sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch c := strings.Compare(a[i], b[j]); {
		case c == 0:
			shared++
			i++
			j++
		case c < 0:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// buildView is the current snapshot overlaid with freshly fetched metadata,
// indexed for candidate lookup.
type buildView struct {
	nodes     map[string]*Node
	byAuthor  map[string][]string
	bySubject map[string][]string
	byYear    map[int][]string
}

func newBuildView(base *Snapshot, targets []fetched) *buildView {
	v := &buildView{
		nodes:     make(map[string]*Node, base.Len()+len(targets)),
		byAuthor:  make(map[string][]string),
		bySubject: make(map[string][]string),
		byYear:    make(map[int][]string),
	}
	base.Range(func(_ int32, n *Node) bool {
		v.nodes[n.ID] = n
		return true
	})
	for i := range targets {
		v.nodes[targets[i].node.ID] = targets[i].node
	}

	ids := make([]string, 0, len(v.nodes))
	for id := range v.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		n := v.nodes[id]
		for _, a := range n.Authors {
			v.byAuthor[a] = append(v.byAuthor[a], id)
		}
		for _, s := range n.Subjects {
			v.bySubject[s] = append(v.bySubject[s], id)
		}
		if n.Year != 0 {
			v.byYear[n.Year] = append(v.byYear[n.Year], id)
		}
	}
	return v
}

// errNoStore is returned by SnapshotProvider.
var errNoStore = errors.New("snapshot provider has no store")

// SnapshotProvider serves metadata from the graph itself. It lets the rebuild job
// recompute edges of nodes that were loaded from persistence without an
// external catalog attached.
type SnapshotProvider struct {
	Store *Store
}

// GetResource returns the stored node as a resource.
func (p SnapshotProvider) GetResource(_ context.Context, id string) (*Resource, error) {
	if p.Store == nil {
		return nil, errNoStore
	}
	n, ok := p.Store.Snapshot().Node(id)
	if !ok {
		return nil, apperr.NotFound("resource", id)
	}
	return &Resource{
		ID:               n.ID,
		ContentEmbedding: n.ContentEmbedding,
		Quality:          n.Quality,
		Year:             n.Year,
		Subjects:         n.Subjects,
		Authors:          n.Authors,
		Popularity:       n.Popularity,
	}, nil
}

// GetCitations returns the citation targets already stored for id.
func (p SnapshotProvider) GetCitations(_ context.Context, id string) ([]string, error) {
	if p.Store == nil {
		return nil, errNoStore
	}
	edges := p.Store.Snapshot().Edges(id, EdgeCitation)
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Target)
	}
	return out, nil
}
