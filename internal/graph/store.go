// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package graph

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// link is one half of an edge stored in the adjacency arena.
type link struct {
	to     int32
	weight float64
}

// adjacency holds the edges a node owns (out) and the edges other nodes own
// towards it (in), per edge type.
type adjacency struct {
	out [numEdgeTypes][]link
	in  [numEdgeTypes][]link
}

// deepCopy returns an adjacency whose slices can be mutated without affecting the receiver.
func (a *adjacency) deepCopy() *adjacency {
	c := &adjacency{}
	for t := range numEdgeTypes {
		c.out[t] = slices.Clone(a.out[t])
		c.in[t] = slices.Clone(a.in[t])
	}
	return c
}

// Neighbor is a traversable link out of a node.
type Neighbor struct {
	Index  int32
	Weight float64
}

// Aggregate selects how parallel links of different types to the same
// neighbor are combined.
type Aggregate uint8

const (
	// AggregateMax keeps the strongest link.
	AggregateMax Aggregate = iota
	// AggregateSum adds the weights of all links.
	AggregateSum
)

// Snapshot is an immutable view of the graph. Readers hold on to one
// snapshot for the duration of a request and never observe a partial write.
type Snapshot struct {
	version    uint64
	ids        []string
	index      map[string]int32
	nodes      []*Node
	adj        []*adjacency
	live       int
	edges      int
	contentDim int
}

// emptySnapshot returns the initial snapshot of a store.
func emptySnapshot() *Snapshot {
	return &Snapshot{index: make(map[string]int32)}
}

// Version returns the monotonically increasing snapshot version.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of live nodes.
func (s *Snapshot) Len() int { return s.live }

// EdgeCount returns the number of owned edges.
func (s *Snapshot) EdgeCount() int { return s.edges }

// Capacity returns the size of the index space, tombstones included.
func (s *Snapshot) Capacity() int { return len(s.nodes) }

// ContentDim returns the content embedding dimension, 0 if unknown.
func (s *Snapshot) ContentDim() int { return s.contentDim }

// Lookup returns the arena index of an external id.
func (s *Snapshot) Lookup(id string) (int32, bool) {
	idx, ok := s.index[id]
	return idx, ok
}

// Node returns the node for an external id.
func (s *Snapshot) Node(id string) (*Node, bool) {
	idx, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.nodes[idx], true
}

// NodeAt returns the node at an arena index, nil for tombstones.
func (s *Snapshot) NodeAt(idx int32) *Node {
	if idx < 0 || int(idx) >= len(s.nodes) {
		return nil
	}
	return s.nodes[idx]
}

// ExternalID returns the external id at an arena index.
func (s *Snapshot) ExternalID(idx int32) string {
	if idx < 0 || int(idx) >= len(s.ids) {
		return ""
	}
	return s.ids[idx]
}

// IDs returns the live external ids in lexicographic order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, s.live)
	for id := range s.index {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Range calls fn for every live node in arena order until fn returns false.
func (s *Snapshot) Range(fn func(idx int32, n *Node) bool) {
	for i, n := range s.nodes {
		if n == nil {
			continue
		}
		if !fn(int32(i), n) {
			return
		}
	}
}

// Edges returns the edges of type t owned by id, ordered by target id.
func (s *Snapshot) Edges(id string, t EdgeType) []Edge {
	idx, ok := s.index[id]
	if !ok || !t.Valid() {
		return nil
	}
	links := s.adj[idx].out[t]
	edges := make([]Edge, 0, len(links))
	for _, l := range links {
		edges = append(edges, Edge{
			Source:   id,
			Target:   s.ids[l.to],
			Type:     t,
			Weight:   l.weight,
			Directed: t.Directed(),
		})
	}
	slices.SortFunc(edges, func(a, b Edge) int { return cmp.Compare(a.Target, b.Target) })
	return edges
}

// OwnedEdges returns every edge owned by id across all types.
func (s *Snapshot) OwnedEdges(id string) []Edge {
	var edges []Edge
	for _, t := range AllEdgeTypes() {
		edges = append(edges, s.Edges(id, t)...)
	}
	return edges
}

// Neighbors returns the nodes reachable in one step from idx through edge
// types matching filter, ordered by arena index. Directed edges are followed
// from source to target only; undirected edges in both directions.
func (s *Snapshot) Neighbors(idx int32, filter EdgeTypeSet, agg Aggregate) []Neighbor {
	if idx < 0 || int(idx) >= len(s.adj) || s.nodes[idx] == nil {
		return nil
	}
	a := s.adj[idx]

	var raw []Neighbor
	for _, t := range AllEdgeTypes() {
		if !filter.Has(t) {
			continue
		}
		for _, l := range a.out[t] {
			raw = append(raw, Neighbor{Index: l.to, Weight: l.weight})
		}
		if t.Directed() {
			continue
		}
		for _, l := range a.in[t] {
			raw = append(raw, Neighbor{Index: l.to, Weight: l.weight})
		}
	}
	if len(raw) == 0 {
		return nil
	}

	slices.SortFunc(raw, func(x, y Neighbor) int { return cmp.Compare(x.Index, y.Index) })
	out := raw[:1]
	for _, n := range raw[1:] {
		last := &out[len(out)-1]
		if n.Index != last.Index {
			out = append(out, n)
			continue
		}
		switch agg {
		case AggregateSum:
			last.Weight += n.Weight
		default:
			last.Weight = math.Max(last.Weight, n.Weight)
		}
	}
	return out
}

// Persister stores committed graph changes durably.
type Persister interface {
	SaveBatch(ctx context.Context, b *Batch) error
	LoadGraph(ctx context.Context) ([]*Node, []EdgeSet, error)
}

// EdgeSet is the full set of edges of one type owned by one node.
type EdgeSet struct {
	Source string
	Type   EdgeType
	Edges  []Edge
}

// Batch is the durable delta of one committed transaction.
type Batch struct {
	Nodes    []*Node
	Removed  []string
	EdgeSets []EdgeSet
}

// Store owns the current graph snapshot. Reads are lock-free; writers are
// serialized and publish a new snapshot with a single pointer swap.
type Store struct {
	current   atomic.Pointer[Snapshot]
	writeMu   sync.Mutex
	persister Persister
	logger    zerolog.Logger
}

// NewStore creates an empty store. persister may be nil for a purely in-memory graph.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(persister Persister, logger zerolog.Logger) *Store {
	s := &Store{
		persister: persister,
		logger:    logger.With().Str("component", "graph-store").Logger(),
	}
	s.current.Store(emptySnapshot())
	return s
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Update runs fn against a copy-on-write transaction and publishes the
// result atomically. fn must be cheap: expensive recomputation belongs
// before the call. If persistence fails nothing is published.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) (*Snapshot, error) {
	return s.apply(ctx, fn, true)
}

// Load replaces the in-memory graph with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	nodes, sets, err := s.persister.LoadGraph(ctx)
	if err != nil {
		return apperr.Unavailable("graph store load", err)
	}

	snap, err := s.apply(ctx, func(tx *Tx) error {
		for _, n := range nodes {
			if _, _, err := tx.UpsertNode(n); err != nil {
				s.logger.Warn().Err(err).Str("node", n.ID).Msg("skipping persisted node")
			}
		}
		for _, set := range sets {
			if err := tx.ReplaceEdges(set.Source, set.Type, set.Edges); err != nil {
				s.logger.Warn().Err(err).Str("node", set.Source).Str("edge_type", set.Type.String()).Msg("skipping persisted edge set")
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("nodes", snap.Len()).
		Int("edges", snap.EdgeCount()).
		Msg("graph loaded")
	return nil
}

// apply executes a transaction, optionally persisting it.
func (s *Store) apply(ctx context.Context, fn func(tx *Tx) error, persist bool) (*Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx := s.begin()
	if err := fn(tx); err != nil {
		return nil, err
	}
	if tx.empty() {
		return s.current.Load(), nil
	}

	if persist && s.persister != nil {
		if err := s.persister.SaveBatch(ctx, tx.batch()); err != nil {
			return nil, apperr.Unavailable("graph store", err)
		}
	}

	s.current.Store(tx.next)
	metrics.SetGraphSize(tx.next.Len(), tx.next.EdgeCount())
	return tx.next, nil
}

// begin starts a transaction on top of the current snapshot.
func (s *Store) begin() *Tx {
	base := s.current.Load()
	next := &Snapshot{
		version: base.version + 1,
		// Clipped so appends never write into the base snapshot's backing array.
		ids:        base.ids[:len(base.ids):len(base.ids)],
		index:      base.index,
		nodes:      slices.Clone(base.nodes),
		adj:        slices.Clone(base.adj),
		live:       base.live,
		edges:      base.edges,
		contentDim: base.contentDim,
	}
	return &Tx{
		next:       next,
		ownedAdj:   make(map[int32]struct{}),
		dirtyNodes: make(map[int32]struct{}),
		dirtyEdges: make(map[edgeKey]struct{}),
		now:        time.Now(),
	}
}

type edgeKey struct {
	idx int32
	t   EdgeType
}

// Tx is a copy-on-write graph transaction.
type Tx struct {
	next       *Snapshot
	ownedIndex bool
	ownedAdj   map[int32]struct{}
	dirtyNodes map[int32]struct{}
	dirtyEdges map[edgeKey]struct{}
	removed    []string
	now        time.Time
}

// View returns the in-progress snapshot. It must not be retained after the transaction.
func (tx *Tx) View() *Snapshot {
	return tx.next
}

// empty reports whether the transaction changed nothing.
func (tx *Tx) empty() bool {
	return len(tx.dirtyNodes) == 0 && len(tx.dirtyEdges) == 0 && len(tx.removed) == 0
}

// ownIndex copies the id index before its first mutation.
func (tx *Tx) ownIndex() {
	if tx.ownedIndex {
		return
	}
	tx.next.index = cloneIndex(tx.next.index)
	tx.ownedIndex = true
}

// cloneIndex copies an id index map.
func cloneIndex(src map[string]int32) map[string]int32 {
	dst := make(map[string]int32, len(src)+16)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// mutableAdj returns an adjacency for idx that this transaction may mutate in place.
func (tx *Tx) mutableAdj(idx int32) *adjacency {
	if _, ok := tx.ownedAdj[idx]; ok {
		return tx.next.adj[idx]
	}
	c := tx.next.adj[idx].deepCopy()
	tx.next.adj[idx] = c
	tx.ownedAdj[idx] = struct{}{}
	return c
}

// UpsertNode inserts or replaces a node. A nil structural embedding keeps the
// existing one. Returns the arena index and whether the node was created.
func (tx *Tx) UpsertNode(n *Node) (int32, bool, error) {
	if n == nil || n.ID == "" {
		return 0, false, apperr.Invalid("node id is required")
	}
	if dim := len(n.ContentEmbedding); dim > 0 {
		if tx.next.contentDim == 0 {
			tx.next.contentDim = dim
		} else if dim != tx.next.contentDim {
			return 0, false, apperr.Invalid("node %q content embedding has dimension %d, expected %d", n.ID, dim, tx.next.contentDim)
		}
	}

	c := n.clone()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = tx.now
	}

	if idx, ok := tx.next.index[n.ID]; ok {
		if c.StructuralEmbedding == nil {
			c.StructuralEmbedding = tx.next.nodes[idx].StructuralEmbedding
		}
		tx.next.nodes[idx] = c
		tx.dirtyNodes[idx] = struct{}{}
		return idx, false, nil
	}

	tx.ownIndex()
	idx := int32(len(tx.next.ids))
	tx.next.ids = append(tx.next.ids, n.ID)
	tx.next.nodes = append(tx.next.nodes, c)
	tx.next.adj = append(tx.next.adj, &adjacency{})
	tx.ownedAdj[idx] = struct{}{}
	tx.next.index[n.ID] = idx
	tx.next.live++
	tx.dirtyNodes[idx] = struct{}{}
	return idx, true, nil
}

// SetStructuralEmbeddings assigns structural embeddings by id. Unknown ids are
// ignored and returned.
func (tx *Tx) SetStructuralEmbeddings(vectors map[string][]float32) []string {
	var missing []string
	for id, vec := range vectors {
		idx, ok := tx.next.index[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		c := tx.next.nodes[idx].clone()
		c.StructuralEmbedding = vec
		c.UpdatedAt = tx.now
		tx.next.nodes[idx] = c
		tx.dirtyNodes[idx] = struct{}{}
	}
	slices.Sort(missing)
	return missing
}

// AddPopularity increments the popularity counter of a node.
func (tx *Tx) AddPopularity(id string, delta int64) error {
	idx, ok := tx.next.index[id]
	if !ok {
		return apperr.NotFound("node", id)
	}
	c := tx.next.nodes[idx].clone()
	c.Popularity += delta
	if c.Popularity < 0 {
		c.Popularity = 0
	}
	tx.next.nodes[idx] = c
	tx.dirtyNodes[idx] = struct{}{}
	return nil
}

// ReplaceEdges replaces the full set of edges of type t owned by source.
// Duplicate targets keep the highest weight.
func (tx *Tx) ReplaceEdges(source string, t EdgeType, edges []Edge) error {
	if !t.Valid() {
		return apperr.Invalid("unknown edge type %d", t)
	}
	src, ok := tx.next.index[source]
	if !ok {
		return apperr.NotFound("node", source)
	}

	links, err := tx.resolveLinks(src, source, t, edges)
	if err != nil {
		return err
	}

	sa := tx.mutableAdj(src)
	for _, old := range sa.out[t] {
		ta := tx.mutableAdj(old.to)
		ta.in[t] = slices.DeleteFunc(ta.in[t], func(l link) bool { return l.to == src })
	}
	tx.next.edges -= len(sa.out[t])

	sa.out[t] = links
	for _, l := range links {
		ta := tx.mutableAdj(l.to)
		ta.in[t] = append(ta.in[t], link{to: src, weight: l.weight})
	}
	tx.next.edges += len(links)
	tx.dirtyEdges[edgeKey{idx: src, t: t}] = struct{}{}
	return nil
}

// ReweightEdge sets the weight of the edge of type t that source owns towards
// target. A zero weight removes the edge. It reports whether anything changed;
// a missing edge is left missing.
func (tx *Tx) ReweightEdge(source, target string, t EdgeType, w float64) (bool, error) {
	if !t.Valid() {
		return false, apperr.Invalid("unknown edge type %d", t)
	}
	if math.IsNaN(w) || w < 0 || w > 1 {
		return false, apperr.Invalid("edge %s->%s weight must be in [0,1], got %v", source, target, w)
	}
	src, ok := tx.next.index[source]
	if !ok {
		return false, apperr.NotFound("node", source)
	}
	dst, ok := tx.next.index[target]
	if !ok {
		return false, apperr.NotFound("node", target)
	}

	i := slices.IndexFunc(tx.next.adj[src].out[t], func(l link) bool { return l.to == dst })
	if i < 0 || tx.next.adj[src].out[t][i].weight == w {
		return false, nil
	}

	sa := tx.mutableAdj(src)
	da := tx.mutableAdj(dst)
	j := slices.IndexFunc(da.in[t], func(l link) bool { return l.to == src })
	if w == 0 {
		sa.out[t] = slices.Delete(sa.out[t], i, i+1)
		if j >= 0 {
			da.in[t] = slices.Delete(da.in[t], j, j+1)
		}
		tx.next.edges--
	} else {
		sa.out[t][i].weight = w
		if j >= 0 {
			da.in[t][j].weight = w
		}
	}
	tx.dirtyEdges[edgeKey{idx: src, t: t}] = struct{}{}
	return true, nil
}

// resolveLinks validates edges and converts them to arena links ordered by target id.
func (tx *Tx) resolveLinks(src int32, source string, t EdgeType, edges []Edge) ([]link, error) {
	best := make(map[int32]float64, len(edges))
	for _, e := range edges {
		if e.Source != "" && e.Source != source {
			return nil, apperr.Invalid("edge source %q does not match %q", e.Source, source)
		}
		if e.Type != t {
			return nil, apperr.Invalid("edge type %s does not match %s", e.Type, t)
		}
		if math.IsNaN(e.Weight) || e.Weight <= 0 || e.Weight > 1 {
			return nil, apperr.Invalid("edge %s->%s weight must be in (0,1], got %v", source, e.Target, e.Weight)
		}
		dst, ok := tx.next.index[e.Target]
		if !ok {
			return nil, fmt.Errorf("edge target: %w", apperr.NotFound("node", e.Target))
		}
		if dst == src {
			continue
		}
		if w, seen := best[dst]; !seen || e.Weight > w {
			best[dst] = e.Weight
		}
	}

	links := make([]link, 0, len(best))
	for dst, w := range best {
		links = append(links, link{to: dst, weight: w})
	}
	slices.SortFunc(links, func(a, b link) int {
		return cmp.Compare(tx.next.ids[a.to], tx.next.ids[b.to])
	})
	return links, nil
}

// RemoveNode deletes a node together with every edge it owns or receives.
// It reports whether the node existed.
func (tx *Tx) RemoveNode(id string) bool {
	idx, ok := tx.next.index[id]
	if !ok {
		return false
	}

	a := tx.mutableAdj(idx)
	for _, t := range AllEdgeTypes() {
		for _, l := range a.out[t] {
			ta := tx.mutableAdj(l.to)
			ta.in[t] = slices.DeleteFunc(ta.in[t], func(x link) bool { return x.to == idx })
		}
		tx.next.edges -= len(a.out[t])

		for _, l := range a.in[t] {
			sa := tx.mutableAdj(l.to)
			before := len(sa.out[t])
			sa.out[t] = slices.DeleteFunc(sa.out[t], func(x link) bool { return x.to == idx })
			tx.next.edges -= before - len(sa.out[t])
			tx.dirtyEdges[edgeKey{idx: l.to, t: t}] = struct{}{}
		}
		delete(tx.dirtyEdges, edgeKey{idx: idx, t: t})
	}

	tx.ownIndex()
	delete(tx.next.index, id)
	tx.next.nodes[idx] = nil
	tx.next.adj[idx] = &adjacency{}
	tx.next.live--
	delete(tx.dirtyNodes, idx)
	tx.removed = append(tx.removed, id)
	return true
}

// batch collects the durable delta of the transaction.
func (tx *Tx) batch() *Batch {
	b := &Batch{Removed: slices.Clone(tx.removed)}

	for idx := range tx.dirtyNodes {
		if n := tx.next.nodes[idx]; n != nil {
			b.Nodes = append(b.Nodes, n)
		}
	}
	slices.SortFunc(b.Nodes, func(x, y *Node) int { return cmp.Compare(x.ID, y.ID) })

	for key := range tx.dirtyEdges {
		if tx.next.nodes[key.idx] == nil {
			continue
		}
		source := tx.next.ids[key.idx]
		b.EdgeSets = append(b.EdgeSets, EdgeSet{
			Source: source,
			Type:   key.t,
			Edges:  tx.next.Edges(source, key.t),
		})
	}
	slices.SortFunc(b.EdgeSets, func(x, y EdgeSet) int {
		if c := cmp.Compare(x.Source, y.Source); c != 0 {
			return c
		}
		return cmp.Compare(x.Type, y.Type)
	})
	return b
}
