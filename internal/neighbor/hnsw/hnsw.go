// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

// Package hnsw is the approximate nearest neighbor index behind similarity
// search, built on github.com/coder/hnsw.
//
// Vectors are normalized on insert and the graph uses cosine distance, so a
// hit's similarity is its dot product with the normalized query. The
// underlying graph is not safe for concurrent mutation: Index guards it with
// a read-write lock, and Clone copies it through Export and Import so a
// refresh can patch a private copy while queries keep reading the original.
package hnsw

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	"github.com/coder/hnsw"
	"github.com/viterin/vek/vek32"
)

var (
	// ErrNodeNotFound indicates the requested id is not in the index.
	ErrNodeNotFound = errors.New("hnsw: node not found")

	// ErrEmptyVector indicates a zero-length vector.
	ErrEmptyVector = errors.New("hnsw: vector cannot be empty")

	// ErrDimensionMismatch indicates the vector dimension differs from the index.
	ErrDimensionMismatch = errors.New("hnsw: vector dimension mismatch")
)

// Config controls graph construction and search.
type Config struct {
	// M is the maximum number of links per node and layer.
	M int `koanf:"m"`
	// Ml is the level generation factor.
	Ml float64 `koanf:"ml"`
	// EfSearch is the candidate list size during search.
	EfSearch int   `koanf:"ef_search"`
	Seed     int64 `koanf:"seed"`
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() Config {
	return Config{
		M:        16,
		Ml:       0.25,
		EfSearch: 64,
		Seed:     1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.M < 2 {
		return fmt.Errorf("m must be at least 2, got %d", c.M)
	}
	if c.Ml <= 0 || c.Ml > 1 {
		return fmt.Errorf("ml must be in (0,1], got %v", c.Ml)
	}
	if c.EfSearch <= 0 {
		return fmt.Errorf("ef_search must be positive, got %d", c.EfSearch)
	}
	return nil
}

// Result is one search hit.
type Result struct {
	ID         string
	Similarity float64
}

// Index is an HNSW graph keyed by resource id. It is safe for concurrent use.
type Index struct {
	mu  sync.RWMutex
	cfg Config
	g   *hnsw.Graph[string]
	dim int
}

// New creates an empty index.
func New(cfg Config) *Index {
	def := DefaultConfig()
	if cfg.M < 2 {
		cfg.M = def.M
	}
	if cfg.Ml <= 0 || cfg.Ml > 1 {
		cfg.Ml = def.Ml
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}
	return &Index{cfg: cfg, g: newGraph(cfg, 0)}
}

// newGraph creates an empty graph. stream offsets the level generator seed.
func newGraph(cfg Config, stream int64) *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = cfg.M
	g.Ml = cfg.Ml
	g.EfSearch = cfg.EfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(cfg.Seed + stream)) //nolint:gosec // level sampling, not security sensitive
	return g
}

// Len returns the number of indexed vectors.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.g.Len()
}

// Dim returns the vector dimension, 0 while empty.
func (h *Index) Dim() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// Contains reports whether id is indexed.
func (h *Index) Contains(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.g.Lookup(id)
	return ok
}

// Vector returns the normalized vector of id. The slice must not be modified.
func (h *Index) Vector(id string) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.g.Lookup(id)
}

// Clone returns an independent copy of the index.
func (h *Index) Clone() (*Index, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.g.Len()
	c := &Index{cfg: h.cfg, dim: h.dim, g: newGraph(h.cfg, int64(size))}
	if size == 0 {
		return c, nil
	}
	var buf bytes.Buffer
	if err := h.g.Export(&buf); err != nil {
		return nil, fmt.Errorf("hnsw: export graph: %w", err)
	}
	if err := c.g.Import(&buf); err != nil {
		return nil, fmt.Errorf("hnsw: import graph: %w", err)
	}
	return c, nil
}

func (h *Index) checkVector(id string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: node %q", ErrEmptyVector, id)
	}
	if h.dim != 0 && len(vec) != h.dim {
		return fmt.Errorf("%w: node %q has dimension %d, expected %d", ErrDimensionMismatch, id, len(vec), h.dim)
	}
	return nil
}

// Insert adds id to the index. An existing id is replaced.
func (h *Index) Insert(id string, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkVector(id, vec); err != nil {
		return err
	}
	h.insertLocked(id, vec)
	return nil
}

// UpdateVector replaces the vector of an indexed id.
func (h *Index) UpdateVector(id string, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.g.Lookup(id); !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if err := h.checkVector(id, vec); err != nil {
		return err
	}
	h.insertLocked(id, vec)
	return nil
}

// Delete removes id from the index. The graph repairs the links of its
// former neighbors.
func (h *Index) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.deleteLocked(id) {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return nil
}

// Search returns up to k nearest neighbors of query, most similar first with
// ties broken by id.
func (h *Index) Search(query []float32, k int) []Result {
	if k <= 0 || len(query) == 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.g.Len() == 0 || len(query) != h.dim {
		return nil
	}
	q := normalize(query)

	nodes := h.g.Search(q, k)
	out := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Result{ID: n.Key, Similarity: float64(vek32.Dot(q, n.Value))})
	}
	slices.SortFunc(out, func(a, b Result) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func (h *Index) insertLocked(id string, vec []float32) {
	h.deleteLocked(id)
	h.g.Add(hnsw.MakeNode(id, normalize(vec)))
	h.dim = len(vec)
}

// deleteLocked removes id and resets the graph once it is empty, which also
// frees the dimension for the next insert.
func (h *Index) deleteLocked(id string) bool {
	if !h.g.Delete(id) {
		return false
	}
	if h.g.Len() == 0 {
		h.g = newGraph(h.cfg, 0)
		h.dim = 0
	}
	return true
}

func normalize(v []float32) []float32 {
	out := slices.Clone(v)
	n := vek32.Norm(out)
	if n == 0 || math.IsNaN(float64(n)) {
		return out
	}
	vek32.DivNumber_Inplace(out, n)
	return out
}
