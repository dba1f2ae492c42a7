// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package embedding

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viterin/vek/vek32"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// Snapshot is an immutable set of structural embeddings produced by one
// model version. Fusion vectors are derived lazily and memoized per snapshot.
type Snapshot struct {
	generation   uint64
	modelVersion uint64
	fingerprint  string
	dim          int
	vectors      map[string][]float32
	createdAt    time.Time

	fusion sync.Map // fusionKey -> []float32
}

type fusionKey struct {
	id    string
	alpha float64
}

// NewSnapshot validates vectors and wraps them in a snapshot. All vectors
// must share one dimension.
func NewSnapshot(modelVersion uint64, fingerprint string, vectors map[string][]float32) (*Snapshot, error) {
	dim := 0
	for id, v := range vectors {
		if len(v) == 0 {
			return nil, apperr.Invalid("embedding for %q is empty", id)
		}
		if dim == 0 {
			dim = len(v)
			continue
		}
		if len(v) != dim {
			return nil, apperr.Invalid("embedding for %q has dimension %d, expected %d", id, len(v), dim)
		}
	}
	return &Snapshot{
		modelVersion: modelVersion,
		fingerprint:  fingerprint,
		dim:          dim,
		vectors:      vectors,
		createdAt:    time.Now(),
	}, nil
}

// Version returns the cache generation of the snapshot.
func (s *Snapshot) Version() uint64 { return s.generation }

// ModelVersion returns the version of the model that produced the vectors.
func (s *Snapshot) ModelVersion() uint64 { return s.modelVersion }

// Fingerprint returns the parameter fingerprint of the producing model.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

// Dim returns the structural embedding dimension, 0 for an empty snapshot.
func (s *Snapshot) Dim() int { return s.dim }

// Len returns the number of embedded nodes.
func (s *Snapshot) Len() int { return len(s.vectors) }

// CreatedAt returns when the snapshot was built.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Get returns the structural embedding of id. The slice must not be modified.
func (s *Snapshot) Get(id string) ([]float32, bool) {
	v, ok := s.vectors[id]
	return v, ok
}

// IDs returns the embedded node ids in lexicographic order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Fusion returns the concatenation [alpha*ĉ, (1-alpha)*ŝ] of the normalized
// content and structural vectors of id. contentDim is the content dimension of
// the graph; a missing half is zero-filled so every fusion vector has the
// same dimension.
func (s *Snapshot) Fusion(id string, content []float32, contentDim int, alpha float64) ([]float32, error) {
	key := fusionKey{id: id, alpha: alpha}
	if v, ok := s.fusion.Load(key); ok {
		return v.([]float32), nil
	}

	structural, hasStructural := s.vectors[id]
	if !hasStructural && len(content) == 0 {
		return nil, apperr.NotFound("embedding", id)
	}
	if alpha < 0 || alpha > 1 {
		return nil, apperr.Invalid("fusion alpha must be in [0,1], got %v", alpha)
	}
	if len(content) > 0 && len(content) != contentDim {
		return nil, apperr.Invalid("content embedding for %q has dimension %d, expected %d", id, len(content), contentDim)
	}

	out := make([]float32, contentDim+s.dim)
	if len(content) > 0 {
		copy(out[:contentDim], Normalize(content))
		vek32.MulNumber_Inplace(out[:contentDim], float32(alpha))
	}
	if hasStructural {
		copy(out[contentDim:], Normalize(structural))
		vek32.MulNumber_Inplace(out[contentDim:], float32(1-alpha))
	}

	actual, _ := s.fusion.LoadOrStore(key, out)
	return actual.([]float32), nil
}

// without returns a copy of the snapshot lacking ids.
func (s *Snapshot) without(ids []string) *Snapshot {
	vectors := make(map[string][]float32, len(s.vectors))
	for id, v := range s.vectors {
		vectors[id] = v
	}
	for _, id := range ids {
		delete(vectors, id)
	}
	return &Snapshot{
		modelVersion: s.modelVersion,
		fingerprint:  s.fingerprint,
		dim:          s.dim,
		vectors:      vectors,
		createdAt:    time.Now(),
	}
}

// Cache holds the current embedding snapshot. Readers take one snapshot per
// request; a retrain swaps in a new snapshot, invalidating the previous one.
type Cache struct {
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	listeners []func(*Snapshot)
}

// NewCache creates a cache holding an empty snapshot.
func NewCache() *Cache {
	c := &Cache{}
	empty, _ := NewSnapshot(0, "", nil) //nolint:errcheck // an empty snapshot is always valid
	c.current.Store(empty)
	return c
}

// Snapshot returns the current snapshot.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// OnSwap registers fn to be called after every swap. Listeners run
// synchronously on the swapping goroutine and must not block.
func (c *Cache) OnSwap(fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Swap publishes next as the current snapshot and assigns its generation.
func (c *Cache) Swap(next *Snapshot) {
	c.mu.Lock()
	listeners := c.publishLocked(next)
	c.mu.Unlock()
	notify(listeners, next)
}

// Remove publishes a snapshot without the given ids. It is a no-op when none
// of them are embedded.
func (c *Cache) Remove(ids ...string) {
	c.mu.Lock()
	cur := c.current.Load()
	if !slices.ContainsFunc(ids, func(id string) bool { _, ok := cur.vectors[id]; return ok }) {
		c.mu.Unlock()
		return
	}
	next := cur.without(ids)
	listeners := c.publishLocked(next)
	c.mu.Unlock()
	notify(listeners, next)
}

// publishLocked stores next; c.mu must be held.
func (c *Cache) publishLocked(next *Snapshot) []func(*Snapshot) {
	next.generation = c.current.Load().generation + 1
	c.current.Store(next)
	metrics.SetEmbeddingModelVersion(next.modelVersion)
	return slices.Clone(c.listeners)
}

func notify(listeners []func(*Snapshot), snap *Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}

// Normalize returns v scaled to unit length. Zero vectors are returned as a copy.
func Normalize(v []float32) []float32 {
	out := slices.Clone(v)
	n := vek32.Norm(out)
	if n == 0 || math.IsNaN(float64(n)) {
		return out
	}
	vek32.DivNumber_Inplace(out, n)
	return out
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero
// vector or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := vek32.Norm(a)
	nb := vek32.Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := float64(vek32.Dot(a, b)) / (float64(na) * float64(nb))
	return math.Max(-1, math.Min(1, sim))
}
