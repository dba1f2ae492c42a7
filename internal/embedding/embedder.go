// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/apperr"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
	"github.com/tomtom215/scriptorium/internal/modelstore"
)

// ErrTrainingInProgress is returned when a training run is already active.
var ErrTrainingInProgress = errors.New("embedding training already in progress")

// Mode describes how an update was carried out.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Marker records which model produced the served embeddings.
type Marker struct {
	Version     uint64    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Algorithm   Algorithm `json:"algorithm"`
	Nodes       int       `json:"nodes"`
	TrainedAt   time.Time `json:"trained_at"`
}

// MarkerStore persists the model version marker.
type MarkerStore interface {
	LoadModelMarker(ctx context.Context) (*Marker, bool, error)
	SaveModelMarker(ctx context.Context, m *Marker) error
}

// Embedder trains structural embeddings over the graph and publishes them
// through the cache.
type Embedder struct {
	graph   *graph.Store
	cache   *Cache
	models  *modelstore.Store
	markers MarkerStore
	cfg     Config
	logger  zerolog.Logger

	trainMu sync.Mutex
	model   *model
	params  Params
	version uint64
}

// NewEmbedder creates an embedder. models and markers may be nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEmbedder(g *graph.Store, cache *Cache, models *modelstore.Store, markers MarkerStore, cfg Config, logger zerolog.Logger) *Embedder {
	return &Embedder{
		graph:   g,
		cache:   cache,
		models:  models,
		markers: markers,
		cfg:     cfg,
		logger:  logger.With().Str("component", "embedder").Logger(),
	}
}

// Cache returns the embedding cache the embedder publishes to.
func (e *Embedder) Cache() *Cache {
	return e.cache
}

// Compute retrains the model from scratch with params (zero fields take the
// configured defaults) and swaps in the resulting snapshot.
func (e *Embedder) Compute(ctx context.Context, params Params) (*Snapshot, error) {
	if !e.trainMu.TryLock() {
		return nil, apperr.Unavailable("embedding training", ErrTrainingInProgress)
	}
	defer e.trainMu.Unlock()

	params = e.mergeParams(params)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return e.trainFull(ctx, params)
}

// Update refreshes embeddings after the given nodes changed. Walks are
// regenerated only around the changed nodes and the existing model is
// fine-tuned with the parameters it was trained with; a full retrain runs
// when no model exists or too large a fraction of the graph changed.
func (e *Embedder) Update(ctx context.Context, changed []string) (*Snapshot, Mode, error) {
	if !e.trainMu.TryLock() {
		return nil, "", apperr.Unavailable("embedding training", ErrTrainingInProgress)
	}
	defer e.trainMu.Unlock()

	// Parameters applied by the last training run, including an admin
	// Compute, stay in effect until the next restart.
	params := e.cfg.Params.WithDefaults()
	if e.model != nil {
		params = e.params
	}
	snap := e.graph.Snapshot()

	reason := ""
	switch {
	case e.model == nil:
		reason = "no model"
	case snap.Len() == 0:
		reason = "empty graph"
	case float64(len(changed))/float64(snap.Len()) > e.cfg.FullRetrainFraction:
		reason = "changed fraction above threshold"
	}
	if reason != "" {
		e.logger.Info().Str("reason", reason).Int("changed", len(changed)).Msg("running full embedding retrain")
		out, err := e.trainFull(ctx, params)
		return out, ModeFull, err
	}

	out, err := e.trainIncremental(ctx, snap, changed)
	return out, ModeIncremental, err
}

// mergeParams fills zero request fields from the configured parameters.
func (e *Embedder) mergeParams(p Params) Params {
	base := e.cfg.Params.WithDefaults()
	if p.Algorithm == "" {
		p.Algorithm = base.Algorithm
	}
	if p.Dimensions == 0 {
		p.Dimensions = base.Dimensions
	}
	if p.WalkLength == 0 {
		p.WalkLength = base.WalkLength
	}
	if p.NumWalks == 0 {
		p.NumWalks = base.NumWalks
	}
	if p.P == 0 {
		p.P = base.P
	}
	if p.Q == 0 {
		p.Q = base.Q
	}
	if p.WindowSize == 0 {
		p.WindowSize = base.WindowSize
	}
	if p.NegativeSamples == 0 {
		p.NegativeSamples = base.NegativeSamples
	}
	if p.Epochs == 0 {
		p.Epochs = base.Epochs
	}
	if p.LearningRate == 0 {
		p.LearningRate = base.LearningRate
	}
	if p.Seed == 0 {
		p.Seed = base.Seed
	}
	return p.WithDefaults()
}

// trainFull trains a new model over the whole graph. trainMu must be held.
func (e *Embedder) trainFull(ctx context.Context, params Params) (*Snapshot, error) {
	start := time.Now()
	snap := e.graph.Snapshot()
	wg := newWalkGraph(snap)

	starts := make([]int32, len(wg.ids))
	for i := range starts {
		starts[i] = int32(i)
	}
	corpus, err := generateWalks(ctx, wg, starts, &params, e.cfg.WalkWorkers)
	if err != nil {
		metrics.RecordEmbeddingTrain(string(ModeFull), time.Since(start), 0, err)
		return nil, err
	}

	rng := rand.New(rand.NewPCG(params.Seed, uint64(params.Dimensions)))
	m := newModel(wg.ids, params.Dimensions, rng)
	opts := trainOptions{
		epochs:       params.Epochs,
		window:       params.WindowSize,
		negatives:    params.NegativeSamples,
		learningRate: params.LearningRate,
	}
	if err := m.train(ctx, corpus, opts, rng); err != nil {
		metrics.RecordEmbeddingTrain(string(ModeFull), time.Since(start), 0, err)
		return nil, err
	}

	return e.publish(ctx, snap, m, params, ModeFull, len(corpus), start)
}

// trainIncremental fine-tunes the current model around changed. trainMu must be held.
func (e *Embedder) trainIncremental(ctx context.Context, snap *graph.Snapshot, changed []string) (*Snapshot, error) {
	start := time.Now()
	params := e.params
	wg := newWalkGraph(snap)

	seeds := make([]int32, 0, len(changed))
	for _, id := range changed {
		if i, ok := wg.index[id]; ok {
			seeds = append(seeds, i)
		}
	}
	starts := wg.neighborhood(seeds, e.cfg.UpdateHops)

	m := e.model.clone()
	rng := rand.New(rand.NewPCG(params.Seed, e.version+1))
	added := m.grow(wg.ids, rng)

	walks, err := generateWalks(ctx, wg, starts, &params, e.cfg.WalkWorkers)
	if err != nil {
		metrics.RecordEmbeddingTrain(string(ModeIncremental), time.Since(start), 0, err)
		return nil, err
	}
	// Walk indices are local to wg; translate them to vocabulary indices.
	corpus := make([][]int32, len(walks))
	for i, w := range walks {
		c := make([]int32, len(w))
		for j, local := range w {
			c[j] = m.index[wg.ids[local]]
		}
		corpus[i] = c
	}

	opts := trainOptions{
		epochs:       e.cfg.FineTuneEpochs,
		window:       params.WindowSize,
		negatives:    params.NegativeSamples,
		learningRate: params.LearningRate,
	}
	if err := m.train(ctx, corpus, opts, rng); err != nil {
		metrics.RecordEmbeddingTrain(string(ModeIncremental), time.Since(start), 0, err)
		return nil, err
	}

	e.logger.Debug().
		Int("changed", len(changed)).
		Int("walk_starts", len(starts)).
		Int("vocab_added", added).
		Msg("fine-tuned embedding model")

	return e.publish(ctx, snap, m, params, ModeIncremental, len(corpus), start)
}

// publish persists a trained model, writes embeddings back to the graph and
// swaps the cache snapshot. trainMu must be held.
func (e *Embedder) publish(ctx context.Context, snap *graph.Snapshot, m *model, params Params, mode Mode, walks int, start time.Time) (*Snapshot, error) {
	version := e.nextVersion(params.Algorithm)
	fingerprint := params.Fingerprint()

	vectors := make(map[string][]float32, snap.Len())
	snap.Range(func(_ int32, n *graph.Node) bool {
		if v, ok := m.vector(n.ID); ok {
			vectors[n.ID] = v
		}
		return true
	})
	next, err := NewSnapshot(version, fingerprint, vectors)
	if err != nil {
		return nil, err
	}

	trainedAt := time.Now()
	if e.models != nil {
		state := m.state()
		state.Version, state.Fingerprint, state.Algorithm, state.TrainedAt = version, fingerprint, params.Algorithm, trainedAt
		meta := modelstore.ModelMetadata{
			Fingerprint:        fingerprint,
			TrainedAt:          trainedAt,
			NodeCount:          len(m.vocab),
			Dimensions:         m.dim,
			TrainingDurationMS: time.Since(start).Milliseconds(),
		}
		name := string(params.Algorithm)
		if err := e.models.Save(ctx, name, version, state, meta); err != nil {
			return nil, apperr.Unavailable("embedding model store", err)
		}
		if _, err := e.models.Prune(ctx, name, e.cfg.KeepVersions); err != nil {
			e.logger.Warn().Err(err).Msg("failed to prune old embedding models")
		}
	}
	if e.markers != nil {
		marker := &Marker{Version: version, Fingerprint: fingerprint, Algorithm: params.Algorithm, Nodes: len(vectors), TrainedAt: trainedAt}
		if err := e.markers.SaveModelMarker(ctx, marker); err != nil {
			return nil, apperr.Unavailable("embedding marker", err)
		}
	}
	if e.cfg.WriteBack {
		if _, err := e.graph.Update(ctx, func(tx *graph.Tx) error {
			tx.SetStructuralEmbeddings(vectors)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("write back structural embeddings: %w", err)
		}
	}

	e.model, e.params, e.version = m, params, version
	e.cache.Swap(next)

	duration := time.Since(start)
	metrics.RecordEmbeddingTrain(string(mode), duration, len(vectors), nil)
	e.logger.Info().
		Str("mode", string(mode)).
		Str("algorithm", string(params.Algorithm)).
		Uint64("model_version", version).
		Int("nodes", len(vectors)).
		Int("walks", walks).
		Dur("duration", duration).
		Msg("embeddings published")
	return next, nil
}

// nextVersion returns a version above every version seen so far.
func (e *Embedder) nextVersion(alg Algorithm) uint64 {
	v := e.version
	if e.models != nil {
		if stored, ok := e.models.LatestVersion(string(alg)); ok && stored > v {
			v = stored
		}
	}
	if cur := e.cache.Snapshot().ModelVersion(); cur > v {
		v = cur
	}
	return v + 1
}

// Restore loads the latest persisted model compatible with the configured
// parameters and publishes its embeddings. Without a compatible model the
// structural embeddings stored on graph nodes are served until the next
// training run.
func (e *Embedder) Restore(ctx context.Context) error {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	params := e.cfg.Params.WithDefaults()
	snap := e.graph.Snapshot()

	var marker *Marker
	if e.markers != nil {
		m, ok, err := e.markers.LoadModelMarker(ctx)
		if err != nil {
			return apperr.Unavailable("embedding marker", err)
		}
		if ok {
			marker = m
		}
	}

	if e.models != nil {
		var state ModelState
		_, err := e.models.Load(ctx, string(params.Algorithm), 0, &state)
		switch {
		case errors.Is(err, modelstore.ErrNoModel):
		case err != nil:
			e.logger.Warn().Err(err).Msg("failed to load embedding model, a full retrain will run")
		case state.Fingerprint != params.Fingerprint():
			e.logger.Info().Str("stored", state.Fingerprint).Str("configured", params.Fingerprint()).Msg("stored embedding model is incompatible")
		case marker != nil && marker.Version != state.Version:
			e.logger.Info().Uint64("marker", marker.Version).Uint64("model", state.Version).Msg("embedding model does not match marker")
		default:
			m, err := modelFromState(&state)
			if err != nil {
				return err
			}
			vectors := make(map[string][]float32, snap.Len())
			snap.Range(func(_ int32, n *graph.Node) bool {
				if v, ok := m.vector(n.ID); ok {
					vectors[n.ID] = v
				}
				return true
			})
			next, err := NewSnapshot(state.Version, state.Fingerprint, vectors)
			if err != nil {
				return err
			}
			e.model, e.params, e.version = m, params, state.Version
			e.cache.Swap(next)
			e.logger.Info().Uint64("model_version", state.Version).Int("nodes", len(vectors)).Msg("embedding model restored")
			return nil
		}
	}

	vectors := make(map[string][]float32)
	snap.Range(func(_ int32, n *graph.Node) bool {
		if len(n.StructuralEmbedding) > 0 {
			vectors[n.ID] = n.StructuralEmbedding
		}
		return true
	})
	if len(vectors) == 0 {
		return nil
	}
	var version uint64
	fingerprint := ""
	if marker != nil {
		version, fingerprint = marker.Version, marker.Fingerprint
	}
	next, err := NewSnapshot(version, fingerprint, vectors)
	if err != nil {
		return err
	}
	e.version = version
	e.cache.Swap(next)
	e.logger.Info().Int("nodes", len(vectors)).Msg("serving stored structural embeddings")
	return nil
}

// Remove drops the embeddings of removed nodes from the served snapshot.
func (e *Embedder) Remove(ids ...string) {
	e.cache.Remove(ids...)
}
