// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package embedding

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/tomtom215/scriptorium/internal/apperr"
)

const (
	// noisePower flattens the unigram noise distribution.
	noisePower = 0.75
	// minLearningRateFraction is the floor of the linear learning rate decay.
	minLearningRateFraction = 1e-4
	// maxExp bounds the sigmoid input.
	maxExp = 6.0
)

// ModelState is the persisted form of a skip-gram model.
type ModelState struct {
	Version     uint64
	Fingerprint string
	Algorithm   Algorithm
	Dim         int
	Vocab       []string
	In          []float64
	Out         []float64
	TrainedAt   time.Time
}

// model is a skip-gram model with negative sampling. The input vectors are
// the node embeddings; the output vectors are kept for fine-tuning.
type model struct {
	dim   int
	vocab []string
	index map[string]int32
	in    []float64
	out   []float64
}

// newModel initializes input vectors uniformly in (-0.5/dim, 0.5/dim) and
// output vectors to zero.
func newModel(vocab []string, dim int, rng *rand.Rand) *model {
	m := &model{dim: dim, index: make(map[string]int32, len(vocab))}
	m.grow(vocab, rng)
	return m
}

// modelFromState rebuilds a model from its persisted form.
func modelFromState(s *ModelState) (*model, error) {
	n := len(s.Vocab)
	if s.Dim <= 0 || len(s.In) != n*s.Dim || len(s.Out) != n*s.Dim {
		return nil, apperr.Invalid("model state has inconsistent shape: vocab=%d dim=%d in=%d out=%d", n, s.Dim, len(s.In), len(s.Out))
	}
	m := &model{
		dim:   s.Dim,
		vocab: slices.Clone(s.Vocab),
		index: make(map[string]int32, n),
		in:    slices.Clone(s.In),
		out:   slices.Clone(s.Out),
	}
	for i, id := range m.vocab {
		m.index[id] = int32(i)
	}
	return m, nil
}

// state returns the persisted form of the model.
func (m *model) state() *ModelState {
	return &ModelState{Dim: m.dim, Vocab: m.vocab, In: m.in, Out: m.out}
}

// clone returns a deep copy.
func (m *model) clone() *model {
	c := &model{
		dim:   m.dim,
		vocab: slices.Clone(m.vocab),
		index: make(map[string]int32, len(m.index)),
		in:    slices.Clone(m.in),
		out:   slices.Clone(m.out),
	}
	for k, v := range m.index {
		c.index[k] = v
	}
	return c
}

// grow appends ids missing from the vocabulary.
func (m *model) grow(ids []string, rng *rand.Rand) int {
	added := 0
	for _, id := range ids {
		if _, ok := m.index[id]; ok {
			continue
		}
		m.index[id] = int32(len(m.vocab))
		m.vocab = append(m.vocab, id)
		for range m.dim {
			m.in = append(m.in, (rng.Float64()-0.5)/float64(m.dim))
		}
		m.out = append(m.out, make([]float64, m.dim)...)
		added++
	}
	return added
}

func (m *model) inVec(i int32) []float64  { return m.in[int(i)*m.dim : int(i+1)*m.dim] }
func (m *model) outVec(i int32) []float64 { return m.out[int(i)*m.dim : int(i+1)*m.dim] }

// vector returns the embedding of id as float32.
func (m *model) vector(id string) ([]float32, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	src := m.inVec(i)
	v := make([]float32, m.dim)
	for j, x := range src {
		v[j] = float32(x)
	}
	return v, true
}

// trainOptions controls one training pass.
type trainOptions struct {
	epochs       int
	window       int
	negatives    int
	learningRate float64
}

// train runs skip-gram with negative sampling over corpus, whose entries are
// vocabulary indices. Training is sequential so results are reproducible for
// a given seed.
func (m *model) train(ctx context.Context, corpus [][]int32, opts trainOptions, rng *rand.Rand) error {
	noise := m.noiseDistribution(corpus)
	total := noise[len(noise)-1]
	if total == 0 {
		return nil
	}

	tokens := 0
	for _, w := range corpus {
		tokens += len(w)
	}
	totalSteps := float64(opts.epochs * tokens)
	step := 0.0
	neu1e := make([]float64, m.dim)

	for range opts.epochs {
		for wi, walk := range corpus {
			if wi%256 == 0 {
				if err := apperr.CheckContext(ctx); err != nil {
					return err
				}
			}
			for i, center := range walk {
				lr := opts.learningRate * math.Max(minLearningRateFraction, 1-step/totalSteps)
				step++

				lo := max(0, i-opts.window)
				hi := min(len(walk)-1, i+opts.window)
				for j := lo; j <= hi; j++ {
					if j == i {
						continue
					}
					m.update(center, walk[j], lr, opts.negatives, noise, total, neu1e, rng)
				}
			}
		}
	}
	return nil
}

// update applies one positive pair and its negative samples.
func (m *model) update(center, positive int32, lr float64, negatives int, cum []float64, total float64, neu1e []float64, rng *rand.Rand) {
	h := m.inVec(center)
	clear(neu1e)

	for d := 0; d <= negatives; d++ {
		target, label := positive, 1.0
		if d > 0 {
			target = sampleNoise(cum, total, rng)
			if target == positive {
				continue
			}
			label = 0
		}
		o := m.outVec(target)
		g := (label - sigmoid(floats.Dot(h, o))) * lr
		floats.AddScaled(neu1e, g, o)
		floats.AddScaled(o, g, h)
	}
	floats.Add(h, neu1e)
}

// noiseDistribution returns the cumulative unigram^0.75 distribution of the
// corpus over the whole vocabulary.
func (m *model) noiseDistribution(corpus [][]int32) []float64 {
	counts := make([]float64, len(m.vocab))
	for _, walk := range corpus {
		for _, v := range walk {
			counts[v]++
		}
	}
	for i, c := range counts {
		if c > 0 {
			counts[i] = math.Pow(c, noisePower)
		}
	}
	cum := make([]float64, len(counts))
	if len(counts) == 0 {
		return []float64{0}
	}
	floats.CumSum(cum, counts)
	return cum
}

// sampleNoise draws a vocabulary index from a cumulative distribution.
func sampleNoise(cum []float64, total float64, rng *rand.Rand) int32 {
	u := (1 - rng.Float64()) * total
	i := sort.SearchFloat64s(cum, u)
	if i >= len(cum) {
		i = len(cum) - 1
	}
	return int32(i)
}

func sigmoid(x float64) float64 {
	switch {
	case x > maxExp:
		return 1
	case x < -maxExp:
		return 0
	default:
		return 1 / (1 + math.Exp(-x))
	}
}
