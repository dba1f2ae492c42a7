// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/metrics"
)

// edgeRecord is the stored form of one owned edge set. The source and type
// live in the value so keys never need parsing.
type edgeRecord struct {
	Source string       `json:"source"`
	Type   string       `json:"type"`
	Edges  []graph.Edge `json:"edges"`
}

func nodeKey(id string) []byte {
	return []byte(nodeKeyPrefix + id)
}

func edgeKey(source string, t graph.EdgeType) []byte {
	return []byte(edgeKeyPrefix + source + "/" + t.String())
}

// SaveBatch persists the delta of one graph transaction. Removed nodes lose
// their record and every edge set they own; an empty edge set is deleted.
// Batches too large for one badger transaction are split.
func (s *Store) SaveBatch(ctx context.Context, b *graph.Batch) error {
	start := time.Now()
	err := s.saveBatch(ctx, b)
	metrics.RecordOperation("store_save_batch", time.Since(start), err)
	return err
}

func (s *Store) saveBatch(ctx context.Context, b *graph.Batch) error {
	type write struct {
		key  []byte
		data []byte // nil deletes the key
	}
	writes := make([]write, 0, len(b.Nodes)+len(b.EdgeSets)+len(b.Removed)*5)

	for _, id := range b.Removed {
		writes = append(writes, write{key: nodeKey(id)})
		for _, t := range graph.AllEdgeTypes() {
			writes = append(writes, write{key: edgeKey(id, t)})
		}
	}
	for _, n := range b.Nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal node %s: %w", n.ID, err)
		}
		writes = append(writes, write{key: nodeKey(n.ID), data: data})
	}
	for _, set := range b.EdgeSets {
		if len(set.Edges) == 0 {
			writes = append(writes, write{key: edgeKey(set.Source, set.Type)})
			continue
		}
		data, err := json.Marshal(edgeRecord{Source: set.Source, Type: set.Type.String(), Edges: set.Edges})
		if err != nil {
			return fmt.Errorf("marshal edges %s/%s: %w", set.Source, set.Type, err)
		}
		writes = append(writes, write{key: edgeKey(set.Source, set.Type), data: data})
	}

	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	apply := func(w write) error {
		if w.data == nil {
			return txn.Delete(w.key)
		}
		return txn.Set(w.key, w.data)
	}
	for i, w := range writes {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		err := apply(w)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("commit partial batch: %w", err)
			}
			txn = s.db.NewTransaction(true)
			err = apply(w)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", w.key, err)
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// LoadGraph reads every persisted node and edge set.
func (s *Store) LoadGraph(ctx context.Context) ([]*graph.Node, []graph.EdgeSet, error) {
	var nodes []*graph.Node
	err := s.scanPrefix(ctx, nodeKeyPrefix, func(key, val []byte) error {
		var n graph.Node
		if err := json.Unmarshal(val, &n); err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("skipping unreadable node record")
			return nil
		}
		nodes = append(nodes, &n)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load nodes: %w", err)
	}

	var sets []graph.EdgeSet
	err = s.scanPrefix(ctx, edgeKeyPrefix, func(key, val []byte) error {
		var rec edgeRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("skipping unreadable edge record")
			return nil
		}
		t, err := graph.ParseEdgeType(rec.Type)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("skipping edge record of unknown type")
			metrics.RecordSkippedEdgeType(rec.Type)
			return nil
		}
		sets = append(sets, graph.EdgeSet{Source: rec.Source, Type: t, Edges: rec.Edges})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load edges: %w", err)
	}

	s.logger.Debug().Int("nodes", len(nodes)).Int("edge_sets", len(sets)).Msg("graph records loaded")
	return nodes, sets, nil
}

var _ graph.Persister = (*Store)(nil)
