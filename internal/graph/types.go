// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package graph

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tomtom215/scriptorium/internal/apperr"
)

// EdgeType identifies the relation an edge encodes.
type EdgeType uint8

const (
	// EdgeCitation links a resource to a resource it cites. Directed.
	EdgeCitation EdgeType = iota
	// EdgeCoauthor links resources sharing at least one author.
	EdgeCoauthor
	// EdgeSubjectSim links resources whose subject sets overlap above a threshold.
	EdgeSubjectSim
	// EdgeTemporal links resources published within a year window.
	EdgeTemporal

	numEdgeTypes
)

// AllEdgeTypes lists every edge type in a stable order.
func AllEdgeTypes() []EdgeType {
	return []EdgeType{EdgeCitation, EdgeCoauthor, EdgeSubjectSim, EdgeTemporal}
}

// String returns the wire name of the edge type.
func (t EdgeType) String() string {
	switch t {
	case EdgeCitation:
		return "citation"
	case EdgeCoauthor:
		return "coauthor"
	case EdgeSubjectSim:
		return "subject_sim"
	case EdgeTemporal:
		return "temporal"
	default:
		return fmt.Sprintf("edge_type(%d)", uint8(t))
	}
}

// Directed reports whether edges of this type are traversable only from source to target.
func (t EdgeType) Directed() bool {
	return t == EdgeCitation
}

// Valid reports whether t is a known edge type.
func (t EdgeType) Valid() bool {
	return t < numEdgeTypes
}

// ParseEdgeType converts a wire name to an EdgeType.
func ParseEdgeType(s string) (EdgeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "citation":
		return EdgeCitation, nil
	case "coauthor":
		return EdgeCoauthor, nil
	case "subject_sim":
		return EdgeSubjectSim, nil
	case "temporal":
		return EdgeTemporal, nil
	default:
		return 0, apperr.Invalid("unknown edge type %q", s)
	}
}

// EdgeTypeSet is a filter over edge types. The zero value matches every type.
type EdgeTypeSet uint8

// AllEdges matches every edge type.
const AllEdges EdgeTypeSet = 0

// NewEdgeTypeSet builds a filter matching exactly the given types.
// With no arguments it returns AllEdges.
func NewEdgeTypeSet(types ...EdgeType) EdgeTypeSet {
	var s EdgeTypeSet
	for _, t := range types {
		if t.Valid() {
			s |= 1 << t
		}
	}
	return s
}

// ParseEdgeTypeSet parses a list of wire names into a filter.
func ParseEdgeTypeSet(names []string) (EdgeTypeSet, error) {
	types := make([]EdgeType, 0, len(names))
	for _, n := range names {
		t, err := ParseEdgeType(n)
		if err != nil {
			return 0, err
		}
		types = append(types, t)
	}
	return NewEdgeTypeSet(types...), nil
}

// Has reports whether the filter matches t.
func (s EdgeTypeSet) Has(t EdgeType) bool {
	return s == AllEdges || s&(1<<t) != 0
}

// Node is a resource participating in the graph.
// Nodes reachable from a Snapshot are immutable; writers replace them.
type Node struct {
	ID                  string    `json:"id"`
	ContentEmbedding    []float32 `json:"content_embedding,omitempty"`
	StructuralEmbedding []float32 `json:"structural_embedding,omitempty"`
	Quality             float64   `json:"quality"`
	Year                int       `json:"year,omitempty"`
	Subjects            []string  `json:"subjects,omitempty"`
	Authors             []string  `json:"authors,omitempty"`
	Popularity          int64     `json:"popularity"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// HasSubject reports whether the node is tagged with the normalized subject.
func (n *Node) HasSubject(subject string) bool {
	_, found := slices.BinarySearch(n.Subjects, subject)
	return found
}

// clone returns a copy that shares embedding backing arrays, which are never written in place.
func (n *Node) clone() *Node {
	c := *n
	return &c
}

// Edge is a typed, weighted relation between two resources.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Type     EdgeType `json:"type"`
	Weight   float64  `json:"weight"`
	Directed bool     `json:"directed"`
}

// Resource is the metadata record a MetadataProvider returns for one id.
type Resource struct {
	ID               string
	ContentEmbedding []float32
	Quality          float64
	Year             int
	Subjects         []string
	Authors          []string
	Popularity       int64
}

// NormalizeSubject returns the canonical form of a subject tag or concept.
func NormalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeSet trims, optionally lower-cases, de-duplicates and sorts values.
func normalizeSet(values []string, lower bool) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// nodeFromResource converts provider metadata into a normalized Node.
func nodeFromResource(r *Resource, now time.Time) *Node {
	return &Node{
		ID:               r.ID,
		ContentEmbedding: r.ContentEmbedding,
		Quality:          r.Quality,
		Year:             r.Year,
		Subjects:         normalizeSet(r.Subjects, true),
		Authors:          normalizeSet(r.Authors, false),
		Popularity:       r.Popularity,
		UpdatedAt:        now,
	}
}
