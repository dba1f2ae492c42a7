// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package lbd

import (
	"cmp"
	"slices"

	"github.com/tomtom215/scriptorium/internal/graph"
)

type resourceEntry struct {
	id       string
	subjects []string // normalized, sorted
	quality  float64
	year     int
}

// subjectIndex is an inverted subject index over one graph snapshot,
// restricted to a time range. Posting lists are sorted resource positions.
type subjectIndex struct {
	resources []resourceEntry
	bySubject map[string][]int
}

func buildSubjectIndex(snap *graph.Snapshot, tr *TimeRange) *subjectIndex {
	idx := &subjectIndex{bySubject: make(map[string][]int)}
	snap.Range(func(_ int32, n *graph.Node) bool {
		if len(n.Subjects) == 0 || !tr.contains(n.Year) {
			return true
		}
		idx.resources = append(idx.resources, resourceEntry{
			id:       n.ID,
			subjects: n.Subjects,
			quality:  n.Quality,
			year:     n.Year,
		})
		return true
	})
	slices.SortFunc(idx.resources, func(a, b resourceEntry) int { return cmp.Compare(a.id, b.id) })
	for pos, r := range idx.resources {
		for _, s := range r.subjects {
			idx.bySubject[s] = append(idx.bySubject[s], pos)
		}
	}
	return idx
}

func (x *subjectIndex) tagged(s string) []int { return x.bySubject[s] }

// taggedBoth returns the resources tagged with both a and b.
func (x *subjectIndex) taggedBoth(a, b string) []int {
	return intersect(x.bySubject[a], x.bySubject[b])
}

// anyTaggedAll reports whether a single resource carries all three subjects.
func (x *subjectIndex) anyTaggedAll(a, b, c string) bool {
	for _, pos := range x.taggedBoth(a, b) {
		if slices.Contains(x.resources[pos].subjects, c) {
			return true
		}
	}
	return false
}

// coSubjects returns the distinct subjects of the given resources, minus
// the excluded ones.
func (x *subjectIndex) coSubjects(positions []int, exclude ...string) []string {
	seen := make(map[string]struct{})
	for _, pos := range positions {
		for _, s := range x.resources[pos].subjects {
			if slices.Contains(exclude, s) {
				continue
			}
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// evidence lists up to n resource ids, best quality first.
func (x *subjectIndex) evidence(positions []int, n int) []string {
	ranked := slices.Clone(positions)
	slices.SortFunc(ranked, func(a, b int) int {
		ra, rb := &x.resources[a], &x.resources[b]
		if c := cmp.Compare(rb.quality, ra.quality); c != 0 {
			return c
		}
		return cmp.Compare(ra.id, rb.id)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	ids := make([]string, len(ranked))
	for i, pos := range ranked {
		ids[i] = x.resources[pos].id
	}
	return ids
}

func intersect(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
