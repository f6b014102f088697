// Package sink collects query answers emitted by the matching algorithm.
package sink

import (
	"cmp"
	"io"
	"slices"

	"github.com/sanonone/streamrpq/pkg/core/types"
	"github.com/sanonone/streamrpq/pkg/persistence"
)

// Sink stores, per root vertex, the destinations reached in a final state.
// Matches are deduplicated by destination: a later match to a destination
// already recorded for the same root keeps the first timestamp.
type Sink struct {
	results map[types.Vertex]map[types.Vertex]int64
	size    int
	matched int64
}

// New returns an empty sink.
func New() *Sink {
	return &Sink{results: make(map[types.Vertex]map[types.Vertex]int64)}
}

// Add records the match (root, dst) reached at ts. It reports whether the
// pair was new.
func (s *Sink) Add(root, dst types.Vertex, ts int64) bool {
	s.matched++
	dests := s.results[root]
	if dests == nil {
		dests = make(map[types.Vertex]int64)
		s.results[root] = dests
	}
	if _, ok := dests[dst]; ok {
		return false
	}
	dests[dst] = ts
	s.size++
	return true
}

// Size returns the number of distinct (root, destination) pairs held.
func (s *Sink) Size() int { return s.size }

// MatchedPaths returns how many times Add was called, duplicates included.
func (s *Sink) MatchedPaths() int64 { return s.matched }

// Contains reports whether (root, dst) is held.
func (s *Sink) Contains(root, dst types.Vertex) bool {
	_, ok := s.results[root][dst]
	return ok
}

// Entries returns every held match ordered by source then destination.
func (s *Sink) Entries() []types.Match {
	out := make([]types.Match, 0, s.size)
	for root, dests := range s.results {
		for dst, ts := range dests {
			out = append(out, types.Match{Source: root, Destination: dst, Timestamp: ts})
		}
	}
	slices.SortFunc(out, func(a, b types.Match) int {
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Destination, b.Destination)
	})
	return out
}

// ExpireBefore drops every match whose timestamp is older than ts and returns
// how many were removed.
func (s *Sink) ExpireBefore(ts int64) int {
	return s.drop(func(_, _ types.Vertex, matchTs int64) bool { return matchTs < ts })
}

// Prune drops every match for which keep returns false and returns how many
// were removed.
func (s *Sink) Prune(keep func(root, dst types.Vertex) bool) int {
	return s.drop(func(root, dst types.Vertex, _ int64) bool { return !keep(root, dst) })
}

// Export writes the held matches as CSV.
func (s *Sink) Export(w io.Writer) error {
	return persistence.WriteMatches(w, s.Entries())
}

func (s *Sink) drop(remove func(root, dst types.Vertex, ts int64) bool) int {
	removed := 0
	for root, dests := range s.results {
		for dst, ts := range dests {
			if remove(root, dst, ts) {
				delete(dests, dst)
				removed++
			}
		}
		if len(dests) == 0 {
			delete(s.results, root)
		}
	}
	s.size -= removed
	return removed
}
