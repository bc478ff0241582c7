package reach

import (
	"sort"

	"github.com/roach88/probectl/internal/graph"
)

// Pair records that Node reaches Base through one or more edges.
type Pair struct {
	Node graph.NodeID `json:"node"`
	Base graph.NodeID `json:"base"`
}

// Set maps a base node to the nodes that reach it.
//
// A base only appears in its own set when it lies on a cycle.
type Set struct {
	m map[graph.NodeID]map[graph.NodeID]struct{}
	n int
}

func newSet() Set {
	return Set{m: make(map[graph.NodeID]map[graph.NodeID]struct{})}
}

// add inserts the pair and reports whether it was new.
func (s *Set) add(p Pair) bool {
	nodes, ok := s.m[p.Base]
	if !ok {
		nodes = make(map[graph.NodeID]struct{})
		s.m[p.Base] = nodes
	}
	if _, dup := nodes[p.Node]; dup {
		return false
	}
	nodes[p.Node] = struct{}{}
	s.n++
	return true
}

// Len returns the number of pairs.
func (s Set) Len() int {
	return s.n
}

// Contains reports whether node reaches base.
func (s Set) Contains(base, node graph.NodeID) bool {
	_, ok := s.m[base][node]
	return ok
}

// Of returns the nodes reaching base, sorted. Unknown bases yield an empty slice.
func (s Set) Of(base graph.NodeID) []graph.NodeID {
	nodes := make([]graph.NodeID, 0, len(s.m[base]))
	for n := range s.m[base] {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

// Bases returns every base with a non-empty set, sorted.
func (s Set) Bases() []graph.NodeID {
	bases := make([]graph.NodeID, 0, len(s.m))
	for b, nodes := range s.m {
		if len(nodes) > 0 {
			bases = append(bases, b)
		}
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases
}

// Pairs returns every pair sorted by (Base, Node).
func (s Set) Pairs() []Pair {
	pairs := make([]Pair, 0, s.n)
	for _, b := range s.Bases() {
		for _, n := range s.Of(b) {
			pairs = append(pairs, Pair{Node: n, Base: b})
		}
	}
	return pairs
}

// Map returns a copy of the set as base -> sorted nodes.
func (s Set) Map() map[graph.NodeID][]graph.NodeID {
	out := make(map[graph.NodeID][]graph.NodeID, len(s.m))
	for _, b := range s.Bases() {
		out[b] = s.Of(b)
	}
	return out
}
