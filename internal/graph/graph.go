package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidEdge is returned for edges with a missing endpoint.
var ErrInvalidEdge = errors.New("invalid edge")

// NodeID identifies a node. Its meaning (waypoint, good, market) belongs to the caller.
type NodeID string

// NormalizeID trims surrounding whitespace and applies NFC normalization.
func NormalizeID(s string) NodeID {
	return NodeID(norm.NFC.String(strings.TrimSpace(s)))
}

// Edge is a directed link Src -> Dst ("Src depends on / leads to Dst").
type Edge struct {
	Src NodeID `json:"src" yaml:"src"`
	Dst NodeID `json:"dst" yaml:"dst"`
}

// Validate reports whether both endpoints are present.
func (e Edge) Validate() error {
	if e.Src == "" || e.Dst == "" {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidEdge, e.Src, e.Dst)
	}
	return nil
}

// Reverse returns the edge with its direction flipped.
func (e Edge) Reverse() Edge {
	return Edge{Src: e.Dst, Dst: e.Src}
}

// Relation is a set of directed edges.
//
// The zero value is not usable; create with NewRelation.
type Relation struct {
	edges map[Edge]struct{}
	out   map[NodeID]map[NodeID]struct{}
	in    map[NodeID]map[NodeID]struct{}
}

// NewRelation creates a relation holding the given edges.
// Returns an error wrapping ErrInvalidEdge if any edge has an empty endpoint.
func NewRelation(edges ...Edge) (*Relation, error) {
	r := &Relation{
		edges: make(map[Edge]struct{}),
		out:   make(map[NodeID]map[NodeID]struct{}),
		in:    make(map[NodeID]map[NodeID]struct{}),
	}
	for _, e := range edges {
		if err := r.Add(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRelation is NewRelation for literals in tests and examples. It panics on invalid edges.
func MustRelation(edges ...Edge) *Relation {
	r, err := NewRelation(edges...)
	if err != nil {
		panic(err)
	}
	return r
}

// Add inserts an edge. Adding an edge already present does nothing.
func (r *Relation) Add(e Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, ok := r.edges[e]; ok {
		return nil
	}
	r.edges[e] = struct{}{}
	link(r.out, e.Src, e.Dst)
	link(r.in, e.Dst, e.Src)
	return nil
}

func link(m map[NodeID]map[NodeID]struct{}, from, to NodeID) {
	set, ok := m[from]
	if !ok {
		set = make(map[NodeID]struct{})
		m[from] = set
	}
	set[to] = struct{}{}
}

// Has reports whether the edge is in the relation.
func (r *Relation) Has(e Edge) bool {
	_, ok := r.edges[e]
	return ok
}

// Len returns the number of distinct edges.
func (r *Relation) Len() int {
	return len(r.edges)
}

// Edges returns all edges sorted by (Src, Dst).
func (r *Relation) Edges() []Edge {
	edges := make([]Edge, 0, len(r.edges))
	for e := range r.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})
	return edges
}

// Nodes returns every node that appears as an endpoint, sorted.
func (r *Relation) Nodes() []NodeID {
	seen := make(map[NodeID]struct{}, len(r.out)+len(r.in))
	for n := range r.out {
		seen[n] = struct{}{}
	}
	for n := range r.in {
		seen[n] = struct{}{}
	}
	return sortedIDs(seen)
}

// Sources returns the nodes with an edge into n (edges s -> n), sorted.
func (r *Relation) Sources(n NodeID) []NodeID {
	return sortedIDs(r.in[n])
}

// Targets returns the nodes n has an edge to (edges n -> d), sorted.
func (r *Relation) Targets(n NodeID) []NodeID {
	return sortedIDs(r.out[n])
}

// IsSource reports whether n appears as the Src of any edge.
func (r *Relation) IsSource(n NodeID) bool {
	return len(r.out[n]) > 0
}

// IsDestination reports whether n appears as the Dst of any edge.
func (r *Relation) IsDestination(n NodeID) bool {
	return len(r.in[n]) > 0
}

// Reversed returns a new relation with every edge flipped.
func (r *Relation) Reversed() *Relation {
	rev, _ := NewRelation()
	for e := range r.edges {
		// Edges were validated on insert.
		_ = rev.Add(e.Reverse())
	}
	return rev
}

func sortedIDs(set map[NodeID]struct{}) []NodeID {
	ids := make([]NodeID, 0, len(set))
	for n := range set {
		ids = append(ids, n)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
