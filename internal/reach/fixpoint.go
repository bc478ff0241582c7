package reach

import (
	"errors"
	"fmt"

	"github.com/roach88/probectl/internal/graph"
)

var (
	// ErrNilRelation is returned when no relation is supplied.
	ErrNilRelation = errors.New("nil relation")

	// ErrNonTerminating means the closure ran past its pass bound. The bound
	// follows from set insertion, so hitting it is a bug, not bad input.
	ErrNonTerminating = errors.New("closure did not reach a fixed point")
)

// Evaluator computes reachability sets.
type Evaluator interface {
	// Descendants maps each base node to the nodes that reach it.
	Descendants(rel *graph.Relation) (Set, error)
	// Ancestors maps each node to the nodes it reaches.
	Ancestors(rel *graph.Relation) (Set, error)
}

// Fixpoint is the in-process set-based evaluator.
type Fixpoint struct {
	// MaxPasses overrides the |nodes|^2 + 1 pass bound. Zero uses the bound.
	MaxPasses int
}

// Descendants implements Evaluator.
func (f Fixpoint) Descendants(rel *graph.Relation) (Set, error) {
	if rel == nil {
		return Set{}, ErrNilRelation
	}
	return f.closure(rel)
}

// Ancestors implements Evaluator.
func (f Fixpoint) Ancestors(rel *graph.Relation) (Set, error) {
	if rel == nil {
		return Set{}, ErrNilRelation
	}
	return f.closure(rel.Reversed())
}

func (f Fixpoint) closure(rel *graph.Relation) (Set, error) {
	nodes := rel.Nodes()
	limit := f.MaxPasses
	if limit <= 0 {
		limit = len(nodes)*len(nodes) + 1
	}

	result := newSet()

	// Seeds are joined but never reported; (n, n) only enters the result
	// when a cycle derives it.
	var frontier []Pair
	for _, n := range nodes {
		if rel.IsDestination(n) {
			frontier = append(frontier, Pair{Node: n, Base: n})
		}
	}

	for passes := 0; len(frontier) > 0; passes++ {
		if passes >= limit {
			return Set{}, fmt.Errorf("%w: %d passes over %d nodes", ErrNonTerminating, passes, len(nodes))
		}
		var next []Pair
		for _, p := range frontier {
			for _, s := range rel.Sources(p.Node) {
				np := Pair{Node: s, Base: p.Base}
				if result.add(np) {
					next = append(next, np)
				}
			}
		}
		frontier = next
	}

	return result, nil
}

// Descendants runs the default evaluator.
func Descendants(rel *graph.Relation) (Set, error) {
	return Fixpoint{}.Descendants(rel)
}

// Ancestors runs the default evaluator.
func Ancestors(rel *graph.Relation) (Set, error) {
	return Fixpoint{}.Ancestors(rel)
}

// Roots returns nodes that are destinations but never sources, sorted.
// These are the base nodes of Descendants.
func Roots(rel *graph.Relation) []graph.NodeID {
	var roots []graph.NodeID
	for _, n := range rel.Nodes() {
		if rel.IsDestination(n) && !rel.IsSource(n) {
			roots = append(roots, n)
		}
	}
	return roots
}

// Leaves returns nodes that are sources but never destinations: the roots of
// the reversed relation.
func Leaves(rel *graph.Relation) []graph.NodeID {
	return Roots(rel.Reversed())
}
