package graph

import (
	"fmt"
	"sort"
)

// RelationType names a relation kept in a Store.
type RelationType string

// Relation types used by the planner.
const (
	// RelationLink is the waypoint link graph.
	RelationLink RelationType = "link"

	// RelationSupply is the goods dependency graph (input good -> produced good,
	// market -> good it exports).
	RelationSupply RelationType = "supply"
)

// Store keeps one Relation per RelationType.
//
// Store is append-only and not safe for concurrent use. The planner builds
// one per cycle from a snapshot and only reads it afterwards.
type Store struct {
	relations map[RelationType]*Relation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{relations: make(map[RelationType]*Relation)}
}

// Add inserts edges into the relation of the given type, creating it if needed.
func (s *Store) Add(rt RelationType, edges ...Edge) error {
	if rt == "" {
		return fmt.Errorf("%w: empty relation type", ErrInvalidEdge)
	}
	r, ok := s.relations[rt]
	if !ok {
		r, _ = NewRelation()
		s.relations[rt] = r
	}
	for _, e := range edges {
		if err := r.Add(e); err != nil {
			return fmt.Errorf("relation %s: %w", rt, err)
		}
	}
	return nil
}

// Relation returns the relation of the given type.
// An unknown type yields an empty relation, never nil.
func (s *Store) Relation(rt RelationType) *Relation {
	if r, ok := s.relations[rt]; ok {
		return r
	}
	r, _ := NewRelation()
	return r
}

// Types returns the relation types present, sorted.
func (s *Store) Types() []RelationType {
	types := make([]RelationType, 0, len(s.relations))
	for rt := range s.relations {
		types = append(types, rt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
