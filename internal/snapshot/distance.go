package snapshot

import (
	"fmt"
	"math"

	"github.com/roach88/probectl/internal/graph"
)

// DistanceEntry is one travel cost between two locations.
type DistanceEntry struct {
	From graph.NodeID `json:"from" yaml:"from"`
	To   graph.NodeID `json:"to" yaml:"to"`
	Cost float64      `json:"cost" yaml:"cost"`
}

type locPair struct{ from, to graph.NodeID }

// DistanceIndex is a read-only travel cost lookup for one cycle.
//
// Lookups fall back to the reverse direction, matching the navigation
// cache which stores each pair once. A location is at distance zero from
// itself.
type DistanceIndex struct {
	costs map[locPair]float64
}

// NewDistanceIndex builds an index. Costs must be finite and non-negative.
func NewDistanceIndex(entries ...DistanceEntry) (*DistanceIndex, error) {
	idx := &DistanceIndex{costs: make(map[locPair]float64, len(entries))}
	for _, e := range entries {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("%w: distance entry %q -> %q", ErrInvalidInput, e.From, e.To)
		}
		if e.Cost < 0 || math.IsNaN(e.Cost) || math.IsInf(e.Cost, 0) {
			return nil, fmt.Errorf("%w: distance %s -> %s = %v", ErrInvalidInput, e.From, e.To, e.Cost)
		}
		idx.costs[locPair{e.From, e.To}] = e.Cost
	}
	return idx, nil
}

// Distance implements tasking.Distances.
func (d *DistanceIndex) Distance(from, to graph.NodeID) (float64, bool) {
	if from == to {
		return 0, true
	}
	if d == nil {
		return 0, false
	}
	if c, ok := d.costs[locPair{from, to}]; ok {
		return c, true
	}
	c, ok := d.costs[locPair{to, from}]
	return c, ok
}

// Len returns the number of stored entries.
func (d *DistanceIndex) Len() int {
	if d == nil {
		return 0
	}
	return len(d.costs)
}
