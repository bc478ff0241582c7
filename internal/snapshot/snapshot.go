// Package snapshot freezes the inputs of one planning cycle.
//
// A Snapshot is read once at the start of a cycle and not touched again:
// relations, the distance index, the staleness index (targets), the agent
// roster and the cycle time all come from it, so the cycle itself is a pure
// function of the snapshot.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/probectl/internal/fleet"
	"github.com/roach88/probectl/internal/freshness"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/tasking"
)

// ErrInvalidInput is returned for malformed snapshot records.
var ErrInvalidInput = errors.New("invalid snapshot input")

// Snapshot is the frozen input of a cycle.
type Snapshot struct {
	Now       time.Time
	Relations *graph.Store
	Distances *DistanceIndex
	Targets   []freshness.Target
	Agents    []tasking.Agent

	// InFlight holds targets an earlier cycle dispatched an agent to that
	// has not reported back.
	InFlight map[graph.NodeID]bool
}

// Source supplies the raw records of a snapshot. The store implements it.
type Source interface {
	Edges(ctx context.Context) (map[graph.RelationType][]graph.Edge, error)
	Distances(ctx context.Context) ([]DistanceEntry, error)
	Targets(ctx context.Context, system string) ([]freshness.Target, error)
	Agents(ctx context.Context, system string) ([]tasking.Agent, error)
	Locks(ctx context.Context) ([]fleet.Lock, error)
	InFlight(ctx context.Context) ([]graph.NodeID, error)
	Dispatched(ctx context.Context) ([]graph.NodeID, error)
}

// Options scopes a snapshot to a system and a controller.
type Options struct {
	// System restricts targets and agents. Empty loads everything.
	System string

	// Controller and Priority decide which locked agents are available.
	Controller string
	Priority   int
}

// Load reads every table of the source concurrently and assembles the snapshot.
//
// Agents are available only when the roster says so and the controller may
// claim them; agents without a lock record are unowned. Agents with a pending
// assignment are never available.
func Load(ctx context.Context, src Source, now time.Time, opts Options) (*Snapshot, error) {
	var (
		edges     map[graph.RelationType][]graph.Edge
		distances []DistanceEntry
		targets   []freshness.Target
		agents    []tasking.Agent
		locks     []fleet.Lock
		inFlight  []graph.NodeID
		busy      []graph.NodeID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		edges, err = src.Edges(gctx)
		return wrap("edges", err)
	})
	g.Go(func() (err error) {
		distances, err = src.Distances(gctx)
		return wrap("distances", err)
	})
	g.Go(func() (err error) {
		targets, err = src.Targets(gctx, opts.System)
		return wrap("targets", err)
	})
	g.Go(func() (err error) {
		agents, err = src.Agents(gctx, opts.System)
		return wrap("agents", err)
	})
	g.Go(func() (err error) {
		locks, err = src.Locks(gctx)
		return wrap("locks", err)
	})
	g.Go(func() (err error) {
		inFlight, err = src.InFlight(gctx)
		return wrap("in-flight assignments", err)
	})
	g.Go(func() (err error) {
		busy, err = src.Dispatched(gctx)
		return wrap("dispatched agents", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := NewBuilder(now)
	for rt, es := range edges {
		b.Edges(rt, es...)
	}
	b.Distances(distances...)
	b.Targets(targets...)
	b.Agents(MarkDispatched(ApplyLocks(agents, locks, opts.Controller, opts.Priority), busy)...)
	b.InFlight(inFlight...)
	return b.Build()
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return nil
}

// ApplyLocks marks agents unavailable when controller may not claim them.
func ApplyLocks(agents []tasking.Agent, locks []fleet.Lock, controller string, priority int) []tasking.Agent {
	byAgent := make(map[graph.NodeID]fleet.Lock, len(locks))
	for _, l := range locks {
		byAgent[l.AgentID] = l
	}
	out := make([]tasking.Agent, len(agents))
	for i, a := range agents {
		if l, ok := byAgent[a.ID]; ok && !fleet.Claimable(l, controller, priority) {
			a.Available = false
		}
		out[i] = a
	}
	return out
}

// MarkDispatched marks agents that still have a pending assignment
// unavailable. They are en route and report back through completion.
func MarkDispatched(agents []tasking.Agent, busy []graph.NodeID) []tasking.Agent {
	if len(busy) == 0 {
		return agents
	}
	pending := make(map[graph.NodeID]bool, len(busy))
	for _, id := range busy {
		pending[id] = true
	}
	out := make([]tasking.Agent, len(agents))
	for i, a := range agents {
		if pending[a.ID] {
			a.Available = false
		}
		out[i] = a
	}
	return out
}

// Builder assembles a snapshot from in-memory records. The first invalid
// record is reported by Build.
type Builder struct {
	now       time.Time
	relations *graph.Store
	distances []DistanceEntry
	targets   []freshness.Target
	agents    []tasking.Agent
	inFlight  map[graph.NodeID]bool
	err       error
}

// NewBuilder starts a snapshot at the given cycle time.
func NewBuilder(now time.Time) *Builder {
	return &Builder{
		now:       now,
		relations: graph.NewStore(),
		inFlight:  make(map[graph.NodeID]bool),
	}
}

// Edges adds edges to a relation.
func (b *Builder) Edges(rt graph.RelationType, edges ...graph.Edge) *Builder {
	if b.err == nil {
		if err := b.relations.Add(rt, edges...); err != nil {
			b.err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return b
}

// Distances adds distance entries.
func (b *Builder) Distances(entries ...DistanceEntry) *Builder {
	b.distances = append(b.distances, entries...)
	return b
}

// Targets adds staleness index entries.
func (b *Builder) Targets(targets ...freshness.Target) *Builder {
	b.targets = append(b.targets, targets...)
	return b
}

// Agents adds roster entries.
func (b *Builder) Agents(agents ...tasking.Agent) *Builder {
	b.agents = append(b.agents, agents...)
	return b
}

// InFlight marks targets as already being serviced.
func (b *Builder) InFlight(ids ...graph.NodeID) *Builder {
	for _, id := range ids {
		b.inFlight[id] = true
	}
	return b
}

// Build returns the snapshot or the first invalid record.
func (b *Builder) Build() (*Snapshot, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.now.IsZero() {
		return nil, fmt.Errorf("%w: cycle time not set", ErrInvalidInput)
	}
	idx, err := NewDistanceIndex(b.distances...)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Now:       b.now,
		Relations: b.relations,
		Distances: idx,
		Targets:   b.targets,
		Agents:    b.agents,
		InFlight:  b.inFlight,
	}, nil
}
