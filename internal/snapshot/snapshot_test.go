package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/probectl/internal/fleet"
	"github.com/roach88/probectl/internal/freshness"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/tasking"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	edges    map[graph.RelationType][]graph.Edge
	dists    []DistanceEntry
	targets  []freshness.Target
	agents   []tasking.Agent
	locks    []fleet.Lock
	inFlight []graph.NodeID
	busy     []graph.NodeID
	failOn   string
	system   string
}

func (f *fakeSource) fail(what string) error {
	if f.failOn == what {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeSource) Edges(context.Context) (map[graph.RelationType][]graph.Edge, error) {
	return f.edges, f.fail("edges")
}

func (f *fakeSource) Distances(context.Context) ([]DistanceEntry, error) {
	return f.dists, f.fail("distances")
}

func (f *fakeSource) Targets(_ context.Context, system string) ([]freshness.Target, error) {
	f.system = system
	return f.targets, f.fail("targets")
}

func (f *fakeSource) Agents(context.Context, string) ([]tasking.Agent, error) {
	return f.agents, f.fail("agents")
}

func (f *fakeSource) Locks(context.Context) ([]fleet.Lock, error) {
	return f.locks, f.fail("locks")
}

func (f *fakeSource) InFlight(context.Context) ([]graph.NodeID, error) {
	return f.inFlight, f.fail("inflight")
}

func (f *fakeSource) Dispatched(context.Context) ([]graph.NodeID, error) {
	return f.busy, f.fail("dispatched")
}

func TestDistanceIndex_Lookup(t *testing.T) {
	idx, err := NewDistanceIndex(
		DistanceEntry{From: "X1-A", To: "X1-B", Cost: 7},
		DistanceEntry{From: "X1-C", To: "X1-A", Cost: 3},
	)
	require.NoError(t, err)

	d, ok := idx.Distance("X1-A", "X1-B")
	assert.True(t, ok)
	assert.Equal(t, 7.0, d)

	d, ok = idx.Distance("X1-A", "X1-C")
	assert.True(t, ok, "reverse direction")
	assert.Equal(t, 3.0, d)

	d, ok = idx.Distance("X1-B", "X1-B")
	assert.True(t, ok)
	assert.Zero(t, d)

	_, ok = idx.Distance("X1-B", "X1-C")
	assert.False(t, ok)
}

func TestDistanceIndex_Invalid(t *testing.T) {
	_, err := NewDistanceIndex(DistanceEntry{From: "X1-A", To: "X1-B", Cost: -2})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewDistanceIndex(DistanceEntry{From: "", To: "X1-B", Cost: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoad_AssemblesSnapshot(t *testing.T) {
	src := &fakeSource{
		edges: map[graph.RelationType][]graph.Edge{
			graph.RelationSupply: {{Src: "IRON_ORE", Dst: "IRON"}},
		},
		dists:   []DistanceEntry{{From: "X1-A", To: "X1-M", Cost: 4}},
		targets: []freshness.Target{{ID: "X1-M"}},
		agents: []tasking.Agent{
			{ID: "P1", Location: "X1-A", Available: true},
			{ID: "P2", Location: "X1-A", Available: true},
			{ID: "P3", Location: "X1-A", Available: true},
		},
		locks: []fleet.Lock{
			{AgentID: "P2", Controller: "USER", Priority: 10000},
			{AgentID: "P3", Controller: "TRADER", Priority: 10},
		},
		inFlight: []graph.NodeID{"X1-Q"},
	}

	snap, err := Load(context.Background(), src, now, Options{System: "X1", Controller: "PROBES", Priority: 100})
	require.NoError(t, err)

	assert.Equal(t, now, snap.Now)
	assert.Equal(t, "X1", src.system)
	assert.Equal(t, 1, snap.Relations.Relation(graph.RelationSupply).Len())
	assert.Equal(t, 1, snap.Distances.Len())
	assert.Len(t, snap.Targets, 1)
	assert.True(t, snap.InFlight["X1-Q"])

	avail := map[graph.NodeID]bool{}
	for _, a := range snap.Agents {
		avail[a.ID] = a.Available
	}
	assert.Equal(t, map[graph.NodeID]bool{"P1": true, "P2": false, "P3": true}, avail)
}

func TestLoad_DispatchedAgentsUnavailable(t *testing.T) {
	src := &fakeSource{
		agents: []tasking.Agent{
			{ID: "P1", Location: "X1-A", Available: true},
			{ID: "P2", Location: "X1-A", Available: true},
		},
		// P1 holds its own controller's lock, which alone would keep it claimable.
		locks: []fleet.Lock{{AgentID: "P1", Controller: "PROBES", Priority: 100}},
		busy:  []graph.NodeID{"P1"},
	}

	snap, err := Load(context.Background(), src, now, Options{Controller: "PROBES", Priority: 100})
	require.NoError(t, err)

	avail := map[graph.NodeID]bool{}
	for _, a := range snap.Agents {
		avail[a.ID] = a.Available
	}
	assert.Equal(t, map[graph.NodeID]bool{"P1": false, "P2": true}, avail)
}

func TestMarkDispatched(t *testing.T) {
	agents := []tasking.Agent{{ID: "P1", Available: true}, {ID: "P2", Available: true}}

	assert.Equal(t, agents, MarkDispatched(agents, nil))

	out := MarkDispatched(agents, []graph.NodeID{"P2"})
	assert.True(t, out[0].Available)
	assert.False(t, out[1].Available)
	assert.True(t, agents[1].Available, "input must not be modified")
}

func TestLoad_PropagatesSourceErrors(t *testing.T) {
	for _, what := range []string{"edges", "distances", "targets", "agents", "locks", "inflight", "dispatched"} {
		t.Run(what, func(t *testing.T) {
			_, err := Load(context.Background(), &fakeSource{failOn: what}, now, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestBuilder_Invalid(t *testing.T) {
	_, err := NewBuilder(now).Edges(graph.RelationLink, graph.Edge{Src: "X1-A"}).Build()
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewBuilder(time.Time{}).Build()
	assert.ErrorIs(t, err, ErrInvalidInput)
}
