package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/probectl/internal/freshness"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/reach"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/tasking"
)

var cycleTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var trading = freshness.Activity{Imports: 1, Exports: 1, NonFuel: 2}

func market(id string, idle time.Duration) freshness.Target {
	return freshness.Target{
		ID:              graph.NodeID(id),
		LastRefreshedAt: cycleTime.Add(-idle),
		Activity:        trading,
	}
}

func probe(id, at string) tasking.Agent {
	return tasking.Agent{ID: graph.NodeID(id), Location: graph.NodeID(at), Available: true}
}

func dist(from, to string, cost float64) snapshot.DistanceEntry {
	return snapshot.DistanceEntry{From: graph.NodeID(from), To: graph.NodeID(to), Cost: cost}
}

func testPlanner(ids ...string) *Planner {
	p := NewPlanner()
	p.IDs = NewFixedGenerator(ids...)
	return p
}

// ============================================================================
// Scheduling scenarios
// ============================================================================

func TestPlan_CooldownBlocksAssignment(t *testing.T) {
	snap, err := snapshot.NewBuilder(cycleTime).
		Targets(market("M1", 250*time.Second)).
		Agents(probe("P1", "W1"), probe("P2", "W2")).
		Distances(dist("W1", "M1", 3), dist("W2", "M1", 10)).
		Build()
	require.NoError(t, err)

	res, err := testPlanner("c1").Plan(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, "c1", res.CycleID)
	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 0, res.Eligible)
	assert.NotNil(t, res.Assignments)
	assert.Empty(t, res.Assignments)
}

func TestPlan_CloserAgentWins(t *testing.T) {
	snap, err := snapshot.NewBuilder(cycleTime).
		Targets(market("M1", 900*time.Second)).
		Agents(probe("P1", "W1"), probe("P2", "W2")).
		Distances(dist("W1", "M1", 5), dist("W2", "M1", 2)).
		Build()
	require.NoError(t, err)

	res, err := testPlanner("c1").Plan(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	a := res.Assignments[0]
	assert.Equal(t, graph.NodeID("P2"), a.AgentID)
	assert.Equal(t, graph.NodeID("M1"), a.TargetID)
	assert.Equal(t, 2.0, a.Distance)
	// Single candidate: idle equals the normalizer, score is the distance.
	assert.Equal(t, 2.0, a.Score)
	assert.Equal(t, 900.0, res.MaxIdleSeconds)
}

func TestPlan_StalestFirstAtEqualDistance(t *testing.T) {
	snap, err := snapshot.NewBuilder(cycleTime).
		Targets(market("M1", 400*time.Second), market("M2", 1000*time.Second)).
		Agents(probe("P1", "W1")).
		Distances(dist("W1", "M1", 4), dist("W1", "M2", 4)).
		Build()
	require.NoError(t, err)

	res, err := testPlanner("c1").Plan(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, graph.NodeID("M2"), res.Assignments[0].TargetID)
	assert.Equal(t, 2, res.Eligible)
}

func TestPlan_SkipsInFlightTargets(t *testing.T) {
	snap, err := snapshot.NewBuilder(cycleTime).
		Targets(market("M1", 900*time.Second), market("M2", 600*time.Second)).
		Agents(probe("P1", "M1")).
		Distances(dist("M1", "M2", 7)).
		InFlight("M1").
		Build()
	require.NoError(t, err)

	res, err := testPlanner("c1").Plan(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, graph.NodeID("M2"), res.Assignments[0].TargetID)
	// The normalizer covers candidates only.
	assert.Equal(t, 600.0, res.MaxIdleSeconds)
	assert.Equal(t, 7.0, res.Assignments[0].Score)
	assert.Equal(t, 1, res.Eligible)
}

func TestPlan_InFlightTargetDoesNotFlipRanking(t *testing.T) {
	world := func(targets ...freshness.Target) *snapshot.Builder {
		return snapshot.NewBuilder(cycleTime).
			Targets(targets...).
			Agents(probe("P1", "L1")).
			Distances(dist("L1", "T2", 2), dist("L1", "T3", 1))
	}
	t2, t3 := market("T2", 400*time.Second), market("T3", 301*time.Second)

	free, err := world(t2, t3).Build()
	require.NoError(t, err)
	res, err := testPlanner("c1").Plan(context.Background(), free)
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, graph.NodeID("T2"), res.Assignments[0].TargetID)

	// T1 is much staler but already being serviced.
	busy, err := world(market("T1", 1000*time.Second), t2, t3).InFlight("T1").Build()
	require.NoError(t, err)
	res, err = testPlanner("c2").Plan(context.Background(), busy)
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, graph.NodeID("T2"), res.Assignments[0].TargetID)
	assert.Equal(t, 400.0, res.MaxIdleSeconds)
	assert.Equal(t, 2.0, res.Assignments[0].Score)
}

func TestPlan_NoAgents(t *testing.T) {
	snap, err := snapshot.NewBuilder(cycleTime).
		Targets(market("M1", time.Hour)).
		Build()
	require.NoError(t, err)

	res, err := testPlanner("c1").Plan(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Eligible)
	assert.Empty(t, res.Assignments)
}

func TestPlan_OptimalMatcher(t *testing.T) {
	// Greedy takes P1->M1 (score 1) and leaves P2 with M2 at 10;
	// optimal pays 2+2 instead.
	snap, err := snapshot.NewBuilder(cycleTime).
		Targets(market("M1", time.Hour), market("M2", time.Hour)).
		Agents(probe("P1", "W1"), probe("P2", "W2")).
		Distances(
			dist("W1", "M1", 1), dist("W1", "M2", 2),
			dist("W2", "M1", 2), dist("W2", "M2", 10),
		).
		Build()
	require.NoError(t, err)

	greedy, err := testPlanner("c1").Plan(context.Background(), snap)
	require.NoError(t, err)

	p := testPlanner("c2")
	p.Scheduler = tasking.Scheduler{Matcher: tasking.Optimal{}}
	optimal, err := p.Plan(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 11.0, total(greedy.Assignments))
	assert.Equal(t, 4.0, total(optimal.Assignments))
}

func total(as []tasking.Assignment) float64 {
	var sum float64
	for _, a := range as {
		sum += a.Score
	}
	return sum
}

// ============================================================================
// Scope
// ============================================================================

func supplyChain(b *snapshot.Builder) *snapshot.Builder {
	// Markets feeding FAB_MATS: M1 -> IRON -> FAB_MATS, M2 -> QUARTZ -> FAB_MATS.
	// M3 feeds an unrelated good.
	return b.Edges(graph.RelationSupply,
		graph.Edge{Src: "IRON", Dst: "FAB_MATS"},
		graph.Edge{Src: "QUARTZ", Dst: "FAB_MATS"},
		graph.Edge{Src: "M1", Dst: "IRON"},
		graph.Edge{Src: "M2", Dst: "QUARTZ"},
		graph.Edge{Src: "M3", Dst: "FUEL"},
	)
}

func TestPlan_ScopeDescendants(t *testing.T) {
	snap, err := supplyChain(snapshot.NewBuilder(cycleTime)).
		Targets(market("M1", time.Hour), market("M2", time.Hour), market("M3", time.Hour)).
		Agents(probe("P1", "M1"), probe("P2", "M2"), probe("P3", "M3")).
		Build()
	require.NoError(t, err)

	p := testPlanner("c1")
	p.Scope = &Scope{Relation: graph.RelationSupply, Goal: "FAB_MATS", Direction: DirectionDescendants}
	res, err := p.Plan(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Considered)
	require.Len(t, res.Assignments, 2)
	assert.Equal(t, graph.NodeID("M1"), res.Assignments[0].TargetID)
	assert.Equal(t, graph.NodeID("M2"), res.Assignments[1].TargetID)
}

func TestPlan_ScopeWithDatalog(t *testing.T) {
	snap, err := supplyChain(snapshot.NewBuilder(cycleTime)).
		Targets(market("M1", time.Hour), market("M3", time.Hour)).
		Agents(probe("P1", "M1")).
		Distances(dist("M1", "M3", 1)).
		Build()
	require.NoError(t, err)

	p := testPlanner("c1")
	p.Evaluator = reach.Datalog{}
	p.Scope = &Scope{Relation: graph.RelationSupply, Goal: "FAB_MATS"}
	res, err := p.Plan(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, graph.NodeID("M1"), res.Assignments[0].TargetID)
}

func TestPlanner_ReachableAncestors(t *testing.T) {
	rel := graph.MustRelation(
		graph.Edge{Src: "B", Dst: "A"},
		graph.Edge{Src: "C", Dst: "B"},
	)
	got, err := NewPlanner().Reachable(rel, "C", DirectionAncestors)
	require.NoError(t, err)
	assert.Equal(t, map[graph.NodeID]bool{"A": true, "B": true}, got)

	_, err = NewPlanner().Reachable(rel, "C", Direction("sideways"))
	assert.ErrorIs(t, err, tasking.ErrInvalidInput)
}

// ============================================================================
// Failures
// ============================================================================

func TestPlan_InvalidInput(t *testing.T) {
	snap, err := snapshot.NewBuilder(cycleTime).
		Targets(market("M1", time.Hour), market("M1", time.Hour)).
		Build()
	require.NoError(t, err)

	_, err = testPlanner("c1").Plan(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
	assert.False(t, IsInternal(err))
	assert.ErrorIs(t, err, freshness.ErrInvalidCandidate)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "c1", re.CycleID)
}

func TestPlan_NilSnapshot(t *testing.T) {
	_, err := testPlanner("c1").Plan(context.Background(), nil)
	assert.True(t, IsInvalidInput(err))
}

func TestPlan_NonTerminating(t *testing.T) {
	snap, err := supplyChain(snapshot.NewBuilder(cycleTime)).
		Targets(market("M1", time.Hour)).
		Build()
	require.NoError(t, err)

	p := testPlanner("c1")
	p.Evaluator = reach.Fixpoint{MaxPasses: 1}
	p.Scope = &Scope{Relation: graph.RelationSupply, Goal: "FAB_MATS"}
	_, err = p.Plan(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, reach.ErrNonTerminating)
}

func TestPlan_Cancelled(t *testing.T) {
	snap, err := snapshot.NewBuilder(cycleTime).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = testPlanner().Plan(ctx, snap)
	assert.ErrorIs(t, err, context.Canceled)
}
