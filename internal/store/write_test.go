package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/probectl/internal/fleet"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/tasking"
)

func testCycle(id string, assignments ...tasking.Assignment) Cycle {
	c := Cycle{
		ID:             id,
		Controller:     "intel",
		Priority:       3,
		StartedAt:      seedTime,
		Considered:     2,
		Eligible:       1,
		MaxIdleSeconds: 3600,
	}
	for _, a := range assignments {
		c.Assignments = append(c.Assignments, AssignmentRecord{Assignment: a})
	}
	return c
}

var probeToA1 = tasking.Assignment{AgentID: "PROBE-1", TargetID: "X1-A1", Score: 5, Distance: 5}

// ============================================================================
// Edges, distances, world
// ============================================================================

func TestWriteEdges_SetSemantics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := graph.Edge{Src: "B", Dst: "A"}
	for i := 0; i < 2; i++ {
		if err := s.WriteEdges(ctx, graph.RelationLink, e); err != nil {
			t.Fatalf("WriteEdges() iteration %d failed: %v", i, err)
		}
	}

	rels, err := s.Edges(ctx)
	if err != nil {
		t.Fatalf("Edges() failed: %v", err)
	}
	if len(rels[graph.RelationLink]) != 1 {
		t.Errorf("duplicate edge stored: %+v", rels[graph.RelationLink])
	}
}

func TestWriteEdges_Invalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteEdges(ctx, "", graph.Edge{Src: "B", Dst: "A"}); !errors.Is(err, graph.ErrInvalidEdge) {
		t.Errorf("empty relation: expected ErrInvalidEdge, got %v", err)
	}
	if err := s.WriteEdges(ctx, graph.RelationLink, graph.Edge{Src: " ", Dst: "A"}); !errors.Is(err, graph.ErrInvalidEdge) {
		t.Errorf("blank source: expected ErrInvalidEdge, got %v", err)
	}
}

func TestWriteEdges_NormalizesIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteEdges(ctx, graph.RelationLink,
		graph.Edge{Src: "X1-CAFe\u0301", Dst: "A"},
		graph.Edge{Src: "X1-CAF\u00e9", Dst: "A"},
	); err != nil {
		t.Fatalf("WriteEdges() failed: %v", err)
	}
	rels, err := s.Edges(ctx)
	if err != nil {
		t.Fatalf("Edges() failed: %v", err)
	}
	if len(rels[graph.RelationLink]) != 1 {
		t.Errorf("NFC-equivalent ids stored twice: %+v", rels[graph.RelationLink])
	}
}

func TestWriteDistances_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteDistances(ctx, snapshot.DistanceEntry{From: "A", To: "B", Cost: 3}); err != nil {
		t.Fatalf("WriteDistances() failed: %v", err)
	}
	if err := s.WriteDistances(ctx, snapshot.DistanceEntry{From: "A", To: "B", Cost: 4}); err != nil {
		t.Fatalf("WriteDistances() update failed: %v", err)
	}
	entries, err := s.Distances(ctx)
	if err != nil {
		t.Fatalf("Distances() failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Cost != 4 {
		t.Errorf("expected single updated entry, got %+v", entries)
	}

	if err := s.WriteDistances(ctx, snapshot.DistanceEntry{From: "A", To: "C", Cost: -1}); err == nil {
		t.Error("negative cost should violate the schema check")
	}
}

func TestSeed_Idempotent(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	f, err := DecodeFixture(stringsReader(testFixture))
	if err != nil {
		t.Fatalf("DecodeFixture() failed: %v", err)
	}
	if err := s.Seed(ctx, f); err != nil {
		t.Fatalf("second Seed() failed: %v", err)
	}

	targets, err := s.Targets(ctx, "")
	if err != nil {
		t.Fatalf("Targets() failed: %v", err)
	}
	if len(targets) != 3 {
		t.Errorf("expected 3 targets after reseed, got %d", len(targets))
	}
}

func TestDecodeFixture_UnknownField(t *testing.T) {
	_, err := DecodeFixture(stringsReader("markets: []\nships: []\n"))
	if err == nil {
		t.Fatal("unknown top-level field should be rejected")
	}
}

func TestDecodeFixture_Empty(t *testing.T) {
	f, err := DecodeFixture(stringsReader(""))
	if err != nil {
		t.Fatalf("empty fixture: %v", err)
	}
	if len(f.Markets) != 0 {
		t.Errorf("expected empty fixture, got %+v", f)
	}
}

// ============================================================================
// Cycles
// ============================================================================

func TestRecordCycle_RoundTrip(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}

	got, err := s.ReadCycle(ctx, "c1")
	if err != nil {
		t.Fatalf("ReadCycle() failed: %v", err)
	}
	if got.Controller != "intel" || !got.StartedAt.Equal(seedTime) || got.MaxIdleSeconds != 3600 {
		t.Errorf("cycle header mismatch: %+v", got)
	}
	if len(got.Assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(got.Assignments))
	}
	if got.Assignments[0].Assignment != probeToA1 || got.Assignments[0].Status != StatusPending {
		t.Errorf("assignment mismatch: %+v", got.Assignments[0])
	}

	ids, err := s.InFlight(ctx)
	if err != nil {
		t.Fatalf("InFlight() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "X1-A1" {
		t.Errorf("InFlight() = %v, want [X1-A1]", ids)
	}

	l, err := s.Lock(ctx, "PROBE-1")
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if l.Controller != "intel" || l.Priority != 3 {
		t.Errorf("assigned agent not locked to controller: %+v", l)
	}
}

func TestRecordCycle_EmptyCycle(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	if err := s.RecordCycle(ctx, testCycle("c1")); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	got, err := s.ReadCycle(ctx, "c1")
	if err != nil {
		t.Fatalf("ReadCycle() failed: %v", err)
	}
	if got.Assignments == nil || len(got.Assignments) != 0 {
		t.Errorf("expected empty non-nil assignments, got %#v", got.Assignments)
	}
}

func TestRecordCycle_OutrankedRollsBack(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	// PROBE-2 is held by trader at priority 5.
	c := testCycle("c1", probeToA1, tasking.Assignment{AgentID: "PROBE-2", TargetID: "X1-B2", Score: 1, Distance: 1})
	err := s.RecordCycle(ctx, c)
	if !errors.Is(err, fleet.ErrOutranked) {
		t.Fatalf("expected ErrOutranked, got %v", err)
	}

	if _, err := s.ReadCycle(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cycle should not be recorded: %v", err)
	}
	l, err := s.Lock(ctx, "PROBE-1")
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if !l.Released() {
		t.Errorf("PROBE-1 lock should be rolled back, got %+v", l)
	}
}

func TestComplete_StampsMarket(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	doneAt := seedTime.Add(10 * time.Minute)
	if err := s.Complete(ctx, "c1", "PROBE-1", doneAt, true); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	ids, err := s.InFlight(ctx)
	if err != nil {
		t.Fatalf("InFlight() failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("completed target still in flight: %v", ids)
	}

	targets, err := s.Targets(ctx, "X1")
	if err != nil {
		t.Fatalf("Targets() failed: %v", err)
	}
	if !targets[0].LastRefreshedAt.Equal(doneAt) {
		t.Errorf("X1-A1 refreshed = %v, want %v", targets[0].LastRefreshedAt, doneAt)
	}

	got, err := s.ReadCycle(ctx, "c1")
	if err != nil {
		t.Fatalf("ReadCycle() failed: %v", err)
	}
	if got.Assignments[0].Status != StatusDone || !got.Assignments[0].CompletedAt.Equal(doneAt) {
		t.Errorf("assignment not closed: %+v", got.Assignments[0])
	}

	if err := s.Complete(ctx, "c1", "PROBE-1", doneAt, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Complete() should be ErrNotFound, got %v", err)
	}
}

func TestComplete_FailedLeavesMarketStale(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	if err := s.Complete(ctx, "c1", "PROBE-1", seedTime, false); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	targets, err := s.Targets(ctx, "X1")
	if err != nil {
		t.Fatalf("Targets() failed: %v", err)
	}
	want := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if !targets[0].LastRefreshedAt.Equal(want) {
		t.Errorf("failed refresh changed market time to %v", targets[0].LastRefreshedAt)
	}
}

func TestComplete_ReleasesLock(t *testing.T) {
	for _, ok := range []bool{true, false} {
		s := seedTestStore(t)
		ctx := context.Background()

		if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
			t.Fatalf("RecordCycle() failed: %v", err)
		}
		if err := s.Complete(ctx, "c1", "PROBE-1", seedTime, ok); err != nil {
			t.Fatalf("Complete(ok=%v) failed: %v", ok, err)
		}

		l, err := s.Lock(ctx, "PROBE-1")
		if err != nil {
			t.Fatalf("Lock() failed: %v", err)
		}
		if !l.Released() {
			t.Errorf("ok=%v: lock still held after completion: %+v", ok, l)
		}

		// A lower priority controller can take the agent again.
		d, err := s.Request(ctx, "PROBE-1", "trader", 1)
		if err != nil || !d.Granted {
			t.Errorf("ok=%v: Request() after completion = %+v, %v", ok, d, err)
		}
	}
}

func TestComplete_KeepsHandedOverLock(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	if _, err := s.Request(ctx, "PROBE-1", "trader", 6); err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if err := s.Complete(ctx, "c1", "PROBE-1", seedTime, true); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	l, err := s.Lock(ctx, "PROBE-1")
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if l.Controller != "trader" || l.Priority != 6 {
		t.Errorf("other controller's lock released: %+v", l)
	}
}

func TestComplete_KeepsBlockedLock(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	if err := s.SetBlocked(ctx, "PROBE-1", true); err != nil {
		t.Fatalf("SetBlocked() failed: %v", err)
	}
	if err := s.Complete(ctx, "c1", "PROBE-1", seedTime, true); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	l, err := s.Lock(ctx, "PROBE-1")
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if l.Controller != "intel" || !l.Blocked {
		t.Errorf("blocked lock released: %+v", l)
	}
}

// ============================================================================
// Dispatched agents
// ============================================================================

func TestDispatched_TracksPendingAssignments(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()

	busy, err := s.Dispatched(ctx)
	if err != nil {
		t.Fatalf("Dispatched() failed: %v", err)
	}
	if busy == nil || len(busy) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", busy)
	}

	if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	busy, err = s.Dispatched(ctx)
	if err != nil {
		t.Fatalf("Dispatched() failed: %v", err)
	}
	if len(busy) != 1 || busy[0] != "PROBE-1" {
		t.Errorf("Dispatched() = %v, want [PROBE-1]", busy)
	}

	if err := s.Complete(ctx, "c1", "PROBE-1", seedTime, false); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	busy, err = s.Dispatched(ctx)
	if err != nil {
		t.Fatalf("Dispatched() failed: %v", err)
	}
	if len(busy) != 0 {
		t.Errorf("completed agent still dispatched: %v", busy)
	}
}

// A second cycle must not hand a dispatched agent another target.
func TestSnapshotLoad_DispatchedAgentAcrossCycles(t *testing.T) {
	s := seedTestStore(t)
	ctx := context.Background()
	opts := snapshot.Options{System: "X1", Controller: "intel", Priority: 3}

	available := func() bool {
		t.Helper()
		snap, err := snapshot.Load(ctx, s, seedTime, opts)
		if err != nil {
			t.Fatalf("snapshot.Load() failed: %v", err)
		}
		for _, a := range snap.Agents {
			if a.ID == "PROBE-1" {
				return a.Available
			}
		}
		t.Fatalf("PROBE-1 missing from snapshot")
		return false
	}

	if !available() {
		t.Fatalf("PROBE-1 should start available")
	}
	if err := s.RecordCycle(ctx, testCycle("c1", probeToA1)); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	if available() {
		t.Errorf("dispatched PROBE-1 offered to the next cycle")
	}
	if err := s.Complete(ctx, "c1", "PROBE-1", seedTime, true); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if !available() {
		t.Errorf("PROBE-1 not available after completion")
	}
}
