package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/probectl/internal/freshness"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/reach"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/tasking"
)

// Direction selects which closure a Scope uses.
type Direction string

const (
	// DirectionDescendants keeps nodes that reach the goal (e.g. markets and
	// goods feeding a production good).
	DirectionDescendants Direction = "descendants"

	// DirectionAncestors keeps nodes the goal reaches.
	DirectionAncestors Direction = "ancestors"
)

// Scope restricts candidates to the reachability set of Goal in Relation.
type Scope struct {
	Relation  graph.RelationType
	Goal      graph.NodeID
	Direction Direction
}

// Planner runs single planning cycles.
type Planner struct {
	Evaluator reach.Evaluator
	Scheduler tasking.Scheduler
	Policy    freshness.Policy

	// Scope is optional; nil considers every target in the snapshot.
	Scope *Scope

	IDs    CycleIDGenerator
	Logger *slog.Logger
}

// NewPlanner returns a planner with the default evaluator, greedy matching,
// the default policy and UUIDv7 cycle ids.
func NewPlanner() *Planner {
	return &Planner{
		Evaluator: reach.Fixpoint{},
		Policy:    freshness.DefaultPolicy(),
		IDs:       UUIDv7Generator{},
	}
}

// Result is the complete output of one cycle.
type Result struct {
	CycleID string    `json:"cycle_id"`
	Now     time.Time `json:"now"`

	// Considered counts targets left after scoping.
	Considered int `json:"considered"`

	// Eligible counts candidates passed to the scheduler.
	Eligible int `json:"eligible"`

	// MaxIdleSeconds is the normalizer used for scores.
	MaxIdleSeconds float64 `json:"max_idle_seconds"`

	Assignments []tasking.Assignment `json:"assignments"`
}

// Plan runs one cycle over snap.
func (p *Planner) Plan(ctx context.Context, snap *snapshot.Snapshot) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := p.logger()
	cycleID := p.ids().Generate()
	if snap == nil {
		return nil, NewInvalidInputError(cycleID, errors.New("nil snapshot"))
	}

	targets, err := p.scopeTargets(snap)
	if err != nil {
		return nil, p.classify(cycleID, err)
	}

	// In-flight targets are not candidates, so they stay out of the normalizer.
	batch, err := p.Policy.EligibleExcept(targets, snap.Now, snap.InFlight)
	if err != nil {
		return nil, p.classify(cycleID, err)
	}

	candidates := make([]tasking.Candidate, 0, batch.Len())
	for _, c := range batch.Candidates {
		candidates = append(candidates, tasking.Candidate{
			TargetID:    c.Target.ID,
			Location:    c.Target.Where(),
			IdleSeconds: c.IdleSeconds,
		})
	}

	assignments, err := p.Scheduler.Assign(snap.Agents, candidates, snap.Distances, batch)
	if err != nil {
		return nil, p.classify(cycleID, err)
	}

	// A cycle cancelled mid-way is discarded whole.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug("cycle planned",
		"cycle", cycleID,
		"targets", len(snap.Targets),
		"considered", len(targets),
		"eligible", len(candidates),
		"assignments", len(assignments),
	)

	return &Result{
		CycleID:        cycleID,
		Now:            snap.Now,
		Considered:     len(targets),
		Eligible:       len(candidates),
		MaxIdleSeconds: batch.MaxIdle,
		Assignments:    assignments,
	}, nil
}

// scopeTargets keeps the targets inside the configured reachability set.
func (p *Planner) scopeTargets(snap *snapshot.Snapshot) ([]freshness.Target, error) {
	if p.Scope == nil {
		return snap.Targets, nil
	}
	allowed, err := p.Reachable(snap.Relations.Relation(p.Scope.Relation), p.Scope.Goal, p.Scope.Direction)
	if err != nil {
		return nil, err
	}
	var out []freshness.Target
	for _, t := range snap.Targets {
		if allowed[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// Reachable returns the closure of goal in rel for the given direction.
func (p *Planner) Reachable(rel *graph.Relation, goal graph.NodeID, dir Direction) (map[graph.NodeID]bool, error) {
	ev := p.Evaluator
	if ev == nil {
		ev = reach.Fixpoint{}
	}
	var (
		set reach.Set
		err error
	)
	switch dir {
	case DirectionAncestors:
		set, err = ev.Ancestors(rel)
	case DirectionDescendants, "":
		set, err = ev.Descendants(rel)
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", tasking.ErrInvalidInput, dir)
	}
	if err != nil {
		return nil, err
	}
	allowed := make(map[graph.NodeID]bool)
	for _, n := range set.Of(goal) {
		allowed[n] = true
	}
	return allowed, nil
}

func (p *Planner) classify(cycleID string, err error) error {
	if errors.Is(err, reach.ErrNonTerminating) {
		p.logger().Error("closure did not converge", "cycle", cycleID, "error", err)
		return NewNonTerminatingError(cycleID, err)
	}
	return NewInvalidInputError(cycleID, err)
}

func (p *Planner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Planner) ids() CycleIDGenerator {
	if p.IDs != nil {
		return p.IDs
	}
	return UUIDv7Generator{}
}
