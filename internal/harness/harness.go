package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/probectl/internal/config"
	"github.com/roach88/probectl/internal/engine"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/reach"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/store"
	"github.com/roach88/probectl/internal/tasking"
	"github.com/roach88/probectl/internal/testutil"
)

// pendingCycleID identifies the cycle that holds a scenario's pending
// assignments.
const pendingCycleID = "pending-cycle"

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion and reach check held.
	Pass bool `json:"pass"`

	// Plan is nil when the cycle failed.
	Plan *engine.Result `json:"plan,omitempty"`

	// ErrorCode is set when the cycle failed with a runtime error.
	ErrorCode string `json:"error_code,omitempty"`

	// Reach holds the computed closures keyed by "relation/direction".
	Reach map[string]map[graph.NodeID][]graph.NodeID `json:"reach,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Setup problems (a bad
// fixture or config) are returned as errors; cycle failures are recorded in
// the result so that error assertions can inspect them.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenario.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Seed(ctx, scenario.Fixture); err != nil {
		return nil, fmt.Errorf("failed to seed fixture: %w", err)
	}
	if err := recordPending(ctx, st, cfg, scenario); err != nil {
		return nil, fmt.Errorf("failed to record pending assignments: %w", err)
	}

	planner, err := cfg.Planner(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, fmt.Errorf("failed to build planner: %w", err)
	}
	planner.IDs = testutil.NewFixedCycleGenerator(scenario.CycleID)

	result := NewResult()

	snap, err := snapshot.Load(ctx, st, scenario.Now, cfg.SnapshotOptions())
	if err == nil {
		result.Plan, err = planner.Plan(ctx, snap)
	}
	if err != nil {
		code, ok := errorCode(err)
		if !ok {
			return nil, fmt.Errorf("failed to plan: %w", err)
		}
		result.ErrorCode = code
	}

	if len(scenario.Reach) > 0 {
		if snap == nil {
			result.AddError("reach checks need a loadable snapshot")
		} else {
			checkReach(result, cfg.Evaluator(), snap.Relations, scenario.Reach)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// recordPending stores the scenario's in-flight assignments as an earlier
// cycle of the configured controller.
func recordPending(ctx context.Context, st *store.Store, cfg config.Config, scenario *Scenario) error {
	if len(scenario.Pending) == 0 {
		return nil
	}
	c := store.Cycle{
		ID:         pendingCycleID,
		Controller: cfg.Controller,
		Priority:   cfg.Priority,
		StartedAt:  scenario.Now,
	}
	for _, p := range scenario.Pending {
		c.Assignments = append(c.Assignments, store.AssignmentRecord{
			Assignment: tasking.Assignment{
				AgentID:  graph.NormalizeID(p.Agent),
				TargetID: graph.NormalizeID(p.Target),
			},
		})
	}
	return st.RecordCycle(ctx, c)
}

// errorCode maps cycle failures to runtime error codes.
func errorCode(err error) (string, bool) {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code), true
	}
	if errors.Is(err, snapshot.ErrInvalidInput) {
		return string(engine.ErrCodeInvalidInput), true
	}
	return "", false
}

func checkReach(result *Result, ev reach.Evaluator, relations *graph.Store, checks []ReachCheck) {
	result.Reach = make(map[string]map[graph.NodeID][]graph.NodeID, len(checks))
	for _, check := range checks {
		dir := check.Direction
		if dir == "" {
			dir = string(engine.DirectionDescendants)
		}
		key := check.Relation + "/" + dir

		rel := relations.Relation(graph.RelationType(check.Relation))
		var (
			set reach.Set
			err error
		)
		if dir == string(engine.DirectionAncestors) {
			set, err = ev.Ancestors(rel)
		} else {
			set, err = ev.Descendants(rel)
		}
		if err != nil {
			result.AddError(fmt.Sprintf("reach %s: %v", key, err))
			continue
		}
		got := set.Map()
		result.Reach[key] = got
		if err := compareReach(key, check.Expect, got); err != nil {
			result.AddError(err.Error())
		}
	}
}
