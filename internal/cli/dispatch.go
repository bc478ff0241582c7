package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/probectl/internal/config"
	"github.com/roach88/probectl/internal/engine"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/store"
)

// PlanOutput renders a cycle result.
type PlanOutput struct {
	*engine.Result
	Recorded bool `json:"recorded"`
}

// Cycle returns the cycle id for CLIResponse.
func (p PlanOutput) Cycle() string {
	return p.CycleID
}

// WriteText implements TextWriter.
func (p PlanOutput) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Cycle %s at %s\n", p.CycleID, p.Now.Format(time.RFC3339))
	fmt.Fprintf(w, "  considered %d, eligible %d, max idle %.0fs\n", p.Considered, p.Eligible, p.MaxIdleSeconds)
	if len(p.Assignments) == 0 {
		_, err := fmt.Fprintln(w, "  no assignments")
		return err
	}
	for _, a := range p.Assignments {
		if _, err := fmt.Fprintf(w, "  %s -> %s  distance %g  score %g\n", a.AgentID, a.TargetID, a.Distance, a.Score); err != nil {
			return err
		}
	}
	return nil
}

// storeDispatcher records each cycle, claims the assigned agents and prints
// the result.
type storeDispatcher struct {
	st     *store.Store
	cfg    func() config.Config
	out    *OutputFormatter
	dryRun bool
}

// Dispatch implements engine.Dispatcher.
func (d *storeDispatcher) Dispatch(ctx context.Context, res *engine.Result) error {
	cfg := d.cfg()
	if !d.dryRun {
		c := store.Cycle{
			ID:             res.CycleID,
			Controller:     cfg.Controller,
			Priority:       cfg.Priority,
			StartedAt:      res.Now,
			Considered:     res.Considered,
			Eligible:       res.Eligible,
			MaxIdleSeconds: res.MaxIdleSeconds,
		}
		for _, a := range res.Assignments {
			c.Assignments = append(c.Assignments, store.AssignmentRecord{Assignment: a})
		}
		if err := d.st.RecordCycle(ctx, c); err != nil {
			return err
		}
		slog.Debug("cycle recorded", "cycle", res.CycleID, "controller", cfg.Controller)
	}
	return d.out.Success(PlanOutput{Result: res, Recorded: !d.dryRun})
}

// storeSnapshot loads cycle input from the store with the current config.
func storeSnapshot(st *store.Store, cfg func() config.Config) engine.SnapshotFunc {
	return func(ctx context.Context, now time.Time) (*snapshot.Snapshot, error) {
		return snapshot.Load(ctx, st, now, cfg().SnapshotOptions())
	}
}
