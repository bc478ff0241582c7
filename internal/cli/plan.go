package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/probectl/internal/config"
	"github.com/roach88/probectl/internal/engine"
	"github.com/roach88/probectl/internal/snapshot"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	ConfigFlags
	Database string
	Now      string
	DryRun   bool

	// IDs allows overriding the cycle id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs engine.CycleIDGenerator
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlanCommand(&PlanOptions{RootOptions: rootOpts})
}

func newPlanCommand(opts *PlanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Run one planning cycle",
		Long: `Run a single planning cycle against the database and print the assignments.

The cycle is recorded and the assigned probes are locked to the controller
unless --dry-run is given. --now replays the cycle at a fixed instant.

Exit codes:
  0 - Cycle planned (possibly with no assignments)
  1 - Cycle failed (invalid world data, closure did not converge)
  2 - Command error (bad config, database not found, etc.)

Examples:
  probectl plan --db ./probectl.db
  probectl plan --db ./probectl.db --config ./probectl.yaml --format json
  probectl plan --db ./probectl.db --now 2026-03-01T12:00:00Z --dry-run`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Now, "now", "", "cycle time as RFC3339 (defaults to the wall clock)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the plan without recording it")
	opts.ConfigFlags.register(cmd)

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.ConfigFlags.load(cmd)
	if err != nil {
		return fail(out, ExitCommandError, "failed to load config", err)
	}

	var clock engine.Clock = engine.SystemClock{}
	if opts.Now != "" {
		now, err := time.Parse(time.RFC3339, opts.Now)
		if err != nil {
			return fail(out, ExitCommandError, fmt.Sprintf("invalid --now %q", opts.Now), err)
		}
		clock = engine.FixedClock(now.UTC())
	}

	planner, err := cfg.Planner(nil)
	if err != nil {
		return fail(out, ExitCommandError, "failed to build planner", err)
	}
	if opts.IDs != nil {
		planner.IDs = opts.IDs
	}

	st, err := openStore(opts.Database)
	if err != nil {
		_ = out.Failure(err)
		return err
	}
	defer closeStore(st)

	current := func() config.Config { return cfg }
	loop := engine.NewLoop(planner, storeSnapshot(st, current), &storeDispatcher{
		st:     st,
		cfg:    current,
		out:    out,
		dryRun: opts.DryRun,
	}, cfg.Interval())
	loop.Clock = clock

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := loop.Once(ctx); err != nil {
		return fail(out, cycleExitCode(err), "cycle failed", err)
	}
	return nil
}

// cycleExitCode separates bad world data and engine faults from
// environment problems.
func cycleExitCode(err error) int {
	if engine.IsInvalidInput(err) || engine.IsInternal(err) || errors.Is(err, snapshot.ErrInvalidInput) {
		return ExitFailure
	}
	return ExitCommandError
}
