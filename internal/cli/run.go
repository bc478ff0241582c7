package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/probectl/internal/config"
	"github.com/roach88/probectl/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigFlags
	Database string
	Watch    bool
	DryRun   bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan cycles on an interval until interrupted",
		Long: `Start the planning loop: one cycle immediately, then one per interval.

With --watch the config file is reloaded when it changes; the new settings
apply from the next cycle. The interval itself is fixed at startup.

Example:
  probectl run --db ./probectl.db --config ./probectl.yaml
  probectl run --db ./probectl.db --config ./probectl.yaml --watch --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload the config file on change")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print plans without recording them")
	opts.ConfigFlags.register(cmd)

	return cmd
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	if opts.Watch && opts.Path == "" {
		return NewExitError(ExitCommandError, "--watch requires --config")
	}
	out := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.ConfigFlags.load(cmd)
	if err != nil {
		return fail(out, ExitCommandError, "failed to load config", err)
	}
	planner, err := cfg.Planner(slog.Default())
	if err != nil {
		return fail(out, ExitCommandError, "failed to build planner", err)
	}

	slog.Info("opening database", "path", opts.Database)
	st, err := openStore(opts.Database)
	if err != nil {
		_ = out.Failure(err)
		return err
	}
	defer closeStore(st)

	var mu sync.RWMutex
	current := func() config.Config {
		mu.RLock()
		defer mu.RUnlock()
		return cfg
	}

	loop := engine.NewLoop(planner, storeSnapshot(st, current), &storeDispatcher{
		st:     st,
		cfg:    current,
		out:    out,
		dryRun: opts.DryRun,
	}, cfg.Interval())
	loop.Logger = slog.Default()

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	if opts.Watch {
		w, err := config.NewWatcher(opts.Path, func(next config.Config) {
			next, err := opts.ConfigFlags.apply(cmd, next)
			if err != nil {
				slog.Warn("config reload rejected", "error", err)
				return
			}
			p, err := next.Planner(slog.Default())
			if err != nil {
				slog.Warn("config reload rejected", "error", err)
				return
			}
			mu.Lock()
			cfg = next
			mu.Unlock()
			loop.SetPlanner(p)
		})
		if err != nil {
			return fail(out, ExitCommandError, "failed to watch config", err)
		}
		w.Logger = slog.Default()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(ctx)
		}()
	}

	slog.Info("loop starting", "db", opts.Database, "interval", loop.Interval, "controller", current().Controller)
	err = loop.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fail(out, cycleExitCode(err), "loop stopped", err)
	}

	slog.Info("loop stopped gracefully", "cycles", loop.Cycles())
	fmt.Fprintf(cmd.ErrOrStderr(), "Stopped after %d cycles.\n", loop.Cycles())
	return nil
}
