package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/store"
)

// CompleteOptions holds flags for the complete command.
type CompleteOptions struct {
	*RootOptions
	Database string
	CycleID  string
	Agent    string
	Failed   bool
	At       string
}

// CompleteResult reports a closed assignment.
type CompleteResult struct {
	CycleID string `json:"cycle_id"`
	Agent   string `json:"agent"`
	Status  string `json:"status"`
}

// WriteText implements TextWriter.
func (r CompleteResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Assignment %s/%s marked %s\n", r.CycleID, r.Agent, r.Status)
	return err
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Close a pending assignment",
		Long: `Mark a probe's assignment as done (or failed with --failed).

A done assignment stamps the target market's goods as refreshed, so it leaves
the eligible set until the cooldown has passed. Either way the market is no
longer in flight.

Example:
  probectl complete --db ./probectl.db --cycle 0195... --agent PROBE-1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.CycleID, "cycle", "", "cycle id (required)")
	_ = cmd.MarkFlagRequired("cycle")
	cmd.Flags().StringVar(&opts.Agent, "agent", "", "agent symbol (required)")
	_ = cmd.MarkFlagRequired("agent")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "mark the refresh as failed")
	cmd.Flags().StringVar(&opts.At, "at", "", "completion time as RFC3339 (defaults to the wall clock)")

	return cmd
}

func runComplete(opts *CompleteOptions, cmd *cobra.Command) error {
	at := time.Now().UTC()
	if opts.At != "" {
		t, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --at %q", opts.At), err)
		}
		at = t.UTC()
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	agent := graph.NormalizeID(opts.Agent)
	if err := st.Complete(context.Background(), opts.CycleID, agent, at, !opts.Failed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return WrapExitError(ExitFailure, "no pending assignment", err)
		}
		return WrapExitError(ExitCommandError, "failed to complete assignment", err)
	}

	status := store.StatusDone
	if opts.Failed {
		status = store.StatusFailed
	}
	return newFormatter(opts.RootOptions, cmd).Success(CompleteResult{
		CycleID: opts.CycleID,
		Agent:   string(agent),
		Status:  status,
	})
}
