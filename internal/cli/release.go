package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ReleaseOptions holds flags for the release command.
type ReleaseOptions struct {
	*RootOptions
	Database   string
	Controller string
	Force      bool
}

// ReleaseResult counts released agents.
type ReleaseResult struct {
	Controller string `json:"controller"`
	Released   int    `json:"released"`
}

// WriteText implements TextWriter.
func (r ReleaseResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Released %d agents held by %s\n", r.Released, r.Controller)
	return err
}

// NewReleaseCommand creates the release command.
func NewReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReleaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release every agent a controller holds",
		Long: `Release the agent locks held by a controller so other controllers can claim them.

Blocked agents are skipped unless --force is given.

Example:
  probectl release --db ./probectl.db --controller market-intel
  probectl release --db ./probectl.db --controller market-intel --force`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelease(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Controller, "controller", "", "controller name (required)")
	_ = cmd.MarkFlagRequired("controller")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "release blocked agents too")

	return cmd
}

func runRelease(opts *ReleaseOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	n, err := st.ReleaseFleet(context.Background(), opts.Controller, opts.Force)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to release fleet", err)
	}
	return newFormatter(opts.RootOptions, cmd).Success(ReleaseResult{Controller: opts.Controller, Released: n})
}
