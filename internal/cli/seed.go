package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/probectl/internal/store"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
}

// SeedResult summarizes a loaded fixture.
type SeedResult struct {
	Edges     int `json:"edges"`
	Distances int `json:"distances"`
	Markets   int `json:"markets"`
	Agents    int `json:"agents"`
	Locks     int `json:"locks"`
}

// WriteText implements TextWriter.
func (r SeedResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Seeded %d edges, %d distances, %d markets, %d agents, %d locks\n",
		r.Edges, r.Distances, r.Markets, r.Agents, r.Locks)
	return err
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load a world fixture into the database",
		Long: `Load relations, distances, markets, agents and locks from a YAML fixture.

Rows that already exist are updated, so seeding the same fixture twice is
harmless.

Example:
  probectl seed --db ./probectl.db ./world.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSeed(opts *SeedOptions, path string, cmd *cobra.Command) error {
	f, err := store.LoadFixture(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixture", err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.Seed(context.Background(), f); err != nil {
		return WrapExitError(ExitCommandError, "failed to seed database", err)
	}

	res := SeedResult{
		Distances: len(f.Distances),
		Markets:   len(f.Markets),
		Agents:    len(f.Agents),
		Locks:     len(f.Locks),
	}
	for _, es := range f.Edges {
		res.Edges += len(es)
	}
	slog.Info("fixture seeded", "path", path, "markets", res.Markets, "agents", res.Agents)
	return newFormatter(opts.RootOptions, cmd).Success(res)
}
