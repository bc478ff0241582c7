package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/probectl/internal/engine"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/reach"
)

// ReachOptions holds flags for the reach command.
type ReachOptions struct {
	*RootOptions
	Database  string
	Relation  string
	Node      string
	Ancestors bool
	Evaluator string
}

// ReachResult is a reachability set keyed by base node.
type ReachResult struct {
	Relation  string                          `json:"relation"`
	Direction engine.Direction                `json:"direction"`
	Roots     []graph.NodeID                  `json:"roots"`
	Sets      map[graph.NodeID][]graph.NodeID `json:"sets"`
}

// WriteText implements TextWriter.
func (r ReachResult) WriteText(w io.Writer) error {
	if len(r.Sets) == 0 {
		_, err := fmt.Fprintf(w, "No reachable nodes in relation %q\n", r.Relation)
		return err
	}
	bases := make([]string, 0, len(r.Sets))
	for b := range r.Sets {
		bases = append(bases, string(b))
	}
	sort.Strings(bases)
	for _, b := range bases {
		nodes := r.Sets[graph.NodeID(b)]
		parts := make([]string, len(nodes))
		for i, n := range nodes {
			parts[i] = string(n)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", b, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}

// NewReachCommand creates the reach command.
func NewReachCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReachOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reach",
		Short: "Print the reachability closure of a relation",
		Long: `Compute which nodes reach each node of a stored relation.

By default every base node lists the nodes that reach it (descendants). With
--ancestors every node lists the nodes it reaches instead.

Examples:
  probectl reach --db ./probectl.db --relation supply
  probectl reach --db ./probectl.db --relation supply --node FAB_MATS
  probectl reach --db ./probectl.db --relation supply --ancestors --evaluator datalog`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReach(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Relation, "relation", string(graph.RelationSupply), "relation type")
	cmd.Flags().StringVar(&opts.Node, "node", "", "print only this base node")
	cmd.Flags().BoolVar(&opts.Ancestors, "ancestors", false, "compute ancestors instead of descendants")
	cmd.Flags().StringVar(&opts.Evaluator, "evaluator", "fixpoint", "closure evaluator (fixpoint|datalog)")

	return cmd
}

func runReach(opts *ReachOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	var ev reach.Evaluator
	switch opts.Evaluator {
	case "fixpoint":
		ev = reach.Fixpoint{}
	case "datalog":
		ev = reach.Datalog{}
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown evaluator %q", opts.Evaluator))
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	edges, err := st.Edges(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read edges", err)
	}
	rt := graph.RelationType(opts.Relation)
	rel, err := graph.NewRelation(edges[rt]...)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid relation", err)
	}

	res := ReachResult{
		Relation:  opts.Relation,
		Direction: engine.DirectionDescendants,
		Roots:     reach.Roots(rel),
		Sets:      map[graph.NodeID][]graph.NodeID{},
	}
	var set reach.Set
	if opts.Ancestors {
		res.Direction = engine.DirectionAncestors
		res.Roots = reach.Leaves(rel)
		set, err = ev.Ancestors(rel)
	} else {
		set, err = ev.Descendants(rel)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "closure failed", err)
	}
	if res.Roots == nil {
		res.Roots = []graph.NodeID{}
	}

	for _, b := range set.Bases() {
		if opts.Node != "" && b != graph.NormalizeID(opts.Node) {
			continue
		}
		res.Sets[b] = set.Of(b)
	}
	return newFormatter(opts.RootOptions, cmd).Success(res)
}
