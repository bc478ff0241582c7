package reach

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/roach88/probectl/internal/graph"
)

// reachRules is the closure as a Datalog program over edge/2 facts.
// reach(S, B) holds when S reaches B through one or more edges.
const reachRules = `
reach(S, B) :- edge(S, B).
reach(S, B) :- edge(S, M), reach(M, B).
`

// Datalog evaluates the closure with the Mangle engine.
type Datalog struct{}

// Descendants implements Evaluator.
func (Datalog) Descendants(rel *graph.Relation) (Set, error) {
	if rel == nil {
		return Set{}, ErrNilRelation
	}
	return evalMangle(rel)
}

// Ancestors implements Evaluator.
func (Datalog) Ancestors(rel *graph.Relation) (Set, error) {
	if rel == nil {
		return Set{}, ErrNilRelation
	}
	return evalMangle(rel.Reversed())
}

func evalMangle(rel *graph.Relation) (Set, error) {
	result := newSet()
	// edge/2 would be undefined without facts.
	if rel.Len() == 0 {
		return result, nil
	}

	unit, err := parse.Unit(strings.NewReader(program(rel)))
	if err != nil {
		return Set{}, fmt.Errorf("parse closure program: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return Set{}, fmt.Errorf("analyze closure program: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	if _, err := mengine.EvalProgramWithStats(programInfo, store); err != nil {
		return Set{}, fmt.Errorf("evaluate closure program: %w", err)
	}

	query := ast.NewQuery(ast.PredicateSym{Symbol: "reach", Arity: 2})
	err = store.GetFacts(query, func(atom ast.Atom) error {
		node, err := stringArg(atom, 0)
		if err != nil {
			return err
		}
		base, err := stringArg(atom, 1)
		if err != nil {
			return err
		}
		result.add(Pair{Node: node, Base: base})
		return nil
	})
	if err != nil {
		return Set{}, fmt.Errorf("read closure facts: %w", err)
	}
	return result, nil
}

// program renders the edges as facts followed by the rules.
func program(rel *graph.Relation) string {
	var b strings.Builder
	for _, e := range rel.Edges() {
		fmt.Fprintf(&b, "edge(%s, %s).\n", strconv.Quote(string(e.Src)), strconv.Quote(string(e.Dst)))
	}
	b.WriteString(reachRules)
	return b.String()
}

func stringArg(atom ast.Atom, i int) (graph.NodeID, error) {
	c, ok := atom.Args[i].(ast.Constant)
	if !ok || c.Type != ast.StringType {
		return "", fmt.Errorf("unexpected term %v in %s", atom.Args[i], atom.Predicate.Symbol)
	}
	return graph.NodeID(c.Symbol), nil
}
