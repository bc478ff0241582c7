package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/tasking"
)

// AssertionError is returned when an assertion fails.
// It carries the plan so the failure can be read without rerunning.
type AssertionError struct {
	Type        string
	Expected    string
	Actual      string
	Assignments []tasking.Assignment
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Assignments) > 0 {
		fmt.Fprintf(&buf, "\nAssignments:\n")
		for i, a := range e.Assignments {
			fmt.Fprintf(&buf, "  [%d] %s -> %s score=%g distance=%g\n", i+1, a.AgentID, a.TargetID, a.Score, a.Distance)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs all assertions against a result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d] (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	if a.Type == AssertError {
		return assertError(result, a)
	}
	if result.Plan == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: "a completed cycle",
			Actual:   "cycle failed with " + result.ErrorCode,
		}
	}

	switch a.Type {
	case AssertAssigned:
		return assertAssigned(result.Plan.Assignments, a)
	case AssertNotAssigned:
		return assertNotAssigned(result.Plan.Assignments, a)
	case AssertAssignmentCount:
		return assertCount(a.Type, a.Count, len(result.Plan.Assignments), result.Plan.Assignments)
	case AssertEligible:
		return assertCount(a.Type, a.Count, result.Plan.Eligible, result.Plan.Assignments)
	case AssertConsidered:
		return assertCount(a.Type, a.Count, result.Plan.Considered, result.Plan.Assignments)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertAssigned(assignments []tasking.Assignment, a Assertion) error {
	agent, target := graph.NormalizeID(a.Agent), graph.NormalizeID(a.Target)
	for _, got := range assignments {
		if got.AgentID != agent || got.TargetID != target {
			continue
		}
		if a.Score != nil && got.Score != *a.Score {
			return &AssertionError{
				Type:        AssertAssigned,
				Expected:    fmt.Sprintf("%s -> %s with score %g", agent, target, *a.Score),
				Actual:      fmt.Sprintf("score %g", got.Score),
				Assignments: assignments,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:        AssertAssigned,
		Expected:    fmt.Sprintf("%s -> %s", agent, target),
		Actual:      "not assigned",
		Assignments: assignments,
	}
}

func assertNotAssigned(assignments []tasking.Assignment, a Assertion) error {
	agent, target := graph.NormalizeID(a.Agent), graph.NormalizeID(a.Target)
	for _, got := range assignments {
		agentHit := agent == "" || got.AgentID == agent
		targetHit := target == "" || got.TargetID == target
		if agentHit && targetHit {
			return &AssertionError{
				Type:        AssertNotAssigned,
				Expected:    fmt.Sprintf("no assignment matching agent=%q target=%q", agent, target),
				Actual:      fmt.Sprintf("%s -> %s", got.AgentID, got.TargetID),
				Assignments: assignments,
			}
		}
	}
	return nil
}

func assertCount(kind string, want, got int, assignments []tasking.Assignment) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:        kind,
		Expected:    fmt.Sprintf("%d", want),
		Actual:      fmt.Sprintf("%d", got),
		Assignments: assignments,
	}
}

func assertError(result *Result, a Assertion) error {
	if result.ErrorCode == a.Code {
		return nil
	}
	actual := result.ErrorCode
	if actual == "" {
		actual = "cycle succeeded"
	}
	return &AssertionError{Type: AssertError, Expected: a.Code, Actual: actual}
}

// compareReach checks a computed closure against the expected one. Bases
// with an empty expected list are treated as absent.
func compareReach(key string, expect map[string][]string, got map[graph.NodeID][]graph.NodeID) error {
	want := make(map[graph.NodeID][]graph.NodeID, len(expect))
	for base, nodes := range expect {
		if len(nodes) == 0 {
			continue
		}
		ids := make([]graph.NodeID, 0, len(nodes))
		for _, n := range nodes {
			ids = append(ids, graph.NormalizeID(n))
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		want[graph.NormalizeID(base)] = ids
	}
	if diff := cmp.Diff(want, got); diff != "" {
		return fmt.Errorf("reach %s mismatch (-want +got):\n%s", key, diff)
	}
	return nil
}
