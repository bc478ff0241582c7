package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/probectl/internal/engine"
	"github.com/roach88/probectl/internal/graph"
)

// PlanSnapshot is the golden form of a scenario run.
type PlanSnapshot struct {
	ScenarioName string                                     `json:"scenario_name"`
	Plan         *engine.Result                             `json:"plan,omitempty"`
	ErrorCode    string                                     `json:"error_code,omitempty"`
	Reach        map[string]map[graph.NodeID][]graph.NodeID `json:"reach,omitempty"`
}

// MarshalSnapshot renders a snapshot as indented JSON with a trailing newline.
// encoding/json sorts map keys, so the output is stable across runs.
func MarshalSnapshot(s PlanSnapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario, fails the test on assertion errors and
// compares the plan against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	AssertGolden(t, scenario.Name, PlanSnapshot{
		ScenarioName: scenario.Name,
		Plan:         result.Plan,
		ErrorCode:    result.ErrorCode,
		Reach:        result.Reach,
	})
	return nil
}

// AssertGolden compares a snapshot against its golden file.
func AssertGolden(t *testing.T, name string, s PlanSnapshot) {
	t.Helper()

	data, err := MarshalSnapshot(s)
	if err != nil {
		t.Fatalf("failed to marshal snapshot %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
