package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/probectl/internal/config"
	"github.com/roach88/probectl/internal/store"
)

// Scenario defines one planning scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the cycle time.
	Now time.Time `yaml:"now"`

	// CycleID is the fixed cycle id. Empty uses the testutil default.
	CycleID string `yaml:"cycle_id,omitempty"`

	// Config is a config file body. Omitted fields take their defaults.
	Config yaml.Node `yaml:"config,omitempty"`

	// Fixture is the world seeded into the store before planning.
	Fixture store.Fixture `yaml:"fixture"`

	// Pending lists assignments of an earlier cycle that have not reported
	// back. They are recorded before planning.
	Pending []PendingAssignment `yaml:"pending,omitempty"`

	// Reach lists closures to compute over the seeded relations.
	Reach []ReachCheck `yaml:"reach,omitempty"`

	// Assertions validate the plan.
	Assertions []Assertion `yaml:"assertions"`
}

// PendingAssignment is an in-flight assignment from an earlier cycle.
type PendingAssignment struct {
	Agent  string `yaml:"agent"`
	Target string `yaml:"target"`
}

// ReachCheck is an expected closure of one relation.
type ReachCheck struct {
	Relation string `yaml:"relation"`

	// Direction is "descendants" (default) or "ancestors".
	Direction string `yaml:"direction,omitempty"`

	// Expect maps every base node to the nodes that reach it.
	Expect map[string][]string `yaml:"expect"`
}

// Assertion is a single check against the plan.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Agent  string `yaml:"agent,omitempty"`
	Target string `yaml:"target,omitempty"`

	// Score is compared when set on an assigned assertion.
	Score *float64 `yaml:"score,omitempty"`

	// Count is used by the count assertions.
	Count int `yaml:"count,omitempty"`

	// Code is the expected runtime error code.
	Code string `yaml:"code,omitempty"`
}

// Assertion types.
const (
	AssertAssigned        = "assigned"
	AssertNotAssigned     = "not_assigned"
	AssertAssignmentCount = "assignment_count"
	AssertEligible        = "eligible"
	AssertConsidered      = "considered"
	AssertError           = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario from YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadConfig decodes the scenario config block. An absent block yields the
// validated defaults.
func (s *Scenario) LoadConfig() (config.Config, error) {
	if s.Config.Kind == 0 {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	body, err := yaml.Marshal(&s.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode config block: %w", err)
	}
	return config.Decode(bytes.NewReader(body))
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Now.IsZero() {
		return fmt.Errorf("now is required")
	}

	if len(s.Assertions) == 0 && len(s.Reach) == 0 {
		return fmt.Errorf("assertions or reach checks are required")
	}

	for i, p := range s.Pending {
		if p.Agent == "" || p.Target == "" {
			return fmt.Errorf("pending[%d]: agent and target are required", i)
		}
	}

	for i, r := range s.Reach {
		if r.Relation == "" {
			return fmt.Errorf("reach[%d]: relation is required", i)
		}
		switch r.Direction {
		case "", "descendants", "ancestors":
		default:
			return fmt.Errorf("reach[%d]: unknown direction %q", i, r.Direction)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertAssigned:
		if a.Agent == "" || a.Target == "" {
			return fmt.Errorf("assertions[%d]: agent and target are required for assigned", index)
		}
	case AssertNotAssigned:
		if a.Agent == "" && a.Target == "" {
			return fmt.Errorf("assertions[%d]: agent or target is required for not_assigned", index)
		}
	case AssertAssignmentCount, AssertEligible, AssertConsidered:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
