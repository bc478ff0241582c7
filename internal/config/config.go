// Package config loads and validates controller configuration.
//
// Configuration is YAML, decoded strictly (unknown fields are errors) on top
// of Default, then checked against an embedded CUE schema so range and enum
// violations are reported with their field path.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/probectl/internal/engine"
	"github.com/roach88/probectl/internal/freshness"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/reach"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/tasking"
)

//go:embed schema.cue
var schemaCUE string

// Config is the controller configuration.
type Config struct {
	// System limits planning to one star system. Empty plans every system.
	System string `yaml:"system" json:"system"`

	// Controller names the lock owner for assigned agents.
	Controller string `yaml:"controller" json:"controller"`
	Priority   int    `yaml:"priority" json:"priority"`

	IntervalSeconds int    `yaml:"interval_seconds" json:"interval_seconds"`
	CooldownSeconds int    `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	Filter          string `yaml:"filter" json:"filter"`

	Scope   *Scope  `yaml:"scope,omitempty" json:"scope,omitempty"`
	Scoring Scoring `yaml:"scoring" json:"scoring"`
	Tasking Tasking `yaml:"tasking" json:"tasking"`
	Reach   Reach   `yaml:"reach" json:"reach"`
}

// Scope restricts targets to a reachability set.
type Scope struct {
	Relation  string `yaml:"relation" json:"relation"`
	Goal      string `yaml:"goal" json:"goal"`
	Direction string `yaml:"direction" json:"direction"`
}

// Scoring selects the score normalizer.
type Scoring struct {
	Normalizer          string  `yaml:"normalizer" json:"normalizer"`
	FixedMaxIdleSeconds float64 `yaml:"fixed_max_idle_seconds" json:"fixed_max_idle_seconds"`
}

// Tasking selects the assignment matcher.
type Tasking struct {
	Matcher string `yaml:"matcher" json:"matcher"`
}

// Reach selects the reachability evaluator.
type Reach struct {
	Evaluator string `yaml:"evaluator" json:"evaluator"`
}

// Normalizer and matcher names.
const (
	NormalizerDynamic = "dynamic"
	NormalizerFixed   = "fixed"

	MatcherGreedy  = "greedy"
	MatcherOptimal = "optimal"

	EvaluatorFixpoint = "fixpoint"
	EvaluatorDatalog  = "datalog"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Controller:      "market-intel",
		Priority:        3,
		IntervalSeconds: 60,
		CooldownSeconds: int(freshness.DefaultCooldown / time.Second),
		Filter:          string(freshness.FilterImportExport),
		Scoring:         Scoring{Normalizer: NormalizerDynamic},
		Tasking:         Tasking{Matcher: MatcherGreedy},
		Reach:           Reach{Evaluator: EvaluatorFixpoint},
	}
}

// Load reads and validates a config file.
func Load(path string) (Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	cfg, err := Decode(fh)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses YAML over Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Scope != nil && cfg.Scope.Direction == "" {
		cfg.Scope.Direction = string(engine.DirectionDescendants)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidationError reports every schema violation of a config.
type ValidationError struct {
	Problems []Problem
}

// Problem is one schema violation.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Field, p.Message))
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Validate checks the config against the embedded schema, then the rules
// that span fields.
func (c Config) Validate() error {
	if err := c.validateSchema(); err != nil {
		return err
	}
	return c.validateRelations()
}

// validateRelations checks constraints CUE cannot express per field.
func (c Config) validateRelations() error {
	verr := &ValidationError{}
	// Every eligible market is idle past the cooldown. A cap at or below it
	// clamps them all to the cap and scores collapse to distance.
	if c.Scoring.Normalizer == NormalizerFixed && c.Scoring.FixedMaxIdleSeconds <= float64(c.CooldownSeconds) {
		verr.Problems = append(verr.Problems, Problem{
			Field:   "scoring.fixed_max_idle_seconds",
			Message: fmt.Sprintf("must exceed cooldown_seconds (%d)", c.CooldownSeconds),
		})
	}
	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

func (c Config) validateSchema() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	verr := &ValidationError{}
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		verr.Problems = append(verr.Problems, Problem{
			Field:   fieldPath(e.Path()),
			Message: fmt.Sprintf(format, args...),
		})
	}
	if len(verr.Problems) == 0 {
		verr.Problems = append(verr.Problems, Problem{Field: "config", Message: err.Error()})
	}
	return verr
}

// fieldPath drops the definition label from a CUE path.
func fieldPath(path []string) string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	if len(path) == 0 {
		return "config"
	}
	return strings.Join(path, ".")
}

// Interval returns the cycle interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// SnapshotOptions returns the snapshot scope of the config.
func (c Config) SnapshotOptions() snapshot.Options {
	return snapshot.Options{System: c.System, Controller: c.Controller, Priority: c.Priority}
}

// Policy returns the eligibility and scoring policy.
func (c Config) Policy() (freshness.Policy, error) {
	filter, err := freshness.ParseFilter(c.Filter)
	if err != nil {
		return freshness.Policy{}, err
	}
	p := freshness.Policy{
		Filter:   filter,
		Cooldown: time.Duration(c.CooldownSeconds) * time.Second,
	}
	if c.Scoring.Normalizer == NormalizerFixed {
		p.FixedMaxIdle = c.Scoring.FixedMaxIdleSeconds
	}
	return p, nil
}

// Evaluator returns the configured reachability evaluator.
func (c Config) Evaluator() reach.Evaluator {
	if c.Reach.Evaluator == EvaluatorDatalog {
		return reach.Datalog{}
	}
	return reach.Fixpoint{}
}

// Matcher returns the configured assignment matcher.
func (c Config) Matcher() tasking.Matcher {
	if c.Tasking.Matcher == MatcherOptimal {
		return tasking.Optimal{}
	}
	return tasking.Greedy{}
}

// Planner builds a planner from the config.
func (c Config) Planner(logger *slog.Logger) (*engine.Planner, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, err
	}
	p := engine.NewPlanner()
	p.Evaluator = c.Evaluator()
	p.Scheduler = tasking.Scheduler{Matcher: c.Matcher()}
	p.Policy = policy
	p.Logger = logger
	if c.Scope != nil {
		p.Scope = &engine.Scope{
			Relation:  graph.RelationType(c.Scope.Relation),
			Goal:      graph.NormalizeID(c.Scope.Goal),
			Direction: engine.Direction(c.Scope.Direction),
		}
	}
	return p, nil
}
