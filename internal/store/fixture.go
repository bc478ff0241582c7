package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/probectl/internal/fleet"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/snapshot"
)

// Fixture is a world description loaded by `probectl seed` and by scenario
// tests.
type Fixture struct {
	Edges     map[graph.RelationType][]FixtureEdge `yaml:"edges"`
	Distances []snapshot.DistanceEntry             `yaml:"distances"`
	Markets   []Market                             `yaml:"markets"`
	Agents    []Agent                              `yaml:"agents"`
	Locks     []FixtureLock                        `yaml:"locks"`
}

// FixtureEdge is one edge in fixture form.
type FixtureEdge struct {
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`
}

// FixtureLock presets an agent lock.
type FixtureLock struct {
	Agent      string `yaml:"agent"`
	Controller string `yaml:"controller"`
	Priority   int    `yaml:"priority"`
	Blocked    bool   `yaml:"blocked"`
}

// DecodeFixture parses a YAML fixture. Unknown fields are rejected.
func DecodeFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return Fixture{}, nil
		}
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer fh.Close()
	return DecodeFixture(fh)
}

// Seed writes a fixture in one transaction. Existing rows are updated, so
// seeding the same fixture twice leaves the store unchanged.
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	return s.inTx(ctx, "seed", func(tx *sql.Tx) error {
		for rt, es := range f.Edges {
			edges := make([]graph.Edge, 0, len(es))
			for _, e := range es {
				edges = append(edges, graph.Edge{Src: graph.NodeID(e.Src), Dst: graph.NodeID(e.Dst)})
			}
			if err := writeEdges(ctx, tx, rt, edges); err != nil {
				return fmt.Errorf("relation %s: %w", rt, err)
			}
		}
		if err := writeDistances(ctx, tx, f.Distances); err != nil {
			return err
		}
		for _, m := range f.Markets {
			if err := writeMarket(ctx, tx, m); err != nil {
				return fmt.Errorf("market %s: %w", m.Symbol, err)
			}
		}
		for _, a := range f.Agents {
			if err := writeAgent(ctx, tx, a); err != nil {
				return fmt.Errorf("agent %s: %w", a.Symbol, err)
			}
		}
		for _, l := range f.Locks {
			if err := writeLock(ctx, tx, fleet.Lock{
				AgentID:    graph.NormalizeID(l.Agent),
				Controller: l.Controller,
				Priority:   l.Priority,
				Blocked:    l.Blocked,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
