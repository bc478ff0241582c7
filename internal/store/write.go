package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/probectl/internal/fleet"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/tasking"
)

// Assignment statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Trade types of a market good.
const (
	TradeImport   = "IMPORT"
	TradeExport   = "EXPORT"
	TradeExchange = "EXCHANGE"
)

// Market is one market and its observed goods.
type Market struct {
	Symbol   string `yaml:"symbol"`
	System   string `yaml:"system"`
	Location string `yaml:"location,omitempty"`
	Goods    []Good `yaml:"goods"`
}

// Good is one trade good observation at a market.
type Good struct {
	Symbol string `yaml:"symbol"`
	Type   string `yaml:"type"`

	// RefreshedAt is zero when the good was listed but never priced.
	RefreshedAt time.Time `yaml:"refreshed_at,omitempty"`
}

// Agent is one roster entry.
type Agent struct {
	Symbol    string `yaml:"symbol"`
	System    string `yaml:"system"`
	Location  string `yaml:"location"`
	Available bool   `yaml:"available"`
}

// Cycle is a recorded planning cycle.
type Cycle struct {
	ID             string             `json:"id"`
	Controller     string             `json:"controller"`
	Priority       int                `json:"-"`
	StartedAt      time.Time          `json:"started_at"`
	Considered     int                `json:"considered"`
	Eligible       int                `json:"eligible"`
	MaxIdleSeconds float64            `json:"max_idle_seconds"`
	Assignments    []AssignmentRecord `json:"assignments"`
}

// AssignmentRecord is an assignment with its dispatch state.
type AssignmentRecord struct {
	tasking.Assignment
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// WriteEdges inserts edges into a relation.
// Uses ON CONFLICT DO NOTHING so the relation keeps set semantics.
func (s *Store) WriteEdges(ctx context.Context, rt graph.RelationType, edges ...graph.Edge) error {
	return s.inTx(ctx, "write edges", func(tx *sql.Tx) error {
		return writeEdges(ctx, tx, rt, edges)
	})
}

func writeEdges(ctx context.Context, tx *sql.Tx, rt graph.RelationType, edges []graph.Edge) error {
	if rt == "" {
		return fmt.Errorf("%w: empty relation type", graph.ErrInvalidEdge)
	}
	for _, e := range edges {
		e = graph.Edge{Src: graph.NormalizeID(string(e.Src)), Dst: graph.NormalizeID(string(e.Dst))}
		if err := e.Validate(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edges (relation, src, dst)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, string(rt), string(e.Src), string(e.Dst)); err != nil {
			return err
		}
	}
	return nil
}

// WriteDistances inserts or replaces travel costs.
func (s *Store) WriteDistances(ctx context.Context, entries ...snapshot.DistanceEntry) error {
	return s.inTx(ctx, "write distances", func(tx *sql.Tx) error {
		return writeDistances(ctx, tx, entries)
	})
}

func writeDistances(ctx context.Context, tx *sql.Tx, entries []snapshot.DistanceEntry) error {
	for _, e := range entries {
		from, to := graph.NormalizeID(string(e.From)), graph.NormalizeID(string(e.To))
		if from == "" || to == "" {
			return fmt.Errorf("%w: distance entry %q -> %q", snapshot.ErrInvalidInput, e.From, e.To)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO distances (src, dst, cost)
			VALUES (?, ?, ?)
			ON CONFLICT(src, dst) DO UPDATE SET cost = excluded.cost
		`, string(from), string(to), e.Cost); err != nil {
			return err
		}
	}
	return nil
}

// WriteMarket inserts or updates a market and its goods.
func (s *Store) WriteMarket(ctx context.Context, m Market) error {
	return s.inTx(ctx, "write market", func(tx *sql.Tx) error {
		return writeMarket(ctx, tx, m)
	})
}

func writeMarket(ctx context.Context, tx *sql.Tx, m Market) error {
	symbol := graph.NormalizeID(m.Symbol)
	if symbol == "" {
		return fmt.Errorf("%w: empty market symbol", snapshot.ErrInvalidInput)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO markets (symbol, system, location)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET system = excluded.system, location = excluded.location
	`, string(symbol), m.System, string(graph.NormalizeID(m.Location))); err != nil {
		return err
	}
	for _, g := range m.Goods {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO market_goods (market, good, trade_type, refreshed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(market, good) DO UPDATE SET
				trade_type = excluded.trade_type,
				refreshed_at = excluded.refreshed_at
		`, string(symbol), g.Symbol, g.Type, toUnix(g.RefreshedAt)); err != nil {
			return fmt.Errorf("good %s: %w", g.Symbol, err)
		}
	}
	return nil
}

// WriteAgent inserts or updates a roster entry. The agent's lock is left alone.
func (s *Store) WriteAgent(ctx context.Context, a Agent) error {
	return s.inTx(ctx, "write agent", func(tx *sql.Tx) error {
		return writeAgent(ctx, tx, a)
	})
}

func writeAgent(ctx context.Context, tx *sql.Tx, a Agent) error {
	symbol := graph.NormalizeID(a.Symbol)
	if symbol == "" {
		return fmt.Errorf("%w: empty agent symbol", snapshot.ErrInvalidInput)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agents (symbol, system, location, available)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			system = excluded.system,
			location = excluded.location,
			available = excluded.available
	`, string(symbol), a.System, string(graph.NormalizeID(a.Location)), a.Available)
	return err
}

// RecordCycle stores a planned cycle with its assignments marked pending and
// locks every assigned agent to the cycle's controller.
//
// The write is atomic: if any agent can no longer be claimed the cycle is not
// recorded.
func (s *Store) RecordCycle(ctx context.Context, c Cycle) error {
	return s.inTx(ctx, "record cycle", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cycles (id, controller, started_at, considered, eligible, max_idle)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, c.Controller, toUnix(c.StartedAt), c.Considered, c.Eligible, c.MaxIdleSeconds); err != nil {
			return err
		}
		for _, a := range c.Assignments {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO assignments (cycle_id, agent, target, score, distance, status)
				VALUES (?, ?, ?, ?, ?, ?)
			`, c.ID, string(a.AgentID), string(a.TargetID), a.Score, a.Distance, StatusPending); err != nil {
				return err
			}
			if _, err := requestLock(ctx, tx, a.AgentID, c.Controller, c.Priority); err != nil {
				return fmt.Errorf("claim %s: %w", a.AgentID, err)
			}
		}
		return nil
	})
}

// Complete closes a pending assignment.
//
// A successful refresh stamps every good of the target market with at, so
// the market leaves the eligible set until the cooldown has passed again.
// The agent's lock is released whatever the outcome, unless another
// controller has taken it over or it is blocked.
// Returns ErrNotFound if there is no pending assignment for the agent in the
// cycle.
func (s *Store) Complete(ctx context.Context, cycleID string, agent graph.NodeID, at time.Time, ok bool) error {
	status := StatusDone
	if !ok {
		status = StatusFailed
	}
	return s.inTx(ctx, "complete assignment", func(tx *sql.Tx) error {
		var target, controller string
		err := tx.QueryRowContext(ctx, `
			SELECT a.target, c.controller
			FROM assignments a
			JOIN cycles c ON c.id = a.cycle_id
			WHERE a.cycle_id = ? AND a.agent = ? AND a.status = ?
		`, cycleID, string(agent), StatusPending).Scan(&target, &controller)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("pending assignment %s/%s: %w", cycleID, agent, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE assignments SET status = ?, completed_at = ?
			WHERE cycle_id = ? AND agent = ?
		`, status, toUnix(at), cycleID, string(agent)); err != nil {
			return err
		}
		if err := releaseHeld(ctx, tx, agent, controller); err != nil {
			return err
		}
		if !ok {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE market_goods SET refreshed_at = ?
			WHERE market = ?
		`, toUnix(at), target)
		return err
	})
}

// releaseHeld frees agent if controller still holds it.
func releaseHeld(ctx context.Context, tx *sql.Tx, agent graph.NodeID, controller string) error {
	cur, err := readLock(ctx, tx, agent)
	if err != nil {
		return err
	}
	if cur.Controller != controller {
		return nil
	}
	next, err := fleet.Release(cur, false)
	if errors.Is(err, fleet.ErrBlocked) {
		return nil
	}
	if err != nil {
		return err
	}
	return writeLock(ctx, tx, next)
}

// inTx runs fn in a transaction and wraps any error with op.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}
