package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/probectl/internal/fleet"
	"github.com/roach88/probectl/internal/freshness"
	"github.com/roach88/probectl/internal/graph"
	"github.com/roach88/probectl/internal/snapshot"
	"github.com/roach88/probectl/internal/tasking"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

var _ snapshot.Source = (*Store)(nil)

// Edges returns every relation keyed by type.
// Edges within a relation are ordered by src, dst.
func (s *Store) Edges(ctx context.Context) (map[graph.RelationType][]graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relation, src, dst
		FROM edges
		ORDER BY relation COLLATE BINARY ASC, src COLLATE BINARY ASC, dst COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	out := make(map[graph.RelationType][]graph.Edge)
	for rows.Next() {
		var rt, src, dst string
		if err := rows.Scan(&rt, &src, &dst); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out[graph.RelationType(rt)] = append(out[graph.RelationType(rt)], graph.Edge{
			Src: graph.NodeID(src),
			Dst: graph.NodeID(dst),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return out, nil
}

// Distances returns every stored travel cost.
func (s *Store) Distances(ctx context.Context) ([]snapshot.DistanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src, dst, cost
		FROM distances
		ORDER BY src COLLATE BINARY ASC, dst COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query distances: %w", err)
	}
	defer rows.Close()

	entries := []snapshot.DistanceEntry{}
	for rows.Next() {
		var e snapshot.DistanceEntry
		var from, to string
		if err := rows.Scan(&from, &to, &e.Cost); err != nil {
			return nil, fmt.Errorf("scan distance: %w", err)
		}
		e.From, e.To = graph.NodeID(from), graph.NodeID(to)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distances: %w", err)
	}
	return entries, nil
}

// Targets builds the staleness index from market observations.
//
// A market's refresh time is its oldest good observation, so one unrefreshed
// good keeps the whole market stale. Markets without goods have never been
// refreshed. An empty system returns every market.
func (s *Store) Targets(ctx context.Context, system string) ([]freshness.Target, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.symbol, m.location,
			COALESCE(MIN(g.refreshed_at), 0),
			COALESCE(SUM(g.trade_type = 'IMPORT'), 0),
			COALESCE(SUM(g.trade_type = 'EXPORT'), 0),
			COALESCE(SUM(g.trade_type = 'EXCHANGE'), 0),
			COALESCE(SUM(g.good <> 'FUEL'), 0)
		FROM markets m
		LEFT JOIN market_goods g ON g.market = m.symbol
		WHERE ? = '' OR m.system = ?
		GROUP BY m.symbol, m.location
		ORDER BY m.symbol COLLATE BINARY ASC
	`, system, system)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	targets := []freshness.Target{}
	for rows.Next() {
		var (
			id, loc   string
			refreshed int64
			t         freshness.Target
		)
		if err := rows.Scan(&id, &loc, &refreshed,
			&t.Activity.Imports, &t.Activity.Exports, &t.Activity.Exchanges, &t.Activity.NonFuel); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.ID = graph.NodeID(id)
		t.Location = graph.NodeID(loc)
		t.LastRefreshedAt = fromUnix(refreshed)
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}

// Agents returns the roster. An empty system returns every agent.
func (s *Store) Agents(ctx context.Context, system string) ([]tasking.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, location, available
		FROM agents
		WHERE ? = '' OR system = ?
		ORDER BY symbol COLLATE BINARY ASC
	`, system, system)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	agents := []tasking.Agent{}
	for rows.Next() {
		var id, loc string
		var a tasking.Agent
		if err := rows.Scan(&id, &loc, &a.Available); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.ID, a.Location = graph.NodeID(id), graph.NodeID(loc)
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// Locks returns every agent lock record.
func (s *Store) Locks(ctx context.Context) ([]fleet.Lock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, controller, priority, blocked
		FROM agent_locks
		ORDER BY agent COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()

	locks := []fleet.Lock{}
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locks: %w", err)
	}
	return locks, nil
}

// Lock returns the lock of one agent. Agents without a record are released.
func (s *Store) Lock(ctx context.Context, agent graph.NodeID) (fleet.Lock, error) {
	return readLock(ctx, s.db, agent)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readLock(ctx context.Context, q queryRower, agent graph.NodeID) (fleet.Lock, error) {
	l, err := scanLock(q.QueryRowContext(ctx, `
		SELECT agent, controller, priority, blocked
		FROM agent_locks
		WHERE agent = ?
	`, string(agent)))
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Lock{AgentID: agent, Priority: fleet.NoPriority}, nil
	}
	return l, err
}

func scanLock(row scanner) (fleet.Lock, error) {
	var (
		agent string
		l     fleet.Lock
	)
	if err := row.Scan(&agent, &l.Controller, &l.Priority, &l.Blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fleet.Lock{}, err
		}
		return fleet.Lock{}, fmt.Errorf("scan lock: %w", err)
	}
	l.AgentID = graph.NodeID(agent)
	return l, nil
}

// InFlight returns targets with a pending assignment.
func (s *Store) InFlight(ctx context.Context) ([]graph.NodeID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT target
		FROM assignments
		WHERE status = ?
		ORDER BY target COLLATE BINARY ASC
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query in-flight: %w", err)
	}
	defer rows.Close()

	ids := []graph.NodeID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan in-flight: %w", err)
		}
		ids = append(ids, graph.NodeID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate in-flight: %w", err)
	}
	return ids, nil
}

// Dispatched returns agents with a pending assignment.
func (s *Store) Dispatched(ctx context.Context) ([]graph.NodeID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT agent
		FROM assignments
		WHERE status = ?
		ORDER BY agent COLLATE BINARY ASC
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query dispatched agents: %w", err)
	}
	defer rows.Close()

	ids := []graph.NodeID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dispatched agent: %w", err)
		}
		ids = append(ids, graph.NodeID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatched agents: %w", err)
	}
	return ids, nil
}

// ReadCycle returns a recorded cycle with its assignments ordered by agent.
// Returns ErrNotFound if the cycle does not exist.
func (s *Store) ReadCycle(ctx context.Context, id string) (Cycle, error) {
	var (
		c       Cycle
		started int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, controller, started_at, considered, eligible, max_idle
		FROM cycles
		WHERE id = ?
	`, id).Scan(&c.ID, &c.Controller, &started, &c.Considered, &c.Eligible, &c.MaxIdleSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Cycle{}, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Cycle{}, fmt.Errorf("query cycle: %w", err)
	}
	c.StartedAt = fromUnix(started)

	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, target, score, distance, status, completed_at
		FROM assignments
		WHERE cycle_id = ?
		ORDER BY agent COLLATE BINARY ASC
	`, id)
	if err != nil {
		return Cycle{}, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	c.Assignments = []AssignmentRecord{}
	for rows.Next() {
		var (
			r             AssignmentRecord
			agent, target string
			completed     int64
		)
		if err := rows.Scan(&agent, &target, &r.Score, &r.Distance, &r.Status, &completed); err != nil {
			return Cycle{}, fmt.Errorf("scan assignment: %w", err)
		}
		r.AgentID, r.TargetID = graph.NodeID(agent), graph.NodeID(target)
		r.CompletedAt = fromUnix(completed)
		c.Assignments = append(c.Assignments, r)
	}
	if err := rows.Err(); err != nil {
		return Cycle{}, fmt.Errorf("iterate assignments: %w", err)
	}
	return c, nil
}
