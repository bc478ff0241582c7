package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/probectl/internal/fleet"
	"github.com/roach88/probectl/internal/graph"
)

// Request claims an agent for controller at priority.
// Returns fleet.ErrBlocked or fleet.ErrOutranked when the claim is refused.
func (s *Store) Request(ctx context.Context, agent graph.NodeID, controller string, priority int) (fleet.Decision, error) {
	var d fleet.Decision
	err := s.inTx(ctx, "request agent", func(tx *sql.Tx) error {
		var err error
		d, err = requestLock(ctx, tx, agent, controller, priority)
		return err
	})
	return d, err
}

func requestLock(ctx context.Context, tx *sql.Tx, agent graph.NodeID, controller string, priority int) (fleet.Decision, error) {
	cur, err := readLock(ctx, tx, agent)
	if err != nil {
		return fleet.Decision{}, err
	}
	d, err := fleet.Decide(cur, controller, priority)
	if err != nil {
		return d, err
	}
	return d, writeLock(ctx, tx, fleet.Claimed(cur, controller, priority))
}

// Release frees one agent. A blocked agent is only released with force.
func (s *Store) Release(ctx context.Context, agent graph.NodeID, force bool) error {
	return s.inTx(ctx, "release agent", func(tx *sql.Tx) error {
		cur, err := readLock(ctx, tx, agent)
		if err != nil {
			return err
		}
		next, err := fleet.Release(cur, force)
		if err != nil {
			return err
		}
		return writeLock(ctx, tx, next)
	})
}

// ReleaseFleet frees every agent held by controller and returns how many were
// released. Blocked agents are skipped unless force is set.
func (s *Store) ReleaseFleet(ctx context.Context, controller string, force bool) (int, error) {
	var released int
	err := s.inTx(ctx, "release fleet", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT agent, controller, priority, blocked
			FROM agent_locks
			WHERE controller = ?
			ORDER BY agent COLLATE BINARY ASC
		`, controller)
		if err != nil {
			return err
		}
		var held []fleet.Lock
		for rows.Next() {
			l, err := scanLock(rows)
			if err != nil {
				rows.Close()
				return err
			}
			held = append(held, l)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, l := range held {
			next, err := fleet.Release(l, force)
			if err != nil {
				continue
			}
			if err := writeLock(ctx, tx, next); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	return released, err
}

// SetBlocked marks an agent as running an uninterruptible order.
func (s *Store) SetBlocked(ctx context.Context, agent graph.NodeID, blocked bool) error {
	return s.inTx(ctx, "set blocked", func(tx *sql.Tx) error {
		cur, err := readLock(ctx, tx, agent)
		if err != nil {
			return err
		}
		cur.Blocked = blocked
		return writeLock(ctx, tx, cur)
	})
}

func writeLock(ctx context.Context, tx *sql.Tx, l fleet.Lock) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_locks (agent, controller, priority, blocked)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			controller = excluded.controller,
			priority = excluded.priority,
			blocked = excluded.blocked
	`, string(l.AgentID), l.Controller, l.Priority, l.Blocked)
	if err != nil {
		return fmt.Errorf("write lock %s: %w", l.AgentID, err)
	}
	return nil
}
