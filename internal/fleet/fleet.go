// Package fleet decides which agents a controller may task.
//
// Every agent carries a lock: the controller currently holding it, that
// controller's priority and a blocked flag set while the agent runs an
// uninterruptible order. A controller may claim an agent that is unblocked
// and either unowned, already its own, or owned at a lower priority (a
// handover).
package fleet

import (
	"errors"

	"github.com/roach88/probectl/internal/graph"
)

// NoPriority is the priority of a released agent.
const NoPriority = -1

var (
	// ErrBlocked is returned when claiming or releasing a blocked agent.
	ErrBlocked = errors.New("agent is blocked")

	// ErrOutranked is returned when another controller holds the agent at an
	// equal or higher priority.
	ErrOutranked = errors.New("agent held at higher priority")
)

// Lock is the control state of one agent.
type Lock struct {
	AgentID    graph.NodeID `json:"agent_id"`
	Controller string       `json:"controller,omitempty"`
	Priority   int          `json:"priority"`
	Blocked    bool         `json:"blocked"`
}

// Released reports whether no controller holds the agent.
func (l Lock) Released() bool {
	return l.Controller == ""
}

// Decision is the outcome of a claim.
type Decision struct {
	Granted bool

	// Handover is set when the claim takes the agent from another controller.
	Handover bool
}

// Decide applies the claim rules for controller at priority.
func Decide(l Lock, controller string, priority int) (Decision, error) {
	if l.Blocked {
		return Decision{}, ErrBlocked
	}
	switch {
	case l.Released() || l.Controller == controller:
		return Decision{Granted: true}, nil
	case l.Priority < priority:
		return Decision{Granted: true, Handover: true}, nil
	default:
		return Decision{}, ErrOutranked
	}
}

// Claimable reports whether controller at priority could claim the agent.
func Claimable(l Lock, controller string, priority int) bool {
	d, err := Decide(l, controller, priority)
	return err == nil && d.Granted
}

// Claimed returns the lock after a granted claim.
func Claimed(l Lock, controller string, priority int) Lock {
	return Lock{AgentID: l.AgentID, Controller: controller, Priority: priority}
}

// Release returns the released form of the lock. A blocked agent is only
// released when force is set.
func Release(l Lock, force bool) (Lock, error) {
	if l.Blocked && !force {
		return l, ErrBlocked
	}
	return Lock{AgentID: l.AgentID, Priority: NoPriority}, nil
}
