package tasking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/probectl/internal/graph"
)

// ErrInvalidInput is returned for agents or candidates with missing or
// duplicate identifiers and for unusable distances.
var ErrInvalidInput = errors.New("invalid scheduling input")

// Agent is a fleet member as reported by the roster.
type Agent struct {
	ID        graph.NodeID `json:"id" yaml:"id"`
	Location  graph.NodeID `json:"location" yaml:"location"`
	Available bool         `json:"available" yaml:"available"`
}

// Candidate is an eligible target.
type Candidate struct {
	TargetID    graph.NodeID `json:"target_id"`
	Location    graph.NodeID `json:"location"`
	IdleSeconds float64      `json:"idle_seconds"`
}

// Assignment sends one agent to one target.
type Assignment struct {
	AgentID  graph.NodeID `json:"agent_id"`
	TargetID graph.NodeID `json:"target_id"`
	Score    float64      `json:"score"`
	Distance float64      `json:"distance"`
}

// Option is a feasible (agent, target) pair with its score.
type Option struct {
	AgentID  graph.NodeID
	TargetID graph.NodeID
	Distance float64
	Score    float64
}

// Distances resolves travel cost between two locations.
type Distances interface {
	// Distance returns the cost and whether it is known.
	Distance(from, to graph.NodeID) (float64, bool)
}

// Scorer turns a distance and idle time into an ascending score.
type Scorer interface {
	Score(distance, idleSeconds float64) float64
}

// Matcher selects assignments from scored options.
type Matcher interface {
	Match(options []Option) []Assignment
}

// Scheduler builds options and hands them to its Matcher.
// The zero value uses Greedy.
type Scheduler struct {
	Matcher Matcher
}

// Assign proposes at most one target per available agent.
//
// Agents whose distance to a candidate is unknown simply do not get that
// candidate; an agent with no known distance stays unassigned. No agents or
// no candidates is not an error and yields an empty list.
func (s Scheduler) Assign(agents []Agent, candidates []Candidate, dist Distances, scorer Scorer) ([]Assignment, error) {
	options, err := Options(agents, candidates, dist, scorer)
	if err != nil {
		return nil, err
	}
	matcher := s.Matcher
	if matcher == nil {
		matcher = Greedy{}
	}
	assignments := matcher.Match(options)
	if assignments == nil {
		assignments = []Assignment{}
	}
	return assignments, nil
}

// Options validates the inputs and returns every feasible pair, sorted in
// ranking order.
func Options(agents []Agent, candidates []Candidate, dist Distances, scorer Scorer) ([]Option, error) {
	seenAgents := make(map[graph.NodeID]bool, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: agent without id", ErrInvalidInput)
		}
		if seenAgents[a.ID] {
			return nil, fmt.Errorf("%w: duplicate agent %s", ErrInvalidInput, a.ID)
		}
		seenAgents[a.ID] = true
		if a.Available && a.Location == "" {
			return nil, fmt.Errorf("%w: agent %s has no location", ErrInvalidInput, a.ID)
		}
	}
	seenTargets := make(map[graph.NodeID]bool, len(candidates))
	for _, c := range candidates {
		if c.TargetID == "" {
			return nil, fmt.Errorf("%w: candidate without target id", ErrInvalidInput)
		}
		if seenTargets[c.TargetID] {
			return nil, fmt.Errorf("%w: duplicate candidate %s", ErrInvalidInput, c.TargetID)
		}
		seenTargets[c.TargetID] = true
	}

	var options []Option
	for _, a := range agents {
		if !a.Available {
			continue
		}
		for _, c := range candidates {
			loc := c.Location
			if loc == "" {
				loc = c.TargetID
			}
			d, ok := dist.Distance(a.Location, loc)
			if !ok {
				continue
			}
			if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
				return nil, fmt.Errorf("%w: distance %v from %s to %s", ErrInvalidInput, d, a.Location, loc)
			}
			options = append(options, Option{
				AgentID:  a.ID,
				TargetID: c.TargetID,
				Distance: d,
				Score:    scorer.Score(d, c.IdleSeconds),
			})
		}
	}
	sortOptions(options)
	return options, nil
}

// sortOptions orders by score, then distance, then target id, then agent id.
func sortOptions(options []Option) {
	sort.Slice(options, func(i, j int) bool {
		return less(options[i], options[j])
	})
}

func less(a, b Option) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.TargetID != b.TargetID {
		return a.TargetID < b.TargetID
	}
	return a.AgentID < b.AgentID
}

// Greedy takes the best remaining pair until agents or targets run out.
type Greedy struct{}

// Match implements Matcher.
func (Greedy) Match(options []Option) []Assignment {
	sorted := append([]Option(nil), options...)
	sortOptions(sorted)

	usedAgents := make(map[graph.NodeID]bool)
	usedTargets := make(map[graph.NodeID]bool)
	var out []Assignment
	for _, o := range sorted {
		if usedAgents[o.AgentID] || usedTargets[o.TargetID] {
			continue
		}
		usedAgents[o.AgentID] = true
		usedTargets[o.TargetID] = true
		out = append(out, assignment(o))
	}
	return out
}

func assignment(o Option) Assignment {
	return Assignment{AgentID: o.AgentID, TargetID: o.TargetID, Score: o.Score, Distance: o.Distance}
}
