package freshness

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/probectl/internal/graph"
)

// DefaultCooldown is the minimum idle time before a target can be refreshed again.
const DefaultCooldown = 300 * time.Second

// Score ranks one (distance, idle) pair. Lower is more urgent.
func Score(distance, idleSeconds, maxIdleSeconds float64) float64 {
	return distance + distance*(maxIdleSeconds-idleSeconds)
}

// Candidate is an eligible target with its idle time for this cycle.
type Candidate struct {
	Target      Target  `json:"target"`
	IdleSeconds float64 `json:"idle_seconds"`
}

// Policy holds the eligibility and scoring settings of a cycle.
type Policy struct {
	Filter   Filter
	Cooldown time.Duration

	// FixedMaxIdle replaces the per-cycle maximum idle time when positive.
	// Idle times above it are capped so scores never go below distance.
	FixedMaxIdle float64
}

// DefaultPolicy returns the import/export filter with the default cooldown.
func DefaultPolicy() Policy {
	return Policy{Filter: FilterImportExport, Cooldown: DefaultCooldown}
}

// Batch is the scored view of one cycle's eligible candidates.
type Batch struct {
	Candidates []Candidate
	MaxIdle    float64
	capIdle    bool
}

// Eligible filters targets and computes idle times against now.
//
// A target is eligible when the filter admits it and it has been idle for
// longer than Cooldown. Targets never refreshed have no idle time to compare and
// count as the stalest candidate of the cycle.
//
// Candidates are returned stalest first, ties by target id.
func (p Policy) Eligible(targets []Target, now time.Time) (*Batch, error) {
	return p.EligibleExcept(targets, now, nil)
}

// EligibleExcept is Eligible with the excluded targets left out before the
// normalizer is computed. Excluded targets are still validated.
func (p Policy) EligibleExcept(targets []Target, now time.Time, exclude map[graph.NodeID]bool) (*Batch, error) {
	filter := p.Filter
	if filter == "" {
		filter = FilterImportExport
	}
	cooldown := p.Cooldown.Seconds()

	seen := make(map[graph.NodeID]bool, len(targets))
	var never []Target
	batch := &Batch{capIdle: p.FixedMaxIdle > 0}

	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: duplicate target %s", ErrInvalidCandidate, t.ID)
		}
		seen[t.ID] = true

		if exclude[t.ID] || !filter.Admits(t) {
			continue
		}
		if !t.Refreshed() {
			never = append(never, t)
			continue
		}
		idle := t.IdleSeconds(now)
		if idle <= cooldown {
			continue
		}
		batch.Candidates = append(batch.Candidates, Candidate{Target: t, IdleSeconds: idle})
	}

	for _, c := range batch.Candidates {
		batch.MaxIdle = math.Max(batch.MaxIdle, c.IdleSeconds)
	}
	if p.FixedMaxIdle > 0 {
		batch.MaxIdle = p.FixedMaxIdle
	}
	if len(batch.Candidates) == 0 && len(never) > 0 && batch.MaxIdle == 0 {
		batch.MaxIdle = cooldown
	}
	for _, t := range never {
		batch.Candidates = append(batch.Candidates, Candidate{Target: t, IdleSeconds: batch.MaxIdle})
	}
	if batch.capIdle {
		for i := range batch.Candidates {
			batch.Candidates[i].IdleSeconds = math.Min(batch.Candidates[i].IdleSeconds, batch.MaxIdle)
		}
	}

	sort.SliceStable(batch.Candidates, func(i, j int) bool {
		a, b := batch.Candidates[i], batch.Candidates[j]
		if a.IdleSeconds != b.IdleSeconds {
			return a.IdleSeconds > b.IdleSeconds
		}
		return a.Target.ID < b.Target.ID
	})
	return batch, nil
}

// Score scores a candidate at the given distance using the batch normalizer.
func (b *Batch) Score(distance, idleSeconds float64) float64 {
	if b.capIdle {
		idleSeconds = math.Min(idleSeconds, b.MaxIdle)
	}
	return Score(distance, idleSeconds, b.MaxIdle)
}

// Len returns the number of eligible candidates.
func (b *Batch) Len() int {
	return len(b.Candidates)
}
