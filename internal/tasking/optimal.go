package tasking

import (
	"math"
	"sort"

	"github.com/roach88/probectl/internal/graph"
)

// Optimal maximizes the number of assignments and, among those, minimizes
// the total score.
type Optimal struct{}

// Match implements Matcher.
func (Optimal) Match(options []Option) []Assignment {
	if len(options) == 0 {
		return nil
	}

	agentIdx := make(map[graph.NodeID]int)
	targetIdx := make(map[graph.NodeID]int)
	var agents, targets []graph.NodeID
	for _, o := range options {
		if _, ok := agentIdx[o.AgentID]; !ok {
			agentIdx[o.AgentID] = -1
			agents = append(agents, o.AgentID)
		}
		if _, ok := targetIdx[o.TargetID]; !ok {
			targetIdx[o.TargetID] = -1
			targets = append(targets, o.TargetID)
		}
	}
	sortIDs(agents)
	sortIDs(targets)
	for i, a := range agents {
		agentIdx[a] = i
	}
	for j, t := range targets {
		targetIdx[t] = j
	}

	n := len(agents)
	if len(targets) > n {
		n = len(targets)
	}

	// Any real pair must beat leaving both ends unmatched, so missing and
	// padding cells cost more than every feasible score combined.
	big := 1.0
	for _, o := range options {
		big += math.Abs(o.Score)
	}
	cost := make([][]float64, n)
	best := make([][]*Option, n)
	for i := range cost {
		cost[i] = make([]float64, n)
		best[i] = make([]*Option, n)
		for j := range cost[i] {
			cost[i][j] = big
		}
	}
	for k := range options {
		o := &options[k]
		i, j := agentIdx[o.AgentID], targetIdx[o.TargetID]
		if best[i][j] == nil || less(*o, *best[i][j]) {
			best[i][j] = o
			cost[i][j] = o.Score
		}
	}

	var out []Assignment
	for i, j := range hungarian(cost) {
		if o := best[i][j]; o != nil {
			out = append(out, assignment(*o))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return less(option(out[a]), option(out[b]))
	})
	return out
}

func option(a Assignment) Option {
	return Option{AgentID: a.AgentID, TargetID: a.TargetID, Score: a.Score, Distance: a.Distance}
}

func sortIDs(ids []graph.NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// hungarian solves the square assignment problem and returns, for each row,
// the column assigned to it.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	inf := math.Inf(1)
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j]: row matched to column j, 1-based
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	rows := make([]int, n)
	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			rows[p[j]-1] = j - 1
		}
	}
	return rows
}
