// Package tasking assigns available agents to eligible refresh targets.
//
// Distances are agent-relative: every (agent, target) pair gets its own
// distance and score. A Matcher turns the scored pairs into assignments in
// which each agent and each target appears at most once.
//
// Greedy walks the pairs in ascending score order and takes every pair whose
// agent and target are still free. It is not an optimal assignment but it is
// deterministic, cheap and biased toward the most urgent pairs. Optimal
// solves the assignment problem (Hungarian method) when total score matters
// more than simplicity; callers do not change.
package tasking
