// Package engine runs planning cycles.
//
// A cycle takes a frozen snapshot.Snapshot and produces an assignment list:
//
//  1. Scope: if configured, the reachability set of a goal node in one
//     relation restricts which targets are considered.
//  2. Eligibility: freshness.Policy filters targets (liveness and cooldown)
//     and fixes the cycle's idle normalizer.
//  3. In-flight exclusion: targets an earlier cycle already dispatched to
//     are dropped.
//  4. Scheduling: tasking.Scheduler matches available agents to candidates.
//
// The cycle is pure and synchronous. It either returns a complete Result or
// an error; no partial assignment list is ever surfaced. Cancellation is
// honoured at the cycle boundary only.
//
// Loop serializes cycles on a fixed interval for one fleet. Concurrent loops
// over the same fleet are the caller's problem.
package engine
