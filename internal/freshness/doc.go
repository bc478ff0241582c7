// Package freshness decides which refresh targets are eligible in a cycle and
// how urgent each one is.
//
// Scores are ascending: lower means more urgent. The reference formula
//
//	score = distance + distance*(maxIdle - idle)
//
// weighs distance against staleness proportionally, so a very stale but far
// target can still beat a fresh near one. maxIdle is recomputed per cycle
// from the eligible candidates unless a fixed normalizer is configured, in
// which case scores stay comparable across cycles.
package freshness
