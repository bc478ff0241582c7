// Package reach computes reachability sets over a graph.Relation.
//
// # Closure
//
// Descendants seeds every destination node n with the trivial pair (n, n)
// and repeatedly joins pairs with edges: a pair (reached, base) and an edge
// (s, reached) produce (s, base). Pairs live in a set, so re-deriving a pair
// is a no-op and a pass that adds nothing ends the computation. The set is
// bounded by |nodes|^2, which bounds the number of passes even when the
// relation has cycles. No explicit cycle detection is needed.
//
// Only the pairs produced in the previous pass are joined in the next one
// (semi-naive evaluation). The fixpoint is the same as joining the full set
// every pass.
//
// Ancestors is the mirror computation over the reversed relation.
//
// # Evaluators
//
// Fixpoint is the in-process evaluator. Datalog evaluates the same program
// with Google Mangle and exists to cross-check Fixpoint and to let callers
// pick an engine from configuration.
package reach
