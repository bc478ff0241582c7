// Package graph holds the directed relations the planner reasons over.
//
// A Relation is a set of (Src, Dst) edges between opaque node identifiers.
// Edges are directed and may form cycles; inserting the same edge twice is a
// no-op. A Store keys relations by type ("link", "supply", ...) and is
// append-only: within a planning cycle edges are added, never removed.
//
// Identifiers are NFC-normalized on the way in so that the same symbol
// arriving from different collaborators compares equal.
package graph
