// Package store provides SQLite-backed persistence for the fleet world and
// planning history.
//
// The store holds:
//   - Edges: typed relations (link, supply)
//   - Distances: travel costs, one row per unordered pair
//   - Markets and market goods: the staleness index
//   - Agents and agent locks: the roster and who controls each agent
//   - Cycles and assignments: every planned cycle and its dispatch status
//
// The Store implements snapshot.Source. All reads are ordered so snapshots
// built from the same database are identical.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Identifiers are NFC-normalized by graph.NormalizeID before they are written.
package store
