// Package store provides SQLite-backed storage for versioned components.
//
// The store is the component lookup the engine reads dependency results
// from. The engine never writes to it; components arrive through Put,
// used by the import command.
//
// # Invariants
//
// Immutable Versions:
//   - A stored (id, version) never changes
//   - Putting the same content again is a no-op, checked by fingerprint
//   - Putting different content fails with ErrVersionImmutable
//
// Pinned Dependencies:
//   - Edges reference an exact (id, version), never "latest"
//   - A dependency must be stored before its dependents, so the graph
//     is acyclic by construction
//
// Drafts:
//   - Temporary ids are never stored (ErrTemporaryID)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
