// Package store persists and reads back execution provenance.
//
// A Store owns one provenance repository:
//
//	<base>/.provenance/
//	    db.sqlite            relational records (trials, activations, ...)
//	    content/<digest>     file snapshots, addressed by digest
//	    .parent_config.json  {"parent_id": "..."} for the next trial
//
// # Database access
//
// Two handles are opened on the same file:
//   - a raw database/sql handle for schema bootstrap and ad hoc Query
//   - a gorm engine that backs per-thread Sessions
//
// Both use WAL mode, synchronous=NORMAL, a busy timeout and foreign keys.
// The schema script runs only when the database file did not exist before
// connect; the check and the initialization happen under a process-wide lock
// keyed by the database path, so among concurrent connectors exactly one
// creates it.
//
// # Sessions
//
// Each capturing goroutine identifies itself with a ThreadID and gets its own
// Session. A Session buffers records until Commit, which writes them in a
// single transaction. Records buffered in one Session are never visible to
// another before commit. After commit the records keep their in-memory state.
//
// # Ordering
//
// Activation ids are assigned in depth-first call order when a trial is
// saved, so ORDER BY id reproduces call order. File accesses and context
// bindings are likewise read back in insertion order.
package store
