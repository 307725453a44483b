// Package store provides SQLite-backed history of compiled libraries.
//
// Every successful compilation is appended to the compilations table with
// its canonical ELM JSON, library hash and diagnostics. Rows are never
// updated; recording the same run id twice is a no-op.
//
// # Ordering
//
// Rows carry a seq INTEGER assigned at insert time (MAX(seq)+1). Queries
// order by seq, never by wall-clock time, so history listings are stable.
//
// # Connections
//
// Every connection runs in WAL mode with synchronous=NORMAL and a
// five-second busy timeout. The store keeps one open connection.
//
// The schema version lives in PRAGMA user_version; Open refuses a database
// written with a newer schema.
package store
