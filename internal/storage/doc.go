// Package storage persists remindbot's state as whole JSON documents.
//
// Every document is read whole and written whole. Save compares the new body
// with the stored one and skips the write when nothing changed, so callers can
// persist after every mutation without churning the disk.
//
// Drivers:
//   - "file":   one pretty-printed <key>.json per document under a directory,
//     plus an append-only audit.jsonl
//   - "sqlite": documents and audit tables in a single database (modernc.org/sqlite)
//   - "memory": process-local, used by tests
package storage
