// Package sut defines the contract the harness consumes from the system
// under test, plus an in-process reference implementation.
//
// # Observation Contract
//
// The harness observes the system under test exclusively through two entry
// points:
//
//   - Ingestion: IngestWebhook / IngestGEX accept one synthetic record.
//   - State query: QueryState returns a snapshot.Snapshot and MUST be
//     read-only. Capturing state never mutates the system.
//
// Any out-of-process system that exposes these two entry points can be
// driven by the orchestrator; how such a system transports them is outside
// this package.
//
// # Reference Implementation
//
// Sim is a deterministic two-variant decision stack backed by an in-memory
// SQLite event log. Every observable value is a pure function of the
// ingested record contents and their order: record IDs are content
// addressed, routing is content-hash parity, confidences derive from the
// content hash, and all rows are stamped with a monotonic logical seq.
// Querying state reads everything ORDER BY seq, so two Sims fed an identical
// ordered record sequence produce field-identical snapshots.
//
// Sim intentionally performs NO deduplication: every ingested record is
// processed, so harness tests can exercise duplicate delivery.
package sut
