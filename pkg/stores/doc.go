// Package stores provides persistence layer implementations for the edit
// engine. SQLiteStore keeps objects, their append-only transaction logs,
// stored form configurations and audit entries in SQLite with embedded
// migrations. MemoryStore keeps the same data in process for tests and
// one-shot tooling.
package stores
