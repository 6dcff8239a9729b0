// Package store is the record-store façade: one CRUD and query contract
// over every registered table, independent of the backend behind it.
//
// The Facade validates writes against the schema registry, compiles filter
// specifications into predicates, and wraps backend failures in ReadError
// or WriteError. It performs no retries and holds no locks across calls;
// concurrent writes to the same row are resolved by the backend.
//
// Backends:
//   - memory: in-process tables, used in tests and the demo server
//   - postgres: pgx connection pool with LISTEN/NOTIFY change feeds
//   - rest: PostgREST-compatible HTTP API with a realtime websocket feed
package store
