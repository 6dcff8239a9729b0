// Package app assembles the shared process stack from an AppConfig: logger,
// metrics, store facade, batch executor, quote cache and ingestion pipeline.
// Every binary under cmd/ starts from Open.
package app
