// Package poller implements the ingestion scheduler.
//
// The Poller:
//   - Runs an ingestion cycle on a fixed interval (default 1m)
//   - Splits the symbol list into batches; each batch is one pipeline run
//   - Runs batches concurrently with a bounded limit
//   - Lets a failed batch abort only itself; other batches still write
package poller
