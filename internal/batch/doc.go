// Package batch splits large mutation sets into bounded chunks and sends
// them through the store façade one at a time.
//
// Chunks are sequential: each is awaited before the next is sent. The first
// failing chunk stops the run. Chunks already committed stay committed and
// are reported in the returned *ChunkError, so callers can resubmit the
// remainder idempotently.
package batch
