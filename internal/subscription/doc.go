// Package subscription fans store change events out to registered listeners.
//
// The Manager opens one feed per table on the first Subscribe and closes it
// when the last handle on that table is released. Each handle owns a bounded
// FIFO queue drained by a single goroutine, so a listener sees events in the
// order the store emitted them, one call per event. A full queue blocks the
// table's pump rather than dropping events.
//
// Handle lifecycle:
//
//	OPEN   --Unsubscribe------------------> CLOSED
//	OPEN   --feed terminated by store-----> CLOSED (after queued events drain)
//
// Every handle returned by Subscribe must be passed to Unsubscribe exactly
// once, including handles closed by the store. Unsubscribe must not be called
// from inside the handle's own listener.
package subscription
