// Package schema declares the tables alpha-kite knows about and the fields
// each one requires before a write.
//
// A Registry is built once at startup and is read-only afterwards, so it is
// safe for concurrent use without locking.
package schema
