// Package database provides PostgreSQL connection pool management for the
// postgres store backend.
//
// A single pool serves queries and writes. Change feeds take a dedicated
// connection from the same pool for LISTEN, so MaxConns should leave room
// for one connection per subscribed table.
package database
