// Package ingest pulls raw market data from a Producer, normalizes it into
// table records and writes them through the batch executor.
//
// Producers are pluggable: the synthetic producer generates deterministic
// data for development and tests, and the marketdata client talks to a
// real REST feed. Neither is known to the store façade.
package ingest
