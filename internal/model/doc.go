// Package model defines the record and market-data types shared across alpha-kite.
//
// Conventions:
//   - Records: map of field name to value, keyed by the field constants below
//   - Prices: float64 in the quote currency
//   - Timestamps: RFC 3339 strings in UTC on records, time.Time on raw producer types
//   - IDs: string primary keys (uuid for records created in-process)
package model
