// Package postgres implements store.Backend on a pgx connection pool.
//
// Rows are read as to_jsonb(t), so any table shape maps onto model.Record
// without per-table code. Inserts run in one transaction per call using a
// pgx.Batch. Change feeds use LISTEN/NOTIFY; install the trigger from
// NotifyTriggerSQL on every table that will be subscribed to.
package postgres
