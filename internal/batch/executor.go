package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/metrics"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/store"
	"github.com/MAKaminski/alpha-kite/internal/validate"
)

// DefaultChunkSize is the number of records per insert or delete call.
const DefaultChunkSize = 1000

// Store is the subset of the façade the executor drives.
type Store interface {
	Insert(ctx context.Context, table string, recs []model.Record, opts ...store.WriteOption) ([]model.Record, error)
	Update(ctx context.Context, table, id string, patch model.Record, opts ...store.WriteOption) ([]model.Record, error)
	DeleteMany(ctx context.Context, table string, ids []string) (int, error)
}

// Config holds executor settings.
type Config struct {
	ChunkSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize}
}

// Stats tracks executor activity.
type Stats struct {
	Chunks         int64 // Chunks committed
	Records        int64 // Records committed
	Failures       int64 // Failed chunks or updates
	LastDurationMs int64 // Duration of the most recent bulk call
}

// ChunkError reports where a chunked run stopped.
type ChunkError struct {
	Op               string
	Table            string
	Chunk            int // Zero-based chunk that failed
	Index            int // Input index of the failed chunk's first record
	CommittedChunks  int
	CommittedRecords int
	Err              error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("bulk %s %s: chunk %d (records from %d) failed after %d chunks / %d records committed: %v",
		e.Op, e.Table, e.Chunk, e.Index, e.CommittedChunks, e.CommittedRecords, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// UpdateError reports a failed entry of BulkUpdate.
type UpdateError struct {
	Table string
	Index int
	ID    string
	Err   error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("bulk update %s: entry %d (id %s): %v", e.Table, e.Index, e.ID, e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// Update is one entry of a BulkUpdate.
type Update struct {
	ID    string
	Patch model.Record
}

// UpdateResult is the outcome of one Update.
type UpdateResult struct {
	ID      string
	Records []model.Record
	Err     error
}

// Executor runs chunked mutations through a Store.
type Executor struct {
	store     Store
	validator *validate.Validator
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates an Executor. When validator is non-nil, BulkInsert validates
// every record before the first chunk is sent.
func New(s Store, validator *validate.Validator, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Executor{
		store:     s,
		validator: validator,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// ChunkSize returns the configured chunk size.
func (e *Executor) ChunkSize() int {
	return e.cfg.ChunkSize
}

// Stats returns current counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// BulkInsert inserts recs in chunks and returns the persisted records in
// input order. On failure it returns the records of the committed chunks
// together with a *ChunkError.
func (e *Executor) BulkInsert(ctx context.Context, table string, recs []model.Record) ([]model.Record, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	start := time.Now()
	defer e.finish(start)

	var opts []store.WriteOption
	if e.validator != nil {
		if err := e.validator.ValidateAll(table, recs); err != nil {
			return nil, err
		}
		opts = append(opts, store.Validated())
	}

	out := make([]model.Record, 0, len(recs))
	chunk := 0
	for lo := 0; lo < len(recs); lo += e.cfg.ChunkSize {
		hi := min(lo+e.cfg.ChunkSize, len(recs))

		persisted, err := e.store.Insert(ctx, table, recs[lo:hi], opts...)
		e.metrics.ObserveChunk(table, "insert", len(persisted), err)
		if err != nil {
			e.recordFailure()
			cerr := &ChunkError{
				Op:               "insert",
				Table:            table,
				Chunk:            chunk,
				Index:            lo,
				CommittedChunks:  chunk,
				CommittedRecords: len(out),
				Err:              err,
			}
			e.logger.Error("bulk insert stopped", "table", table, "chunk", chunk, "committed", len(out), "error", err)
			return out, cerr
		}

		out = append(out, persisted...)
		e.recordChunk(len(persisted))
		chunk++
	}

	e.logger.Debug("bulk insert complete",
		"table", table,
		"count", len(out),
		"chunks", chunk,
		"duration", time.Since(start),
	)
	return out, nil
}

// UpdateOption adjusts BulkUpdate.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	continueOnError bool
}

// ContinueOnError makes BulkUpdate apply every entry and collect failures
// instead of stopping at the first one.
func ContinueOnError() UpdateOption {
	return func(o *updateOptions) { o.continueOnError = true }
}

// BulkUpdate applies each update sequentially. By default the first failure
// stops the run and is returned as an *UpdateError alongside the results so
// far. With ContinueOnError every entry is attempted; the returned error
// joins every *UpdateError.
func (e *Executor) BulkUpdate(ctx context.Context, table string, updates []Update, opts ...UpdateOption) ([]UpdateResult, error) {
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()
	defer e.finish(start)

	results := make([]UpdateResult, 0, len(updates))
	var errs []error
	for i, u := range updates {
		recs, err := e.store.Update(ctx, table, u.ID, u.Patch)
		e.metrics.ObserveChunk(table, "update", len(recs), err)
		results = append(results, UpdateResult{ID: u.ID, Records: recs, Err: err})
		if err == nil {
			e.recordChunk(len(recs))
			continue
		}

		e.recordFailure()
		uerr := &UpdateError{Table: table, Index: i, ID: u.ID, Err: err}
		if !o.continueOnError {
			e.logger.Error("bulk update stopped", "table", table, "index", i, "id", u.ID, "error", err)
			return results, uerr
		}
		e.logger.Warn("bulk update entry failed", "table", table, "index", i, "id", u.ID, "error", err)
		errs = append(errs, uerr)
	}
	return results, errors.Join(errs...)
}

// BulkDelete deletes ids in chunks and returns the number removed.
func (e *Executor) BulkDelete(ctx context.Context, table string, ids []string) (int, error) {
	start := time.Now()
	defer e.finish(start)

	total := 0
	chunk := 0
	for lo := 0; lo < len(ids); lo += e.cfg.ChunkSize {
		hi := min(lo+e.cfg.ChunkSize, len(ids))

		n, err := e.store.DeleteMany(ctx, table, ids[lo:hi])
		e.metrics.ObserveChunk(table, "delete", n, err)
		if err != nil {
			e.recordFailure()
			return total, &ChunkError{
				Op:               "delete",
				Table:            table,
				Chunk:            chunk,
				Index:            lo,
				CommittedChunks:  chunk,
				CommittedRecords: total,
				Err:              err,
			}
		}
		total += n
		e.recordChunk(n)
		chunk++
	}
	return total, nil
}

func (e *Executor) recordChunk(n int) {
	e.mu.Lock()
	e.stats.Chunks++
	e.stats.Records += int64(n)
	e.mu.Unlock()
}

func (e *Executor) recordFailure() {
	e.mu.Lock()
	e.stats.Failures++
	e.mu.Unlock()
}

func (e *Executor) finish(start time.Time) {
	e.mu.Lock()
	e.stats.LastDurationMs = time.Since(start).Milliseconds()
	e.mu.Unlock()
}
