package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/metrics"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/validate"
)

// Defaults for façade queries.
const (
	DefaultLatestLimit   = 100
	DefaultSymbolLimit   = 1000
	MaxSearchResults     = 50
	DefaultRetentionDays = 90
)

// SearchFields are the text fields scanned by Search.
var SearchFields = []string{model.FieldSymbol, model.FieldDescription}

// Facade is the CRUD and query entry point for every registered table.
type Facade struct {
	backend   Backend
	registry  *schema.Registry
	validator *validate.Validator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Facade) { f.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Facade) { f.metrics = m }
}

// WithClock sets the time source used for retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.now = now }
}

// New creates a Facade over backend. A nil backend fails with
// *config.NotConfiguredError. A nil validator validates in truthy mode.
func New(backend Backend, registry *schema.Registry, validator *validate.Validator, opts ...Option) (*Facade, error) {
	if backend == nil {
		return nil, &config.NotConfiguredError{Component: "store", Missing: []string{"backend"}}
	}
	if registry == nil {
		registry = schema.Default()
	}
	if validator == nil {
		validator = validate.New(registry, validate.ModeTruthy)
	}

	f := &Facade{
		backend:   backend,
		registry:  registry,
		validator: validator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f, nil
}

// Registry returns the schema registry the façade validates against.
func (f *Facade) Registry() *schema.Registry {
	return f.registry
}

// Close releases the backend.
func (f *Facade) Close() error {
	return f.backend.Close()
}

// WriteOption adjusts a single write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	validated bool
}

// Validated marks the records as already checked by the caller.
func Validated() WriteOption {
	return func(o *writeOptions) { o.validated = true }
}

func applyWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// -----------------------------------------------------------------------------
// Read path
// -----------------------------------------------------------------------------

// Select returns every record of table matching spec, in store order.
func (f *Facade) Select(ctx context.Context, table string, spec filter.Spec) ([]model.Record, error) {
	return f.Find(ctx, table, spec, QueryOptions{})
}

// Find is Select with explicit ordering, limit and search options.
func (f *Facade) Find(ctx context.Context, table string, spec filter.Spec, opts QueryOptions) (out []model.Record, err error) {
	start := time.Now()
	defer func() { f.observe(table, "select", start, err) }()

	preds, err := f.compile(table, spec)
	if err != nil {
		return nil, err
	}
	recs, err := f.backend.Select(ctx, table, preds, opts)
	if err != nil {
		return nil, &ReadError{Op: "select", Table: table, Err: err}
	}
	return cloneAll(recs), nil
}

// Latest returns up to limit records of table, newest timestamp first.
func (f *Facade) Latest(ctx context.Context, table string, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	return f.Find(ctx, table, nil, QueryOptions{
		OrderBy:    model.FieldTimestamp,
		Descending: true,
		Limit:      limit,
	})
}

// DateRange returns records with start <= timestamp <= end, oldest first.
func (f *Facade) DateRange(ctx context.Context, table string, start, end time.Time) ([]model.Record, error) {
	if end.Before(start) {
		return nil, &filter.InvalidFilterError{Table: table, Field: model.FieldTimestamp, Reason: "range end before start"}
	}
	spec := filter.Range(model.FieldTimestamp, start.UTC(), end.UTC())
	return f.Find(ctx, table, spec, QueryOptions{OrderBy: model.FieldTimestamp})
}

// BySymbol returns up to limit records for symbol, newest first.
func (f *Facade) BySymbol(ctx context.Context, table, symbol string, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = DefaultSymbolLimit
	}
	return f.Find(ctx, table, filter.Spec{model.FieldSymbol: symbol}, QueryOptions{
		OrderBy:    model.FieldTimestamp,
		Descending: true,
		Limit:      limit,
	})
}

// Search scans SearchFields for a case-insensitive substring match. Results
// are unranked and capped at MaxSearchResults.
func (f *Facade) Search(ctx context.Context, table, query string, limit int) ([]model.Record, error) {
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	return f.Find(ctx, table, nil, QueryOptions{
		Limit:  limit,
		Search: &Search{Fields: SearchFields, Term: strings.TrimSpace(query)},
	})
}

// Count returns the number of records of table matching spec.
func (f *Facade) Count(ctx context.Context, table string, spec filter.Spec) (n int, err error) {
	start := time.Now()
	defer func() { f.observe(table, "count", start, err) }()

	preds, err := f.compile(table, spec)
	if err != nil {
		return 0, err
	}
	n, err = f.backend.Count(ctx, table, preds)
	if err != nil {
		return 0, &ReadError{Op: "count", Table: table, Err: err}
	}
	return n, nil
}

// Listen opens a change feed for table.
func (f *Facade) Listen(ctx context.Context, table string) (Feed, error) {
	if !f.registry.Has(table) {
		return nil, &schema.UnknownTableError{Table: table}
	}
	feed, err := f.backend.Listen(ctx, table)
	if err != nil {
		return nil, &ReadError{Op: "listen", Table: table, Err: err}
	}
	return feed, nil
}

// -----------------------------------------------------------------------------
// Write path
// -----------------------------------------------------------------------------

// Insert validates every record and then persists them in one backend call.
// One invalid record fails the whole call and nothing is written.
func (f *Facade) Insert(ctx context.Context, table string, recs []model.Record, opts ...WriteOption) (out []model.Record, err error) {
	start := time.Now()
	defer func() { f.observe(table, "insert", start, err) }()

	if !f.registry.Has(table) {
		return nil, &schema.UnknownTableError{Table: table}
	}
	if len(recs) == 0 {
		return nil, nil
	}
	if !applyWriteOptions(opts).validated {
		if err := f.validator.ValidateAll(table, recs); err != nil {
			return nil, err
		}
	}

	persisted, err := f.backend.Insert(ctx, table, cloneAll(recs))
	if err != nil {
		return nil, &WriteError{Op: "insert", Table: table, Err: err}
	}
	return cloneAll(persisted), nil
}

// Update applies patch to the record with primary key id. Zero rows
// affected fails with a WriteError wrapping ErrNotFound.
func (f *Facade) Update(ctx context.Context, table, id string, patch model.Record, opts ...WriteOption) (out []model.Record, err error) {
	start := time.Now()
	defer func() { f.observe(table, "update", start, err) }()

	pk, err := f.registry.PrimaryKey(table)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &filter.InvalidFilterError{Table: table, Field: pk, Reason: "empty primary key"}
	}

	patch = patch.Clone()
	delete(patch, pk)
	if len(patch) == 0 {
		return nil, ErrEmptyPatch
	}
	if !applyWriteOptions(opts).validated {
		if err := f.validator.ValidatePatch(table, patch); err != nil {
			return nil, err
		}
	}

	rows, err := f.backend.Update(ctx, table, pk, id, patch)
	if err != nil {
		return nil, &WriteError{Op: "update", Table: table, Err: err}
	}
	if len(rows) == 0 {
		return nil, &WriteError{Op: "update", Table: table, Err: ErrNotFound}
	}
	return cloneAll(rows), nil
}

// DeleteOne deletes the record with primary key id. Deleting a missing
// record succeeds.
func (f *Facade) DeleteOne(ctx context.Context, table, id string) error {
	_, err := f.DeleteMany(ctx, table, []string{id})
	return err
}

// DeleteMany deletes every record whose primary key is in ids and returns
// the number removed.
func (f *Facade) DeleteMany(ctx context.Context, table string, ids []string) (n int, err error) {
	start := time.Now()
	defer func() { f.observe(table, "delete", start, err) }()

	pk, err := f.registry.PrimaryKey(table)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		if id == "" {
			return 0, &filter.InvalidFilterError{Table: table, Field: pk, Reason: "empty primary key"}
		}
		values[i] = id
	}
	preds := []filter.Predicate{{Field: pk, Op: filter.OpIn, Values: values}}

	n, err = f.backend.Delete(ctx, table, preds)
	if err != nil {
		return 0, &WriteError{Op: "delete", Table: table, Err: err}
	}
	return n, nil
}

// CleanupOlderThan deletes records of table whose timestamp is more than
// days old. days <= 0 uses DefaultRetentionDays.
func (f *Facade) CleanupOlderThan(ctx context.Context, table string, days int) (n int, err error) {
	start := time.Now()
	defer func() { f.observe(table, "cleanup", start, err) }()

	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := f.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	preds, err := f.compile(table, filter.Spec{model.FieldTimestamp: filter.Ops{"lt": cutoff}})
	if err != nil {
		return 0, err
	}
	n, err = f.backend.Delete(ctx, table, preds)
	if err != nil {
		return 0, &WriteError{Op: "cleanup", Table: table, Err: err}
	}
	f.logger.Info("cleaned up old records", "table", table, "cutoff", cutoff, "count", n)
	return n, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (f *Facade) compile(table string, spec filter.Spec) ([]filter.Predicate, error) {
	if !f.registry.Has(table) {
		return nil, &schema.UnknownTableError{Table: table}
	}
	return filter.Compile(table, spec)
}

func (f *Facade) observe(table, op string, start time.Time, err error) {
	f.metrics.ObserveStoreOp(table, op, err, time.Since(start))
	if err == nil {
		return
	}
	var (
		re *ReadError
		we *WriteError
	)
	if errors.As(err, &re) || errors.As(err, &we) {
		f.logger.Error("store operation failed", "table", table, "op", op, "error", err)
		return
	}
	f.logger.Debug("store operation rejected", "table", table, "op", op, "error", err)
}

func cloneAll(recs []model.Record) []model.Record {
	if recs == nil {
		return nil
	}
	out := make([]model.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
