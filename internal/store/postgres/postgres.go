package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

// Backend is a PostgreSQL store.Backend.
type Backend struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a backend over pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{pool: pool, logger: logger}
}

// Select implements store.Backend.
func (b *Backend) Select(ctx context.Context, table string, preds []filter.Predicate, opts store.QueryOptions) ([]model.Record, error) {
	query, args := buildSelect(table, preds, opts)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Count implements store.Backend.
func (b *Backend) Count(ctx context.Context, table string, preds []filter.Predicate) (int, error) {
	where, args := filter.SQL(preds, 1)
	query := fmt.Sprintf("SELECT count(*) FROM %s AS t WHERE %s", ident(table), where)

	var n int64
	if err := b.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(n), nil
}

// Insert implements store.Backend. All records are written in one
// transaction and returned in input order.
func (b *Backend) Insert(ctx context.Context, table string, recs []model.Record) ([]model.Record, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range recs {
		query, args := buildInsert(table, rec)
		batch.Queue(query, args...)
	}

	results := tx.SendBatch(ctx, batch)
	out := make([]model.Record, 0, len(recs))
	for i := range recs {
		var row map[string]any
		if err := results.QueryRow().Scan(&row); err != nil {
			results.Close()
			return nil, fmt.Errorf("insert record %d: %w", i, err)
		}
		out = append(out, model.Record(row))
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	b.logger.Debug("inserted records", "table", table, "count", len(out))
	return out, nil
}

// Update implements store.Backend.
func (b *Backend) Update(ctx context.Context, table, pk, id string, patch model.Record) ([]model.Record, error) {
	query, args := buildUpdate(table, pk, id, patch)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return collectRecords(rows)
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, table string, preds []filter.Predicate) (int, error) {
	where, args := filter.SQL(preds, 1)
	query := fmt.Sprintf("DELETE FROM %s AS t WHERE %s", ident(table), where)

	tag, err := b.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close closes the pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func collectRecords(rows pgx.Rows) ([]model.Record, error) {
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Record, error) {
		var m map[string]any
		if err := row.Scan(&m); err != nil {
			return nil, err
		}
		return model.Record(m), nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	return recs, nil
}

// -----------------------------------------------------------------------------
// Statement builders
// -----------------------------------------------------------------------------

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func buildSelect(table string, preds []filter.Predicate, opts store.QueryOptions) (string, []any) {
	where, args := filter.SQL(preds, 1)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT to_jsonb(t) FROM %s AS t WHERE %s", ident(table), where)

	if s := opts.Search; s != nil && s.Term != "" && len(s.Fields) > 0 {
		args = append(args, "%"+escapeLike(s.Term)+"%")
		term := "$" + strconv.Itoa(len(args))
		clauses := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			// Read through jsonb so a table without the column matches nothing
			// instead of failing.
			args = append(args, f)
			clauses[i] = fmt.Sprintf("(to_jsonb(t)->>$%d) ILIKE %s", len(args), term)
		}
		fmt.Fprintf(&sb, " AND (%s)", strings.Join(clauses, " OR "))
	}

	if opts.OrderBy != "" {
		dir := "ASC"
		if opts.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s NULLS LAST", ident(opts.OrderBy), dir)
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	}
	return sb.String(), args
}

func buildInsert(table string, rec model.Record) (string, []any) {
	cols := sortedKeys(rec)
	names := make([]string, len(cols))
	ph := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = ident(c)
		ph[i] = "$" + strconv.Itoa(i+1)
		args[i] = rec[c]
	}
	query := fmt.Sprintf(
		"INSERT INTO %s AS t (%s) VALUES (%s) RETURNING to_jsonb(t)",
		ident(table), strings.Join(names, ", "), strings.Join(ph, ", "),
	)
	return query, args
}

func buildUpdate(table, pk, id string, patch model.Record) (string, []any) {
	cols := sortedKeys(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		args = append(args, patch[c])
		sets[i] = fmt.Sprintf("%s = $%d", ident(c), len(args))
	}
	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE %s AS t SET %s WHERE t.%s::text = $%d RETURNING to_jsonb(t)",
		ident(table), strings.Join(sets, ", "), ident(pk), len(args),
	)
	return query, args
}

func sortedKeys(rec model.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
