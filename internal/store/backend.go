package store

import (
	"context"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
)

// Backend is the remote store capability the Facade is built on.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Select returns records matching every predicate.
	Select(ctx context.Context, table string, preds []filter.Predicate, opts QueryOptions) ([]model.Record, error)

	// Count returns the number of records matching every predicate.
	Count(ctx context.Context, table string, preds []filter.Predicate) (int, error)

	// Insert persists recs and returns them as stored, in input order.
	Insert(ctx context.Context, table string, recs []model.Record) ([]model.Record, error)

	// Update applies patch to the row whose pk field equals id and returns
	// the updated rows. No match returns an empty slice, not an error.
	Update(ctx context.Context, table, pk, id string, patch model.Record) ([]model.Record, error)

	// Delete removes rows matching every predicate and returns the count.
	Delete(ctx context.Context, table string, preds []filter.Predicate) (int, error)

	// Listen opens a change feed for table.
	Listen(ctx context.Context, table string) (Feed, error)

	Close() error
}

// Feed is a long-lived change notification channel for one table.
type Feed interface {
	// Events delivers changes in commit order. The channel is closed when
	// the feed is closed by either side.
	Events() <-chan model.ChangeEvent

	// Err returns why the store ended the feed, or nil.
	Err() error

	Close() error
}

// QueryOptions shapes a Select.
type QueryOptions struct {
	OrderBy    string
	Descending bool
	Limit      int // 0 means no limit
	Search     *Search
}

// Search is a case-insensitive substring match OR-ed across Fields.
type Search struct {
	Fields []string
	Term   string
}
