// Package memory is an in-process store backend. Tables are created on first
// write. Every mutation is published to the table's open change feeds in
// commit order.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

// ErrFeedTerminated is reported by feeds the backend ended.
var ErrFeedTerminated = errors.New("change feed terminated by store")

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("memory store closed")

// feedBuffer is the per-feed channel capacity. Events beyond it queue in
// the feed's pending list, which has no bound.
const feedBuffer = 64

// Backend is an in-memory store.Backend.
type Backend struct {
	registry *schema.Registry
	now      func() time.Time

	mu     sync.RWMutex
	tables map[string][]model.Record
	closed bool

	// notifyMu serializes publication so feeds see commits in order. It is
	// acquired before mu is released.
	notifyMu sync.Mutex
	feeds    map[string]map[*feed]struct{}
}

// New creates an empty backend. The registry supplies primary-key names;
// nil uses the built-in tables.
func New(registry *schema.Registry) *Backend {
	if registry == nil {
		registry = schema.Default()
	}
	return &Backend{
		registry: registry,
		now:      time.Now,
		tables:   make(map[string][]model.Record),
		feeds:    make(map[string]map[*feed]struct{}),
	}
}

func (b *Backend) pk(table string) string {
	if pk, err := b.registry.PrimaryKey(table); err == nil {
		return pk
	}
	return schema.DefaultPrimaryKey
}

// Select implements store.Backend.
func (b *Backend) Select(ctx context.Context, table string, preds []filter.Predicate, opts store.QueryOptions) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	var out []model.Record
	for _, r := range b.tables[table] {
		if filter.Match(preds, r) && matchSearch(opts.Search, r) {
			out = append(out, r.Clone())
		}
	}
	b.mu.RUnlock()

	if opts.OrderBy != "" {
		sortRecords(out, opts.OrderBy, opts.Descending)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Count implements store.Backend.
func (b *Backend) Count(ctx context.Context, table string, preds []filter.Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, r := range b.tables[table] {
		if filter.Match(preds, r) {
			n++
		}
	}
	return n, nil
}

// Insert implements store.Backend. Records without a primary key get a
// uuid. A duplicate key rejects the whole call.
func (b *Backend) Insert(ctx context.Context, table string, recs []model.Record) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pk := b.pk(table)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}

	existing := make(map[string]struct{}, len(b.tables[table]))
	for _, r := range b.tables[table] {
		existing[r.ID(pk)] = struct{}{}
	}

	rows := make([]model.Record, len(recs))
	for i, rec := range recs {
		row := rec.Clone()
		if !row.Has(pk) {
			row[pk] = uuid.NewString()
		}
		id := row.ID(pk)
		if _, dup := existing[id]; dup {
			b.mu.Unlock()
			return nil, fmt.Errorf("duplicate key %s=%s", pk, id)
		}
		existing[id] = struct{}{}
		rows[i] = row
	}
	b.tables[table] = append(b.tables[table], rows...)

	commit := b.now().UTC()
	events := make([]model.ChangeEvent, len(rows))
	out := make([]model.Record, len(rows))
	for i, row := range rows {
		events[i] = model.ChangeEvent{Table: table, Type: model.ChangeInsert, New: row.Clone(), CommitTime: commit}
		out[i] = row.Clone()
	}
	b.publish(table, events)
	return out, nil
}

// Update implements store.Backend.
func (b *Backend) Update(ctx context.Context, table, pk, id string, patch model.Record) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}

	var (
		out    []model.Record
		events []model.ChangeEvent
		commit = b.now().UTC()
	)
	for i, r := range b.tables[table] {
		if r.ID(pk) != id {
			continue
		}
		old := r.Clone()
		for k, v := range patch {
			r[k] = v
		}
		b.tables[table][i] = r
		out = append(out, r.Clone())
		events = append(events, model.ChangeEvent{Table: table, Type: model.ChangeUpdate, New: r.Clone(), Old: old, CommitTime: commit})
	}
	b.publish(table, events)
	return out, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, table string, preds []filter.Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}

	var (
		kept   []model.Record
		events []model.ChangeEvent
		commit = b.now().UTC()
	)
	for _, r := range b.tables[table] {
		if filter.Match(preds, r) {
			events = append(events, model.ChangeEvent{Table: table, Type: model.ChangeDelete, Old: r.Clone(), CommitTime: commit})
			continue
		}
		kept = append(kept, r)
	}
	b.tables[table] = kept
	b.publish(table, events)
	return len(events), nil
}

// publish appends events to the pending list of each of the table's feeds.
// It must be called with mu held and releases it. It never blocks on a
// reader, so a listener may write to the store from inside its callback.
func (b *Backend) publish(table string, events []model.ChangeEvent) {
	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()

	for f := range b.feeds[table] {
		batch := make([]model.ChangeEvent, len(events))
		for i, ev := range events {
			ev.New = ev.New.Clone()
			ev.Old = ev.Old.Clone()
			batch[i] = ev
		}
		f.enqueue(batch)
	}
}

// Listen implements store.Backend.
func (b *Backend) Listen(ctx context.Context, table string) (store.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	f := &feed{
		backend: b,
		table:   table,
		events:  make(chan model.ChangeEvent, feedBuffer),
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	b.notifyMu.Lock()
	if b.feeds[table] == nil {
		b.feeds[table] = make(map[*feed]struct{})
	}
	b.feeds[table][f] = struct{}{}
	b.notifyMu.Unlock()
	go f.run()
	return f, nil
}

// Terminate ends every feed on table as if the store dropped the channel.
func (b *Backend) Terminate(table string) {
	b.notifyMu.Lock()
	feeds := make([]*feed, 0, len(b.feeds[table]))
	for f := range b.feeds[table] {
		feeds = append(feeds, f)
	}
	b.notifyMu.Unlock()

	for _, f := range feeds {
		f.end(ErrFeedTerminated)
	}
}

// Len returns the number of rows in table.
func (b *Backend) Len(table string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tables[table])
}

// Close ends all feeds and rejects further operations.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.notifyMu.Lock()
	tables := make([]string, 0, len(b.feeds))
	for t := range b.feeds {
		tables = append(tables, t)
	}
	b.notifyMu.Unlock()

	for _, t := range tables {
		b.Terminate(t)
	}
	return nil
}

type feed struct {
	backend *Backend
	table   string
	events  chan model.ChangeEvent
	done    chan struct{}
	wake    chan struct{}

	mu      sync.Mutex
	pending []model.ChangeEvent

	once sync.Once
	err  error
}

func (f *feed) enqueue(events []model.ChangeEvent) {
	f.mu.Lock()
	f.pending = append(f.pending, events...)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// run moves pending events onto the events channel in order until the feed
// ends, then closes the channel.
func (f *feed) run() {
	defer close(f.events)
	for {
		f.mu.Lock()
		batch := f.pending
		f.pending = nil
		f.mu.Unlock()

		for _, ev := range batch {
			select {
			case f.events <- ev:
			case <-f.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-f.wake:
		case <-f.done:
			return
		}
	}
}

func (f *feed) Events() <-chan model.ChangeEvent { return f.events }

func (f *feed) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

func (f *feed) Close() error {
	f.end(nil)
	return nil
}

func (f *feed) end(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)

		b := f.backend
		b.notifyMu.Lock()
		delete(b.feeds[f.table], f)
		b.notifyMu.Unlock()
	})
}

func matchSearch(s *store.Search, r model.Record) bool {
	if s == nil || s.Term == "" {
		return true
	}
	term := strings.ToLower(s.Term)
	for _, field := range s.Fields {
		if strings.Contains(strings.ToLower(r.String(field)), term) {
			return true
		}
	}
	return false
}

// sortRecords orders by field with records missing the field last.
func sortRecords(recs []model.Record, field string, desc bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, aok := recs[i][field]
		c, cok := recs[j][field]
		if !aok || a == nil {
			return false
		}
		if !cok || c == nil {
			return true
		}
		cmp, _ := filter.Compare(a, c)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
