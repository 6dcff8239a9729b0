package store_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/store"
	"github.com/MAKaminski/alpha-kite/internal/store/memory"
	"github.com/MAKaminski/alpha-kite/internal/validate"
)

func newFacade(t *testing.T, opts ...store.Option) (*store.Facade, *memory.Backend) {
	t.Helper()
	backend := memory.New(nil)
	f, err := store.New(backend, schema.Default(), nil, opts...)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return f, backend
}

func quote(symbol string, price float64, ts string) model.Record {
	return model.Record{"symbol": symbol, "price": price, "timestamp": ts}
}

func TestNewWithoutBackend(t *testing.T) {
	_, err := store.New(nil, nil, nil)
	var nce *config.NotConfiguredError
	if !errors.As(err, &nce) {
		t.Fatalf("New(nil) error = %v, want *config.NotConfiguredError", err)
	}
}

func TestInsertThenLatest(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	rec := quote("AAPL", 150.00, "2024-01-01T00:00:00Z")
	if _, err := f.Insert(ctx, schema.TableEquity, []model.Record{rec}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := f.Latest(ctx, schema.TableEquity, 1)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Latest returned %d records, want 1", len(got))
	}
	if got[0].String("symbol") != "AAPL" {
		t.Errorf("symbol = %q, want %q", got[0].String("symbol"), "AAPL")
	}
	if p, _ := got[0].Float("price"); p != 150.00 {
		t.Errorf("price = %v, want 150", p)
	}
}

func TestInsertMissingFieldPersistsNothing(t *testing.T) {
	f, backend := newFacade(t)
	ctx := context.Background()

	recs := []model.Record{
		quote("AAPL", 150, "2024-01-01T00:00:00Z"),
		{"symbol": "MSFT", "timestamp": "2024-01-01T00:00:00Z"},
	}
	_, err := f.Insert(ctx, schema.TableEquity, recs)

	var mfe *validate.MissingFieldError
	if !errors.As(err, &mfe) {
		t.Fatalf("Insert error = %v, want *validate.MissingFieldError", err)
	}
	if len(mfe.Fields) != 1 || mfe.Fields[0] != "price" {
		t.Errorf("Fields = %v, want [price]", mfe.Fields)
	}
	if n := backend.Len(schema.TableEquity); n != 0 {
		t.Errorf("persisted %d records, want 0", n)
	}
}

func TestInsertCopiesRecords(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	rec := quote("AAPL", 150, "2024-01-01T00:00:00Z")
	out, err := f.Insert(ctx, schema.TableEquity, []model.Record{rec})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, ok := rec["id"]; ok {
		t.Error("caller's record was mutated")
	}

	out[0]["price"] = 1.0
	got, _ := f.Select(ctx, schema.TableEquity, nil)
	if p, _ := got[0].Float("price"); p != 150 {
		t.Errorf("stored price = %v after caller mutation, want 150", p)
	}
}

func TestSelectMatchesEveryTerm(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	symbols := []string{"AAPL", "MSFT", "QQQ", "SPY"}
	types := []string{model.OptionCall, model.OptionPut}
	var recs []model.Record
	for i := 0; i < 200; i++ {
		recs = append(recs, model.Record{
			"symbol":    symbols[rng.Intn(len(symbols))],
			"strike":    float64(100 + 10*rng.Intn(5)),
			"type":      types[rng.Intn(2)],
			"expiry":    "2024-02-16",
			"timestamp": "2024-01-01T00:00:00Z",
		})
	}
	if _, err := f.Insert(ctx, schema.TableOptions, recs); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	spec := filter.Spec{
		"symbol": []string{"AAPL", "QQQ"},
		"type":   model.OptionCall,
		"strike": 120.0,
	}
	want := 0
	for _, r := range recs {
		s := r.String("symbol")
		if (s == "AAPL" || s == "QQQ") && r.String("type") == model.OptionCall && r["strike"] == 120.0 {
			want++
		}
	}

	got, err := f.Select(ctx, schema.TableOptions, spec)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(got) != want {
		t.Errorf("Select returned %d records, want %d", len(got), want)
	}
	for _, r := range got {
		s := r.String("symbol")
		if (s != "AAPL" && s != "QQQ") || r.String("type") != model.OptionCall {
			t.Errorf("record %v does not match spec", r)
		}
	}

	n, err := f.Count(ctx, schema.TableOptions, spec)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != want {
		t.Errorf("Count = %d, want %d", n, want)
	}
}

func TestBySymbol(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()
	_, err := f.Insert(ctx, schema.TableEquity, []model.Record{
		quote("SPY", 470, "2024-01-01T00:00:00Z"),
		quote("QQQ", 400, "2024-01-02T00:00:00Z"),
		quote("SPY", 472, "2024-01-03T00:00:00Z"),
		quote("SPY", 471, "2024-01-02T00:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	tests := []struct {
		limit  int
		prices []float64
	}{
		{0, []float64{472, 471, 470}},
		{2, []float64{472, 471}},
	}
	for _, tt := range tests {
		got, err := f.BySymbol(ctx, schema.TableEquity, "SPY", tt.limit)
		if err != nil {
			t.Fatalf("BySymbol failed: %v", err)
		}
		if len(got) != len(tt.prices) {
			t.Fatalf("BySymbol(limit=%d) returned %d records, want %d", tt.limit, len(got), len(tt.prices))
		}
		for i, want := range tt.prices {
			if p, _ := got[i].Float("price"); p != want {
				t.Errorf("BySymbol(limit=%d)[%d] price = %v, want %v", tt.limit, i, p, want)
			}
		}
	}
}

func TestSelectErrors(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	var ute *schema.UnknownTableError
	if _, err := f.Select(ctx, "nope", nil); !errors.As(err, &ute) {
		t.Errorf("Select(nope) error = %v, want *schema.UnknownTableError", err)
	}

	var ife *filter.InvalidFilterError
	_, err := f.Select(ctx, schema.TableEquity, filter.Spec{"price": filter.Ops{"between": 1}})
	if !errors.As(err, &ife) {
		t.Errorf("Select(bad op) error = %v, want *filter.InvalidFilterError", err)
	}
}

func TestUpdate(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	out, err := f.Insert(ctx, schema.TableEquity, []model.Record{quote("AAPL", 150, "2024-01-01T00:00:00Z")})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	id := out[0].ID("id")

	updated, err := f.Update(ctx, schema.TableEquity, id, model.Record{"price": 155.5})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if p, _ := updated[0].Float("price"); p != 155.5 {
		t.Errorf("price = %v, want 155.5", p)
	}
	if updated[0].String("symbol") != "AAPL" {
		t.Errorf("update should keep untouched fields, got %v", updated[0])
	}

	_, err = f.Update(ctx, schema.TableEquity, "missing", model.Record{"price": 1.0})
	var we *store.WriteError
	if !errors.As(err, &we) {
		t.Fatalf("Update(missing) error = %v, want *store.WriteError", err)
	}
	if !store.IsNotFound(err) {
		t.Errorf("Update(missing) should wrap ErrNotFound, got %v", err)
	}

	if _, err := f.Update(ctx, schema.TableEquity, id, model.Record{"price": 0}); err == nil {
		t.Error("Update blanking a required field should fail validation")
	}
	if _, err := f.Update(ctx, schema.TableEquity, id, model.Record{"id": "other"}); !errors.Is(err, store.ErrEmptyPatch) {
		t.Errorf("Update(pk only) error = %v, want %v", err, store.ErrEmptyPatch)
	}
}

func TestDelete(t *testing.T) {
	f, backend := newFacade(t)
	ctx := context.Background()

	out, _ := f.Insert(ctx, schema.TableEquity, []model.Record{
		quote("AAPL", 1, "2024-01-01T00:00:00Z"),
		quote("MSFT", 2, "2024-01-01T00:00:00Z"),
		quote("QQQ", 3, "2024-01-01T00:00:00Z"),
	})

	if err := f.DeleteOne(ctx, schema.TableEquity, out[0].ID("id")); err != nil {
		t.Fatalf("DeleteOne failed: %v", err)
	}
	n, err := f.DeleteMany(ctx, schema.TableEquity, []string{out[1].ID("id"), out[2].ID("id"), "missing"})
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteMany removed %d, want 2", n)
	}
	if backend.Len(schema.TableEquity) != 0 {
		t.Errorf("Len = %d, want 0", backend.Len(schema.TableEquity))
	}
	if err := f.DeleteOne(ctx, schema.TableEquity, "missing"); err != nil {
		t.Errorf("DeleteOne(missing) error = %v, want nil", err)
	}
}

func TestDateRangeInclusive(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	f.Insert(ctx, schema.TableEquity, []model.Record{
		quote("AAPL", 3, "2024-01-03T00:00:00Z"),
		quote("AAPL", 1, "2024-01-01T00:00:00Z"),
		quote("AAPL", 2, "2024-01-02T00:00:00Z"),
		quote("AAPL", 4, "2024-01-04T00:00:00Z"),
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	got, err := f.DateRange(ctx, schema.TableEquity, start, end)
	if err != nil {
		t.Fatalf("DateRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("DateRange returned %d records, want 3", len(got))
	}
	for i, r := range got {
		if p, _ := r.Float("price"); p != float64(i+1) {
			t.Errorf("record %d price = %v, want %d", i, p, i+1)
		}
	}

	if _, err := f.DateRange(ctx, schema.TableEquity, end, start); err == nil {
		t.Error("DateRange with end before start should fail")
	}
}

func TestSearch(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	var recs []model.Record
	for i := 0; i < 60; i++ {
		recs = append(recs, model.Record{
			"symbol":      fmt.Sprintf("TK%02d", i),
			"description": "Tech Fund",
			"price":       1.0,
			"timestamp":   "2024-01-01T00:00:00Z",
		})
	}
	recs = append(recs, quote("AAPL", 1, "2024-01-01T00:00:00Z"))
	f.Insert(ctx, schema.TableEquity, recs)

	got, err := f.Search(ctx, schema.TableEquity, "tech", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != store.MaxSearchResults {
		t.Errorf("Search returned %d, want cap %d", len(got), store.MaxSearchResults)
	}

	got, _ = f.Search(ctx, schema.TableEquity, "aap", 500)
	if len(got) != 1 || got[0].String("symbol") != "AAPL" {
		t.Errorf("Search(aap) = %v, want AAPL", got)
	}
}

func TestCleanupOlderThan(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f, backend := newFacade(t, store.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	f.Insert(ctx, schema.TableEquity, []model.Record{
		quote("AAPL", 1, "2024-01-01T00:00:00Z"),
		quote("AAPL", 2, "2024-05-30T00:00:00Z"),
	})

	n, err := f.CleanupOlderThan(ctx, schema.TableEquity, 0)
	if err != nil {
		t.Fatalf("CleanupOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if backend.Len(schema.TableEquity) != 1 {
		t.Errorf("Len = %d, want 1", backend.Len(schema.TableEquity))
	}
}

type failingBackend struct {
	*memory.Backend
	err error
}

func (b *failingBackend) Insert(context.Context, string, []model.Record) ([]model.Record, error) {
	return nil, b.err
}

func (b *failingBackend) Select(context.Context, string, []filter.Predicate, store.QueryOptions) ([]model.Record, error) {
	return nil, b.err
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	f, err := store.New(&failingBackend{Backend: memory.New(nil), err: boom}, nil, nil)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	ctx := context.Background()

	_, err = f.Insert(ctx, schema.TableEquity, []model.Record{quote("AAPL", 1, "2024-01-01T00:00:00Z")})
	var we *store.WriteError
	if !errors.As(err, &we) || !errors.Is(err, boom) {
		t.Errorf("Insert error = %v, want *store.WriteError wrapping %v", err, boom)
	}

	_, err = f.Latest(ctx, schema.TableEquity, 1)
	var re *store.ReadError
	if !errors.As(err, &re) || !errors.Is(err, boom) {
		t.Errorf("Latest error = %v, want *store.ReadError wrapping %v", err, boom)
	}
}
