package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/store"
	"github.com/MAKaminski/alpha-kite/internal/store/memory"
	"github.com/MAKaminski/alpha-kite/internal/validate"
)

// recordingStore counts insert calls and can fail a chosen call.
type recordingStore struct {
	*store.Facade
	sizes  []int
	failAt int // 1-based insert call to fail, 0 for never
}

func (s *recordingStore) Insert(ctx context.Context, table string, recs []model.Record, opts ...store.WriteOption) ([]model.Record, error) {
	s.sizes = append(s.sizes, len(recs))
	if s.failAt == len(s.sizes) {
		return nil, &store.WriteError{Op: "insert", Table: table, Err: errors.New("connection reset")}
	}
	return s.Facade.Insert(ctx, table, recs, opts...)
}

func newStore(t *testing.T) (*recordingStore, *memory.Backend) {
	t.Helper()
	backend := memory.New(nil)
	f, err := store.New(backend, schema.Default(), nil)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return &recordingStore{Facade: f}, backend
}

func quotes(n int) []model.Record {
	recs := make([]model.Record, n)
	for i := range recs {
		recs[i] = model.Record{
			"id":        fmt.Sprintf("q-%04d", i),
			"symbol":    "AAPL",
			"price":     float64(i + 1),
			"timestamp": "2024-01-01T00:00:00Z",
		}
	}
	return recs
}

func TestBulkInsertChunks(t *testing.T) {
	s, backend := newStore(t)
	e := New(s, validate.New(schema.Default(), validate.ModeTruthy), DefaultConfig(), nil, nil)

	out, err := e.BulkInsert(context.Background(), schema.TableEquity, quotes(2500))
	if err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	want := []int{1000, 1000, 500}
	if fmt.Sprint(s.sizes) != fmt.Sprint(want) {
		t.Errorf("insert call sizes = %v, want %v", s.sizes, want)
	}
	if len(out) != 2500 {
		t.Fatalf("returned %d records, want 2500", len(out))
	}
	for i, r := range out {
		if r.ID("id") != fmt.Sprintf("q-%04d", i) {
			t.Fatalf("out[%d] id = %q, input order not preserved", i, r.ID("id"))
		}
	}
	if backend.Len(schema.TableEquity) != 2500 {
		t.Errorf("persisted %d, want 2500", backend.Len(schema.TableEquity))
	}

	stats := e.Stats()
	if stats.Chunks != 3 || stats.Records != 2500 {
		t.Errorf("Stats = %+v, want 3 chunks / 2500 records", stats)
	}
}

func TestBulkInsertStopsAtFirstFailure(t *testing.T) {
	s, backend := newStore(t)
	s.failAt = 2
	e := New(s, nil, DefaultConfig(), nil, nil)

	out, err := e.BulkInsert(context.Background(), schema.TableEquity, quotes(2500))

	var cerr *ChunkError
	if !errors.As(err, &cerr) {
		t.Fatalf("BulkInsert error = %v, want *ChunkError", err)
	}
	if cerr.Chunk != 1 || cerr.Index != 1000 {
		t.Errorf("failed chunk = %d at index %d, want 1 at 1000", cerr.Chunk, cerr.Index)
	}
	if cerr.CommittedChunks != 1 || cerr.CommittedRecords != 1000 {
		t.Errorf("committed = %d chunks / %d records, want 1 / 1000", cerr.CommittedChunks, cerr.CommittedRecords)
	}
	var we *store.WriteError
	if !errors.As(err, &we) {
		t.Errorf("ChunkError should unwrap to *store.WriteError")
	}

	if len(s.sizes) != 2 {
		t.Errorf("insert calls = %d, want 2 (third chunk must not be sent)", len(s.sizes))
	}
	if len(out) != 1000 {
		t.Errorf("returned %d committed records, want 1000", len(out))
	}
	if backend.Len(schema.TableEquity) != 1000 {
		t.Errorf("persisted %d, want 1000 (no rollback)", backend.Len(schema.TableEquity))
	}
	if e.Stats().Failures != 1 {
		t.Errorf("Failures = %d, want 1", e.Stats().Failures)
	}
}

func TestBulkInsertValidatesBeforeFirstChunk(t *testing.T) {
	s, backend := newStore(t)
	e := New(s, validate.New(schema.Default(), validate.ModeTruthy), DefaultConfig(), nil, nil)

	recs := quotes(2500)
	delete(recs[2400], "price")

	_, err := e.BulkInsert(context.Background(), schema.TableEquity, recs)
	var mfe *validate.MissingFieldError
	if !errors.As(err, &mfe) {
		t.Fatalf("BulkInsert error = %v, want *validate.MissingFieldError", err)
	}
	if len(s.sizes) != 0 {
		t.Errorf("insert calls = %d, want 0", len(s.sizes))
	}
	if backend.Len(schema.TableEquity) != 0 {
		t.Errorf("persisted %d, want 0", backend.Len(schema.TableEquity))
	}
}

func TestBulkUpdate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Executor, []Update) {
		s, _ := newStore(t)
		if _, err := s.Insert(ctx, schema.TableEquity, quotes(3)); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
		e := New(s, nil, DefaultConfig(), nil, nil)
		return e, []Update{
			{ID: "q-0000", Patch: model.Record{"price": 10.0}},
			{ID: "missing", Patch: model.Record{"price": 20.0}},
			{ID: "q-0002", Patch: model.Record{"price": 30.0}},
		}
	}

	t.Run("stops at first failure by default", func(t *testing.T) {
		e, updates := setup(t)
		results, err := e.BulkUpdate(ctx, schema.TableEquity, updates)

		var uerr *UpdateError
		if !errors.As(err, &uerr) {
			t.Fatalf("BulkUpdate error = %v, want *UpdateError", err)
		}
		if uerr.Index != 1 || uerr.ID != "missing" {
			t.Errorf("UpdateError = %+v, want index 1 id missing", uerr)
		}
		if !store.IsNotFound(err) {
			t.Errorf("error should wrap store.ErrNotFound")
		}
		if len(results) != 2 {
			t.Errorf("results = %d, want 2", len(results))
		}
	})

	t.Run("continue on error", func(t *testing.T) {
		e, updates := setup(t)
		results, err := e.BulkUpdate(ctx, schema.TableEquity, updates, ContinueOnError())
		if err == nil {
			t.Fatal("expected joined error, got nil")
		}
		if len(results) != 3 {
			t.Fatalf("results = %d, want 3", len(results))
		}
		if results[1].Err == nil {
			t.Error("results[1] should carry the failure")
		}
		if p, _ := results[2].Records[0].Float("price"); p != 30 {
			t.Errorf("results[2] price = %v, want 30", p)
		}
	})
}

func TestBulkDelete(t *testing.T) {
	s, backend := newStore(t)
	ctx := context.Background()
	recs := quotes(25)
	if _, err := s.Insert(ctx, schema.TableEquity, recs); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	e := New(s, nil, Config{ChunkSize: 10}, nil, nil)
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = recs[i].ID("id")
	}

	n, err := e.BulkDelete(ctx, schema.TableEquity, ids)
	if err != nil {
		t.Fatalf("BulkDelete failed: %v", err)
	}
	if n != 20 {
		t.Errorf("deleted %d, want 20", n)
	}
	if backend.Len(schema.TableEquity) != 5 {
		t.Errorf("remaining %d, want 5", backend.Len(schema.TableEquity))
	}
	if e.Stats().Chunks != 2 {
		t.Errorf("Chunks = %d, want 2", e.Stats().Chunks)
	}
}
