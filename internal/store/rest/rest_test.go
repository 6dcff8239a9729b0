package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

func TestSelect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/equity_data" {
			t.Errorf("Path = %q, want %q", r.URL.Path, "/equity_data")
		}
		if r.Header.Get("apikey") != "key" {
			t.Errorf("apikey header = %q, want %q", r.Header.Get("apikey"), "key")
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("Authorization = %q, want %q", r.Header.Get("Authorization"), "Bearer key")
		}
		q := r.URL.Query()
		if q.Get("symbol") != "eq.AAPL" {
			t.Errorf("symbol = %q, want %q", q.Get("symbol"), "eq.AAPL")
		}
		if q.Get("order") != "timestamp.desc.nullslast" {
			t.Errorf("order = %q, want %q", q.Get("order"), "timestamp.desc.nullslast")
		}
		if q.Get("limit") != "5" {
			t.Errorf("limit = %q, want %q", q.Get("limit"), "5")
		}
		w.Write([]byte(`[{"id":"1","symbol":"AAPL","price":150}]`))
	}))
	defer server.Close()

	b := New(server.URL, "key")
	preds := []filter.Predicate{{Field: "symbol", Op: filter.OpEq, Value: "AAPL"}}
	recs, err := b.Select(context.Background(), "equity_data", preds, store.QueryOptions{
		OrderBy: "timestamp", Descending: true, Limit: 5,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(recs) != 1 || recs[0].String("symbol") != "AAPL" {
		t.Errorf("Select = %v, want one AAPL record", recs)
	}
}

func TestSelectSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("or"); got != "(symbol.ilike.*aap*,description.ilike.*aap*)" {
			t.Errorf("or = %q", got)
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	b := New(server.URL, "key")
	_, err := b.Select(context.Background(), "equity_data", nil, store.QueryOptions{
		Search: &store.Search{Fields: []string{"symbol", "description"}, Term: "aap"},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
}

func TestInsert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("Prefer = %q, want return=representation", r.Header.Get("Prefer"))
		}
		body, _ := io.ReadAll(r.Body)
		var recs []map[string]any
		if err := json.Unmarshal(body, &recs); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		for i := range recs {
			recs[i]["id"] = string(rune('a' + i))
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(recs)
	}))
	defer server.Close()

	b := New(server.URL, "key")
	out, err := b.Insert(context.Background(), "equity_data", []model.Record{
		{"symbol": "AAPL"}, {"symbol": "MSFT"},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(out) != 2 || out[1].ID("id") != "b" {
		t.Errorf("Insert = %v, want ids a, b", out)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			if r.URL.Query().Get("id") != "eq.42" {
				t.Errorf("id = %q, want eq.42", r.URL.Query().Get("id"))
			}
			w.Write([]byte(`[]`))
		case http.MethodDelete:
			if r.URL.Query().Get("id") != "in.(1,2)" {
				t.Errorf("id = %q, want in.(1,2)", r.URL.Query().Get("id"))
			}
			w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	b := New(server.URL, "key")
	ctx := context.Background()

	rows, err := b.Update(ctx, "equity_data", "id", "42", model.Record{"price": 1.0})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Update rows = %d, want 0", len(rows))
	}

	preds := []filter.Predicate{{Field: "id", Op: filter.OpIn, Values: []any{"1", "2"}}}
	n, err := b.Delete(ctx, "equity_data", preds)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Delete = %d, want 2", n)
	}

	if _, err := b.Delete(ctx, "equity_data", nil); err == nil {
		t.Error("unfiltered Delete should fail")
	}
}

func TestCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Method = %s, want HEAD", r.Method)
		}
		if r.Header.Get("Prefer") != "count=exact" {
			t.Errorf("Prefer = %q, want count=exact", r.Header.Get("Prefer"))
		}
		w.Header().Set("Content-Range", "0-0/1234")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	n, err := New(server.URL, "key").Count(context.Background(), "equity_data", nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1234 {
		t.Errorf("Count = %d, want 1234", n)
	}
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"column \"nope\" does not exist"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "key").Select(context.Background(), "equity_data", nil, store.QueryOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Message != `column "nope" does not exist` {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0-0/10", 10, false},
		{"*/0", 0, false},
		{"0-9/*", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseContentRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseContentRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseContentRange(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestListenWithoutRealtime(t *testing.T) {
	if _, err := New("http://localhost", "key").Listen(context.Background(), "equity_data"); err == nil {
		t.Error("Listen without realtime url should fail")
	}
}
