package postgres

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

func TestBuildSelect(t *testing.T) {
	preds, err := filter.Compile("equity_data", filter.Spec{"symbol": "AAPL"})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	query, args := buildSelect("equity_data", preds, store.QueryOptions{
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      10,
	})
	want := `SELECT to_jsonb(t) FROM "equity_data" AS t WHERE "symbol" = $1 ORDER BY "timestamp" DESC NULLS LAST LIMIT 10`
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if !reflect.DeepEqual(args, []any{"AAPL"}) {
		t.Errorf("args = %v, want [AAPL]", args)
	}
}

func TestBuildSelectSearch(t *testing.T) {
	query, args := buildSelect("equity_data", nil, store.QueryOptions{
		Limit:  50,
		Search: &store.Search{Fields: []string{"symbol", "description"}, Term: "10%_off"},
	})
	want := `SELECT to_jsonb(t) FROM "equity_data" AS t WHERE TRUE AND ((to_jsonb(t)->>$2) ILIKE $1 OR (to_jsonb(t)->>$3) ILIKE $1) LIMIT 50`
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	wantArgs := []any{`%10\%\_off%`, "symbol", "description"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args = %v, want %v", args, wantArgs)
	}
}

func TestBuildInsert(t *testing.T) {
	query, args := buildInsert("equity_data", model.Record{
		"symbol":    "AAPL",
		"price":     150.0,
		"timestamp": "2024-01-01T00:00:00Z",
	})
	want := `INSERT INTO "equity_data" AS t ("price", "symbol", "timestamp") VALUES ($1, $2, $3) RETURNING to_jsonb(t)`
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if !reflect.DeepEqual(args, []any{150.0, "AAPL", "2024-01-01T00:00:00Z"}) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildUpdate(t *testing.T) {
	query, args := buildUpdate("equity_data", "id", "abc", model.Record{"price": 151.0, "volume": 10})
	want := `UPDATE "equity_data" AS t SET "price" = $1, "volume" = $2 WHERE t."id"::text = $3 RETURNING to_jsonb(t)`
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if !reflect.DeepEqual(args, []any{151.0, 10, "abc"}) {
		t.Errorf("args = %v", args)
	}
}

func TestDecodeNotification(t *testing.T) {
	payload := `{"table":"equity_data","type":"INSERT","new":{"id":"1","symbol":"AAPL"},"old":null,"commit_time":"2024-01-01T00:00:00Z"}`

	ev, err := decodeNotification("equity_data", []byte(payload))
	if err != nil {
		t.Fatalf("decodeNotification failed: %v", err)
	}
	if ev.Type != model.ChangeInsert {
		t.Errorf("Type = %s, want %s", ev.Type, model.ChangeInsert)
	}
	if ev.New.String("symbol") != "AAPL" {
		t.Errorf("New.symbol = %q, want %q", ev.New.String("symbol"), "AAPL")
	}
	if !ev.CommitTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CommitTime = %v", ev.CommitTime)
	}

	if _, err := decodeNotification("equity_data", []byte(`{"type":"TRUNCATE"}`)); err == nil {
		t.Error("expected error for unknown change type")
	}
	if _, err := decodeNotification("equity_data", []byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestNotifyTriggerSQL(t *testing.T) {
	sql := NotifyTriggerSQL("options_data")
	for _, want := range []string{
		`CREATE TRIGGER "alphakite_options_data_changes"`,
		`ON "options_data"`,
		`'alphakite_' || TG_TABLE_NAME`,
		`EXECUTE FUNCTION "alphakite_notify"()`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("trigger SQL missing %q", want)
		}
	}
	if ChannelName("options_data") != "alphakite_options_data" {
		t.Errorf("ChannelName = %q", ChannelName("options_data"))
	}
}
