package filter

import (
	"reflect"
	"testing"
)

func TestSQL(t *testing.T) {
	preds, err := Compile("equity_data", Spec{
		"symbol": []string{"AAPL", "MSFT"},
		"price":  Ops{"gte": 100.0, "lt": 200.0},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	where, args := SQL(preds, 1)
	wantWhere := `"price" >= $1 AND "price" < $2 AND "symbol" IN ($3, $4)`
	if where != wantWhere {
		t.Errorf("where = %q, want %q", where, wantWhere)
	}
	wantArgs := []any{100.0, 200.0, "AAPL", "MSFT"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args = %v, want %v", args, wantArgs)
	}

	where, args = SQL(nil, 1)
	if where != "TRUE" || args != nil {
		t.Errorf("SQL(nil) = %q, %v; want TRUE, nil", where, args)
	}
}

func TestSQLOffset(t *testing.T) {
	preds := []Predicate{{Field: "symbol", Op: OpEq, Value: "AAPL"}}
	where, _ := SQL(preds, 3)
	if where != `"symbol" = $3` {
		t.Errorf("where = %q, want %q", where, `"symbol" = $3`)
	}
}

func TestQuery(t *testing.T) {
	preds, err := Compile("options_data", Spec{
		"symbol": []string{"AAPL", "BRK B"},
		"strike": Ops{"gte": 150.5, "lte": 200},
		"type":   "CALL",
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	q := Query(preds)
	if got := q["strike"]; !reflect.DeepEqual(got, []string{"gte.150.5", "lte.200"}) {
		t.Errorf("strike = %v, want [gte.150.5 lte.200]", got)
	}
	if got := q.Get("symbol"); got != `in.(AAPL,"BRK B")` {
		t.Errorf("symbol = %q, want %q", got, `in.(AAPL,"BRK B")`)
	}
	if got := q.Get("type"); got != "eq.CALL" {
		t.Errorf("type = %q, want %q", got, "eq.CALL")
	}
}
