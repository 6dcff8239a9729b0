package marketdata

import (
	"testing"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

func TestParseExpiry(t *testing.T) {
	want := time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)
	tests := []string{
		"2024-02-16",
		"2024-02-16:37",
		"2024-02-16T00:00:00Z",
	}
	for _, in := range tests {
		if got := ParseExpiry(in); !got.Equal(want) {
			t.Errorf("ParseExpiry(%q) = %v, want %v", in, got, want)
		}
	}
	if got := ParseExpiry("garbage"); !got.IsZero() {
		t.Errorf("ParseExpiry(garbage) = %v, want zero", got)
	}
}

func TestMillisToTime(t *testing.T) {
	if got := MillisToTime(0); !got.IsZero() {
		t.Errorf("MillisToTime(0) = %v, want zero", got)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := MillisToTime(want.UnixMilli()); !got.Equal(want) {
		t.Errorf("MillisToTime = %v, want %v", got, want)
	}
}

func TestToRawOptions(t *testing.T) {
	chain := &ChainResponse{
		Symbol: "QQQ",
		CallExpDateMap: map[string]map[string][]OptionContract{
			"2024-02-16:37": {
				"405.0": {{PutCall: "CALL", StrikePrice: 405, Bid: 1, Ask: 1.1}},
				"400.0": {{PutCall: "CALL", StrikePrice: 400, Bid: 2, Ask: 2.1}},
			},
		},
		PutExpDateMap: map[string]map[string][]OptionContract{
			"2024-02-16:37": {
				"400.0": {{StrikePrice: 400, Bid: 3, Ask: 3.1}},
			},
		},
	}

	opts := chain.ToRawOptions()
	if len(opts) != 3 {
		t.Fatalf("got %d options, want 3", len(opts))
	}

	want := []struct {
		strike float64
		typ    string
	}{
		{400, model.OptionCall},
		{400, model.OptionPut},
		{405, model.OptionCall},
	}
	for i, w := range want {
		if opts[i].Strike != w.strike || opts[i].Type != w.typ {
			t.Errorf("opts[%d] = %v %s, want %v %s", i, opts[i].Strike, opts[i].Type, w.strike, w.typ)
		}
		if opts[i].Symbol != "QQQ" {
			t.Errorf("opts[%d].Symbol = %s, want QQQ", i, opts[i].Symbol)
		}
		if model.FormatDate(opts[i].Expiry) != "2024-02-16" {
			t.Errorf("opts[%d].Expiry = %v, want 2024-02-16", i, opts[i].Expiry)
		}
	}
}

func TestToRawQuote(t *testing.T) {
	q := QuoteEntry{
		Quote:     QuoteData{LastPrice: 245.5, NetChange: 1.2, TotalVolume: 1000, QuoteTime: 1704067200000},
		Reference: QuoteReference{Description: "Invesco QQQ Trust"},
	}
	raw := q.ToRawQuote("QQQ")
	if raw.Symbol != "QQQ" || raw.Price != 245.5 || raw.Description != "Invesco QQQ Trust" {
		t.Errorf("ToRawQuote = %+v", raw)
	}
	if !raw.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v, want 2024-01-01", raw.Timestamp)
	}
}
