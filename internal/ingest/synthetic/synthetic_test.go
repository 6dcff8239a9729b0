package synthetic

import (
	"context"
	"testing"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

func fixed() time.Time {
	return time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)
}

func TestFetchQuotesDeterministic(t *testing.T) {
	ctx := context.Background()
	a := New(42, WithClock(fixed))
	b := New(42, WithClock(fixed))

	qa, err := a.FetchQuotes(ctx, []string{"AAPL", "QQQ"})
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	qb, _ := b.FetchQuotes(ctx, []string{"AAPL", "QQQ"})

	if len(qa) != 2 {
		t.Fatalf("got %d quotes, want 2", len(qa))
	}
	for i := range qa {
		if qa[i] != qb[i] {
			t.Errorf("quote %d differs between equal seeds: %+v vs %+v", i, qa[i], qb[i])
		}
		if qa[i].Price <= 0 {
			t.Errorf("quote %d price = %v, want > 0", i, qa[i].Price)
		}
		if !qa[i].Timestamp.Equal(fixed()) {
			t.Errorf("quote %d timestamp = %v, want %v", i, qa[i].Timestamp, fixed())
		}
	}
}

func TestFetchOptionsStrikesAndTypes(t *testing.T) {
	p := New(1, WithClock(fixed))

	opts, err := p.FetchOptions(context.Background(), []string{"AAPL"}, nil)
	if err != nil {
		t.Fatalf("FetchOptions failed: %v", err)
	}
	if len(opts) != DefaultStrikes {
		t.Fatalf("got %d options, want %d", len(opts), DefaultStrikes)
	}

	wantTypes := []string{model.OptionCall, model.OptionPut, model.OptionCall}
	wantExpiry := time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)
	for i, o := range opts {
		if o.Type != wantTypes[i] {
			t.Errorf("opts[%d].Type = %s, want %s", i, o.Type, wantTypes[i])
		}
		if !o.Expiry.Equal(wantExpiry) {
			t.Errorf("opts[%d].Expiry = %v, want %v", i, o.Expiry, wantExpiry)
		}
		if o.Bid >= o.Ask {
			t.Errorf("opts[%d] bid %v >= ask %v", i, o.Bid, o.Ask)
		}
		if i > 0 && o.Strike-opts[i-1].Strike != DefaultStrikeStep {
			t.Errorf("strike step = %v, want %v", o.Strike-opts[i-1].Strike, DefaultStrikeStep)
		}
	}
}

func TestFetchOptionsExplicitExpiry(t *testing.T) {
	p := New(1, WithClock(fixed), WithStrikes(4))
	expiry := time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC)

	opts, err := p.FetchOptions(context.Background(), []string{"SPY", "QQQ"}, &expiry)
	if err != nil {
		t.Fatalf("FetchOptions failed: %v", err)
	}
	if len(opts) != 8 {
		t.Fatalf("got %d options, want 8", len(opts))
	}
	if got := model.FormatDate(opts[0].Expiry); got != "2024-03-15" {
		t.Errorf("expiry = %s, want 2024-03-15", got)
	}
}

func TestFetchHistorySkipsWeekends(t *testing.T) {
	p := New(7)
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) // Friday
	end := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)   // Tuesday

	bars, err := p.FetchHistory(context.Background(), "AAPL", start, end)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3 (Fri, Mon, Tue)", len(bars))
	}
	for _, b := range bars {
		if wd := b.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("bar on %s", wd)
		}
		if b.Low > b.High {
			t.Errorf("low %v > high %v", b.Low, b.High)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(1).FetchQuotes(ctx, []string{"AAPL"}); err == nil {
		t.Error("FetchQuotes with canceled context should fail")
	}
}
