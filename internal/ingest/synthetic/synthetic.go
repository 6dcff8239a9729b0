// Package synthetic is a deterministic market-data producer for local runs
// and tests. Prices follow a seeded random walk around a per-symbol base.
package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// Name identifies the producer.
const Name = "synthetic"

// Defaults for generated options.
const (
	DefaultStrikes    = 3
	DefaultExpiryDays = 30
	DefaultStrikeStep = 5.0
)

// Producer generates quotes, option snapshots and daily bars.
type Producer struct {
	mu         sync.Mutex
	rng        *rand.Rand
	last       map[string]float64
	now        func() time.Time
	strikes    int
	step       float64
	expiryDays int
}

// Option configures a Producer.
type Option func(*Producer)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) { p.now = now }
}

// WithStrikes sets how many strikes are generated per symbol.
func WithStrikes(n int) Option {
	return func(p *Producer) { p.strikes = n }
}

// WithExpiryDays sets the default expiry distance.
func WithExpiryDays(days int) Option {
	return func(p *Producer) { p.expiryDays = days }
}

// New creates a Producer. Equal seeds produce equal sequences.
func New(seed int64, opts ...Option) *Producer {
	p := &Producer{
		rng:        rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		last:       make(map[string]float64),
		now:        time.Now,
		strikes:    DefaultStrikes,
		step:       DefaultStrikeStep,
		expiryDays: DefaultExpiryDays,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.strikes < 1 {
		p.strikes = 1
	}
	if p.expiryDays <= 0 {
		p.expiryDays = DefaultExpiryDays
	}
	return p
}

// Name implements ingest.Producer.
func (p *Producer) Name() string { return Name }

// FetchQuotes implements ingest.Producer.
func (p *Producer) FetchQuotes(ctx context.Context, symbols []string) ([]model.RawQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	out := make([]model.RawQuote, 0, len(symbols))
	for _, sym := range symbols {
		prev := p.price(sym)
		next := p.walk(prev)
		p.last[sym] = next
		out = append(out, model.RawQuote{
			Symbol:        sym,
			Price:         next,
			Change:        round2(next - prev),
			Volume:        1000 + p.rng.Int64N(99000),
			Open:          prev,
			High:          math.Max(prev, next),
			Low:           math.Min(prev, next),
			PreviousClose: prev,
			Timestamp:     now,
		})
	}
	return out, nil
}

// FetchOptions implements ingest.Producer. Strikes are centered on the
// current price and alternate CALL and PUT.
func (p *Producer) FetchOptions(ctx context.Context, symbols []string, expiry *time.Time) ([]model.RawOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	exp := now.AddDate(0, 0, p.expiryDays)
	if expiry != nil {
		exp = expiry.UTC()
	}
	exp = time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]model.RawOption, 0, len(symbols)*p.strikes)
	for _, sym := range symbols {
		atm := math.Round(p.price(sym)/p.step) * p.step
		first := atm - p.step*float64(p.strikes/2)
		for i := 0; i < p.strikes; i++ {
			typ := model.OptionCall
			if i%2 == 1 {
				typ = model.OptionPut
			}
			mid := 0.5 + p.rng.Float64()*5
			out = append(out, model.RawOption{
				Symbol:       sym,
				Strike:       first + p.step*float64(i),
				Type:         typ,
				Expiry:       exp,
				Bid:          round2(mid - 0.05),
				Ask:          round2(mid + 0.05),
				Volume:       p.rng.Int64N(5000),
				OpenInterest: p.rng.Int64N(20000),
				Timestamp:    now,
			})
		}
	}
	return out, nil
}

// FetchHistory implements ingest.HistoryProducer with one bar per weekday
// in [start, end].
func (p *Producer) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(start) {
		day = day.AddDate(0, 0, 1)
	}
	price := p.base(symbol)

	var out []model.RawBar
	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := price
		price = p.walk(price)
		out = append(out, model.RawBar{
			Symbol: symbol,
			Date:   day,
			Open:   open,
			High:   round2(math.Max(open, price) + 0.25),
			Low:    round2(math.Min(open, price) - 0.25),
			Close:  price,
			Volume: 100000 + p.rng.Int64N(900000),
		})
	}
	return out, nil
}

// price returns the last generated price for sym. Must hold mu.
func (p *Producer) price(sym string) float64 {
	if v, ok := p.last[sym]; ok {
		return v
	}
	return p.base(sym)
}

// base derives a stable starting price in [50, 550) from the symbol.
func (p *Producer) base(sym string) float64 {
	h := fnv.New32a()
	h.Write([]byte(sym))
	return float64(50 + h.Sum32()%500)
}

// walk moves price by up to 1% either way. Must hold mu.
func (p *Producer) walk(price float64) float64 {
	next := price * (1 + (p.rng.Float64()-0.5)*0.02)
	if next <= 0 {
		next = 1
	}
	return round2(next)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
