// Package aggregate computes derived views over façade query results:
// sample statistics, symbol price history, options chains and the rolling
// indicators (session VWAP, MA9) drawn on price charts.
package aggregate

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

// Defaults for aggregation queries.
const (
	DefaultSampleSize  = 1000
	DefaultHistoryDays = 30
	DefaultMAWindow    = 9
)

// Reader is the read side of the store façade.
type Reader interface {
	Find(ctx context.Context, table string, spec filter.Spec, opts store.QueryOptions) ([]model.Record, error)
	DateRange(ctx context.Context, table string, start, end time.Time) ([]model.Record, error)
}

// Engine runs aggregations against a Reader.
type Engine struct {
	reader Reader
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for trailing windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine.
func New(reader Reader, opts ...Option) *Engine {
	e := &Engine{reader: reader, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Stats summarizes the newest sampleSize records of table. An empty sample
// yields a NaN AveragePrice, not an error.
func (e *Engine) Stats(ctx context.Context, table string, sampleSize int) (model.Stats, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	recs, err := e.reader.Find(ctx, table, nil, store.QueryOptions{
		OrderBy:    model.FieldTimestamp,
		Descending: true,
		Limit:      sampleSize,
	})
	if err != nil {
		return model.Stats{}, err
	}
	return Summarize(recs), nil
}

// Summarize computes Stats over recs. Absent prices count as zero.
func Summarize(recs []model.Record) model.Stats {
	s := model.Stats{TotalRecords: len(recs), AveragePrice: math.NaN()}
	if len(recs) == 0 {
		return s
	}

	symbols := make(map[string]struct{})
	var priceSum float64
	for _, r := range recs {
		if sym := r.String(model.FieldSymbol); sym != "" {
			symbols[sym] = struct{}{}
		}
		if p, ok := r.Float(model.FieldPrice); ok {
			priceSum += p
		}
		if v, ok := r.Float(model.FieldVolume); ok {
			s.TotalVolume += v
		}
	}
	s.UniqueSymbols = len(symbols)
	s.AveragePrice = priceSum / float64(len(recs))
	return s
}

// PriceHistory returns equity records for symbol over the trailing days,
// oldest first. The time window is queried remotely; the symbol filter is
// applied to the returned page.
func (e *Engine) PriceHistory(ctx context.Context, symbol string, days int) ([]model.Record, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	end := e.now().UTC()
	start := end.AddDate(0, 0, -days)
	return e.PriceHistoryBetween(ctx, symbol, start, end)
}

// PriceHistoryBetween is PriceHistory over an explicit [start, end] window.
func (e *Engine) PriceHistoryBetween(ctx context.Context, symbol string, start, end time.Time) ([]model.Record, error) {
	recs, err := e.reader.DateRange(ctx, schema.TableEquity, start, end)
	if err != nil {
		return nil, err
	}

	out := recs[:0]
	for _, r := range recs {
		if strings.EqualFold(r.String(model.FieldSymbol), symbol) {
			out = append(out, r)
		}
	}
	e.logger.Debug("price history", "symbol", symbol, "window", len(recs), "count", len(out))
	return out, nil
}

// OptionsChain fetches options for symbol, and for expiry when non-nil, and
// keeps the first record seen for each (strike, type).
func (e *Engine) OptionsChain(ctx context.Context, symbol string, expiry *time.Time) ([]model.OptionsChainEntry, error) {
	spec := filter.Spec{model.FieldSymbol: strings.ToUpper(symbol)}
	if expiry != nil {
		spec[model.FieldExpiry] = model.FormatDate(*expiry)
	}
	recs, err := e.reader.Find(ctx, schema.TableOptions, spec, store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return Chain(recs), nil
}

// Chain groups recs by (strike, type), keeping the first record per key in
// input order.
func Chain(recs []model.Record) []model.OptionsChainEntry {
	type key struct {
		strike float64
		typ    string
	}
	seen := make(map[key]struct{}, len(recs))
	var out []model.OptionsChainEntry
	for _, r := range recs {
		strike, _ := r.Float(model.FieldStrike)
		k := key{strike: strike, typ: strings.ToUpper(r.String(model.FieldType))}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, model.OptionsChainEntry{Strike: k.strike, Type: k.typ, Record: r})
	}
	return out
}

// SessionVWAP is the volume-weighted average price of recs. When no record
// carries volume it falls back to the arithmetic mean. Empty input yields NaN.
func SessionVWAP(recs []model.Record) float64 {
	var acc vwap
	for _, r := range recs {
		acc.add(r)
	}
	return acc.value()
}

// vwap accumulates one session's running totals.
type vwap struct {
	pv, vol, sum float64
	n            int
}

func (a *vwap) add(r model.Record) {
	p, ok := r.Float(model.FieldPrice)
	if !ok {
		return
	}
	a.n++
	a.sum += p
	if v, ok := r.Float(model.FieldVolume); ok && v > 0 {
		a.pv += p * v
		a.vol += v
	}
}

func (a *vwap) value() float64 {
	switch {
	case a.vol > 0:
		return a.pv / a.vol
	case a.n > 0:
		return a.sum / float64(a.n)
	default:
		return math.NaN()
	}
}

// MovingAverage returns the simple moving average of price over window
// records ending at each index. Entries before the window fills are nil.
func MovingAverage(recs []model.Record, window int) []*float64 {
	if window <= 0 {
		window = DefaultMAWindow
	}
	out := make([]*float64, len(recs))
	var sum float64
	prices := make([]float64, len(recs))
	for i, r := range recs {
		prices[i], _ = r.Float(model.FieldPrice)
		sum += prices[i]
		if i >= window {
			sum -= prices[i-window]
		}
		if i >= window-1 {
			avg := sum / float64(window)
			out[i] = &avg
		}
	}
	return out
}

// Series builds chart arrays for symbol over the trailing days. The VWAP
// resets at each UTC calendar day.
func (e *Engine) Series(ctx context.Context, symbol string, days int) (model.Series, error) {
	recs, err := e.PriceHistory(ctx, symbol, days)
	if err != nil {
		return model.Series{}, err
	}
	return BuildSeries(symbol, recs), nil
}

// BuildSeries orders recs by timestamp and derives the chart arrays.
func BuildSeries(symbol string, recs []model.Record) model.Series {
	sorted := make([]model.Record, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, _ := sorted[i].Time(model.FieldTimestamp)
		tj, _ := sorted[j].Time(model.FieldTimestamp)
		return ti.Before(tj)
	})

	s := model.Series{
		Symbol:     strings.ToUpper(symbol),
		Timestamps: make([]string, len(sorted)),
		Prices:     make([]float64, len(sorted)),
		VWAPs:      make([]float64, len(sorted)),
		MA9s:       MovingAverage(sorted, DefaultMAWindow),
	}

	var (
		session vwap
		day     string
	)
	for i, r := range sorted {
		ts, _ := r.Time(model.FieldTimestamp)
		if d := model.FormatDate(ts); d != day {
			day = d
			session = vwap{}
		}
		session.add(r)
		s.Timestamps[i] = model.FormatTime(ts)
		s.Prices[i], _ = r.Float(model.FieldPrice)
		s.VWAPs[i] = session.value()
	}
	return s
}
