package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MAKaminski/alpha-kite/internal/cache"
	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/metrics"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
)

// Writer persists normalized records. *batch.Executor satisfies it.
type Writer interface {
	BulkInsert(ctx context.Context, table string, recs []model.Record) ([]model.Record, error)
}

// Config holds pipeline settings.
type Config struct {
	Source    string        // Tag written to every record
	QuoteTTL  time.Duration // How long CurrentQuote serves a cached quote
	KeyPrefix string        // Cache key namespace
}

// Report summarizes one Run.
type Report struct {
	RunID    string
	Symbols  int
	Quotes   int
	Options  int
	Duration time.Duration
}

// Pipeline moves data from a Producer into the store.
type Pipeline struct {
	producer Producer
	writer   Writer
	cfg      Config
	cache    cache.Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache enables quote caching for CurrentQuote.
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock sets the time source used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a Pipeline. A nil producer or writer fails with
// *config.NotConfiguredError.
func NewPipeline(producer Producer, writer Writer, cfg Config, opts ...Option) (*Pipeline, error) {
	var missing []string
	if producer == nil {
		missing = append(missing, "producer")
	}
	if writer == nil {
		missing = append(missing, "writer")
	}
	if len(missing) > 0 {
		return nil, &config.NotConfiguredError{Component: "ingest", Missing: missing}
	}
	if cfg.Source == "" {
		cfg.Source = config.DefaultSource
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = config.DefaultQuoteTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = config.DefaultCacheKeyPrefix
	}

	p := &Pipeline{
		producer: producer,
		writer:   writer,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("producer", producer.Name())
	return p, nil
}

// Producer returns the configured producer.
func (p *Pipeline) Producer() Producer {
	return p.producer
}

// Run fetches quotes and options for symbols concurrently, then writes
// both. Any producer failure aborts the run before anything is written.
func (p *Pipeline) Run(ctx context.Context, symbols []string) (rep Report, err error) {
	start := time.Now()
	rep.RunID = uuid.NewString()
	symbols = NormalizeSymbols(symbols)
	rep.Symbols = len(symbols)
	defer func() {
		rep.Duration = time.Since(start)
		p.metrics.IngestRun(err)
	}()
	if len(symbols) == 0 {
		return rep, nil
	}

	var quotes, options []model.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quotes, err = p.fetchQuotes(gctx, symbols)
		return err
	})
	g.Go(func() error {
		var err error
		options, err = p.fetchOptions(gctx, symbols, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		p.logger.Error("ingest run aborted", "run", rep.RunID, "symbols", symbols, "error", err)
		return rep, err
	}

	if rep.Quotes, err = p.write(ctx, schema.TableEquity, quotes); err != nil {
		return rep, err
	}
	if rep.Options, err = p.write(ctx, schema.TableOptions, options); err != nil {
		return rep, err
	}

	p.logger.Info("ingest run complete",
		"run", rep.RunID,
		"symbols", rep.Symbols,
		"quotes", rep.Quotes,
		"options", rep.Options,
		"duration", time.Since(start),
	)
	return rep, nil
}

// IngestQuotes fetches, normalizes and writes quotes for symbols.
func (p *Pipeline) IngestQuotes(ctx context.Context, symbols []string) (int, error) {
	recs, err := p.fetchQuotes(ctx, NormalizeSymbols(symbols))
	if err != nil {
		return 0, err
	}
	return p.write(ctx, schema.TableEquity, recs)
}

// IngestOptions fetches, normalizes and writes option snapshots.
func (p *Pipeline) IngestOptions(ctx context.Context, symbols []string, expiry *time.Time) (int, error) {
	recs, err := p.fetchOptions(ctx, NormalizeSymbols(symbols), expiry)
	if err != nil {
		return 0, err
	}
	return p.write(ctx, schema.TableOptions, recs)
}

// IngestHistory backfills daily bars for symbol over the trailing days.
func (p *Pipeline) IngestHistory(ctx context.Context, symbol string, days int) (int, error) {
	hp, ok := p.producer.(HistoryProducer)
	if !ok {
		return 0, ErrHistoryUnsupported
	}
	symbol = NormalizeSymbol(symbol)
	end := p.now().UTC()
	start := end.AddDate(0, 0, -days)

	bars, err := hp.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return 0, p.producerErr("history", []string{symbol}, err)
	}
	recs := make([]model.Record, len(bars))
	for i, b := range bars {
		recs[i] = NormalizeBar(b, p.cfg.Source)
	}
	return p.write(ctx, schema.TableEquity, recs)
}

// CurrentQuote returns the latest quote for symbol, served from cache while
// younger than the configured TTL. A miss ingests a fresh quote into the
// equity table and caches the stored record.
func (p *Pipeline) CurrentQuote(ctx context.Context, symbol string) (model.Record, error) {
	symbol = NormalizeSymbol(symbol)
	key := cache.Key(p.cfg.KeyPrefix, "quote", symbol)

	if p.cache != nil {
		b, err := p.cache.Get(ctx, key)
		switch {
		case err == nil:
			var rec model.Record
			if err := json.Unmarshal(b, &rec); err == nil {
				return rec, nil
			}
			p.logger.Warn("discarding undecodable cached quote", "symbol", symbol)
		case !errors.Is(err, cache.ErrMiss):
			p.logger.Warn("quote cache read failed", "symbol", symbol, "error", err)
		}
	}

	recs, err := p.fetchQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, p.producerErr("quotes", []string{symbol}, ErrNoData)
	}
	persisted, err := p.writer.BulkInsert(ctx, schema.TableEquity, recs[:1])
	p.metrics.RecordsIngested(schema.TableEquity, len(persisted))
	if err != nil {
		return nil, err
	}
	rec := persisted[0]

	if p.cache != nil {
		if b, err := json.Marshal(rec); err == nil {
			if err := p.cache.Set(ctx, key, b, p.cfg.QuoteTTL); err != nil {
				p.logger.Warn("quote cache write failed", "symbol", symbol, "error", err)
			}
		}
	}
	return rec, nil
}

func (p *Pipeline) fetchQuotes(ctx context.Context, symbols []string) ([]model.Record, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	raw, err := p.producer.FetchQuotes(ctx, symbols)
	if err != nil {
		return nil, p.producerErr("quotes", symbols, err)
	}
	now := p.now()
	recs := make([]model.Record, len(raw))
	for i, q := range raw {
		recs[i] = NormalizeQuote(q, p.cfg.Source, now)
	}
	return recs, nil
}

func (p *Pipeline) fetchOptions(ctx context.Context, symbols []string, expiry *time.Time) ([]model.Record, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	raw, err := p.producer.FetchOptions(ctx, symbols, expiry)
	if err != nil {
		return nil, p.producerErr("options", symbols, err)
	}
	now := p.now()
	recs := make([]model.Record, 0, len(raw))
	for _, o := range raw {
		rec, err := NormalizeOption(o, p.cfg.Source, now)
		if err != nil {
			return nil, p.producerErr("options", symbols, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (p *Pipeline) write(ctx context.Context, table string, recs []model.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	persisted, err := p.writer.BulkInsert(ctx, table, recs)
	p.metrics.RecordsIngested(table, len(persisted))
	if err != nil {
		return len(persisted), err
	}
	p.logger.Debug("records ingested", "table", table, "count", len(persisted))
	return len(persisted), nil
}

func (p *Pipeline) producerErr(op string, symbols []string, err error) error {
	p.metrics.ProducerFailed(p.producer.Name(), op)
	return &ProducerError{Producer: p.producer.Name(), Op: op, Symbols: symbols, Err: err}
}
