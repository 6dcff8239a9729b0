package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MAKaminski/alpha-kite/internal/ingest"
)

// Runner ingests one symbol batch. *ingest.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, symbols []string) (ingest.Report, error)
}

// SymbolSource provides the symbols to ingest each cycle.
type SymbolSource interface {
	Symbols() []string
}

// StaticSymbols is a fixed SymbolSource.
type StaticSymbols []string

// Symbols implements SymbolSource.
func (s StaticSymbols) Symbols() []string { return s }

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Cycle interval (default: 1m)
	BatchSize   int           // Symbols per pipeline run (default: 50)
	Concurrency int           // Max concurrent batches (default: 4)
	Timeout     time.Duration // Per-batch timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		BatchSize:   50,
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	Batches  int
	Failed   int
	Quotes   int
	Options  int
	Duration time.Duration
}

// Poller periodically runs ingestion over all symbols.
type Poller struct {
	cfg     Config
	runner  Runner
	symbols SymbolSource
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	last CycleStats
}

// New creates a new Poller.
func New(cfg Config, runner Runner, symbols SymbolSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		runner:  runner,
		symbols: symbols,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("ingest poller started",
		"interval", p.cfg.Interval,
		"batch_size", p.cfg.BatchSize,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("ingest poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastCycle returns the stats of the most recent completed cycle.
func (p *Poller) LastCycle() CycleStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.PollOnce(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(p.ctx)
		}
	}
}

// PollOnce runs one cycle over every batch and returns its stats.
func (p *Poller) PollOnce(ctx context.Context) CycleStats {
	start := time.Now()

	batches := Batches(p.symbols.Symbols(), p.cfg.BatchSize)
	if len(batches) == 0 {
		p.logger.Debug("no symbols to poll")
		return CycleStats{}
	}

	var failed, quotes, options atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)

	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rep, err := p.pollBatch(ctx, batch)
			quotes.Add(int64(rep.Quotes))
			options.Add(int64(rep.Options))
			if err != nil {
				p.logger.Warn("ingest batch failed",
					"symbols", batch,
					"run", rep.RunID,
					"err", err,
				)
				failed.Add(1)
			}
			// A failed batch never cancels its siblings.
			return nil
		})
	}
	g.Wait()

	stats := CycleStats{
		Batches:  len(batches),
		Failed:   int(failed.Load()),
		Quotes:   int(quotes.Load()),
		Options:  int(options.Load()),
		Duration: time.Since(start),
	}
	p.mu.Lock()
	p.last = stats
	p.mu.Unlock()

	p.logger.Info("poll cycle complete",
		"batches", stats.Batches,
		"failed", stats.Failed,
		"quotes", stats.Quotes,
		"options", stats.Options,
		"duration", stats.Duration,
	)
	return stats
}

// pollBatch runs one batch under the per-batch timeout.
func (p *Poller) pollBatch(ctx context.Context, symbols []string) (ingest.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.runner.Run(ctx, symbols)
}

// Batches splits symbols into consecutive groups of at most size.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for lo := 0; lo < len(symbols); lo += size {
		out = append(out, symbols[lo:min(lo+size, len(symbols))])
	}
	return out
}
