// alphakite runs the market-data service: periodic ingestion, change
// subscriptions, the read API and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/aggregate"
	"github.com/MAKaminski/alpha-kite/internal/app"
	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/httpapi"
	"github.com/MAKaminski/alpha-kite/internal/metrics"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/poller"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/subscription"
	"github.com/MAKaminski/alpha-kite/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/alphakite.yaml", "path to config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config is expanded")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting alphakite",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var m *metrics.Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	stack, err := app.Open(ctx, cfg, m, logger)
	if err != nil {
		logger.Error("failed to open stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	// Change subscriptions
	subs := subscription.NewManager(stack.Store, subscription.Config{QueueSize: cfg.Subscriptions.QueueSize}, m, logger)
	var handles []*subscription.Handle
	for _, table := range []string{schema.TableEquity, schema.TableOptions} {
		h, err := subs.Subscribe(ctx, table, func(ev model.ChangeEvent) {
			logger.Debug("change event",
				"table", ev.Table,
				"type", ev.Type,
				"symbol", ev.New.String(model.FieldSymbol),
			)
		})
		if err != nil {
			logger.Warn("change feed unavailable", "table", table, "error", err)
			continue
		}
		handles = append(handles, h)
	}

	// Ingestion poller
	p := poller.New(poller.Config{
		Interval:    cfg.Ingest.Interval,
		BatchSize:   cfg.Ingest.SymbolBatchSize,
		Concurrency: cfg.Ingest.Concurrency,
		Timeout:     cfg.Producer.Timeout,
	}, stack.Pipeline, poller.StaticSymbols(cfg.Ingest.Symbols), logger)
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	// Read API
	apiOpts := []httpapi.Option{
		httpapi.WithIngester(stack.Pipeline),
		httpapi.WithLogger(logger),
	}
	for name, check := range stack.HealthChecks() {
		apiOpts = append(apiOpts, httpapi.WithHealthCheck(name, check))
	}
	api := httpapi.New(httpapi.Config{Port: cfg.HTTP.Port, Symbols: cfg.Ingest.Symbols},
		stack.Store, aggregate.New(stack.Store, aggregate.WithLogger(logger)), apiOpts...)
	if err := api.Start(); err != nil {
		logger.Error("failed to start http api", "error", err)
		os.Exit(1)
	}

	logger.Info("alphakite running",
		"symbols", len(cfg.Ingest.Symbols),
		"interval", cfg.Ingest.Interval,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := p.Stop(shutdownCtx); err != nil {
		logger.Warn("poller stop", "error", err)
	}
	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("http api stop", "error", err)
	}
	for _, h := range handles {
		if err := subs.Unsubscribe(h); err != nil {
			logger.Warn("unsubscribe", "table", h.Table(), "error", err)
		}
	}
	if err := subs.Close(); err != nil {
		logger.Warn("subscriptions close", "error", err)
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("alphakite stopped")
}
