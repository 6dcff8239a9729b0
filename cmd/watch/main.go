// watch subscribes to change events on one table and prints them as JSON
// lines until interrupted or until the store ends the feed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MAKaminski/alpha-kite/internal/app"
	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/subscription"
)

func main() {
	configPath := flag.String("config", "configs/alphakite.yaml", "path to config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config is expanded")
	table := flag.String("table", schema.TableEquity, "table to watch")
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
	logger, err := app.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stack, err := app.Open(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to open stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	subs := subscription.NewManager(stack.Store, subscription.Config{QueueSize: cfg.Subscriptions.QueueSize}, nil, logger)
	defer subs.Close()

	enc := json.NewEncoder(os.Stdout)
	h, err := subs.Subscribe(ctx, *table, func(ev model.ChangeEvent) {
		if err := enc.Encode(ev); err != nil {
			logger.Warn("encode event", "error", err)
		}
	})
	if err != nil {
		logger.Error("subscribe failed", "table", *table, "error", err)
		os.Exit(1)
	}
	logger.Info("watching", "table", *table, "subscription", h.ID())

	select {
	case <-ctx.Done():
	case <-h.Done():
		logger.Warn("feed ended by store", "table", *table, "error", h.Err())
	}

	if err := subs.Unsubscribe(h); err != nil {
		logger.Warn("unsubscribe", "error", err)
	}
}
