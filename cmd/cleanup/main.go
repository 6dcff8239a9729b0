// cleanup deletes rows older than a retention window from one table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MAKaminski/alpha-kite/internal/app"
	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/alphakite.yaml", "path to config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config is expanded")
	table := flag.String("table", schema.TableEquity, "table to clean")
	days := flag.Int("days", store.DefaultRetentionDays, "delete rows older than this many days")
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

	n, err := stack.Store.CleanupOlderThan(ctx, *table, *days)
	if err != nil {
		logger.Error("cleanup failed", "table", *table, "days", *days, "error", err)
		stack.Close()
		os.Exit(1)
	}
	fmt.Printf("deleted %d rows from %s older than %d days\n", n, *table, *days)
}
