// ingest runs one ingestion pass and exits.
//
// Usage:
//
//	ingest -config configs/alphakite.yaml -symbols SPY,QQQ
//	ingest -config configs/alphakite.yaml -symbols SPY -history-days 30
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MAKaminski/alpha-kite/internal/app"
	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/ingest"
)

func main() {
	configPath := flag.String("config", "configs/alphakite.yaml", "path to config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config is expanded")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: ingest.symbols)")
	historyDays := flag.Int("history-days", 0, "ingest daily bars for the trailing N days instead of a snapshot")
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

	symbols := cfg.Ingest.Symbols
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
	}
	symbols = ingest.NormalizeSymbols(symbols)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stack, err := app.Open(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to open stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	if *historyDays > 0 {
		total := 0
		for _, sym := range symbols {
			n, err := stack.Pipeline.IngestHistory(ctx, sym, *historyDays)
			if err != nil {
				logger.Error("history ingest failed", "symbol", sym, "error", err)
				stack.Close()
				os.Exit(1)
			}
			logger.Info("history ingested", "symbol", sym, "bars", n)
			total += n
		}
		fmt.Printf("ingested %d bars for %d symbols\n", total, len(symbols))
		return
	}

	rep, err := stack.Pipeline.Run(ctx, symbols)
	if err != nil {
		logger.Error("ingest run failed", "error", err)
		stack.Close()
		os.Exit(1)
	}
	fmt.Printf("run %s: %d quotes, %d options for %d symbols in %s\n",
		rep.RunID, rep.Quotes, rep.Options, rep.Symbols, rep.Duration)
}
