package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MAKaminski/alpha-kite/internal/auth"
	"github.com/MAKaminski/alpha-kite/internal/batch"
	"github.com/MAKaminski/alpha-kite/internal/cache"
	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/database"
	"github.com/MAKaminski/alpha-kite/internal/ingest"
	"github.com/MAKaminski/alpha-kite/internal/ingest/synthetic"
	"github.com/MAKaminski/alpha-kite/internal/marketdata"
	"github.com/MAKaminski/alpha-kite/internal/metrics"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/store"
	"github.com/MAKaminski/alpha-kite/internal/store/memory"
	"github.com/MAKaminski/alpha-kite/internal/store/postgres"
	"github.com/MAKaminski/alpha-kite/internal/store/rest"
	"github.com/MAKaminski/alpha-kite/internal/validate"
)

// NewLogger builds a slog logger from the logging section.
func NewLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging.format must be text or json, got %q", cfg.Format)
	}
}

// Stack is the set of components shared by every binary.
type Stack struct {
	Config    *config.AppConfig
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Registry  *schema.Registry
	Validator *validate.Validator
	Store     *store.Facade
	Batch     *batch.Executor
	Cache     cache.Cache
	Pipeline  *ingest.Pipeline
}

// Open connects the store and cache and builds the pipeline. m may be nil.
func Open(ctx context.Context, cfg *config.AppConfig, m *metrics.Metrics, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := validate.ParseMode(cfg.Validation.Mode)
	if err != nil {
		return nil, err
	}

	s := &Stack{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Registry: schema.Default(),
	}
	s.Validator = validate.New(s.Registry, mode)

	s.Store, err = OpenStore(ctx, cfg, s.Registry, s.Validator, m, logger)
	if err != nil {
		return nil, err
	}
	s.Batch = batch.New(s.Store, s.Validator, batch.Config{ChunkSize: cfg.Batch.ChunkSize}, m, logger)

	s.Cache, err = cache.New(ctx, cfg.Cache)
	if err != nil {
		s.Store.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	producer, err := NewProducer(cfg.Producer, cfg.Ingest, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Pipeline, err = ingest.NewPipeline(producer, s.Batch, ingest.Config{
		Source:    cfg.Producer.Source,
		QuoteTTL:  cfg.Ingest.QuoteTTL,
		KeyPrefix: cfg.Cache.KeyPrefix,
	},
		ingest.WithCache(s.Cache),
		ingest.WithMetrics(m),
		ingest.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("stack ready",
		"store", cfg.Store.Driver,
		"producer", producer.Name(),
		"cache", cfg.Cache.Driver,
		"validation", mode,
	)
	return s, nil
}

// Close releases the store and the cache.
func (s *Stack) Close() error {
	var errs []error
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

// HealthChecks returns probes for the store and the cache.
func (s *Stack) HealthChecks() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"store": func(ctx context.Context) error {
			_, err := s.Store.Count(ctx, schema.TableEquity, nil)
			return err
		},
		"cache": s.Cache.Health,
	}
}

// OpenStore builds the facade over the configured backend. With the
// postgres driver the change-notification trigger is installed on every
// registered table.
func OpenStore(ctx context.Context, cfg *config.AppConfig, registry *schema.Registry, validator *validate.Validator, m *metrics.Metrics, logger *slog.Logger) (*store.Facade, error) {
	var backend store.Backend
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		backend = memory.New(registry)
	case config.StoreDriverPostgres:
		pool, err := database.Connect(ctx, cfg.Store.Postgres, "alphakite-"+cfg.Instance.ID, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := postgres.New(pool, logger)
		for _, table := range registry.Tables() {
			if err := pg.InstallNotifyTrigger(ctx, table); err != nil {
				logger.Warn("install notify trigger failed", "table", table, "error", err)
			}
		}
		backend = pg
	case config.StoreDriverREST:
		opts := []rest.Option{
			rest.WithTimeout(cfg.Store.REST.Timeout),
			rest.WithLogger(logger),
		}
		if cfg.Store.REST.RealtimeURL != "" {
			opts = append(opts, rest.WithRealtime(cfg.Store.REST.RealtimeURL))
		}
		backend = rest.New(cfg.Store.REST.URL, cfg.Store.REST.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	f, err := store.New(backend, registry, validator,
		store.WithMetrics(m),
		store.WithLogger(logger),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return f, nil
}

// NewProducer builds the configured market-data producer. The rest kind
// authenticates with an OAuth2 client-credentials token; the token URL
// defaults to base_url + "/oauth/token".
func NewProducer(cfg config.ProducerConfig, ing config.IngestConfig, logger *slog.Logger) (ingest.Producer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Kind {
	case config.ProducerSynthetic:
		return synthetic.New(cfg.Seed, synthetic.WithExpiryDays(ing.OptionsExpiryDays)), nil
	case config.ProducerREST:
		creds, err := auth.LoadCredentials(cfg.APIKey, cfg.APISecret)
		if err != nil {
			return nil, &config.NotConfiguredError{Component: "producer", Missing: []string{err.Error()}}
		}
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = strings.TrimRight(cfg.BaseURL, "/") + "/oauth/token"
		}
		tokens := auth.NewTokenSource(creds, tokenURL, auth.WithLogger(logger))
		client := marketdata.NewClient(cfg.BaseURL, tokens,
			marketdata.WithTimeout(cfg.Timeout),
			marketdata.WithRetries(cfg.MaxRetries, marketdata.DefaultRetryBackoff),
			marketdata.WithLogger(logger),
		)
		return marketdata.NewProducer(client, ing.OptionsExpiryDays), nil
	default:
		return nil, fmt.Errorf("unknown producer kind %q", cfg.Kind)
	}
}
