package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultStoreDriver       = StoreDriverPostgres
	DefaultProducerKind      = ProducerSynthetic
	DefaultSource            = "schwab_api"
	DefaultProducerTimeout   = 30 * time.Second
	DefaultRESTTimeout       = 30 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultChunkSize         = 1000
	DefaultQueueSize         = 256
	DefaultValidationMode    = "truthy"
	DefaultSymbolBatchSize   = 50
	DefaultIngestInterval    = 1 * time.Minute
	DefaultIngestConcurrency = 4
	DefaultOptionsExpiryDays = 30
	DefaultQuoteTTL          = 60 * time.Second
	DefaultCacheDriver       = CacheDriverMemory
	DefaultCacheKeyPrefix    = "alphakite"
	DefaultHTTPPort          = 8080
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// DefaultSymbols is used when ingest.symbols is empty.
var DefaultSymbols = []string{"QQQ", "SPY", "AAPL"}

// ApplyDefaults fills unset optional fields.
func (c *AppConfig) ApplyDefaults() {
	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	applyDBDefaults(&c.Store.Postgres)
	if c.Store.REST.Timeout == 0 {
		c.Store.REST.Timeout = DefaultRESTTimeout
	}

	// Producer defaults
	if c.Producer.Kind == "" {
		c.Producer.Kind = DefaultProducerKind
	}
	if c.Producer.Source == "" {
		c.Producer.Source = DefaultSource
	}
	if c.Producer.Timeout == 0 {
		c.Producer.Timeout = DefaultProducerTimeout
	}

	// Ingest defaults
	if len(c.Ingest.Symbols) == 0 {
		c.Ingest.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if c.Ingest.SymbolBatchSize == 0 {
		c.Ingest.SymbolBatchSize = DefaultSymbolBatchSize
	}
	if c.Ingest.Interval == 0 {
		c.Ingest.Interval = DefaultIngestInterval
	}
	if c.Ingest.Concurrency == 0 {
		c.Ingest.Concurrency = DefaultIngestConcurrency
	}
	if c.Ingest.OptionsExpiryDays == 0 {
		c.Ingest.OptionsExpiryDays = DefaultOptionsExpiryDays
	}
	if c.Ingest.QuoteTTL == 0 {
		c.Ingest.QuoteTTL = DefaultQuoteTTL
	}

	if c.Batch.ChunkSize == 0 {
		c.Batch.ChunkSize = DefaultChunkSize
	}
	if c.Subscriptions.QueueSize == 0 {
		c.Subscriptions.QueueSize = DefaultQueueSize
	}
	if c.Validation.Mode == "" {
		c.Validation.Mode = DefaultValidationMode
	}

	// Cache defaults
	if c.Cache.Driver == "" {
		c.Cache.Driver = DefaultCacheDriver
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
