package config

import "time"

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverREST     = "rest"
	StoreDriverMemory   = "memory"
)

// Producer kinds.
const (
	ProducerSynthetic = "synthetic"
	ProducerREST      = "rest"
)

// Cache drivers.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// AppConfig is the root configuration for an alpha-kite process.
type AppConfig struct {
	Instance      InstanceConfig      `yaml:"instance"`
	Store         StoreConfig         `yaml:"store"`
	Producer      ProducerConfig      `yaml:"producer"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Batch         BatchConfig         `yaml:"batch"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Validation    ValidationConfig    `yaml:"validation"`
	Cache         CacheConfig         `yaml:"cache"`
	HTTP          HTTPConfig          `yaml:"http"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StoreConfig selects and configures the remote store.
type StoreConfig struct {
	Driver   string     `yaml:"driver"` // postgres, rest or memory
	Postgres DBConfig   `yaml:"postgres"`
	REST     RESTConfig `yaml:"rest"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RESTConfig holds PostgREST-compatible store settings.
type RESTConfig struct {
	URL         string        `yaml:"url"`          // e.g. https://xyz.supabase.co/rest/v1
	RealtimeURL string        `yaml:"realtime_url"` // websocket endpoint for change feeds
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ProducerConfig configures the market-data producer.
type ProducerConfig struct {
	Kind       string        `yaml:"kind"`   // synthetic or rest
	Source     string        `yaml:"source"` // source tag written on every record
	BaseURL    string        `yaml:"base_url"`
	TokenURL   string        `yaml:"token_url"`
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Seed       int64         `yaml:"seed"` // synthetic producer only
}

// IngestConfig holds ingestion pipeline and poller settings.
type IngestConfig struct {
	Symbols           []string      `yaml:"symbols"`
	SymbolBatchSize   int           `yaml:"symbol_batch_size"`
	Interval          time.Duration `yaml:"interval"`
	Concurrency       int           `yaml:"concurrency"`
	OptionsExpiryDays int           `yaml:"options_expiry_days"`
	QuoteTTL          time.Duration `yaml:"quote_ttl"`
}

// BatchConfig holds batch executor settings.
type BatchConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// SubscriptionsConfig holds change subscription settings.
type SubscriptionsConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// ValidationConfig selects how required fields are judged present.
type ValidationConfig struct {
	Mode string `yaml:"mode"` // truthy or present
}

// CacheConfig holds quote cache settings.
type CacheConfig struct {
	Driver    string `yaml:"driver"` // memory or redis
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// HTTPConfig holds the read API settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
