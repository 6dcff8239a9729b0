package config

import (
	"errors"
	"fmt"
	"strings"
)

// NotConfiguredError reports missing credentials for a component. It is
// fatal at startup.
type NotConfiguredError struct {
	Component string
	Missing   []string
}

func (e *NotConfiguredError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s not configured", e.Component)
	}
	return fmt.Sprintf("%s not configured: missing %s", e.Component, strings.Join(e.Missing, ", "))
}

// Validate checks that all required fields are set and values are valid.
func (c *AppConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Store.Check(); err != nil {
		return err
	}
	if err := c.Producer.Check(); err != nil {
		return err
	}

	if c.Batch.ChunkSize < 1 {
		return errors.New("batch.chunk_size must be >= 1")
	}
	if c.Subscriptions.QueueSize < 1 {
		return errors.New("subscriptions.queue_size must be >= 1")
	}
	switch c.Validation.Mode {
	case "truthy", "present":
	default:
		return fmt.Errorf("validation.mode must be truthy or present, got %q", c.Validation.Mode)
	}

	if c.Ingest.SymbolBatchSize < 1 {
		return errors.New("ingest.symbol_batch_size must be >= 1")
	}
	if c.Ingest.Concurrency < 1 {
		return errors.New("ingest.concurrency must be >= 1")
	}

	switch c.Cache.Driver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if c.Cache.Addr == "" {
			return errors.New("cache.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be memory or redis, got %q", c.Cache.Driver)
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

// Check verifies the selected store driver has what it needs to connect.
// Missing credentials yield *NotConfiguredError.
func (s *StoreConfig) Check() error {
	switch s.Driver {
	case StoreDriverMemory:
		return nil
	case StoreDriverPostgres:
		var missing []string
		for _, f := range []struct{ name, val string }{
			{"store.postgres.host", s.Postgres.Host},
			{"store.postgres.name", s.Postgres.Name},
			{"store.postgres.user", s.Postgres.User},
			{"store.postgres.password", s.Postgres.Password},
		} {
			if f.val == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			return &NotConfiguredError{Component: "store", Missing: missing}
		}
		return s.Postgres.validate("store.postgres")
	case StoreDriverREST:
		var missing []string
		if s.REST.URL == "" {
			missing = append(missing, "store.rest.url")
		}
		if s.REST.APIKey == "" {
			missing = append(missing, "store.rest.api_key")
		}
		if len(missing) > 0 {
			return &NotConfiguredError{Component: "store", Missing: missing}
		}
		return nil
	default:
		return fmt.Errorf("store.driver must be postgres, rest or memory, got %q", s.Driver)
	}
}

// Check verifies the selected producer has credentials.
func (p *ProducerConfig) Check() error {
	switch p.Kind {
	case ProducerSynthetic:
		return nil
	case ProducerREST:
		var missing []string
		if p.BaseURL == "" {
			missing = append(missing, "producer.base_url")
		}
		if p.APIKey == "" {
			missing = append(missing, "producer.api_key")
		}
		if p.APISecret == "" {
			missing = append(missing, "producer.api_secret")
		}
		if len(missing) > 0 {
			return &NotConfiguredError{Component: "producer", Missing: missing}
		}
		if p.MaxRetries < 0 {
			return errors.New("producer.max_retries must be >= 0")
		}
		return nil
	default:
		return fmt.Errorf("producer.kind must be synthetic or rest, got %q", p.Kind)
	}
}

func (db *DBConfig) validate(prefix string) error {
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
