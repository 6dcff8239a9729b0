package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/ingest/synthetic"
	"github.com/MAKaminski/alpha-kite/internal/marketdata"
	"github.com/MAKaminski/alpha-kite/internal/schema"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
		contain string
	}{
		{"text info", config.LoggingConfig{Level: "info", Format: "text"}, false, "msg=hello"},
		{"json debug", config.LoggingConfig{Level: "debug", Format: "json"}, false, `"msg":"hello"`},
		{"bad level", config.LoggingConfig{Level: "loud", Format: "text"}, true, ""},
		{"bad format", config.LoggingConfig{Level: "info", Format: "xml"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(tt.cfg, &buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			logger.Info("hello")
			if !strings.Contains(buf.String(), tt.contain) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.contain)
			}
		})
	}
}

func memoryConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Instance: config.InstanceConfig{ID: "test"},
		Store:    config.StoreConfig{Driver: config.StoreDriverMemory},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestOpenMemoryStack(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, memoryConfig(), nil, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if got := s.Pipeline.Producer().Name(); got != synthetic.Name {
		t.Errorf("producer = %q, want %q", got, synthetic.Name)
	}

	rep, err := s.Pipeline.Run(ctx, []string{"SPY"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	n, err := s.Store.Count(ctx, schema.TableEquity, nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != rep.Quotes || n != 1 {
		t.Errorf("equity rows = %d, want 1", n)
	}

	for name, check := range s.HealthChecks() {
		if err := check(ctx); err != nil {
			t.Errorf("health check %s: %v", name, err)
		}
	}
}

func TestOpenRejectsUnknownStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = "sqlite"
	if _, err := Open(context.Background(), cfg, nil, nil); err == nil {
		t.Error("Open() error = nil, want unknown driver error")
	}
}

func TestNewProducer(t *testing.T) {
	ing := config.IngestConfig{OptionsExpiryDays: 7}

	p, err := NewProducer(config.ProducerConfig{
		Kind:      config.ProducerREST,
		BaseURL:   "https://api.example.com/marketdata/v1",
		APIKey:    "key",
		APISecret: "secret",
	}, ing, nil)
	if err != nil {
		t.Fatalf("NewProducer(rest) failed: %v", err)
	}
	if _, ok := p.(*marketdata.Producer); !ok {
		t.Errorf("NewProducer(rest) = %T, want *marketdata.Producer", p)
	}

	_, err = NewProducer(config.ProducerConfig{Kind: config.ProducerREST, APIKey: "key"}, ing, nil)
	var nc *config.NotConfiguredError
	if !errors.As(err, &nc) {
		t.Errorf("missing secret error = %v, want *config.NotConfiguredError", err)
	}

	if _, err := NewProducer(config.ProducerConfig{Kind: "carrier-pigeon"}, ing, nil); err == nil {
		t.Error("unknown kind error = nil")
	}
}
