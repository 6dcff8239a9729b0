package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// Producer supplies raw quotes and option snapshots.
type Producer interface {
	Name() string
	FetchQuotes(ctx context.Context, symbols []string) ([]model.RawQuote, error)
	// FetchOptions returns contracts expiring on expiry, or on the
	// producer's default expiry when expiry is nil.
	FetchOptions(ctx context.Context, symbols []string, expiry *time.Time) ([]model.RawOption, error)
}

// HistoryProducer is a Producer that can also serve daily bars.
type HistoryProducer interface {
	Producer
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.RawBar, error)
}

// ErrNoData is returned when a producer answers with nothing for a symbol.
var ErrNoData = errors.New("no data")

// ErrHistoryUnsupported is returned by IngestHistory when the producer does
// not implement HistoryProducer.
var ErrHistoryUnsupported = errors.New("producer does not serve history")

// ProducerError wraps any failure of the upstream data source.
type ProducerError struct {
	Producer string
	Op       string
	Symbols  []string
	Err      error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer %s: %s [%s]: %v", e.Producer, e.Op, strings.Join(e.Symbols, ","), e.Err)
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}
