package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// ProducerName identifies the REST producer.
const ProducerName = "marketdata"

// Producer adapts a Client to the ingest producer interfaces.
type Producer struct {
	client     *Client
	expiryDays int
	now        func() time.Time
}

// NewProducer creates a Producer. Without an explicit expiry, option
// fetches cover today through today+expiryDays.
func NewProducer(client *Client, expiryDays int) *Producer {
	return &Producer{client: client, expiryDays: expiryDays, now: time.Now}
}

// Name implements ingest.Producer.
func (p *Producer) Name() string { return ProducerName }

// FetchQuotes implements ingest.Producer. Symbols missing from the response
// are skipped.
func (p *Producer) FetchQuotes(ctx context.Context, symbols []string) ([]model.RawQuote, error) {
	resp, err := p.client.GetQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawQuote, 0, len(symbols))
	for _, sym := range symbols {
		if q, ok := resp[sym]; ok {
			out = append(out, q.ToRawQuote(sym))
		}
	}
	return out, nil
}

// FetchOptions implements ingest.Producer with one chain request per symbol.
func (p *Producer) FetchOptions(ctx context.Context, symbols []string, expiry *time.Time) ([]model.RawOption, error) {
	from := p.now().UTC()
	to := from.AddDate(0, 0, p.expiryDays)
	if expiry != nil {
		from, to = *expiry, *expiry
	}

	var out []model.RawOption
	for _, sym := range symbols {
		chain, err := p.client.GetChain(ctx, sym, from, to)
		if err != nil {
			return nil, err
		}
		if chain.Status != "" && chain.Status != "SUCCESS" {
			return nil, fmt.Errorf("chain %s: status %s", sym, chain.Status)
		}
		if chain.Symbol == "" {
			chain.Symbol = sym
		}
		out = append(out, chain.ToRawOptions()...)
	}
	return out, nil
}

// FetchHistory implements ingest.HistoryProducer.
func (p *Producer) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.RawBar, error) {
	resp, err := p.client.GetPriceHistory(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	bars := make([]model.RawBar, len(resp.Candles))
	for i, c := range resp.Candles {
		bars[i] = c.ToRawBar(symbol)
	}
	return bars, nil
}
