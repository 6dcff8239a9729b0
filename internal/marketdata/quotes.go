package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GetQuotes fetches quotes for symbols in one request.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]QuoteEntry, error) {
	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))
	query.Set("fields", "quote,reference")

	var resp map[string]QuoteEntry
	if err := c.get(ctx, "/quotes", query, &resp); err != nil {
		return nil, fmt.Errorf("get quotes: %w", err)
	}
	return resp, nil
}

// GetChain fetches the option chain for symbol with expiries in [from, to].
func (c *Client) GetChain(ctx context.Context, symbol string, from, to time.Time) (*ChainResponse, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("contractType", "ALL")
	query.Set("fromDate", from.UTC().Format("2006-01-02"))
	query.Set("toDate", to.UTC().Format("2006-01-02"))

	var resp ChainResponse
	if err := c.get(ctx, "/chains", query, &resp); err != nil {
		return nil, fmt.Errorf("get chain %s: %w", symbol, err)
	}
	return &resp, nil
}

// GetPriceHistory fetches daily candles for symbol between start and end.
func (c *Client) GetPriceHistory(ctx context.Context, symbol string, start, end time.Time) (*PriceHistoryResponse, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("periodType", "month")
	query.Set("frequencyType", "daily")
	query.Set("frequency", "1")
	query.Set("startDate", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("endDate", strconv.FormatInt(end.UnixMilli(), 10))

	var resp PriceHistoryResponse
	if err := c.get(ctx, "/pricehistory", query, &resp); err != nil {
		return nil, fmt.Errorf("get price history %s: %w", symbol, err)
	}
	return &resp, nil
}
