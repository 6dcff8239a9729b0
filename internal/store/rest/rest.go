// Package rest implements store.Backend against a PostgREST-compatible HTTP
// API such as Supabase. Change feeds use the realtime websocket endpoint.
//
// Requests are never retried here; retry policy belongs to callers.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/realtime"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

// APIError represents a non-2xx response from the REST store.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rest store error %d: %s", e.StatusCode, e.Message)
}

// Backend is a PostgREST store.Backend.
type Backend struct {
	baseURL     string
	apiKey      string
	realtimeURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.httpClient.Timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithRealtime sets the websocket endpoint used by Listen.
func WithRealtime(wsURL string) Option {
	return func(b *Backend) {
		b.realtimeURL = wsURL
	}
}

// New creates a backend for the API rooted at baseURL (e.g.
// https://xyz.supabase.co/rest/v1).
func New(baseURL, apiKey string, opts ...Option) *Backend {
	b := &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Select implements store.Backend.
func (b *Backend) Select(ctx context.Context, table string, preds []filter.Predicate, opts store.QueryOptions) ([]model.Record, error) {
	q := filter.Query(preds)
	q.Set("select", "*")
	if s := opts.Search; s != nil && s.Term != "" && len(s.Fields) > 0 {
		term := "*" + strings.NewReplacer(",", " ", "(", " ", ")", " ").Replace(s.Term) + "*"
		clauses := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			clauses[i] = f + ".ilike." + term
		}
		q.Set("or", "("+strings.Join(clauses, ",")+")")
	}
	if opts.OrderBy != "" {
		dir := "asc"
		if opts.Descending {
			dir = "desc"
		}
		q.Set("order", opts.OrderBy+"."+dir+".nullslast")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var out []model.Record
	if _, err := b.do(ctx, http.MethodGet, table, q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Count implements store.Backend using the exact-count Content-Range header.
func (b *Backend) Count(ctx context.Context, table string, preds []filter.Predicate) (int, error) {
	q := filter.Query(preds)
	q.Set("select", "*")
	hdr := http.Header{}
	hdr.Set("Prefer", "count=exact")
	hdr.Set("Range-Unit", "items")
	hdr.Set("Range", "0-0")

	resp, err := b.do(ctx, http.MethodHead, table, q, hdr, nil, nil)
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.Header.Get("Content-Range"))
}

// Insert implements store.Backend.
func (b *Backend) Insert(ctx context.Context, table string, recs []model.Record) ([]model.Record, error) {
	hdr := http.Header{}
	hdr.Set("Prefer", "return=representation")

	var out []model.Record
	if _, err := b.do(ctx, http.MethodPost, table, nil, hdr, recs, &out); err != nil {
		return nil, err
	}
	if len(out) != len(recs) {
		return nil, fmt.Errorf("inserted %d records, store returned %d", len(recs), len(out))
	}
	return out, nil
}

// Update implements store.Backend.
func (b *Backend) Update(ctx context.Context, table, pk, id string, patch model.Record) ([]model.Record, error) {
	q := url.Values{}
	q.Set(pk, "eq."+id)
	hdr := http.Header{}
	hdr.Set("Prefer", "return=representation")

	var out []model.Record
	if _, err := b.do(ctx, http.MethodPatch, table, q, hdr, patch, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, table string, preds []filter.Predicate) (int, error) {
	if len(preds) == 0 {
		// PostgREST refuses unfiltered deletes; so do we.
		return 0, fmt.Errorf("refusing unfiltered delete on %s", table)
	}
	hdr := http.Header{}
	hdr.Set("Prefer", "return=representation")

	var out []model.Record
	if _, err := b.do(ctx, http.MethodDelete, table, filter.Query(preds), hdr, nil, &out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// Listen implements store.Backend.
func (b *Backend) Listen(ctx context.Context, table string) (store.Feed, error) {
	if b.realtimeURL == "" {
		return nil, fmt.Errorf("realtime url not configured")
	}
	return realtime.Dial(ctx, realtime.Config{URL: b.realtimeURL, APIKey: b.apiKey}, table, b.logger)
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

func (b *Backend) do(ctx context.Context, method, table string, query url.Values, hdr http.Header, body, result any) (*http.Response, error) {
	fullURL := b.baseURL + "/" + url.PathEscape(table)
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", b.apiKey)
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		var pgErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &pgErr) == nil && pgErr.Message != "" {
			msg = pgErr.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg, Body: data}
	}

	if result != nil && len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(result); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp, nil
}

// parseContentRange reads the total from "0-0/123" or "*/0".
func parseContentRange(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || v[i+1:] == "*" {
		return 0, fmt.Errorf("content-range %q has no total", v)
	}
	n, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return 0, fmt.Errorf("parse content-range %q: %w", v, err)
	}
	return n, nil
}
