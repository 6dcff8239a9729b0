package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response is kept on APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from one market-data endpoint.
type APIError struct {
	Path       string
	StatusCode int
	Message    string        // the server's explanation, else the status text
	RetryAfter time.Duration // from a Retry-After header, zero if absent
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data %s: %d %s", e.Path, e.StatusCode, e.Message)
}

// Temporary reports whether the same call may succeed later: throttling
// and server-side failures.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// errorBody covers both error envelopes the API returns: the gateway's
// OAuth shape and the market-data service's message list.
type errorBody struct {
	Message     string   `json:"message"`
	Errors      []string `json:"errors"`
	Err         string   `json:"error"`
	Description string   `json:"error_description"`
}

func newAPIError(path string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &APIError{
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		Body:       body,
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return e
	}
	switch {
	case eb.Message != "":
		e.Message = eb.Message
	case len(eb.Errors) > 0:
		e.Message = strings.Join(eb.Errors, "; ")
	case eb.Description != "":
		e.Message = eb.Description
	case eb.Err != "":
		e.Message = eb.Err
	}
	return e
}

// retryAfter reads the delay-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// send issues one GET against path and returns the open response. Non-2xx
// answers are drained into an *APIError.
func (c *Client) send(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("access token for %s: %w", path, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, newAPIError(path, resp)
}

// get decodes path's JSON answer into out. A 401 drops the cached token and
// is tried once more with a fresh one. Temporary failures are retried up
// to maxRetries times with jittered exponential backoff, waiting at least
// as long as the server's Retry-After.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	backoff := c.retryBackoff
	retries := 0
	reauthed := false

	for {
		resp, err := c.send(ctx, path, query)
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		if apiErr.StatusCode == http.StatusUnauthorized {
			inv, ok := c.tokens.(invalidator)
			if !ok || reauthed {
				return err
			}
			inv.Invalidate()
			reauthed = true
			c.logger.Debug("access token rejected; refreshing", "path", path)
			continue
		}
		if !apiErr.Temporary() {
			return err
		}
		if retries >= c.maxRetries {
			if c.maxRetries == 0 {
				return err
			}
			return fmt.Errorf("%s failed after %d retries: %w", path, c.maxRetries, err)
		}

		wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
		if apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		c.logger.Debug("retrying market data call", "path", path, "status", apiErr.StatusCode, "retry", retries+1, "wait", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		retries++
		backoff *= 2
	}
}
