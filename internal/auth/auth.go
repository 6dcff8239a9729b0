// Package auth obtains bearer tokens for the market-data API using the
// OAuth2 client-credentials grant and caches them until shortly before
// they expire.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultExpirySkew is how long before expiry a cached token is refreshed.
const DefaultExpirySkew = 30 * time.Second

// Credentials holds the application key pair issued by the data vendor.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// LoadCredentials validates and wraps a key pair.
func LoadCredentials(clientID, clientSecret string) (*Credentials, error) {
	if clientID == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("API secret is required")
	}
	return &Credentials{ClientID: clientID, ClientSecret: clientSecret}, nil
}

// Token is an issued access token.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Valid reports whether the token is usable at now with skew to spare.
func (t *Token) Valid(now time.Time, skew time.Duration) bool {
	return t != nil && t.AccessToken != "" && now.Add(skew).Before(t.ExpiresAt)
}

// TokenError is a non-2xx answer from the token endpoint.
type TokenError struct {
	StatusCode int
	Body       []byte
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// TokenSource fetches and caches tokens. Safe for concurrent use.
type TokenSource struct {
	creds      *Credentials
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	skew       time.Duration

	mu    sync.Mutex
	token *Token
}

// Option configures a TokenSource.
type Option func(*TokenSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *TokenSource) { s.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *TokenSource) { s.logger = logger }
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *TokenSource) { s.now = now }
}

// NewTokenSource creates a TokenSource posting to tokenURL.
func NewTokenSource(creds *Credentials, tokenURL string, opts ...Option) *TokenSource {
	s := &TokenSource{
		creds:      creds,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
		skew:       DefaultExpirySkew,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or about to expire.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid(s.now(), s.skew) {
		return s.token.AccessToken, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = tok
	s.logger.Debug("access token refreshed", "expires_at", tok.ExpiresAt)
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call refetches.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// Headers returns the Authorization header for an API request.
func (s *TokenSource) Headers(ctx context.Context) (map[string]string, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

func (s *TokenSource) fetch(ctx context.Context) (*Token, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.creds.ClientID, s.creds.ClientSecret)

	issued := s.now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TokenError{StatusCode: resp.StatusCode, Body: body}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	return &Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		ExpiresAt:   issued.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
