package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" {
			t.Errorf("BasicAuth = %q, %q, %v, want client, secret, true", id, secret, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":1800}`, n)
	}))
}

func TestLoadCredentials(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		secret  string
		wantErr bool
	}{
		{"valid", "client", "secret", false},
		{"missing id", "", "secret", true},
		{"missing secret", "client", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCredentials(tt.id, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadCredentials error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenSource_CachesUntilExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls, http.StatusOK)
	defer srv.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	creds, _ := LoadCredentials("client", "secret")
	s := NewTokenSource(creds, srv.URL, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	tok, err := s.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("Token = %q, want tok-1", tok)
	}

	now = now.Add(20 * time.Minute)
	if tok, _ = s.Token(ctx); tok != "tok-1" {
		t.Errorf("Token within lifetime = %q, want cached tok-1", tok)
	}

	// Inside the refresh skew.
	now = now.Add(9*time.Minute + 45*time.Second)
	if tok, _ = s.Token(ctx); tok != "tok-2" {
		t.Errorf("Token near expiry = %q, want refreshed tok-2", tok)
	}
	if calls.Load() != 2 {
		t.Errorf("token requests = %d, want 2", calls.Load())
	}
}

func TestTokenSource_Invalidate(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls, http.StatusOK)
	defer srv.Close()

	creds, _ := LoadCredentials("client", "secret")
	s := NewTokenSource(creds, srv.URL)
	ctx := context.Background()

	s.Token(ctx)
	s.Invalidate()

	headers, err := s.Headers(ctx)
	if err != nil {
		t.Fatalf("Headers failed: %v", err)
	}
	if headers["Authorization"] != "Bearer tok-2" {
		t.Errorf("Authorization = %q, want Bearer tok-2", headers["Authorization"])
	}
}

func TestTokenSource_Error(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls, http.StatusUnauthorized)
	defer srv.Close()

	creds, _ := LoadCredentials("client", "secret")
	s := NewTokenSource(creds, srv.URL)

	_, err := s.Token(context.Background())
	var te *TokenError
	if !errors.As(err, &te) {
		t.Fatalf("Token error = %v, want *TokenError", err)
	}
	if te.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", te.StatusCode)
	}
}
