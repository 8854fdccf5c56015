package oauthclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func authServer(t *testing.T, tokenHits *int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":         "http://issuer.test",
			"token_endpoint": "http://issuer.test/token", // placeholder: srv.URL is not known yet, so tests serve their own metadata
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(tokenHits, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-from-server",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenManagerClientCredentialsRoundTrip(t *testing.T) {
	var hits int64
	srv := authServer(t, &hits)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthServerMetadata{
			Issuer:       srv.URL,
			TokenEndpoint: srv.URL + "/token",
		})
	})
	metaSrv := httptest.NewServer(mux)
	t.Cleanup(metaSrv.Close)

	mgr := NewTokenManager(nil)
	mgr.Register("https://example.com/mcp", ResourceConfig{
		Issuer: metaSrv.URL,
		Strategy: ClientCredentialsStrategy{
			ClientID:     "client-1",
			ClientSecret: "secret",
		},
	})

	tok, err := mgr.Token(context.Background(), "https://example.com/mcp")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "token-from-server" {
		t.Fatalf("token = %q, want %q", tok, "token-from-server")
	}
	if hits != 1 {
		t.Fatalf("expected exactly 1 token endpoint hit, got %d", hits)
	}

	// Cached: a second call should not hit the token endpoint again.
	if _, err := mgr.Token(context.Background(), "https://example.com/mcp"); err != nil {
		t.Fatalf("Token (cached): %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected cache hit, got %d token endpoint calls", hits)
	}
}

func TestTokenManagerSingleFlightsConcurrentRefresh(t *testing.T) {
	var hits int64
	srv := authServer(t, &hits)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthServerMetadata{
			Issuer:       srv.URL,
			TokenEndpoint: srv.URL + "/token",
		})
	})
	metaSrv := httptest.NewServer(mux)
	t.Cleanup(metaSrv.Close)

	mgr := NewTokenManager(nil)
	mgr.Register("https://example.com/mcp", ResourceConfig{
		Issuer:   metaSrv.URL,
		Strategy: ClientCredentialsStrategy{ClientID: "client-1", ClientSecret: "secret"},
	})

	const concurrency = 20
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			if _, err := mgr.Token(context.Background(), "https://example.com/mcp"); err != nil {
				t.Errorf("Token: %v", err)
			}
		}()
	}
	wg.Wait()

	if hits != 1 {
		t.Fatalf("expected a single token endpoint hit under concurrent refresh, got %d", hits)
	}
}

func TestTokenManagerInvalidateForcesRefresh(t *testing.T) {
	var hits int64
	srv := authServer(t, &hits)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthServerMetadata{
			Issuer:       srv.URL,
			TokenEndpoint: srv.URL + "/token",
		})
	})
	metaSrv := httptest.NewServer(mux)
	t.Cleanup(metaSrv.Close)

	mgr := NewTokenManager(nil)
	mgr.Register("https://example.com/mcp", ResourceConfig{
		Issuer:   metaSrv.URL,
		Strategy: ClientCredentialsStrategy{ClientID: "client-1", ClientSecret: "secret"},
	})

	if _, err := mgr.Token(context.Background(), "https://example.com/mcp"); err != nil {
		t.Fatalf("Token: %v", err)
	}
	mgr.Invalidate("https://example.com/mcp")
	if _, err := mgr.Token(context.Background(), "https://example.com/mcp"); err != nil {
		t.Fatalf("Token after invalidate: %v", err)
	}

	if hits != 2 {
		t.Fatalf("expected 2 token endpoint hits across invalidate, got %d", hits)
	}
}
