package oauthclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// expirySkew is subtracted from a token's reported expiry so a cached token
// is treated as stale slightly before the authorization server would
// actually reject it.
const expirySkew = 30 * time.Second

type cachedToken struct {
	response  TokenResponse
	fetchedAt time.Time
}

func (c cachedToken) expired(now time.Time) bool {
	if c.response.ExpiresAt == nil {
		return false
	}
	return now.After(c.response.ExpiresAt.Add(-expirySkew))
}

// ResourceConfig binds one protected resource to the strategy used to
// obtain tokens for it and the issuer whose metadata seeds the exchange.
type ResourceConfig struct {
	Issuer   string
	Strategy Strategy
}

// TokenManager caches access tokens per resource, refreshing via the
// resource's configured Strategy on expiry or on an explicit Invalidate
// (called after a request comes back 401). Refreshes are single-flighted
// per resource so concurrent callers don't stampede the authorization
// server's token endpoint.
type TokenManager struct {
	httpClient *http.Client

	mu        sync.RWMutex
	resources map[string]ResourceConfig
	cache     map[string]cachedToken
	metaCache map[string]*AuthServerMetadata
	flight    singleflight.Group
	creds     *CredentialStore
}

// SetCredentialStore installs the store RegisterClientCredentials checks a
// plaintext secret against before registering. Optional; nil (the default)
// skips verification.
func (m *TokenManager) SetCredentialStore(cs *CredentialStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = cs
}

// RegisterClientCredentials binds resource to a ClientCredentialsStrategy
// built from clientID/secret, first checking secret against any pinned
// Argon2id hash in the installed CredentialStore. This catches an
// operator pointing the wrong environment's secret at a resource before a
// single token request is ever attempted.
func (m *TokenManager) RegisterClientCredentials(resource, issuer, clientID, secret string, scopes []string) error {
	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()
	if creds != nil {
		if err := creds.Verify(resource, secret); err != nil {
			return fmt.Errorf("oauthclient: registering %q: %w", resource, err)
		}
	}
	m.Register(resource, ResourceConfig{
		Issuer:   issuer,
		Strategy: ClientCredentialsStrategy{ClientID: clientID, ClientSecret: secret, Scopes: scopes},
	})
	return nil
}

// NewTokenManager builds an empty TokenManager. Register resources with
// Register before calling Token.
func NewTokenManager(httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenManager{
		httpClient: httpClient,
		resources:  make(map[string]ResourceConfig),
		cache:      make(map[string]cachedToken),
		metaCache:  make(map[string]*AuthServerMetadata),
	}
}

// Register binds resource to cfg, replacing any prior binding.
func (m *TokenManager) Register(resource string, cfg ResourceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[resource] = cfg
	delete(m.cache, resource)
}

// Token returns a valid access token for resource, fetching or refreshing
// one through the registered strategy if the cache is empty or stale.
func (m *TokenManager) Token(ctx context.Context, resource string) (string, error) {
	m.mu.RLock()
	cached, ok := m.cache[resource]
	fresh := ok && !cached.expired(time.Now())
	m.mu.RUnlock()
	if fresh {
		return cached.response.AccessToken, nil
	}

	v, err, _ := m.flight.Do(resource, func() (interface{}, error) {
		return m.refresh(ctx, resource)
	})
	if err != nil {
		return "", err
	}
	return v.(TokenResponse).AccessToken, nil
}

// Invalidate drops any cached token for resource, forcing the next Token
// call to refresh. Callers should invoke this after a request using a
// cached token comes back 401, per §4.10's "refresh is attempted on expiry
// or 401".
func (m *TokenManager) Invalidate(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, resource)
}

func (m *TokenManager) refresh(ctx context.Context, resource string) (TokenResponse, error) {
	m.mu.RLock()
	cfg, ok := m.resources[resource]
	meta := m.metaCache[resource]
	m.mu.RUnlock()
	if !ok {
		return TokenResponse{}, fmt.Errorf("oauthclient: no strategy registered for resource %q", resource)
	}

	if meta == nil {
		discovered, err := DiscoverAuthServerMetadata(ctx, m.httpClient, cfg.Issuer)
		if err != nil {
			return TokenResponse{}, err
		}
		meta = discovered
		m.mu.Lock()
		m.metaCache[resource] = meta
		m.mu.Unlock()
	}

	tok, err := cfg.Strategy.Exchange(ctx, meta)
	if err != nil {
		return TokenResponse{}, err
	}

	m.mu.Lock()
	m.cache[resource] = cachedToken{response: tok, fetchedAt: time.Now()}
	m.mu.Unlock()

	return tok, nil
}
