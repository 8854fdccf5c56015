package authgate

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// keySet fetches and caches an issuer's JSON Web Key Set, exposing a
// jwt.Keyfunc that resolves a token's "kid" header to its public key. No
// JWKS client library appears anywhere in the retrieved pack, so this is a
// deliberately small hand-rolled fetch-and-cache rather than a third-party
// dependency: golang-jwt/jwt/v5 itself only consumes a Keyfunc, it doesn't
// ship a JWKS client.
type keySet struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeySet(url string, ttl time.Duration) *keySet {
	return &keySet{
		url:        url,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// Keyfunc implements jwt.Keyfunc: it looks at the token's "kid" header,
// fetching (or re-fetching, once the cache is stale) the issuer's JWKS
// document as needed, and returns the matching RSA public key.
func (k *keySet) Keyfunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)

	key, ok := k.lookup(kid)
	if ok {
		return key, nil
	}

	if err := k.refresh(); err != nil {
		return nil, fmt.Errorf("authgate: fetching jwks: %w", err)
	}

	key, ok = k.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("authgate: no signing key for kid %q", kid)
	}
	return key, nil
}

func (k *keySet) lookup(kid string) (*rsa.PublicKey, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.keys == nil || time.Since(k.fetchedAt) > k.ttl {
		return nil, false
	}
	key, ok := k.keys[kid]
	return key, ok
}

func (k *keySet) refresh() error {
	resp, err := k.httpClient.Get(k.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding jwks document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	k.mu.Lock()
	k.keys = keys
	k.fetchedAt = time.Now()
	k.mu.Unlock()
	return nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
