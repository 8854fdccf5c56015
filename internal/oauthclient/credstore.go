package oauthclient

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alexedwards/argon2id"
)

// ErrSecretMismatch is returned by CredentialStore.Verify when the supplied
// secret doesn't match the pinned hash for a resource.
var ErrSecretMismatch = errors.New("oauthclient: client secret does not match pinned hash")

// credentialHashParams mirrors the teacher's OWASP-minimum Argon2id
// parameters (internal/domain/auth/api_key.go).
var credentialHashParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// CredentialStore pins an Argon2id hash of each resource's configured OAuth
// client secret, so a secret supplied at runtime (e.g. via an environment
// variable, kept out of the YAML config entirely) can be checked against the
// value an operator committed to config before it's handed to a Strategy.
// This is integrity verification, not authentication storage: the plaintext
// secret itself is never persisted here, only its hash, exactly like the
// teacher's APIKeyService.Validate hash-then-compare pattern (§4.10's
// client-credentials strategy still needs the plaintext to present to the
// authorization server, which Register's caller already has).
type CredentialStore struct {
	mu     sync.RWMutex
	hashes map[string]string // resource -> PHC-format Argon2id hash
}

// NewCredentialStore builds an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{hashes: make(map[string]string)}
}

// Pin hashes secret and records it as the expected value for resource,
// replacing any previous pin.
func (s *CredentialStore) Pin(resource, secret string) error {
	hash, err := argon2id.CreateHash(secret, credentialHashParams)
	if err != nil {
		return fmt.Errorf("oauthclient: hashing client secret for %q: %w", resource, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[resource] = hash
	return nil
}

// PinHash records an already-computed PHC-format hash as the expected value
// for resource, for loading a hash an operator generated offline (e.g. via
// the hash-secret CLI command) straight out of a config file.
func (s *CredentialStore) PinHash(resource, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[resource] = hash
}

// Verify reports whether secret matches the pinned hash for resource. A
// resource with no pinned hash always verifies (nothing was configured to
// check against), so Verify is safe to call unconditionally before handing
// a secret to a Strategy.
func (s *CredentialStore) Verify(resource, secret string) error {
	s.mu.RLock()
	hash, ok := s.hashes[resource]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	match, err := argon2id.ComparePasswordAndHash(secret, hash)
	if err != nil {
		return fmt.Errorf("oauthclient: comparing client secret for %q: %w", resource, err)
	}
	if !match {
		return ErrSecretMismatch
	}
	return nil
}

// HashSecret hashes secret for storage, exposed directly for the CLI's
// hash-secret command (mirrors the teacher's hash_key.go, which does the
// same for API keys rather than OAuth client secrets).
func HashSecret(secret string) (string, error) {
	return argon2id.CreateHash(secret, credentialHashParams)
}
