// Package auth provides API-key authentication for the router's HTTP
// transport.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// hashPrefix marks a configured key value as a bcrypt hash rather than a
// plaintext key.
const hashPrefix = "bcrypt:"

// APIKey is one configured key entry.
type APIKey struct {
	// Key is the key material: either the plaintext key or
	// "bcrypt:<hash>" for keys stored hashed.
	Key string `yaml:"key"`

	// Name identifies the key in logs and identity contexts.
	Name string `yaml:"name"`
}

// Identity describes an authenticated caller.
type Identity struct {
	Name     string
	AuthType string
}

// Authenticator validates a presented credential.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Identity, error)
}

// APIKeyAuthenticator authenticates bearer tokens against configured keys.
type APIKeyAuthenticator struct {
	keys []APIKey
}

// NewAPIKeyAuthenticator creates an authenticator over the configured keys.
func NewAPIKeyAuthenticator(keys []APIKey) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

// Authenticate validates the token carried in ctx. Plaintext keys compare
// in constant time; hashed keys verify with bcrypt.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context) (*Identity, error) {
	token := GetToken(ctx)
	if token == "" {
		return nil, fmt.Errorf("no API key presented")
	}

	for i := range a.keys {
		key := &a.keys[i]
		if matchKey(key.Key, token) {
			return &Identity{Name: key.Name, AuthType: "apikey"}, nil
		}
	}
	return nil, fmt.Errorf("invalid API key")
}

func matchKey(configured, presented string) bool {
	if hash, ok := strings.CutPrefix(configured, hashPrefix); ok {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// Verify interface compliance.
var _ Authenticator = (*APIKeyAuthenticator)(nil)
