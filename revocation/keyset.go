package revocation

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// KeyResolver resolves a verification key by its key id.
type KeyResolver interface {
	ResolveKey(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// JWK represents a JSON Web Key as published by the identity provider.
type JWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// RemoteKeySet caches public keys fetched from a remote JWKS endpoint.
// Entries live for a TTL; a cache miss triggers a refetch, subject to a
// minimum interval between remote requests so a flood of tokens with bogus
// key ids cannot hammer the provider.
type RemoteKeySet struct {
	url    string
	client *http.Client

	ttl         time.Duration
	minInterval time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	lastFetch time.Time
}

// NewRemoteKeySet creates a key set fetching from the given JWKS URL.
func NewRemoteKeySet(url string) *RemoteKeySet {
	return &RemoteKeySet{
		url:         url,
		client:      &http.Client{Timeout: 5 * time.Second},
		ttl:         time.Hour,
		minInterval: 30 * time.Second,
		keys:        make(map[string]*rsa.PublicKey),
	}
}

// ResolveKey returns the cached key for kid, refetching the key set when the
// cache is cold, expired, or missing the kid and the refresh-rate ceiling
// allows another attempt.
func (ks *RemoteKeySet) ResolveKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := time.Now()
	fresh := !ks.fetchedAt.IsZero() && now.Sub(ks.fetchedAt) < ks.ttl

	if key, ok := ks.keys[kid]; ok && fresh {
		return key, nil
	}

	if now.Sub(ks.lastFetch) < ks.minInterval {
		// Too soon to refetch; serve a stale hit if we have one.
		if key, ok := ks.keys[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("key %q not cached and refresh rate exceeded", kid)
	}

	ks.lastFetch = now
	if err := ks.fetchLocked(ctx); err != nil {
		return nil, err
	}
	ks.fetchedAt = now

	key, ok := ks.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not present in key set", kid)
	}
	return key, nil
}

// fetchLocked retrieves and decodes the remote JWKS. Caller holds ks.mu.
func (ks *RemoteKeySet) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || jwk.Kid == "" {
			continue
		}
		key, err := jwk.publicKey()
		if err != nil {
			continue // skip undecodable entries, keep the rest
		}
		keys[jwk.Kid] = key
	}

	ks.keys = keys
	return nil
}

// publicKey decodes the RSA modulus and exponent per RFC 7518.
func (j JWK) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("zero exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// StaticKeySet is a fixed in-memory KeyResolver. Tests and single-key
// deployments use it in place of a remote fetch.
type StaticKeySet struct {
	keys map[string]crypto.PublicKey
}

// NewStaticKeySet creates a resolver over a fixed kid-to-key mapping.
func NewStaticKeySet(keys map[string]crypto.PublicKey) *StaticKeySet {
	return &StaticKeySet{keys: keys}
}

func (s *StaticKeySet) ResolveKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not present in key set", kid)
	}
	return key, nil
}
