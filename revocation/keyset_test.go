package revocation

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func jwkFor(key *rsa.PublicKey, kid string) JWK {
	eBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(eBytes, uint32(key.E))
	start := 0
	for start < len(eBytes)-1 && eBytes[start] == 0 {
		start++
	}
	return JWK{
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(eBytes[start:]),
	}
}

func TestRemoteKeySetResolvesAndCaches(t *testing.T) {
	key := newTestKey(t)

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(JWKS{Keys: []JWK{jwkFor(&key.PublicKey, "kid-a")}})
	}))
	defer srv.Close()

	ks := NewRemoteKeySet(srv.URL)

	resolved, err := ks.ResolveKey(context.Background(), "kid-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	pub, ok := resolved.(*rsa.PublicKey)
	if !ok || pub.N.Cmp(key.N) != 0 {
		t.Error("resolved key does not match published key")
	}

	// Second resolution must come from cache.
	if _, err := ks.ResolveKey(context.Background(), "kid-a"); err != nil {
		t.Fatalf("cached resolve failed: %v", err)
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("expected 1 remote fetch, got %d", n)
	}
}

func TestRemoteKeySetRefreshCeiling(t *testing.T) {
	key := newTestKey(t)

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(JWKS{Keys: []JWK{jwkFor(&key.PublicKey, "kid-a")}})
	}))
	defer srv.Close()

	ks := NewRemoteKeySet(srv.URL)
	ks.minInterval = time.Hour

	if _, err := ks.ResolveKey(context.Background(), "kid-a"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Unknown kid inside the refresh interval: no second fetch, hard failure.
	if _, err := ks.ResolveKey(context.Background(), "kid-b"); err == nil {
		t.Error("expected failure for unknown kid under refresh ceiling")
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("refresh ceiling violated: %d fetches", n)
	}
}

func TestRemoteKeySetRefetchesAfterTTL(t *testing.T) {
	key := newTestKey(t)

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(JWKS{Keys: []JWK{jwkFor(&key.PublicKey, "kid-a")}})
	}))
	defer srv.Close()

	ks := NewRemoteKeySet(srv.URL)

	if _, err := ks.ResolveKey(context.Background(), "kid-a"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Age the cache past its TTL; the cached kid no longer counts as fresh
	// and the next resolution must go back to the remote.
	ks.mu.Lock()
	ks.fetchedAt = time.Now().Add(-ks.ttl - time.Minute)
	ks.lastFetch = time.Now().Add(-ks.ttl - time.Minute)
	ks.mu.Unlock()

	if _, err := ks.ResolveKey(context.Background(), "kid-a"); err != nil {
		t.Fatalf("post-expiry resolve failed: %v", err)
	}
	if n := fetches.Load(); n != 2 {
		t.Errorf("expected a refetch after TTL expiry, got %d fetches", n)
	}
}

func TestRemoteKeySetSkipsBadEntries(t *testing.T) {
	key := newTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JWKS{Keys: []JWK{
			{Kty: "EC", Kid: "ec-key"},
			{Kty: "RSA", Kid: "broken", N: "!!!not-base64!!!", E: "AQAB"},
			jwkFor(&key.PublicKey, "kid-good"),
		}})
	}))
	defer srv.Close()

	ks := NewRemoteKeySet(srv.URL)
	if _, err := ks.ResolveKey(context.Background(), "kid-good"); err != nil {
		t.Errorf("good key should survive bad siblings: %v", err)
	}
}
