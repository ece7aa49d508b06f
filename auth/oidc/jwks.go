package oidc

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// minJWKSRefresh limits refetches triggered by unknown key IDs.
const minJWKSRefresh = 10 * time.Second

// jwksCache caches the realm signing keys and refetches them when stale or
// when a token names a key it has not seen yet.
type jwksCache struct {
	uri   string
	fetch Fetcher
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

// jwk represents a JSON Web Key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`

	// RSA fields
	N string `json:"n"`
	E string `json:"e"`

	// EC fields
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwksDoc struct {
	Keys []jwk `json:"keys"`
}

func (c *jwksCache) lookup(kid string) (crypto.PublicKey, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fresh := c.keys != nil && c.now().Sub(c.fetchedAt) < c.ttl
	if kid == "" && len(c.keys) == 1 {
		for _, k := range c.keys {
			return k, true, fresh
		}
	}
	k, ok := c.keys[kid]
	return k, ok, fresh
}

func (c *jwksCache) recentlyFetched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys != nil && c.now().Sub(c.fetchedAt) < minJWKSRefresh
}

// key returns the verification key for kid, refetching the key set at most
// once per call.
func (c *jwksCache) key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if k, ok, fresh := c.lookup(kid); ok && fresh {
		return k, nil
	}
	if !c.recentlyFetched() {
		if _, err, _ := c.group.Do("jwks", func() (any, error) {
			return nil, c.refresh(ctx)
		}); err != nil {
			return nil, err
		}
	}
	k, ok, _ := c.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return k, nil
}

func (c *jwksCache) refresh(ctx context.Context) error {
	resp, err := c.fetch.Get(ctx, c.uri, "")
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("JWKS returned %d", resp.StatusCode)
	}

	var doc jwksDoc
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for i := range doc.Keys {
		k := doc.Keys[i]
		if k.Use != "sig" && k.Use != "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			// Keys of unsupported types are skipped rather than failing the set.
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return nil
}

// publicKey converts a JWK to a Go crypto.PublicKey.
func (k *jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaPublicKey()
	case "EC":
		return k.ecPublicKey()
	default:
		return nil, fmt.Errorf("unsupported key type: %s", k.Kty)
	}
}

func (k *jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode RSA N: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode RSA E: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

func (k *jwk) ecPublicKey() (*ecdsa.PublicKey, error) {
	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("decode EC X: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("decode EC Y: %w", err)
	}

	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve: %s", k.Crv)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
