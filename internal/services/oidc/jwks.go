package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	// DefaultKeyTTL is how long a fetched key set is trusted before refetching
	DefaultKeyTTL = time.Hour
	// minForcedRefresh spaces out refetches triggered by tokens that fail to verify
	minForcedRefresh = 30 * time.Second
)

// KeyCache holds the provider's signing keys per JWKS URL
type KeyCache struct {
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	// held across the fetch so concurrent misses share one request
	mu      sync.Mutex
	set     jwk.Set
	fetched time.Time
}

// NewKeyCache creates a key cache. A non-positive ttl means DefaultKeyTTL.
func NewKeyCache(ttl time.Duration) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &KeyCache{
		ttl:     ttl,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
		entries: make(map[string]*keyEntry),
	}
}

// Keys returns the key set at jwksURL, fetching it when missing or older than the TTL
func (c *KeyCache) Keys(ctx context.Context, jwksURL string) (jwk.Set, error) {
	return c.load(ctx, jwksURL, false)
}

// Refresh refetches the key set after the provider may have rotated keys.
// Calls within minForcedRefresh of the last fetch return the cached set.
func (c *KeyCache) Refresh(ctx context.Context, jwksURL string) (jwk.Set, error) {
	return c.load(ctx, jwksURL, true)
}

func (c *KeyCache) load(ctx context.Context, jwksURL string, force bool) (jwk.Set, error) {
	e := c.entry(jwksURL)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.set != nil {
		age := c.now().Sub(e.fetched)
		if age < c.ttl && (!force || age < minForcedRefresh) {
			return e.set, nil
		}
	}

	set, err := jwk.Fetch(ctx, jwksURL, jwk.WithHTTPClient(c.client))
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS %s: %w", jwksURL, err)
	}
	e.set, e.fetched = set, c.now()
	return set, nil
}

func (c *KeyCache) entry(jwksURL string) *keyEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[jwksURL]
	if !ok {
		e = &keyEntry{}
		c.entries[jwksURL] = e
	}
	return e
}
