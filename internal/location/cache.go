package location

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevinmaint/maint-api/internal/models"
)

// CachePolicy bounds how long and how many fingerprints are retained
type CachePolicy struct {
	MaxAge     time.Duration
	MaxEntries int
}

// DefaultCachePolicy keeps 30 days of fingerprints, at most 100 of them
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{MaxAge: 30 * 24 * time.Hour, MaxEntries: 100}
}

// FingerprintCache stores fingerprint → business resolutions
type FingerprintCache interface {
	// Lookup returns nil, nil when the fingerprint is unknown or expired
	Lookup(ctx context.Context, fingerprint string) (*models.FingerprintEntry, error)
	Upsert(ctx context.Context, fingerprint string, business models.NearbyBusiness, confidence float64, method models.DetectionMethod) (*models.FingerprintEntry, error)
	// List returns entries most recently seen first
	List(ctx context.Context) ([]*models.FingerprintEntry, error)
	Remove(ctx context.Context, fingerprint string) error
	// Prune drops expired entries and the oldest entries beyond capacity
	Prune(ctx context.Context) (int, error)
}

// mergeEntry folds a new observation into an existing entry. Re-confirming the
// same business keeps the best confidence seen; a different business replaces it.
func mergeEntry(existing *models.FingerprintEntry, fingerprint string, business models.NearbyBusiness,
	confidence float64, method models.DetectionMethod, now time.Time) *models.FingerprintEntry {
	confidence = clamp01(confidence)
	if existing != nil && existing.Business.ID == business.ID {
		merged := *existing
		merged.Business = business
		if confidence > merged.Confidence {
			merged.Confidence = confidence
		}
		merged.DetectionMethod = method
		merged.HitCount++
		merged.LastSeen = now
		return &merged
	}
	return &models.FingerprintEntry{
		Fingerprint:     fingerprint,
		Business:        business,
		Confidence:      confidence,
		DetectionMethod: method,
		HitCount:        1,
		FirstSeen:       now,
		LastSeen:        now,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MemoryCache is an in-process FingerprintCache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.FingerprintEntry
	policy  CachePolicy
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache(policy CachePolicy) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*models.FingerprintEntry),
		policy:  policy,
		now:     time.Now,
	}
}

// WithClock replaces the cache's time source
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) expired(e *models.FingerprintEntry, now time.Time) bool {
	return c.policy.MaxAge > 0 && now.Sub(e.LastSeen) > c.policy.MaxAge
}

func (c *MemoryCache) Lookup(_ context.Context, fingerprint string) (*models.FingerprintEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	if c.expired(e, c.now()) {
		delete(c.entries, fingerprint)
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (c *MemoryCache) Upsert(_ context.Context, fingerprint string, business models.NearbyBusiness,
	confidence float64, method models.DetectionMethod) (*models.FingerprintEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	existing := c.entries[fingerprint]
	if existing != nil && c.expired(existing, now) {
		existing = nil
	}
	entry := mergeEntry(existing, fingerprint, business, confidence, method, now)
	c.entries[fingerprint] = entry
	c.pruneLocked(now)

	cp := *entry
	return &cp, nil
}

func (c *MemoryCache) List(_ context.Context) ([]*models.FingerprintEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]*models.FingerprintEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if c.expired(e, now) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (c *MemoryCache) Remove(_ context.Context, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
	return nil
}

func (c *MemoryCache) Prune(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(c.now()), nil
}

func (c *MemoryCache) pruneLocked(now time.Time) int {
	removed := 0
	for fp, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, fp)
			removed++
		}
	}

	if c.policy.MaxEntries <= 0 || len(c.entries) <= c.policy.MaxEntries {
		return removed
	}

	byAge := make([]*models.FingerprintEntry, 0, len(c.entries))
	for _, e := range c.entries {
		byAge = append(byAge, e)
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].LastSeen.Before(byAge[j].LastSeen) })
	for _, e := range byAge[:len(byAge)-c.policy.MaxEntries] {
		delete(c.entries, e.Fingerprint)
		removed++
	}
	return removed
}
