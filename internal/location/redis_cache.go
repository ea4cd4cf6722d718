package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kevinmaint/maint-api/internal/models"
)

const (
	redisEntryPrefix = "kevin:fp:"
	redisIndexKey    = "kevin:fp:index"
)

// RedisCache is a FingerprintCache shared by every API replica. Entries live
// under kevin:fp:<fingerprint>; a sorted set scored by last-seen time drives
// expiry and capacity eviction.
type RedisCache struct {
	client *redis.Client
	policy CachePolicy
	now    func() time.Time
}

// NewRedisCache wraps an existing client
func NewRedisCache(client *redis.Client, policy CachePolicy) *RedisCache {
	return &RedisCache{client: client, policy: policy, now: time.Now}
}

// WithClock replaces the cache's time source
func (c *RedisCache) WithClock(now func() time.Time) *RedisCache {
	c.now = now
	return c
}

func entryKey(fingerprint string) string {
	return redisEntryPrefix + fingerprint
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (c *RedisCache) Lookup(ctx context.Context, fingerprint string) (*models.FingerprintEntry, error) {
	raw, err := c.client.Get(ctx, entryKey(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint: %w", err)
	}

	var entry models.FingerprintEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Business.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrCacheCorrupted, fingerprint)
	}
	if c.policy.MaxAge > 0 && c.now().Sub(entry.LastSeen) > c.policy.MaxAge {
		return nil, nil
	}
	return &entry, nil
}

func (c *RedisCache) Upsert(ctx context.Context, fingerprint string, business models.NearbyBusiness,
	confidence float64, method models.DetectionMethod) (*models.FingerprintEntry, error) {
	existing, err := c.Lookup(ctx, fingerprint)
	if err != nil && !errors.Is(err, ErrCacheCorrupted) {
		return nil, err
	}

	now := c.now()
	entry := mergeEntry(existing, fingerprint, business, confidence, method, now)
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fingerprint entry: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey(fingerprint), payload, c.policy.MaxAge)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: score(now), Member: fingerprint})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store fingerprint: %w", err)
	}

	if _, err := c.Prune(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *RedisCache) List(ctx context.Context) ([]*models.FingerprintEntry, error) {
	fingerprints, err := c.client.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	if len(fingerprints) == 0 {
		return []*models.FingerprintEntry{}, nil
	}

	keys := make([]string, len(fingerprints))
	for i, fp := range fingerprints {
		keys[i] = entryKey(fp)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}

	entries := make([]*models.FingerprintEntry, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var entry models.FingerprintEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (c *RedisCache) Remove(ctx context.Context, fingerprint string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKey(fingerprint))
		pipe.ZRem(ctx, redisIndexKey, fingerprint)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove fingerprint: %w", err)
	}
	return nil
}

func (c *RedisCache) Prune(ctx context.Context) (int, error) {
	var stale []string

	if c.policy.MaxAge > 0 {
		cutoff := score(c.now().Add(-c.policy.MaxAge))
		expired, err := c.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatFloat(cutoff, 'f', -1, 64),
		}).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan expired fingerprints: %w", err)
		}
		stale = append(stale, expired...)
	}

	if c.policy.MaxEntries > 0 {
		total, err := c.client.ZCard(ctx, redisIndexKey).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count fingerprints: %w", err)
		}
		live := total - int64(len(stale))
		if over := live - int64(c.policy.MaxEntries); over > 0 {
			oldest, err := c.client.ZRange(ctx, redisIndexKey, int64(len(stale)), int64(len(stale))+over-1).Result()
			if err != nil {
				return 0, fmt.Errorf("failed to scan oldest fingerprints: %w", err)
			}
			stale = append(stale, oldest...)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}

	keys := make([]string, len(stale))
	members := make([]interface{}, len(stale))
	for i, fp := range stale {
		keys[i] = entryKey(fp)
		members[i] = fp
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisIndexKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune fingerprints: %w", err)
	}
	return len(stale), nil
}
