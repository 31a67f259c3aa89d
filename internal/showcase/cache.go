// internal/showcase/cache.go
package showcase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"endorsement-workers/internal/endorsement"

	"github.com/redis/go-redis/v9"
)

const (
	versionKey      = "showcase:version"
	DefaultCacheTTL = 5 * time.Minute
)

// RedisCache caches showcase pages under keys that embed a version counter.
// Invalidate bumps the counter, so stale pages are never read again and age
// out with their TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ endorsement.ShowcaseCache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached page for q and the version it was looked up under.
// A miss still reports the version, which the caller hands back to Set.
func (c *RedisCache) Get(ctx context.Context, q endorsement.ShowcaseQuery) ([]endorsement.PublicEndorsement, int64, bool, error) {
	version, err := c.version(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	data, err := c.client.Get(ctx, pageKey(version, q)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, version, false, fmt.Errorf("read showcase cache: %w", err)
	}

	var list []endorsement.PublicEndorsement
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, version, false, fmt.Errorf("decode showcase cache: %w", err)
	}
	return list, version, true, nil
}

// Set stores list under the version Get reported. If an invalidation landed
// in between, the page goes to a key no reader looks up and expires unseen.
func (c *RedisCache) Set(ctx context.Context, version int64, q endorsement.ShowcaseQuery, list []endorsement.PublicEndorsement) error {
	if list == nil {
		list = []endorsement.PublicEndorsement{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode showcase cache: %w", err)
	}
	if err := c.client.Set(ctx, pageKey(version, q), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write showcase cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("invalidate showcase cache: %w", err)
	}
	return nil
}

// OnTransition drops cached pages after any change that can alter the
// approved set or its ordering.
func (c *RedisCache) OnTransition(ctx context.Context, _ *endorsement.Endorsement, kind endorsement.MutationKind) error {
	if !affectsShowcase(kind) {
		return nil
	}
	return c.Invalidate(ctx)
}

func (c *RedisCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read showcase cache version: %w", err)
	}
	return v, nil
}

func pageKey(version int64, q endorsement.ShowcaseQuery) string {
	q = q.Normalize()
	raw := strings.ToLower(q.Search + "\x00" + q.Category + "\x00" + q.Country)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("showcase:v%d:%s", version, hex.EncodeToString(sum[:16]))
}

func affectsShowcase(kind endorsement.MutationKind) bool {
	switch kind {
	case endorsement.MutationApprove, endorsement.MutationFeature, endorsement.MutationUnfeature:
		return true
	default:
		return false
	}
}
