package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformredis "bountydesk/internal/platform/redis"
	"bountydesk/internal/verification/models"
)

// Cache holds a projected queue snapshot per kind, guarded by a generation
// counter. Invalidate bumps the generation; Get only serves a snapshot whose
// recorded generation still matches, and hands back the current generation so
// the projector can stamp its next Set with the value it observed before
// reading the store. A Set that raced a commit carries a stale generation and
// is dead on arrival, so the cache can never resurrect a decided record.
// Misses and backend failures both read as "no snapshot".
type Cache interface {
	Get(ctx context.Context, kind models.Kind) ([]Item, int64, bool)
	Set(ctx context.Context, kind models.Kind, items []Item, generation int64)
	Invalidate(ctx context.Context, kind models.Kind)
}

const cacheTTL = 30 * time.Second

// generationUnknown stamps snapshots written while the generation key was
// unreadable. It matches no INCR result, so such snapshots never serve.
const generationUnknown int64 = -1

// snapshot is the stored payload: the items plus the generation that was
// current before the store read that produced them.
type snapshot struct {
	Generation int64  `json:"generation"`
	Items      []Item `json:"items"`
}

// RedisCache stores queue snapshots as JSON blobs keyed by kind, with a
// companion generation counter per kind. The TTL is a backstop; correctness
// comes from the generation check on every read.
type RedisCache struct {
	client *platformredis.Client
	logger *slog.Logger
}

func NewRedisCache(client *platformredis.Client, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

func cacheKey(kind models.Kind) string {
	return "bountydesk:queue:" + string(kind)
}

func generationKey(kind models.Kind) string {
	return "bountydesk:queue:gen:" + string(kind)
}

func (c *RedisCache) generation(ctx context.Context, kind models.Kind) int64 {
	gen, err := c.client.Client.Get(ctx, generationKey(kind)).Int64()
	if err != nil {
		if err != goredis.Nil {
			c.logger.WarnContext(ctx, "queue cache generation read failed", "kind", string(kind), "error", err)
			return generationUnknown
		}
		return 0
	}
	return gen
}

func (c *RedisCache) Get(ctx context.Context, kind models.Kind) ([]Item, int64, bool) {
	gen := c.generation(ctx, kind)

	payload, err := c.client.Client.Get(ctx, cacheKey(kind)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.WarnContext(ctx, "queue cache read failed", "kind", string(kind), "error", err)
		}
		return nil, gen, false
	}
	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		c.logger.WarnContext(ctx, "queue cache payload corrupt, dropping", "kind", string(kind), "error", err)
		return nil, gen, false
	}
	if snap.Generation != gen {
		return nil, gen, false
	}
	return snap.Items, gen, true
}

func (c *RedisCache) Set(ctx context.Context, kind models.Kind, items []Item, generation int64) {
	payload, err := json.Marshal(snapshot{Generation: generation, Items: items})
	if err != nil {
		return
	}
	if err := c.client.Client.Set(ctx, cacheKey(kind), payload, cacheTTL).Err(); err != nil {
		c.logger.WarnContext(ctx, "queue cache write failed", "kind", string(kind), "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, kind models.Kind) {
	if err := c.client.Client.Incr(ctx, generationKey(kind)).Err(); err != nil {
		c.logger.WarnContext(ctx, "queue cache invalidation failed", "kind", string(kind), "error", err)
	}
}

// MemoryCache is the single-process cache used when Redis is not configured.
// Same generation discipline as RedisCache, without the TTL backstop.
type MemoryCache struct {
	mu          sync.Mutex
	snapshots   map[models.Kind]snapshot
	generations map[models.Kind]int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		snapshots:   make(map[models.Kind]snapshot),
		generations: make(map[models.Kind]int64),
	}
}

func (c *MemoryCache) Get(_ context.Context, kind models.Kind) ([]Item, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.generations[kind]
	snap, ok := c.snapshots[kind]
	if !ok || snap.Generation != gen {
		return nil, gen, false
	}
	return snap.Items, gen, true
}

func (c *MemoryCache) Set(_ context.Context, kind models.Kind, items []Item, generation int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[kind] = snapshot{Generation: generation, Items: items}
}

func (c *MemoryCache) Invalidate(_ context.Context, kind models.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[kind]++
}

// NoopCache disables caching; every read falls through to the store.
type NoopCache struct{}

func (NoopCache) Get(context.Context, models.Kind) ([]Item, int64, bool) { return nil, 0, false }
func (NoopCache) Set(context.Context, models.Kind, []Item, int64)        {}
func (NoopCache) Invalidate(context.Context, models.Kind)                {}
