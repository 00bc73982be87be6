package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

const (
	categoriesKey    = "feed:categories"
	categoriesGenKey = "feed:categories:gen"
)

func statsKey(postID string) string    { return fmt.Sprintf("feed:stats:%s", postID) }
func statsGenKey(postID string) string { return fmt.Sprintf("feed:stats:gen:%s", postID) }

func versioned(key string, gen Gen) string { return fmt.Sprintf("%s:%d", key, gen) }

// Gen is the generation a cached value was read under. Invalidate bumps it,
// so a value computed before a write and stored after it lands under a
// generation no reader asks for anymore.
type Gen int64

// NoGen means the generation could not be read; Set* calls with it are dropped.
const NoGen Gen = -1

// FeedCache is a best-effort read cache: misses and failures both report ok=false.
// Callers read (value, gen), load from the store on a miss, then Set with the same gen.
type FeedCache interface {
	Categories(ctx context.Context) ([]string, Gen, bool)
	SetCategories(ctx context.Context, gen Gen, cats []string)
	InvalidateCategories(ctx context.Context)
	Stats(ctx context.Context, postID string) (model.PostStats, Gen, bool)
	SetStats(ctx context.Context, postID string, gen Gen, st model.PostStats)
	InvalidateStats(ctx context.Context, postID string)
}

// Counters summarises cache effectiveness.
type Counters struct {
	Hits   int64
	Misses int64
	Errors int64
}

// RedisCache stores JSON payloads with a fixed TTL (cache-aside). Data keys
// carry the generation suffix; generation keys outlive them by genTTLFactor.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

const genTTLFactor = 10

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) get(ctx context.Context, key string, out any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.errs.Add(1)
			logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

// gen 读当前代号；不存在为 0
func (c *RedisCache) gen(ctx context.Context, key string) Gen {
	n, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		logger.Warn("cache gen read failed", zap.String("key", key), zap.Error(err))
		return NoGen
	}
	return Gen(n)
}

func (c *RedisCache) set(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.errs.Add(1)
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// bump 递增代号，旧代号下的数据随 TTL 过期
func (c *RedisCache) bump(ctx context.Context, key string) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, c.ttl*genTTLFactor)
		return nil
	})
	if err != nil {
		c.errs.Add(1)
		logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Categories(ctx context.Context) ([]string, Gen, bool) {
	gen := c.gen(ctx, categoriesGenKey)
	if gen == NoGen {
		return nil, gen, false
	}
	var cats []string
	ok := c.get(ctx, versioned(categoriesKey, gen), &cats)
	return cats, gen, ok
}

func (c *RedisCache) SetCategories(ctx context.Context, gen Gen, cats []string) {
	if gen == NoGen {
		return
	}
	if cats == nil {
		cats = []string{}
	}
	c.set(ctx, versioned(categoriesKey, gen), cats)
}

func (c *RedisCache) InvalidateCategories(ctx context.Context) { c.bump(ctx, categoriesGenKey) }

func (c *RedisCache) Stats(ctx context.Context, postID string) (model.PostStats, Gen, bool) {
	var st model.PostStats
	gen := c.gen(ctx, statsGenKey(postID))
	if gen == NoGen {
		return st, gen, false
	}
	ok := c.get(ctx, versioned(statsKey(postID), gen), &st)
	return st, gen, ok
}

func (c *RedisCache) SetStats(ctx context.Context, postID string, gen Gen, st model.PostStats) {
	if gen == NoGen {
		return
	}
	c.set(ctx, versioned(statsKey(postID), gen), st)
}

func (c *RedisCache) InvalidateStats(ctx context.Context, postID string) {
	c.bump(ctx, statsGenKey(postID))
}

// Counters reports hits/misses since start.
func (c *RedisCache) Counters() Counters {
	return Counters{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}

// Nop is used when no redis is configured.
type Nop struct{}

func (Nop) Categories(context.Context) ([]string, Gen, bool) { return nil, NoGen, false }
func (Nop) SetCategories(context.Context, Gen, []string)     {}
func (Nop) InvalidateCategories(context.Context)             {}
func (Nop) Stats(context.Context, string) (model.PostStats, Gen, bool) {
	return model.PostStats{}, NoGen, false
}
func (Nop) SetStats(context.Context, string, Gen, model.PostStats) {}
func (Nop) InvalidateStats(context.Context, string)                {}
