package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/internal/model"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisCache(rdb, 30*time.Second)
}

func TestCategories_CacheAside(t *testing.T) {
	mr, c := setupRedis(t)
	ctx := context.Background()

	_, gen, ok := c.Categories(ctx)
	assert.False(t, ok)
	assert.Equal(t, Gen(0), gen)

	c.SetCategories(ctx, gen, []string{"books", "phones"})
	cats, _, ok := c.Categories(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"books", "phones"}, cats)
	assert.Equal(t, 30*time.Second, mr.TTL(versioned(categoriesKey, 0)))

	c.InvalidateCategories(ctx)
	_, gen, ok = c.Categories(ctx)
	assert.False(t, ok)
	assert.Equal(t, Gen(1), gen)
	assert.Equal(t, 300*time.Second, mr.TTL(categoriesGenKey))

	assert.Equal(t, Counters{Hits: 1, Misses: 2}, c.Counters())
}

func TestStats_ExpireAndInvalidate(t *testing.T) {
	mr, c := setupRedis(t)
	ctx := context.Background()

	_, gen, _ := c.Stats(ctx, "p1")
	c.SetStats(ctx, "p1", gen, model.PostStats{LikesCount: 3, CommentsCount: 1})
	st, _, ok := c.Stats(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, int64(3), st.LikesCount)

	mr.FastForward(time.Minute)
	_, gen, ok = c.Stats(ctx, "p1")
	assert.False(t, ok)

	c.SetStats(ctx, "p1", gen, model.PostStats{})
	c.InvalidateStats(ctx, "p1")
	_, _, ok = c.Stats(ctx, "p1")
	assert.False(t, ok)
}

// 读到旧代号的回填在失效之后写入，不得被后续读者看到
func TestStats_StaleFillAfterInvalidateIsInvisible(t *testing.T) {
	_, c := setupRedis(t)
	ctx := context.Background()

	_, readerGen, ok := c.Stats(ctx, "p1")
	require.False(t, ok)

	// a write commits and invalidates while the reader is still loading
	c.InvalidateStats(ctx, "p1")
	c.SetStats(ctx, "p1", readerGen, model.PostStats{LikesCount: 1})

	_, gen, ok := c.Stats(ctx, "p1")
	assert.False(t, ok, "stale fill must not be served")
	assert.Equal(t, readerGen+1, gen)

	c.SetStats(ctx, "p1", gen, model.PostStats{LikesCount: 2})
	st, _, ok := c.Stats(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, int64(2), st.LikesCount)
}

func TestCategories_StaleFillAfterInvalidateIsInvisible(t *testing.T) {
	_, c := setupRedis(t)
	ctx := context.Background()

	_, readerGen, _ := c.Categories(ctx)
	c.InvalidateCategories(ctx)
	c.SetCategories(ctx, readerGen, []string{"books"})

	_, _, ok := c.Categories(ctx)
	assert.False(t, ok)
}

func TestRedisDown_DegradesToMiss(t *testing.T) {
	mr, c := setupRedis(t)
	ctx := context.Background()
	mr.Close()

	c.SetCategories(ctx, 0, []string{"x"})
	_, gen, ok := c.Categories(ctx)
	assert.False(t, ok)
	assert.Equal(t, NoGen, gen)
	assert.Positive(t, c.Counters().Errors)
}

func TestNew_WithoutAddrIsNop(t *testing.T) {
	fc, closeFn, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, fc)
	assert.NoError(t, closeFn())
}
