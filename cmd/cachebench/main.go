package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/internal/cache"
	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/internal/service"
	"github.com/d60-Lab/review-feed/pkg/database"
)

type request struct {
	postID string
	write  bool // toggle a like, invalidating the post's stats
	cats   bool
}

type scenarioResult struct {
	durations   []time.Duration
	counters    cache.Counters
	cacheKeys   int
	memoryBytes int64
}

// 统计与分类读：无缓存 vs redis cache-aside（读多写少，热点倾斜）
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	POSTS := envInt("POSTS", 2000)
	USERS := envInt("USERS", 500)
	REQS := envInt("REQS", 20000)
	WRITES := envInt("WRITES", 5)

	fmt.Println("Setting up test data...")
	users := make([]model.User, USERS)
	for i := range users {
		id := uuid.NewString()
		users[i] = model.User{ID: id, Username: "u" + id[:8], Email: id[:8] + "@example.com", Password: "secret", UserType: model.UserTypeStandard}
	}
	mustDo(db.CreateInBatches(&users, 1000).Error)

	cats := []string{"phones", "books", "games", "audio", "kitchen", "toys", "garden"}
	posts := make([]model.Post, POSTS)
	base := time.Now().Add(-time.Duration(POSTS) * time.Minute)
	for i := range posts {
		cat := cats[i%len(cats)]
		posts[i] = model.Post{
			ID:        uuid.NewString(),
			AuthorID:  users[i%USERS].ID,
			Caption:   fmt.Sprintf("post %d", i),
			Category:  &cat,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	mustDo(db.CreateInBatches(&posts, 1000).Error)

	likes := make([]model.Like, 0, POSTS*5)
	comments := make([]model.Comment, 0, POSTS*2)
	for i := range posts {
		for j := 0; j < 5; j++ {
			likes = append(likes, model.Like{ID: uuid.NewString(), PostID: posts[i].ID, UserID: users[(i+j)%USERS].ID, CreatedAt: base})
		}
		for j := 0; j < 2; j++ {
			comments = append(comments, model.Comment{ID: uuid.NewString(), PostID: posts[i].ID, AuthorID: users[(i+j)%USERS].ID, Text: "ok", CreatedAt: base})
		}
	}
	mustDo(db.CreateInBatches(&likes, 1000).Error)
	mustDo(db.CreateInBatches(&comments, 1000).Error)
	fmt.Printf("Test data ready: %d posts, %d likes, %d comments\n", POSTS, len(likes), len(comments))

	// real redis when configured, otherwise an embedded miniredis
	client := redisClient()
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("redis ping: %v", err))
	}

	reqs := makeRequests(posts, REQS, WRITES)
	postRepo := repository.NewPostRepository(db)
	likeRepo := repository.NewLikeRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	shareRepo := repository.NewShareRepository(db)

	noCache := runScenario(ctx, service.NewPostService(postRepo, likeRepo, commentRepo, shareRepo, cache.Nop{}, nil), users, reqs, client, nil)
	rc := cache.NewRedisCache(client, cfg.Redis.TTL)
	withCache := runScenario(ctx, service.NewPostService(postRepo, likeRepo, commentRepo, shareRepo, rc, nil), users, reqs, client, rc)

	fmt.Printf("\nStats/categories latency (%d req, %d%% writes, %d posts)\n", REQS, WRITES, POSTS)
	line := func(name string, r scenarioResult) {
		fmt.Printf("%-14s avg=%v p95=%v p99=%v hits=%d misses=%d errors=%d cache_keys=%d mem=%s\n",
			name, avg(r.durations), pct(r.durations, 0.95), pct(r.durations, 0.99),
			r.counters.Hits, r.counters.Misses, r.counters.Errors, r.cacheKeys, formatBytes(r.memoryBytes))
	}
	line("No cache", noCache)
	line("Redis cache", withCache)
}

func redisClient() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			panic(err)
		}
		addr = mr.Addr()
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

func runScenario(ctx context.Context, svc service.PostService, users []model.User, reqs []request, client *redis.Client, rc *cache.RedisCache) scenarioResult {
	client.FlushAll(ctx)
	var before cache.Counters
	if rc != nil {
		before = rc.Counters()
	}

	rnd := rand.New(rand.NewSource(7))
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		switch {
		case r.write:
			u := users[rnd.Intn(len(users))]
			_, err := svc.ToggleLike(ctx, r.postID, service.Actor{ID: u.ID, Username: u.Username})
			mustDo(err)
		case r.cats:
			_ = must(svc.Categories(ctx))
		default:
			_ = must(svc.Stats(ctx, r.postID))
		}
		out = append(out, time.Since(start))
	}

	res := scenarioResult{durations: out}
	if rc != nil {
		after := rc.Counters()
		res.counters = cache.Counters{
			Hits:   after.Hits - before.Hits,
			Misses: after.Misses - before.Misses,
			Errors: after.Errors - before.Errors,
		}
	}
	keys, _ := client.Keys(ctx, "*").Result()
	res.cacheKeys = len(keys)
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		res.memoryBytes = parseRedisMemory(info)
	}
	return res
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// makeRequests skews reads toward the newest tenth of the posts.
func makeRequests(posts []model.Post, n, writePct int) []request {
	rnd := rand.New(rand.NewSource(42))
	hot := len(posts) / 10
	if hot == 0 {
		hot = len(posts)
	}
	out := make([]request, n)
	for i := range out {
		var p model.Post
		if rnd.Float64() < 0.8 {
			p = posts[len(posts)-1-rnd.Intn(hot)]
		} else {
			p = posts[rnd.Intn(len(posts))]
		}
		out[i] = request{
			postID: p.ID,
			write:  rnd.Intn(100) < writePct,
			cats:   rnd.Intn(20) == 0,
		}
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
