package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/internal/cache"
	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/internal/service"
	"github.com/d60-Lab/review-feed/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
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

func report(name string, ds []time.Duration) {
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	fmt.Printf("%s: n=%d avg=%v p95=%v p99=%v\n", name, len(ds), sum/time.Duration(len(ds)), pct(ds, 0.95), pct(ds, 0.99))
}

var categories = []string{"phones", "books", "games", "audio", "kitchen"}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	feedCache, closeCache, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		panic(err)
	}
	defer closeCache()

	USERS := envInt("USERS", 200)
	POSTS := envInt("POSTS", 5000)
	LIKES := envInt("LIKES", 20000)
	REPEAT := envInt("REPEAT", 200)
	PAGE := envInt("PAGE", 10)

	// clean tables for a reproducible run (ok for local bench)
	for _, m := range []any{&model.Share{}, &model.Like{}, &model.Comment{}, &model.Post{}, &model.Follow{}, &model.User{}} {
		_ = db.Where("1 = 1").Delete(m).Error
	}

	users := make([]model.User, USERS)
	for i := range users {
		id := uuid.New().String()
		users[i] = model.User{ID: id, Username: "u" + id[:8], Email: id[:8] + "@example.com", Password: "p", UserType: model.UserTypeStandard}
	}
	_ = db.CreateInBatches(&users, 500).Error

	start := time.Now().Add(-time.Duration(POSTS) * time.Second)
	posts := make([]model.Post, POSTS)
	for i := range posts {
		rating := 1 + rand.Intn(5)
		cat := categories[rand.Intn(len(categories))]
		posts[i] = model.Post{
			ID:        uuid.New().String(),
			AuthorID:  users[rand.Intn(USERS)].ID,
			Caption:   fmt.Sprintf("review %d", i),
			Rating:    &rating,
			Category:  &cat,
			CreatedAt: start.Add(time.Duration(i) * time.Second),
		}
	}
	_ = db.CreateInBatches(&posts, 500).Error

	likeRepo := repository.NewLikeRepository(db)
	toggles := make([]time.Duration, 0, LIKES)
	for i := 0; i < LIKES; i++ {
		st := time.Now()
		_, _ = likeRepo.Toggle(ctx, posts[rand.Intn(POSTS)].ID, users[rand.Intn(USERS)].ID, time.Now())
		toggles = append(toggles, time.Since(st))
	}

	svc := service.NewPostService(
		repository.NewPostRepository(db),
		likeRepo,
		repository.NewCommentRepository(db),
		repository.NewShareRepository(db),
		feedCache,
		nil,
	)
	viewer := users[0].ID

	first := make([]time.Duration, 0, REPEAT)
	deep := make([]time.Duration, 0, REPEAT)
	byCat := make([]time.Duration, 0, REPEAT)
	cats := make([]time.Duration, 0, REPEAT)
	lastPage := POSTS / PAGE
	if lastPage < 1 {
		lastPage = 1
	}
	for i := 0; i < REPEAT; i++ {
		st := time.Now()
		_ = must(svc.ListTimeline(ctx, viewer, 1, PAGE))
		first = append(first, time.Since(st))

		st = time.Now()
		_ = must(svc.ListTimeline(ctx, viewer, 1+rand.Intn(lastPage), PAGE))
		deep = append(deep, time.Since(st))

		st = time.Now()
		_ = must(svc.ListByCategory(ctx, categories[i%len(categories)], viewer, 1, PAGE))
		byCat = append(byCat, time.Since(st))

		st = time.Now()
		_ = must(svc.Categories(ctx))
		cats = append(cats, time.Since(st))
	}

	fmt.Printf("USERS=%d POSTS=%d LIKES=%d REPEAT=%d PAGE=%d driver=%s\n", USERS, POSTS, LIKES, REPEAT, PAGE, cfg.Database.Driver)
	report("Like toggle", toggles)
	report("Timeline page 1", first)
	report("Timeline random page (offset)", deep)
	report("Category page 1", byCat)
	report("Categories (cache-aside)", cats)
	if rc, ok := feedCache.(*cache.RedisCache); ok {
		c := rc.Counters()
		fmt.Printf("Cache hits=%d misses=%d errors=%d\n", c.Hits, c.Misses, c.Errors)
	}
}
