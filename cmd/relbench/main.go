package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/internal/realtime"
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

// 大 V 被 N 个用户关注：关注写入延迟、通知送达数、粉丝列表分页
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	N := envInt("N", 10000)
	CONC := envInt("CONC", 1)
	PAGE := envInt("PAGE", 50)

	hub := realtime.NewHub(realtime.ConfigFrom(cfg.Realtime))
	stop := hub.Start(cfg.Realtime.Workers)

	followRepo := repository.NewFollowRepository(db)
	userRepo := repository.NewUserRepository(db)
	relSvc := service.NewRelationshipService(followRepo, userRepo, hub)

	// seed users: celeb is followed by everyone else
	celebID := uuid.New().String()
	celeb := model.User{ID: celebID, Username: "c" + celebID[:8], Email: "c" + celebID[:8] + "@example.com", Password: "p", UserType: model.UserTypeStandard}
	if err := db.Create(&celeb).Error; err != nil {
		panic(err)
	}
	users := make([]model.User, N)
	for i := range users {
		id := uuid.New().String()
		users[i] = model.User{ID: id, Username: "u" + id[:8], Email: id[:8] + "@example.com", Password: "p", UserType: model.UserTypeStandard}
	}
	if err := db.CreateInBatches(&users, 1000).Error; err != nil {
		panic(err)
	}

	// celeb is online: every follow notifies one in-process session
	var notified atomic.Int64
	sess := realtime.NewSession(celeb.ID, celeb.Username, N+cfg.Realtime.QueueSize)
	go func() {
		for {
			select {
			case <-sess.Outbound():
				notified.Add(1)
			case <-sess.Done():
				return
			}
		}
	}()
	hub.Register(sess)

	workers := CONC
	if workers > N {
		workers = N
	}
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)
	lat := make(chan time.Duration, N)
	var failed atomic.Int64
	done := make(chan struct{}, workers)

	t0 := time.Now()
	for w := 0; w < workers; w++ {
		go func() {
			for i := range feed {
				st := time.Now()
				if err := relSvc.Follow(ctx, service.Actor{ID: users[i].ID, Username: users[i].Username}, celeb.ID); err != nil {
					failed.Add(1)
				}
				lat <- time.Since(st)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	close(lat)
	followDur := time.Since(t0)
	follows := make([]time.Duration, 0, N)
	for d := range lat {
		follows = append(follows, d)
	}

	// repeated follow is a no-op and must not notify again
	repeat := time.Now()
	_ = relSvc.Follow(ctx, service.Actor{ID: users[0].ID, Username: users[0].Username}, celeb.ID)
	repeatDur := time.Since(repeat)

	_ = stop(context.Background())

	q0 := time.Now()
	first := must(relSvc.ListFollowers(ctx, celeb.ID, 1, PAGE))
	firstDur := time.Since(q0)

	pages := N / PAGE
	if pages < 1 {
		pages = 1
	}
	deep := make([]time.Duration, 0, 100)
	for i := 0; i < 100; i++ {
		st := time.Now()
		_, _ = relSvc.ListFollowers(ctx, celeb.ID, 1+rand.Intn(pages), PAGE)
		deep = append(deep, time.Since(st))
	}

	q1 := time.Now()
	_, _ = relSvc.ListFollowing(ctx, users[0].ID, 1, PAGE)
	follDur := time.Since(q1)

	fmt.Printf("N=%d, CONC=%d, PAGE=%d\n", N, CONC, PAGE)
	fmt.Printf("Follow total: %v, per op: %v, p50: %v, p95: %v, p99: %v, failed: %d\n",
		followDur, followDur/time.Duration(N), pct(follows, 0.50), pct(follows, 0.95), pct(follows, 0.99), failed.Load())
	fmt.Printf("Repeated follow: %v\n", repeatDur)
	fmt.Printf("Notifications delivered: %d (presence frames included)\n", notified.Load())
	fmt.Printf("Query followers page 1 (%d rows): %v\n", len(first), firstDur)
	fmt.Printf("Query followers random page: p50=%v p95=%v p99=%v\n", pct(deep, 0.50), pct(deep, 0.95), pct(deep, 0.99))
	fmt.Printf("Query following(%d) latency: %v\n", PAGE, follDur)
}
