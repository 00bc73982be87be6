package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/internal/realtime"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
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

// 广播延迟：N 个进程内会话，EVENTS 次 post:like-update
func main() {
	cfg := must(config.Load())

	N := envInt("N", 1000)
	EVENTS := envInt("EVENTS", 200)
	WORKERS := envInt("WORKERS", cfg.Realtime.Workers)

	rc := realtime.ConfigFrom(cfg.Realtime)
	// buffers large enough that presence churn during setup never overflows
	rc.SessionBuffer = rc.QueueSize + EVENTS + N
	hub := realtime.NewHub(rc)
	stop := hub.Start(WORKERS)
	defer stop(context.Background())

	var received atomic.Int64
	for i := 0; i < N; i++ {
		s := realtime.NewSession(fmt.Sprintf("u%d", i), fmt.Sprintf("user%d", i), rc.SessionBuffer)
		go func() {
			for {
				select {
				case <-s.Outbound():
					received.Add(1)
				case <-s.Done():
					return
				}
			}
		}()
		hub.Register(s)
	}

	// 等待上线广播排空，丢弃其采样
	for hub.Stats().QueueLen > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
drain:
	for {
		select {
		case <-hub.Metrics():
		default:
			break drain
		}
	}
	base := hub.Stats()
	baseRecv := received.Load()

	enq := make([]time.Duration, 0, EVENTS)
	for i := 0; i < EVENTS; i++ {
		st := time.Now()
		hub.BroadcastAll(feedevent.LikeUpdate, feedevent.LikeUpdatePayload{
			PostID: "p0", Action: "liked", UserID: "u0", Username: "user0", LikesCount: int64(i + 1),
		})
		enq = append(enq, time.Since(st))
	}

	land := make([]time.Duration, 0, EVENTS)
	timeout := time.After(time.Minute)
	for len(land) < EVENTS {
		select {
		case d := <-hub.Metrics():
			land = append(land, d)
		case <-timeout:
			fmt.Printf("timeout while waiting for dispatch metrics: got=%d want=%d\n", len(land), EVENTS)
			goto PRINT
		}
	}
	for want := int64(N * EVENTS); received.Load()-baseRecv < want; {
		select {
		case <-timeout:
			goto PRINT
		case <-time.After(5 * time.Millisecond):
		}
	}

PRINT:
	st := hub.Stats()
	var enqSum, landSum time.Duration
	for _, d := range enq {
		enqSum += d
	}
	for _, d := range land {
		landSum += d
	}
	fmt.Printf("N=%d EVENTS=%d WORKERS=%d BUFFER=%d\n", N, EVENTS, WORKERS, rc.SessionBuffer)
	fmt.Printf("Broadcast enqueue: avg=%v p95=%v p99=%v\n", enqSum/time.Duration(len(enq)), pct(enq, 0.95), pct(enq, 0.99))
	if len(land) > 0 {
		fmt.Printf("Dispatch (enqueue->all sessions): samples=%d avg=%v p95=%v p99=%v\n", len(land), landSum/time.Duration(len(land)), pct(land, 0.95), pct(land, 0.99))
	}
	fmt.Printf("Frames delivered=%d received=%d dropped=%d sessions=%d\n",
		st.Delivered-base.Delivered, received.Load()-baseRecv, st.Dropped-base.Dropped, st.Sessions)
}
