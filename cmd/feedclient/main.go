package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/pkg/feedclient"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

// 命令行客户端：登录、加载时间线、订阅实时事件并打印
//
//	FEED_EMAIL / FEED_PASSWORD   credentials (required)
//	FEED_USERNAME                registers the account first when login is refused
//	FEED_BIRTH_DATE              DD/MM/YYYY, used when registering
//	FEED_CATEGORIES              comma separated categories to follow
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Encoding: "console"}); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	email, password := os.Getenv("FEED_EMAIL"), os.Getenv("FEED_PASSWORD")
	if email == "" || password == "" {
		logger.Fatal("FEED_EMAIL and FEED_PASSWORD are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := feedclient.NewAPIClient(cfg.Client.BaseURL, nil)
	feed := feedclient.NewFeed(client, feedclient.WithEventHook(printEvent))

	if err := feed.Login(ctx, email, password); err != nil {
		var apiErr *feedclient.APIError
		username := os.Getenv("FEED_USERNAME")
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || username == "" {
			logger.Fatal("login failed", zap.Error(err))
		}
		if _, err := client.Register(ctx, feedclient.RegisterRequest{
			Username: username, Email: email, Password: password, BirthDate: os.Getenv("FEED_BIRTH_DATE"),
		}); err != nil {
			logger.Fatal("register failed", zap.Error(err))
		}
		if err := feed.Login(ctx, email, password); err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
	}
	if err := feed.Load(ctx); err != nil {
		logger.Fatal("timeline load failed", zap.Error(err))
	}
	for _, it := range feed.State().Posts() {
		logger.Info("post",
			zap.String("id", it.ID),
			zap.String("author", it.Username),
			zap.String("caption", it.Caption),
			zap.Int64("likes", it.LikesCount),
			zap.Int64("comments", it.CommentsCount),
		)
	}

	var topics []string
	for _, c := range strings.Split(os.Getenv("FEED_CATEGORIES"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			topics = append(topics, feedevent.CategoryTopic(c))
		}
	}
	feed.Connect(ctx, feedclient.SessionConfig{
		Topics:         topics,
		ReconnectDelay: cfg.Client.ReconnectDelay,
		ReconnectMax:   cfg.Client.ReconnectMax,
		MaxAttempts:    cfg.Client.MaxAttempts,
		Jitter:         0.2,
	})

	<-ctx.Done()
	feed.Close()
	logger.Info("bye", zap.Int("posts", feed.State().Len()), zap.Uint64("last_seq", feed.State().LastSeq()))
}

func printEvent(env feedevent.Envelope) {
	logger.Info("event",
		zap.String("event", env.Event),
		zap.Uint64("seq", env.Seq),
		zap.ByteString("data", env.Data),
	)
}
