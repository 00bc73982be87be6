package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/internal/api"
	"github.com/d60-Lab/review-feed/internal/cache"
	"github.com/d60-Lab/review-feed/internal/realtime"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/internal/service"
	"github.com/d60-Lab/review-feed/pkg/auth"
	"github.com/d60-Lab/review-feed/pkg/database"
	"github.com/d60-Lab/review-feed/pkg/logger"
	"github.com/d60-Lab/review-feed/pkg/tracing"
)

// @title           Review Feed API
// @version         1.0
// @description     Feed social de avaliações de produtos: posts, curtidas, comentários e eventos em tempo real.
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding}); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	gin.SetMode(cfg.Server.Mode)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Error("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	feedCache, closeCache, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis init failed", zap.Error(err))
	}

	hub := realtime.NewHub(realtime.ConfigFrom(cfg.Realtime))
	stopHub := hub.Start(cfg.Realtime.Workers)

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL)
	userRepo := repository.NewUserRepository(db)
	r := api.NewRouter(cfg, api.Deps{
		DB:     db,
		Tokens: tokens,
		Hub:    hub,
		Posts: service.NewPostService(
			repository.NewPostRepository(db),
			repository.NewLikeRepository(db),
			repository.NewCommentRepository(db),
			repository.NewShareRepository(db),
			feedCache,
			hub,
		),
		Users:     service.NewUserService(userRepo, tokens),
		Relations: service.NewRelationshipService(repository.NewFollowRepository(db), userRepo, hub),
	})

	// websocket connections outlive WriteTimeout; the hub's own write deadline applies
	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	// 关闭 hub：停止 worker 并断开所有会话
	if err := stopHub(shutdownCtx); err != nil {
		logger.Warn("hub stop", zap.Error(err))
	}
	if err := closeCache(); err != nil {
		logger.Warn("redis close", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
