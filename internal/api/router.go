package api

import (
	"context"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/d60-Lab/review-feed/config"
	_ "github.com/d60-Lab/review-feed/docs"
	"github.com/d60-Lab/review-feed/internal/api/handler"
	"github.com/d60-Lab/review-feed/internal/api/middleware"
	"github.com/d60-Lab/review-feed/internal/realtime"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/internal/service"
	"github.com/d60-Lab/review-feed/pkg/auth"
)

// Deps 路由所需的依赖
type Deps struct {
	DB        *gorm.DB
	Tokens    *auth.TokenManager
	Hub       *realtime.Hub
	Posts     service.PostService
	Users     service.UserService
	Relations service.RelationshipService
}

// NewRouter wires middleware and every route onto a fresh engine.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true, Timeout: 2 * time.Second}))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/swagger"})))

	h := handler.NewHandler(d.Posts, d.Users, d.Relations)
	var ping handler.Pinger
	if d.DB != nil {
		ping = func(ctx context.Context) error { return repository.Ping(ctx, d.DB) }
	}
	r.GET("/health", handler.NewHealthHandler(ping, d.Hub).Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if d.Hub != nil {
		r.GET("/ws", realtime.NewEndpoint(d.Hub, d.Tokens, cfg.Server.CORSOrigins).Handle)
	}

	requireAuth := middleware.RequireAuth(d.Tokens)
	optionalAuth := middleware.OptionalAuth(d.Tokens)

	apiGroup := r.Group("/api")
	if cfg.RateLimit.Enabled {
		apiGroup.Use(middleware.RateLimit(middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
	}
	{
		apiGroup.GET("/categories", h.Categories)

		posts := apiGroup.Group("/posts")
		posts.POST("/create", requireAuth, h.CreatePost)
		posts.GET("/timeline", optionalAuth, h.Timeline)
		posts.GET("/user/:userId", optionalAuth, h.PostsByUser)
		posts.GET("/category/:category", optionalAuth, h.PostsByCategory)
		posts.GET("/rating/:rating", optionalAuth, h.PostsByRating)
		posts.GET("/:postId", optionalAuth, h.GetPost)
		posts.DELETE("/:postId", requireAuth, h.DeletePost)
		posts.POST("/:postId/like", requireAuth, h.ToggleLike)
		posts.GET("/:postId/like-status", optionalAuth, h.LikeStatus)
		posts.GET("/:postId/likes", h.ListLikes)
		posts.POST("/:postId/share", requireAuth, h.SharePost)
		posts.GET("/:postId/stats", h.Stats)
		posts.POST("/:postId/comments", requireAuth, h.AddComment)
		posts.GET("/:postId/comments", h.ListComments)
		posts.DELETE("/:postId/comments/:commentId", requireAuth, h.DeleteComment)

		users := apiGroup.Group("/users")
		users.POST("/create", h.CreateUser)
		users.POST("/login", h.Login)
		users.POST("/:userId/follow", requireAuth, h.Follow)
		users.POST("/:userId/unfollow", requireAuth, h.Unfollow)
		users.GET("/:userId/following", h.ListFollowing)
		users.GET("/:userId/followers", h.ListFollowers)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
