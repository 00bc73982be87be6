package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/internal/api/middleware"
	"github.com/d60-Lab/review-feed/internal/service"
)

// Handler HTTP 处理器
type Handler struct {
	postService service.PostService
	userService service.UserService
	relService  service.RelationshipService
}

func NewHandler(posts service.PostService, users service.UserService, rels service.RelationshipService) *Handler {
	return &Handler{postService: posts, userService: users, relService: rels}
}

func actorOf(c *gin.Context) service.Actor {
	id, name := middleware.CurrentUser(c)
	return service.Actor{ID: id, Username: name}
}

func viewerOf(c *gin.Context) string {
	id, _ := middleware.CurrentUser(c)
	return id
}

// pageParams reads page/limit; the service clamps them.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return page, limit
}

func pageBody(p *service.PostPage) gin.H {
	return gin.H{
		"posts": p.Posts,
		"pagination": gin.H{
			"page":   p.Page,
			"limit":  p.Limit,
			"offset": p.Offset,
			"total":  p.Total,
		},
	}
}
