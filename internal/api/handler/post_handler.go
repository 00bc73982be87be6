package handler

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/internal/service"
	"github.com/d60-Lab/review-feed/pkg/response"
)

const msgRatingRange = "Rating deve estar entre 1 e 5"

var errRating = errors.New(msgRatingRange)

type createPostRequest struct {
	Caption      string  `json:"caption" example:"Ótimo fone, bateria dura o dia todo"`
	Rating       any     `json:"rating" swaggertype:"integer" example:"5"`
	Category     *string `json:"category" example:"eletronicos"`
	ProductPhoto *string `json:"product_photo"`
	ProductURL   *string `json:"product_url"`
	ClientRef    string  `json:"client_ref"`
}

// parseRating accepts a JSON number or a numeric string; null and "" mean unset.
func parseRating(v any) (*int, error) {
	var n int
	switch r := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if r != math.Trunc(r) {
			return nil, errRating
		}
		n = int(r)
	case string:
		r = strings.TrimSpace(r)
		if r == "" {
			return nil, nil
		}
		i, err := strconv.Atoi(r)
		if err != nil {
			return nil, errRating
		}
		n = i
	default:
		return nil, errRating
	}
	if !service.ValidRating(n) {
		return nil, errRating
	}
	return &n, nil
}

// CreatePost 发帖
// @Summary 创建帖子
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createPostRequest true "帖子内容"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/posts/create [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Dados inválidos")
		return
	}
	rating, err := parseRating(req.Rating)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.CreatePost(c.Request.Context(), actorOf(c), service.CreatePostInput{
		Caption:      req.Caption,
		Rating:       rating,
		Category:     req.Category,
		ProductPhoto: req.ProductPhoto,
		ProductURL:   req.ProductURL,
		ClientRef:    req.ClientRef,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"message": "Post criado com sucesso!", "postId": post.ID, "post": post})
}

// GetPost
// @Summary 帖子详情
// @Tags posts
// @Produce json
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/posts/{postId} [get]
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.postService.GetPost(c.Request.Context(), c.Param("postId"), viewerOf(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"post": post})
}

// DeletePost 仅作者可删
// @Summary 删除帖子
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/posts/{postId} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	if err := h.postService.DeletePost(c.Request.Context(), c.Param("postId"), viewerOf(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Post deletado com sucesso"})
}

// Timeline
// @Summary 时间线（按创建时间倒序）
// @Tags posts
// @Produce json
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} response.Response
// @Router /api/posts/timeline [get]
func (h *Handler) Timeline(c *gin.Context) {
	page, limit := pageParams(c)
	p, err := h.postService.ListTimeline(c.Request.Context(), viewerOf(c), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, pageBody(p))
}

// PostsByUser
// @Summary 用户的帖子
// @Tags posts
// @Produce json
// @Param userId path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} response.Response
// @Router /api/posts/user/{userId} [get]
func (h *Handler) PostsByUser(c *gin.Context) {
	page, limit := pageParams(c)
	p, err := h.postService.ListByUser(c.Request.Context(), c.Param("userId"), viewerOf(c), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, pageBody(p))
}

// PostsByCategory
// @Summary 分类下的帖子
// @Tags posts
// @Produce json
// @Param category path string true "分类"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} response.Response
// @Router /api/posts/category/{category} [get]
func (h *Handler) PostsByCategory(c *gin.Context) {
	page, limit := pageParams(c)
	p, err := h.postService.ListByCategory(c.Request.Context(), c.Param("category"), viewerOf(c), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, pageBody(p))
}

// PostsByRating
// @Summary 按评分筛选（1-5）
// @Tags posts
// @Produce json
// @Param rating path int true "评分"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/posts/rating/{rating} [get]
func (h *Handler) PostsByRating(c *gin.Context) {
	rating, err := strconv.Atoi(c.Param("rating"))
	if err != nil {
		response.BadRequest(c, msgRatingRange)
		return
	}
	page, limit := pageParams(c)
	p, err := h.postService.ListByRating(c.Request.Context(), rating, viewerOf(c), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, pageBody(p))
}

// Stats
// @Summary 点赞数与评论数
// @Tags posts
// @Produce json
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/posts/{postId}/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.postService.Stats(c.Request.Context(), c.Param("postId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"stats": st})
}

// Categories
// @Summary 全部分类
// @Tags posts
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/categories [get]
func (h *Handler) Categories(c *gin.Context) {
	cats, err := h.postService.Categories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	response.Success(c, gin.H{"categories": cats})
}
