package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/pkg/response"
)

// ToggleLike 点赞 / 取消点赞
// @Summary 切换点赞状态
// @Tags likes
// @Produce json
// @Security BearerAuth
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/posts/{postId}/like [post]
func (h *Handler) ToggleLike(c *gin.Context) {
	res, err := h.postService.ToggleLike(c.Request.Context(), c.Param("postId"), actorOf(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	msg := "Post curtido"
	if res.Action == model.ActionUnliked {
		msg = "Curtida removida"
	}
	response.Success(c, gin.H{"message": msg, "action": res.Action, "likes_count": res.LikesCount})
}

// LikeStatus 匿名请求恒为 false
// @Summary 当前用户是否已点赞
// @Tags likes
// @Produce json
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/posts/{postId}/like-status [get]
func (h *Handler) LikeStatus(c *gin.Context) {
	viewer := viewerOf(c)
	if viewer == "" {
		response.Success(c, gin.H{"isLiked": false})
		return
	}
	liked, err := h.postService.LikeStatus(c.Request.Context(), c.Param("postId"), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"isLiked": liked})
}

// ListLikes
// @Summary 点赞用户列表
// @Tags likes
// @Produce json
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/posts/{postId}/likes [get]
func (h *Handler) ListLikes(c *gin.Context) {
	likes, err := h.postService.ListLikes(c.Request.Context(), c.Param("postId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"likes": likes})
}

// SharePost 转发；可重复
// @Summary 转发帖子
// @Tags likes
// @Produce json
// @Security BearerAuth
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/posts/{postId}/share [post]
func (h *Handler) SharePost(c *gin.Context) {
	res, err := h.postService.SharePost(c.Request.Context(), c.Param("postId"), actorOf(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Post compartilhado", "shares_count": res.SharesCount})
}
