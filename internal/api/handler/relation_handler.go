package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/pkg/response"
)

// Follow 关注
// @Summary 关注用户
// @Tags relations
// @Produce json
// @Security BearerAuth
// @Param userId path string true "被关注用户ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/users/{userId}/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	if err := h.relService.Follow(c.Request.Context(), actorOf(c), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Seguindo usuário"})
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags relations
// @Produce json
// @Security BearerAuth
// @Param userId path string true "被关注用户ID"
// @Success 200 {object} response.Response
// @Router /api/users/{userId}/unfollow [post]
func (h *Handler) Unfollow(c *gin.Context) {
	if err := h.relService.Unfollow(c.Request.Context(), viewerOf(c), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Deixou de seguir usuário"})
}

func relationPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}

// ListFollowing 查询某用户关注的人
// @Summary 查询关注列表
// @Tags relations
// @Param userId path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response
// @Router /api/users/{userId}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	page, pageSize := relationPage(c)
	list, err := h.relService.ListFollowing(c.Request.Context(), c.Param("userId"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// ListFollowers 查询粉丝
// @Summary 查询粉丝列表
// @Tags relations
// @Param userId path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response
// @Router /api/users/{userId}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	page, pageSize := relationPage(c)
	list, err := h.relService.ListFollowers(c.Request.Context(), c.Param("userId"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
