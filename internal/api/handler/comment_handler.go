package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/pkg/response"
)

type addCommentRequest struct {
	CommentText string `json:"comment_text" example:"Comprei também, recomendo"`
	ClientRef   string `json:"client_ref"`
}

// AddComment 评论（空文本也允许）
// @Summary 添加评论
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param postId path string true "帖子ID"
// @Param request body addCommentRequest true "评论内容"
// @Success 201 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/posts/{postId}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Dados inválidos")
		return
	}
	cm, err := h.postService.AddComment(c.Request.Context(), c.Param("postId"), actorOf(c), req.CommentText, req.ClientRef)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"message": "Comentário adicionado com sucesso!", "commentId": cm.ID, "comment": cm})
}

// ListComments 按时间正序
// @Summary 评论列表
// @Tags comments
// @Produce json
// @Param postId path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/posts/{postId}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	list, err := h.postService.ListComments(c.Request.Context(), c.Param("postId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"comments": list})
}

// DeleteComment 仅评论作者可删
// @Summary 删除评论
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param postId path string true "帖子ID"
// @Param commentId path string true "评论ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/posts/{postId}/comments/{commentId} [delete]
func (h *Handler) DeleteComment(c *gin.Context) {
	err := h.postService.DeleteComment(c.Request.Context(), c.Param("postId"), c.Param("commentId"), viewerOf(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Comentário deletado com sucesso"})
}
