package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/internal/service"
	"github.com/d60-Lab/review-feed/pkg/response"
)

type createUserRequest struct {
	Username     string `json:"username" example:"maria"`
	Email        string `json:"email" example:"maria@example.com"`
	Password     string `json:"password"`
	BirthDate    string `json:"birth_date" example:"21/04/1990"`
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	ProfilePhoto string `json:"profile_photo"`
	CNPJ         string `json:"cnpj"`
	UserType     string `json:"user_type"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateUser 注册
// @Summary 注册用户
// @Tags users
// @Accept json
// @Produce json
// @Param request body createUserRequest true "用户信息"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/users/create [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Dados inválidos")
		return
	}
	u, err := h.userService.Register(c.Request.Context(), service.RegisterInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		BirthDate:    req.BirthDate,
		FullName:     req.FullName,
		Phone:        req.Phone,
		ProfilePhoto: req.ProfilePhoto,
		CNPJ:         req.CNPJ,
		UserType:     req.UserType,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"message": "Usuário criado com sucesso!", "userId": u.ID})
}

// Login
// @Summary 登录并获取 token
// @Tags users
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/users/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Email e senha são obrigatórios")
		return
	}
	token, u, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "user": u})
}
