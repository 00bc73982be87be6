package response

import (
	"errors"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/pkg/apperr"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

// Response 统一响应结构（成功时其余字段平铺在顶层）
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

const internalMessage = "Erro interno do servidor"

func write(c *gin.Context, status int, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(status, body)
}

// Success 200
func Success(c *gin.Context, data gin.H) { write(c, http.StatusOK, data) }

// Created 201
func Created(c *gin.Context, data gin.H) { write(c, http.StatusCreated, data) }

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg})
}

func BadRequest(c *gin.Context, msg string)   { fail(c, http.StatusBadRequest, msg) }
func Unauthorized(c *gin.Context, msg string) { fail(c, http.StatusUnauthorized, msg) }
func Forbidden(c *gin.Context, msg string)    { fail(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)     { fail(c, http.StatusNotFound, msg) }
func TooManyRequests(c *gin.Context, msg string) {
	fail(c, http.StatusTooManyRequests, msg)
}

// InternalError logs err, reports it to sentry when enabled and answers 500
// without leaking the cause.
func InternalError(c *gin.Context, err error) {
	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	if hub := sentrygin.GetHubFromContext(c); hub != nil && err != nil {
		hub.CaptureException(err)
	}
	fail(c, http.StatusInternalServerError, internalMessage)
}

// Error maps an apperr kind to the matching response.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	if status >= http.StatusInternalServerError {
		InternalError(c, err)
		return
	}
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	fail(c, status, msg)
}
