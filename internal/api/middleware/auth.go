package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/pkg/auth"
	"github.com/d60-Lab/review-feed/pkg/response"
)

const (
	ctxUserID   = "userId"
	ctxUsername = "username"
)

// TokenVerifier parses bearer tokens.
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Unauthorized(c, "Usuário não autenticado")
			return
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			response.Unauthorized(c, "Token inválido ou expirado")
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid token is present and never rejects.
func OptionalAuth(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if claims, err := tokens.Parse(token); err == nil {
				c.Set(ctxUserID, claims.UserID)
				c.Set(ctxUsername, claims.Username)
			}
		}
		c.Next()
	}
}

// CurrentUser returns the identity set by the auth middlewares.
func CurrentUser(c *gin.Context) (userID, username string) {
	return c.GetString(ctxUserID), c.GetString(ctxUsername)
}
