package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/pkg/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, header string) (int, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func whoami(c *gin.Context) {
	id, name := CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{"id": id, "name": name})
}

func TestRequireAuth(t *testing.T) {
	tokens := auth.NewTokenManager("mw-secret", time.Hour)
	r := gin.New()
	r.GET("/", RequireAuth(tokens), whoami)

	code, body := serve(r, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Usuário não autenticado", body["error"])
	assert.Equal(t, false, body["success"])

	code, body = serve(r, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Token inválido ou expirado", body["error"])

	tok, err := tokens.Issue("u1", "alice")
	require.NoError(t, err)
	code, body = serve(r, "bearer "+tok)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, "alice", body["name"])
}

func TestRequireAuth_OtherSecret(t *testing.T) {
	r := gin.New()
	r.GET("/", RequireAuth(auth.NewTokenManager("a", time.Hour)), whoami)
	tok, err := auth.NewTokenManager("b", time.Hour).Issue("u1", "alice")
	require.NoError(t, err)
	code, _ := serve(r, "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOptionalAuth(t *testing.T) {
	tokens := auth.NewTokenManager("mw-secret", time.Hour)
	r := gin.New()
	r.GET("/", OptionalAuth(tokens), whoami)

	code, body := serve(r, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", body["id"])

	code, body = serve(r, "Bearer garbage")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", body["id"])

	tok, _ := tokens.Issue("u2", "bob")
	_, body = serve(r, "Bearer "+tok)
	assert.Equal(t, "u2", body["id"])
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(0.001, 2)
	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	// 每个 IP 独立的令牌桶
	assert.True(t, l.Allow("2.2.2.2"))
}

func TestRateLimit_Responds429(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimit(NewIPRateLimiter(0.001, 1)), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	code, _ := serve(r, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, body := serve(r, "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "Muitas requisições. Tente novamente em instantes.", body["error"])
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })
	code, body := serve(r, "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Erro interno do servidor", body["error"])
}
