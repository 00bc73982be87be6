package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/pkg/apperr"
)

func init() { gin.SetMode(gin.TestMode) }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSuccess_FlattensFields(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Created(c, gin.H{"commentId": "c1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "c1", body["commentId"])
}

func TestError_MapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{apperr.Validation("Rating deve estar entre 1 e 5"), http.StatusBadRequest, "Rating deve estar entre 1 e 5"},
		{apperr.Forbidden("nope"), http.StatusForbidden, "nope"},
		{apperr.NotFound("Post não encontrado"), http.StatusNotFound, "Post não encontrado"},
		{apperr.Duplicate("Este email já está em uso"), http.StatusBadRequest, "Este email já está em uso"},
		{apperr.Unavailable(errors.New("db down")), http.StatusInternalServerError, internalMessage},
		{errors.New("boom"), http.StatusInternalServerError, internalMessage},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		Error(c, tc.err)

		assert.Equal(t, tc.status, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, tc.msg, body["error"])
	}
}
