package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucketRefills(t *testing.T) {
	l := NewSimpleTokenBucket(2, 60)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	ok, _ := l.allow("a")
	assert.True(t, ok)
	ok, _ = l.allow("a")
	assert.True(t, ok)
	ok, wait := l.allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = l.allow("b")
	assert.True(t, ok, "keys have separate buckets")

	now = now.Add(time.Second)
	ok, _ = l.allow("a")
	assert.True(t, ok)
}

func TestGinMiddlewareSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewSimpleTokenBucket(1, 30)
	r := gin.New()
	r.Use(l.GinMiddlewareBy(func(c *gin.Context) string { return c.GetHeader("X-Device") }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(device string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Device", device)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, call("gate-1").Code)
	w := call("gate-1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, call("gate-2").Code)
}
