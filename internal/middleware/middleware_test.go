package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminToken(t *testing.T) {
	r := gin.New()
	r.POST("/admin", AdminToken("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/admin", nil).Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/admin", map[string]string{"X-Admin-Token": "nope"}).Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/admin", map[string]string{"X-Admin-Token": "s3cret"}).Code)
}

func TestRedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	defer rdb.Close()

	r := gin.New()
	r.POST("/admin", RedisRateLimit(rdb, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/admin", nil).Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/admin", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/admin", nil).Code)
}

func TestRedisRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	r := gin.New()
	r.POST("/admin", RedisRateLimit(rdb, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/admin", nil).Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/admin", nil).Code)

	r2 := gin.New()
	r2.POST("/admin", RedisRateLimit(nil, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	require.Equal(t, http.StatusOK, serve(r2, http.MethodPost, "/admin", nil).Code)
}

func TestCORSAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), AccessLog(zerolog.Nop()))
	r.GET("/status", CORS(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/status", CORS())

	w := serve(r, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = serve(r, http.MethodGet, "/status", map[string]string{"X-Request-Id": "abc"})
	require.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	w = serve(r, http.MethodOptions, "/status", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}
