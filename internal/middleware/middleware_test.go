package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"food_rescue/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func whoAmI(c *gin.Context) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"user_id": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": a.UserID, "role": a.Role})
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, a middleware.Actor) map[string]string {
	t.Helper()
	tok, err := middleware.IssueToken(secret, a, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestParseToken(t *testing.T) {
	want := middleware.Actor{UserID: 9, Role: middleware.RoleProvider, ProviderID: 3}
	tok, err := middleware.IssueToken(secret, want, time.Hour)
	require.NoError(t, err)

	got, err := middleware.ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	_, err = middleware.ParseToken([]byte("other"), tok)
	assert.Error(t, err)

	expired, err := middleware.IssueToken(secret, want, -time.Minute)
	require.NoError(t, err)
	_, err = middleware.ParseToken(secret, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noProvider, err := middleware.IssueToken(secret, middleware.Actor{UserID: 9, Role: middleware.RoleProvider}, time.Hour)
	require.NoError(t, err)
	_, err = middleware.ParseToken(secret, noProvider)
	assert.Error(t, err)

	badRole, err := middleware.IssueToken(secret, middleware.Actor{UserID: 9, Role: "root"}, time.Hour)
	require.NoError(t, err)
	_, err = middleware.ParseToken(secret, badRole)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	r := gin.New()
	r.Use(middleware.Authenticate(secret))
	r.GET("/open", whoAmI)
	r.GET("/recipients", middleware.RequireActor(middleware.RoleRecipient), whoAmI)

	w := do(r, http.MethodGet, "/open", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":0}`, w.Body.String())

	w = do(r, http.MethodGet, "/open", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/open", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/recipients", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/recipients", bearer(t, middleware.Actor{UserID: 5, Role: middleware.RoleProvider, ProviderID: 1}))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/recipients", bearer(t, middleware.Actor{UserID: 5, Role: middleware.RoleRecipient}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":5,"role":"recipient"}`, w.Body.String())
}

func TestAdminToken(t *testing.T) {
	r := gin.New()
	r.GET("/admin", middleware.AdminToken("s3cret"), whoAmI)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", map[string]string{"X-Admin-Token": "nope"}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", map[string]string{"X-Admin-Token": "s3cret"}).Code)

	closed := gin.New()
	closed.GET("/admin", middleware.AdminToken(""), whoAmI)
	assert.Equal(t, http.StatusForbidden, do(closed, http.MethodGet, "/admin", map[string]string{"X-Admin-Token": ""}).Code)
}

func TestRedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.Use(middleware.Authenticate(secret))
	r.POST("/reserve", middleware.RedisRateLimit(rdb, "reserve", 2, time.Minute, zap.NewNop()), whoAmI)

	alice := bearer(t, middleware.Actor{UserID: 1, Role: middleware.RoleRecipient})
	bob := bearer(t, middleware.Actor{UserID: 2, Role: middleware.RoleRecipient})

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/reserve", alice).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/reserve", alice).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/reserve", alice).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/reserve", bob).Code, "limits are per user")

	mr.Close()
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/reserve", alice).Code, "redis outage lets requests through")
}

func TestRequestLogger(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestLogger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := do(r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}
