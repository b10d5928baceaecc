package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/access"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUsers map[uint]*users.User

func (f fakeUsers) ByID(_ context.Context, id uint) (*users.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	return u, nil
}

func setup(t *testing.T) (*gin.Engine, *users.Tokens, fakeUsers) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := users.NewTokens("test-secret", time.Hour)
	store := fakeUsers{
		1: {ID: 1, Email: "member@example.com", Role: users.RoleUser, Tier: plans.TierPragyani},
		2: {ID: 2, Email: "admin@example.com", Role: users.RoleAdmin, Tier: plans.TierFree},
	}
	auth := middleware.NewAuth(tokens, store, zap.NewNop())

	r := gin.New()
	subject := func(c *gin.Context) {
		s := middleware.Subject(c)
		c.JSON(http.StatusOK, gin.H{"user_id": s.UserID, "tier": s.Tier, "authenticated": s.Authenticated})
	}
	r.GET("/public", auth.Optional(), subject)
	r.GET("/private", auth.Required(), subject)
	r.GET("/admin", auth.Required(), middleware.RequireRole(users.RoleAdmin), subject)
	r.GET("/members", auth.Required(), middleware.RequireActiveMembership(), subject)
	return r, tokens, store
}

func do(r http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequiredAuth(t *testing.T) {
	r, tokens, store := setup(t)

	w := do(r, http.MethodGet, "/private", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"redirect":"/login"`)

	w = do(r, http.MethodGet, "/private", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := tokens.Issue(*store[1])
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/private", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tier":"pragyani"`)
}

func TestTierIsReloadedPerRequest(t *testing.T) {
	r, tokens, store := setup(t)
	token, err := tokens.Issue(*store[1])
	require.NoError(t, err)

	store[1].Tier = plans.TierGyani
	w := do(r, http.MethodGet, "/private", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tier":"gyani"`)

	now := time.Now()
	store[1].DeactivatedAt = &now
	w = do(r, http.MethodGet, "/private", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	r, tokens, store := setup(t)

	w := do(r, http.MethodGet, "/public", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	w = do(r, http.MethodGet, "/public", "expired-or-bad", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	token, _ := tokens.Issue(*store[1])
	w = do(r, http.MethodGet, "/public", token, nil)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
}

func TestRequireRole(t *testing.T) {
	r, tokens, store := setup(t)

	member, _ := tokens.Issue(*store[1])
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", member, nil).Code)

	admin, _ := tokens.Issue(*store[2])
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", admin, nil).Code)
}

func TestRequireActiveMembership(t *testing.T) {
	r, tokens, store := setup(t)
	token, _ := tokens.Issue(*store[1])

	w := do(r, http.MethodGet, "/members", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"redirect":"/membership"`)

	sub, status := "sub_1", "active"
	store[1].SubscriptionId = &sub
	store[1].StripeSubscriptionStatus = &status
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/members", token, nil).Code)

	past := time.Now().Add(-time.Hour)
	store[1].SubscriptionEnd = &past
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/members", token, nil).Code)
}

func TestSubjectAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, access.Anonymous(), middleware.Subject(c))
	assert.Nil(t, middleware.CurrentUser(c))
}

func TestSanitize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.SanitizeAndCleanInputMiddleware())
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]interface{}
		require.NoError(t, c.ShouldBindJSON(&body))
		c.JSON(http.StatusOK, body)
	})

	w := do(r, http.MethodPost, "/echo", "",
		strings.NewReader(`{"name":"<b>Ana</b><script>x()</script>","billing":{"city":"<i>Pune</i>"},"tags":["<p>a</p>"],"qty":2}`))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Ana", got["name"])
	assert.Equal(t, "Pune", got["billing"].(map[string]interface{})["city"])
	assert.Equal(t, []interface{}{"a"}, got["tags"])
	assert.Equal(t, float64(2), got["qty"])

	w = do(r, http.MethodPost, "/echo", "", strings.NewReader(`{"name":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := middleware.NewRateLimiter(0.001, 2, time.Minute)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/", "", nil).Code)
}
