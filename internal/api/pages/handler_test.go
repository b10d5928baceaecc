package pagesapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pagesapi "membership-portal/internal/api/pages"
	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/domain/pages"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := pagesapi.NewHandler(pages.NewStore(testutil.NewDB(t)), nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if tier := c.GetHeader("X-Test-Tier"); tier != "" {
			c.Set(middleware.KeyUserID, uint(1))
			c.Set(middleware.KeyTier, plans.Tier(tier))
		}
	})
	r.GET("/pages", h.List)
	r.GET("/pages/:slug", h.Get)
	r.GET("/admin/pages", h.AdminList)
	r.GET("/admin/pages/:slug", h.AdminGet)
	r.PUT("/admin/pages", h.Save)
	r.DELETE("/admin/pages/:slug", h.Delete)
	return r
}

func do(r *gin.Engine, method, path, tier, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tier != "" {
		req.Header.Set("X-Test-Tier", tier)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPagesLifecycle(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPut, "/admin/pages", "", `{
		"title": "Winter Retreat",
		"status": "draft",
		"sections": [
			{"type": "text", "sort_index": 2, "props": {"body": "Details"}},
			{"type": "hero", "sort_index": 1, "props": {"title": "Winter"}}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var saved pagesapi.GetPageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "winter-retreat", saved.Page.Slug)
	require.Len(t, saved.Page.Sections, 2)
	assert.Equal(t, "hero", saved.Page.Sections[0].Type)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/pages/winter-retreat", "", "").Code, "drafts are hidden")
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin/pages/winter-retreat", "", "").Code)

	w = do(r, http.MethodPut, "/admin/pages", "", `{"slug":"winter-retreat","title":"Winter Retreat","status":"published","required_tier":"gyani","sections":[{"type":"text","props":{"body":"Only"}}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/pages/winter-retreat", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "/signup")

	w = do(r, http.MethodGet, "/pages/winter-retreat", "free", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "/membership")

	w = do(r, http.MethodGet, "/pages/winter-retreat", "pragyani", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got pagesapi.GetPageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Page.Sections, 1, "saving replaces sections")

	w = do(r, http.MethodGet, "/pages", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list pagesapi.ListPagesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Pages, 1)
	assert.True(t, list.Pages[0].Locked)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/admin/pages/winter-retreat", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/admin/pages/winter-retreat", "", "").Code)
}

func TestSaveValidation(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPut, "/admin/pages", "", `{"title":"Bad","status":"archived","sections":[{"type":"marquee","props":{"a":1}}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "status")
	assert.Contains(t, w.Body.String(), "sections[0].type")

	w = do(r, http.MethodPut, "/admin/pages", "", `{"status":"draft"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
