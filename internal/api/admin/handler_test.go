package admin_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"membership-portal/internal/api/admin"
	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	ctx := context.Background()

	adminUser := users.User{Email: "root@example.com", Role: users.RoleAdmin, Tier: plans.TierFree}
	gyani := users.User{Email: "g@example.com", Name: "Gita", Role: users.RoleUser, Tier: plans.TierGyani}
	free := users.User{Email: "f@example.com", Name: "Fred", Role: users.RoleUser, Tier: plans.TierFree}
	for _, u := range []*users.User{&adminUser, &gyani, &free} {
		require.NoError(t, db.Create(u).Error)
	}

	orders := billing.NewOrders(db, nil)
	done := billing.Order{UserID: gyani.ID, Category: billing.CategoryDonation, AmountCents: 5000, Currency: "usd"}
	open := billing.Order{UserID: free.ID, Category: billing.CategoryDonation, AmountCents: 700, Currency: "usd"}
	require.NoError(t, orders.CreatePending(ctx, &done))
	require.NoError(t, orders.CreatePending(ctx, &open))
	moved, err := orders.Transition(ctx, done.ID, billing.StatusConfirmed, nil)
	require.NoError(t, err)
	require.True(t, moved)
	moved, err = orders.Transition(ctx, done.ID, billing.StatusCompleted, nil)
	require.NoError(t, err)
	require.True(t, moved)

	store := users.NewStore(db)
	h := admin.NewHandler(store, orders, registrations.NewWriter(db, nil), nil)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.KeyUserID, adminUser.ID) })
	r.GET("/admin/stats", h.Stats)
	r.GET("/admin/users", h.ListUsers)
	r.GET("/admin/users/:id", h.GetUser)
	r.PATCH("/admin/users/:id/tier", h.SetTier)
	r.PATCH("/admin/users/:id/active", h.SetActive)
	r.GET("/admin/orders", h.ListOrders)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("stats", func(t *testing.T) {
		w := do(http.MethodGet, "/admin/stats", "")
		require.Equal(t, http.StatusOK, w.Code)
		var stats admin.AdminStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.EqualValues(t, 3, stats.TotalUsers)
		assert.EqualValues(t, 2, stats.UsersPerTier["free"])
		assert.EqualValues(t, 1, stats.UsersPerTier["gyani"])
		assert.EqualValues(t, 5000, stats.RevenueCents)
		assert.EqualValues(t, 1, stats.Orders)
		assert.Equal(t, 1, stats.PendingOrders)
	})

	t.Run("list and filter users", func(t *testing.T) {
		w := do(http.MethodGet, "/admin/users?tier=gyani", "")
		require.Equal(t, http.StatusOK, w.Code)
		var list []admin.AdminUser
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, "g@example.com", list[0].Email)

		assert.Equal(t, http.StatusUnprocessableEntity, do(http.MethodGet, "/admin/users?tier=gold", "").Code)

		w = do(http.MethodGet, "/admin/users?q=FRED", "")
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, free.ID, list[0].ID)
	})

	t.Run("detail", func(t *testing.T) {
		w := do(http.MethodGet, fmt.Sprintf("/admin/users/%d", gyani.ID), "")
		require.Equal(t, http.StatusOK, w.Code)
		var detail admin.AdminUserDetail
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
		require.Len(t, detail.Orders, 1)
		assert.Equal(t, billing.StatusCompleted, detail.Orders[0].Status)

		assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/admin/users/999", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/admin/users/abc", "").Code)
	})

	t.Run("tier override", func(t *testing.T) {
		path := fmt.Sprintf("/admin/users/%d/tier", free.ID)
		assert.Equal(t, http.StatusUnprocessableEntity, do(http.MethodPatch, path, `{"tier":"gold"}`).Code)
		w := do(http.MethodPatch, path, `{"tier":"pragyani"}`)
		require.Equal(t, http.StatusOK, w.Code)

		u, err := store.ByID(ctx, free.ID)
		require.NoError(t, err)
		assert.Equal(t, plans.TierPragyani, u.Tier)
	})

	t.Run("deactivate", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict,
			do(http.MethodPatch, fmt.Sprintf("/admin/users/%d/active", adminUser.ID), `{"active":false}`).Code)

		path := fmt.Sprintf("/admin/users/%d/active", gyani.ID)
		w := do(http.MethodPatch, path, `{"active":false}`)
		require.Equal(t, http.StatusOK, w.Code)
		var out admin.AdminUser
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.NotNil(t, out.DeactivatedAt)
		assert.Equal(t, "free", out.Tier)

		require.Equal(t, http.StatusOK, do(http.MethodPatch, path, `{"active":true}`).Code)
		u, err := store.ByID(ctx, gyani.ID)
		require.NoError(t, err)
		assert.Nil(t, u.DeactivatedAt)
	})

	t.Run("orders", func(t *testing.T) {
		w := do(http.MethodGet, "/admin/orders?status=pending", "")
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Orders []billing.Order `json:"orders"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Orders, 1)
		assert.Equal(t, open.ID, body.Orders[0].ID)

		assert.Equal(t, http.StatusUnprocessableEntity, do(http.MethodGet, "/admin/orders?status=lost", "").Code)
	})
}
