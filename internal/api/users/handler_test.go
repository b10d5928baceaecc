package users_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	usersapi "membership-portal/internal/api/users"
	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	ctx := context.Background()

	plan := plans.Plan{Name: "Gyani Monthly", PriceCents: 2000, Currency: "usd", StripePriceID: "price_g", Interval: "month", Tier: plans.TierGyani}
	require.NoError(t, db.Create(&plan).Error)
	subID, status := "sub_1", "active"
	end := time.Now().Add(20 * 24 * time.Hour)
	u := users.User{
		Email: "me@example.com", Name: "Me", Role: users.RoleUser, Tier: plans.TierGyani,
		PlanID: &plan.ID, SubscriptionId: &subID, StripeSubscriptionStatus: &status, SubscriptionEnd: &end,
	}
	require.NoError(t, db.Create(&u).Error)

	item := content.Item{Slug: "retreat", Kind: content.KindRetreat, Title: "Retreat", Published: true, PriceCents: 100, Currency: "usd"}
	other := content.Item{Slug: "old", Kind: content.KindTeaching, Title: "Old", Published: true, PriceCents: 100, Currency: "usd"}
	require.NoError(t, db.Create(&item).Error)
	require.NoError(t, db.Create(&other).Error)
	writer := registrations.NewWriter(db, nil)
	_, err := writer.GrantAccess(ctx, u.ID, item.ID, registrations.Lifetime, nil)
	require.NoError(t, err)
	expired, err := writer.GrantAccess(ctx, u.ID, other.ID, registrations.Lifetime, nil)
	require.NoError(t, err)
	_, err = writer.SetStatus(ctx, expired.ID, registrations.StatusCancelled, false)
	require.NoError(t, err)

	store := users.NewStore(db)
	h := usersapi.NewHandler(db, writer)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		loaded, err := store.ByID(c.Request.Context(), u.ID)
		require.NoError(t, err)
		c.Set(middleware.KeyUserID, loaded.ID)
		c.Set(middleware.KeyUser, loaded)
	})
	r.GET("/me", h.Me)
	r.PATCH("/me", h.UpdateProfile)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me usersapi.MeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "me@example.com", me.User.Email)
	assert.Nil(t, me.User.Tel)
	assert.Equal(t, "gyani", me.Access.Tier)
	assert.True(t, me.Access.ActiveMember)
	require.NotNil(t, me.Billing.Plan)
	assert.Equal(t, "gyani", me.Billing.Plan.Tier)
	require.NotNil(t, me.Billing.Subscription)
	assert.Equal(t, "active", me.Billing.Subscription.Status)
	require.Len(t, me.Access.Registrations, 1, "cancelled grants are not listed")
	assert.Equal(t, "retreat", me.Access.Registrations[0].ItemSlug)

	req := httptest.NewRequest(http.MethodPatch, "/me", strings.NewReader(`{"name":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req = httptest.NewRequest(http.MethodPatch, "/me", strings.NewReader(`{"name":"Mia","tel":"+1 555"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	reloaded, err := store.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mia", reloaded.Name)
	assert.Equal(t, "+1 555", reloaded.Tel)
}
