package billing_test

import (
	"context"
	"testing"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePendingAssignsReference(t *testing.T) {
	orders := billing.NewOrders(testutil.NewDB(t), nil)
	ctx := context.Background()

	o := &billing.Order{UserID: 1, Category: billing.CategoryDonation, AmountCents: 2000, Currency: "usd"}
	require.NoError(t, orders.CreatePending(ctx, o))
	assert.NotEmpty(t, o.Reference)
	assert.Equal(t, billing.StatusPending, o.Status)

	got, err := orders.ByReferenceForUser(ctx, o.Reference, 1)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = orders.ByReferenceForUser(ctx, o.Reference, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionIsOneWay(t *testing.T) {
	orders := billing.NewOrders(testutil.NewDB(t), nil)
	ctx := context.Background()

	o := &billing.Order{UserID: 1, Category: billing.CategoryCourse, AmountCents: 4900}
	require.NoError(t, orders.CreatePending(ctx, o))

	changed, err := orders.Transition(ctx, o.ID, billing.StatusConfirmed, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = orders.Transition(ctx, o.ID, billing.StatusCompleted, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = orders.Transition(ctx, o.ID, billing.StatusCompleted, nil)
	require.NoError(t, err)
	assert.False(t, changed, "second completion is a no-op")

	changed, err = orders.Transition(ctx, o.ID, billing.StatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := orders.ByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestPaymentIntentLookup(t *testing.T) {
	orders := billing.NewOrders(testutil.NewDB(t), nil)
	ctx := context.Background()

	o := &billing.Order{UserID: 1, Category: billing.CategoryTeaching, AmountCents: 1500}
	require.NoError(t, orders.CreatePending(ctx, o))
	require.NoError(t, orders.AttachPaymentIntent(ctx, o.ID, "pi_123"))

	got, err := orders.ByPaymentIntent(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, o.Reference, got.Reference)
}

func TestRecordSessionOncePerSession(t *testing.T) {
	orders := billing.NewOrders(testutil.NewDB(t), nil)
	ctx := context.Background()
	session := "cs_test_1"

	first := &billing.Order{UserID: 4, AmountCents: 2900, Status: billing.StatusCompleted, StripeSessionID: &session}
	require.NoError(t, orders.RecordSession(ctx, first))
	again := &billing.Order{UserID: 4, AmountCents: 2900, Status: billing.StatusCompleted, StripeSessionID: &session}
	require.NoError(t, orders.RecordSession(ctx, again))

	list, err := orders.ListForUser(ctx, 4)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, billing.CategoryMembership, list[0].Category)

	rev, err := orders.CompletedRevenue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rev.Orders)
	assert.EqualValues(t, 2900, rev.AmountCents)
}

func TestOrderItemIDs(t *testing.T) {
	id := uint(3)
	assert.Equal(t, []uint{3}, billing.Order{ItemID: &id}.ItemIDs())
	o := billing.Order{Lines: []billing.OrderLine{{ItemID: 1}, {ItemID: 2}, {ItemID: 1}}}
	assert.Equal(t, []uint{1, 2}, o.ItemIDs())
	assert.Nil(t, billing.Order{}.ItemIDs())

	_, ok := billing.ParseCategory("membership")
	assert.False(t, ok)
	c, ok := billing.ParseCategory("retreat")
	assert.True(t, ok)
	assert.True(t, c.GrantsAccess())
	assert.False(t, billing.CategoryDonation.GrantsAccess())
}

func TestGrantedItemIDsSkipsUnpaidLines(t *testing.T) {
	o := billing.Order{Category: billing.CategoryCart, Lines: []billing.OrderLine{
		{ItemID: 1, ItemKind: "product", UnitPriceCents: 2500},
		{ItemID: 2, ItemKind: "course", UnitPriceCents: 5000},
		{ItemID: 3, ItemKind: "teaching", UnitPriceCents: 0},
		{ItemID: 2, ItemKind: "course", UnitPriceCents: 5000},
	}}
	assert.Equal(t, []uint{2}, o.GrantedItemIDs())

	o.Category = billing.CategoryDonation
	assert.Nil(t, o.GrantedItemIDs())
}
