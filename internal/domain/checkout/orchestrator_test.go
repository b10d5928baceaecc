package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"membership-portal/internal/apperr"
	"membership-portal/internal/cache"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/cart"
	"membership-portal/internal/domain/checkout"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockGateway struct{ mock.Mock }

func (m *MockGateway) Charge(ctx context.Context, c checkout.Charge) (*checkout.Payment, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Payment), args.Error(1)
}

func (m *MockGateway) Ready(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fixture struct {
	db      *gorm.DB
	gateway *MockGateway
	orch    *checkout.Orchestrator
	orders  *billing.Orders
	grants  *registrations.Writer
	carts   cart.Service
	locks   *cache.Cache
	retreat *content.Item
	buyer   checkout.Buyer
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	mr := miniredis.RunT(t)
	locks, err := cache.New(context.Background(), cache.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { locks.Close() })

	f := &fixture{
		db:      db,
		gateway: new(MockGateway),
		orders:  billing.NewOrders(db, nil),
		grants:  registrations.NewWriter(db, nil),
		carts:   cart.NewService(cart.NewRepository(db), "usd", nil, nil),
		locks:   locks,
		buyer:   checkout.Buyer{UserID: 11, Email: "asha@example.com", Name: "Asha Rao"},
	}
	f.retreat = &content.Item{
		Slug: "winter-retreat", Kind: content.KindRetreat, Title: "Winter Retreat",
		PriceCents: 25000, LimitedPriceCents: 9000, LimitedAccessDays: 30,
		Currency: "usd", Published: true,
	}
	require.NoError(t, db.Create(f.retreat).Error)

	f.orch = checkout.New(checkout.Deps{
		Gateway: f.gateway,
		Catalog: content.NewStore(db, nil, nil),
		Carts:   f.carts,
		Orders:  f.orders,
		Grants:  f.grants,
		Locker:  locks,
	}, checkout.Config{Timeout: timeout, Currency: "usd"})
	return f
}

func billingForm() checkout.Form {
	return checkout.Form{
		Name:       "Asha Rao",
		Email:      "asha@example.com",
		Address:    "12 Lake Road",
		Country:    "IN",
		PostalCode: "560001",
		CardNumber: "4000 0000 0000 0002",
		Expiry:     "12/40",
		CVV:        "123",
	}
}

func retreatSeed(access registrations.AccessType) checkout.Seed {
	return checkout.Seed{Category: billing.CategoryRetreat, AccessType: access, Item: "winter-retreat"}
}

func TestSubmitGrantsLifetimeAccess(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(c checkout.Charge) bool {
		return c.AmountCents == 25000 && c.Card != nil && c.Card.Number == "4000000000000002" && c.Reference != ""
	})).Return(&checkout.Payment{ID: "pi_1", Status: checkout.PaymentSucceeded}, nil)

	res, err := f.orch.Submit(ctx, f.buyer, retreatSeed(registrations.Lifetime), billingForm())
	require.NoError(t, err)
	assert.Equal(t, checkout.Succeeded, res.State)
	assert.Equal(t, "/checkout/confirmation/"+res.OrderReference, res.Redirect)

	order, err := f.orders.ByReference(ctx, res.OrderReference)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCompleted, order.Status)
	require.NotNil(t, order.StripePaymentIntentID)
	assert.Equal(t, "pi_1", *order.StripePaymentIntentID)

	regs, err := f.grants.ForUserItem(ctx, f.buyer.UserID, f.retreat.ID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, registrations.Lifetime, regs[0].AccessType)
	assert.Nil(t, regs[0].AccessExpiresAt)
	assert.True(t, regs[0].ActiveAt(time.Now()))
	f.gateway.AssertExpectations(t)
}

func TestSubmitLimitedAccessUsesLimitedPrice(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(c checkout.Charge) bool {
		return c.AmountCents == 9000
	})).Return(&checkout.Payment{ID: "pi_2", Status: checkout.PaymentSucceeded}, nil)

	_, err := f.orch.Submit(ctx, f.buyer, retreatSeed(registrations.Limited), billingForm())
	require.NoError(t, err)

	regs, err := f.grants.ForUserItem(ctx, f.buyer.UserID, f.retreat.ID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.NotNil(t, regs[0].AccessExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *regs[0].AccessExpiresAt, time.Minute)
}

func TestSubmitDeclinedCardKeepsBilling(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	declined := apperr.PaymentDeclined("Your card was declined.", errors.New("card_declined"))
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(nil, declined)

	form := billingForm()
	res, err := f.orch.Submit(ctx, f.buyer, retreatSeed(registrations.Lifetime), form)
	assert.ErrorIs(t, err, apperr.ErrPaymentDeclined)
	require.NotNil(t, res)

	assert.Equal(t, checkout.Failed, res.State)
	assert.Equal(t, "Your card was declined.", res.Message)
	require.NotNil(t, res.Billing)
	assert.Equal(t, form.Billing(), *res.Billing)

	order, err := f.orders.ByReference(ctx, res.OrderReference)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, order.Status)
	assert.Equal(t, "Your card was declined.", order.FailureMessage)

	regs, err := f.grants.ForUserItem(ctx, f.buyer.UserID, f.retreat.ID)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestSubmitUnclassifiedErrorIsGeneric(t *testing.T) {
	f := newFixture(t, time.Second)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	res, err := f.orch.Submit(context.Background(), f.buyer, retreatSeed(registrations.Lifetime), billingForm())
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, checkout.Failed, res.State)
	assert.NotContains(t, res.Message, "connection refused")
}

func TestSubmitTimesOut(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	res, err := f.orch.Submit(context.Background(), f.buyer, retreatSeed(registrations.Lifetime), billingForm())
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, checkout.Failed, res.State)
	assert.Contains(t, res.Message, "timed out")
}

func TestSubmitNeverChargesIncompleteForm(t *testing.T) {
	f := newFixture(t, time.Second)
	blanks := []func(*checkout.Form){
		func(fm *checkout.Form) { fm.Name = "" },
		func(fm *checkout.Form) { fm.Email = "" },
		func(fm *checkout.Form) { fm.Address = "" },
		func(fm *checkout.Form) { fm.Country = "" },
		func(fm *checkout.Form) { fm.PostalCode = "" },
		func(fm *checkout.Form) { fm.CardNumber = "" },
		func(fm *checkout.Form) { fm.Expiry = "" },
		func(fm *checkout.Form) { fm.CVV = "" },
	}
	for _, blank := range blanks {
		form := billingForm()
		blank(&form)
		res, err := f.orch.Submit(context.Background(), f.buyer, retreatSeed(registrations.Lifetime), form)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		require.NotNil(t, res)
		assert.Equal(t, checkout.Collecting, res.State)
		assert.NotEmpty(t, res.Errors)
	}
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)

	var count int64
	require.NoError(t, f.db.Model(&billing.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitRejectsConcurrentAttempt(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	unlock, err := f.locks.Lock(ctx, "checkout:11:retreat:winter-retreat", time.Minute)
	require.NoError(t, err)
	defer unlock(ctx)

	res, err := f.orch.Submit(ctx, f.buyer, retreatSeed(registrations.Lifetime), billingForm())
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "checkout in progress", res.Message)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestSubmitCartClearsCart(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	book := &content.Item{Slug: "book", Kind: content.KindProduct, Title: "Book", PriceCents: 2500, Published: true}
	course := &content.Item{Slug: "breath-course", Kind: content.KindCourse, Title: "Breath", PriceCents: 5000, Published: true}
	require.NoError(t, f.db.Create(book).Error)
	require.NoError(t, f.db.Create(course).Error)

	c, err := f.carts.AddItem(ctx, f.buyer.UserID, book.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.buyer.UserID, course.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.UpdateQuantity(ctx, f.buyer.UserID, c.Items[0].ID, 2)
	require.NoError(t, err)

	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(c checkout.Charge) bool {
		return c.AmountCents == 10000
	})).Return(&checkout.Payment{ID: "pi_cart", Status: checkout.PaymentSucceeded}, nil)

	res, err := f.orch.Submit(ctx, f.buyer, checkout.Seed{Category: billing.CategoryCart}, billingForm())
	require.NoError(t, err)
	assert.Equal(t, checkout.Succeeded, res.State)

	after, err := f.carts.Get(ctx, f.buyer.UserID)
	require.NoError(t, err)
	assert.True(t, after.Empty())

	regs, err := f.grants.ListForUser(ctx, f.buyer.UserID)
	require.NoError(t, err)
	require.Len(t, regs, 1, "only the course is granted, the book ships")
	assert.Equal(t, course.ID, regs[0].ItemID)
}

func TestSubmitDonationGrantsNothing(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(&checkout.Payment{ID: "pi_d", Status: checkout.PaymentSucceeded}, nil)

	seed, err := checkout.ParseSeed("50", "donation", "", "")
	require.NoError(t, err)
	res, err := f.orch.Submit(ctx, f.buyer, seed, billingForm())
	require.NoError(t, err)
	assert.EqualValues(t, 5000, res.Summary.AmountCents)

	regs, err := f.grants.ListForUser(ctx, f.buyer.UserID)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestSubmitProcessingLeavesOrderPending(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(&checkout.Payment{ID: "pi_slow", Status: checkout.PaymentProcessing}, nil)

	res, err := f.orch.Submit(ctx, f.buyer, retreatSeed(registrations.Lifetime), billingForm())
	require.NoError(t, err)
	assert.Equal(t, checkout.Submitting, res.State)

	order, err := f.orders.ByPaymentIntent(ctx, "pi_slow")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, order.Status)

	require.NoError(t, f.orch.Fulfil(ctx, order))
	require.NoError(t, f.orch.Fulfil(ctx, order), "fulfilling twice is harmless")

	regs, err := f.grants.ForUserItem(ctx, f.buyer.UserID, f.retreat.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

func TestBeginAndErrors(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	res, err := f.orch.Begin(ctx, f.buyer, retreatSeed(registrations.Lifetime))
	require.NoError(t, err)
	assert.Equal(t, checkout.Collecting, res.State)
	assert.EqualValues(t, 25000, res.Summary.AmountCents)
	assert.Equal(t, "Asha Rao", res.Billing.Name)

	_, err = f.orch.Begin(ctx, checkout.Buyer{}, retreatSeed(registrations.Lifetime))
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	_, err = f.orch.Begin(ctx, f.buyer, checkout.Seed{Category: billing.CategoryCourse, Item: "winter-retreat"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.orch.Begin(ctx, f.buyer, checkout.Seed{Category: billing.CategoryTeaching, Item: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.orch.Begin(ctx, f.buyer, checkout.Seed{Category: billing.CategoryCart})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAwaitReady(t *testing.T) {
	calls := 0
	err := checkout.AwaitReady(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	err = checkout.AwaitReady(context.Background(), func(context.Context) error {
		return errors.New("down")
	}, 150*time.Millisecond)
	assert.ErrorIs(t, err, checkout.ErrProviderUnavailable)
}

func TestSubmitUnfinishedPaymentFails(t *testing.T) {
	for _, status := range []string{"requires_payment_method", "canceled", ""} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t, time.Second)
			ctx := context.Background()

			f.gateway.On("Charge", mock.Anything, mock.Anything).
				Return(&checkout.Payment{ID: "pi_open", Status: status}, nil)

			res, err := f.orch.Submit(ctx, f.buyer, retreatSeed(registrations.Lifetime), billingForm())
			assert.ErrorIs(t, err, apperr.ErrPaymentDeclined)
			require.NotNil(t, res)
			assert.Equal(t, checkout.Failed, res.State)
			require.NotNil(t, res.Billing)

			order, err := f.orders.ByReference(ctx, res.OrderReference)
			require.NoError(t, err)
			assert.Equal(t, billing.StatusCancelled, order.Status)

			regs, err := f.grants.ForUserItem(ctx, f.buyer.UserID, f.retreat.ID)
			require.NoError(t, err)
			assert.Empty(t, regs)
		})
	}
}

func TestSubmitCartKeepsLinesAddedDuringPayment(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	book := &content.Item{Slug: "book", Kind: content.KindProduct, Title: "Book", PriceCents: 2500, Published: true}
	incense := &content.Item{Slug: "incense", Kind: content.KindProduct, Title: "Incense", PriceCents: 800, Published: true}
	require.NoError(t, f.db.Create(book).Error)
	require.NoError(t, f.db.Create(incense).Error)

	_, err := f.carts.AddItem(ctx, f.buyer.UserID, book.ID, 1)
	require.NoError(t, err)

	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(c checkout.Charge) bool {
		return c.AmountCents == 2500
	})).Run(func(mock.Arguments) {
		// another tab adds to the cart while the card is charged
		_, err := f.carts.AddItem(ctx, f.buyer.UserID, incense.ID, 1)
		require.NoError(t, err)
	}).Return(&checkout.Payment{ID: "pi_tabs", Status: checkout.PaymentSucceeded}, nil)

	res, err := f.orch.Submit(ctx, f.buyer, checkout.Seed{Category: billing.CategoryCart}, billingForm())
	require.NoError(t, err)
	assert.Equal(t, checkout.Succeeded, res.State)

	after, err := f.carts.Get(ctx, f.buyer.UserID)
	require.NoError(t, err)
	require.Len(t, after.Items, 1)
	assert.Equal(t, incense.ID, after.Items[0].ItemID)
	assert.EqualValues(t, 800, after.TotalCents)
}
