// Package checkout runs a purchase from the filled-in form to a paid,
// fulfilled order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"membership-portal/internal/apperr"
	"membership-portal/internal/cache"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/cart"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/registrations"

	"go.uber.org/zap"
)

// Payment statuses reported by the gateway.
const (
	PaymentSucceeded      = "succeeded"
	PaymentProcessing     = "processing"
	PaymentRequiresAction = "requires_action"
)

type Charge struct {
	// Reference is the order reference, used as the idempotency key.
	Reference       string
	AmountCents     int64
	Currency        string
	Description     string
	Billing         Billing
	Card            *Card
	PaymentMethodID string
	CustomerID      string
	Metadata        map[string]string
}

type Payment struct {
	ID         string
	Status     string
	ReceiptURL string
}

// Gateway charges cards. Errors are expected to be classified already:
// apperr.PaymentDeclined carries the provider's message, anything else is
// treated as a network failure.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (*Payment, error)
	Ready(ctx context.Context) error
}

type Catalog interface {
	PublishedBySlug(ctx context.Context, slug string) (*content.Item, error)
}

type Carts interface {
	Get(ctx context.Context, userID uint) (*cart.Cart, error)
	RemoveItems(ctx context.Context, userID uint, itemIDs []uint) (*cart.Cart, error)
}

type Orders interface {
	CreatePending(ctx context.Context, o *billing.Order) error
	AttachPaymentIntent(ctx context.Context, id uint, paymentIntentID string) error
	Transition(ctx context.Context, id uint, to billing.Status, updates map[string]interface{}) (bool, error)
}

type Grants interface {
	GrantAccess(ctx context.Context, userID, itemID uint, accessType registrations.AccessType, expiresAt *time.Time, opts ...registrations.GrantOption) (*registrations.Registration, error)
}

type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type Recorder interface {
	RecordCheckout(category, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCheckout(string, string) {}

type Buyer struct {
	UserID           uint
	Email            string
	Name             string
	StripeCustomerID string
}

// Summary describes what is being bought, as shown next to the form.
type Summary struct {
	Category    billing.Category         `json:"category"`
	AccessType  registrations.AccessType `json:"access_type,omitempty"`
	Item        string                   `json:"item,omitempty"`
	Title       string                   `json:"title"`
	AmountCents int64                    `json:"amount_cents"`
	Currency    string                   `json:"currency"`
	AccessDays  int                      `json:"access_days,omitempty"`
	Lines       []billing.OrderLine      `json:"lines,omitempty"`

	itemID *uint
}

type Result struct {
	State          State             `json:"state"`
	Summary        Summary           `json:"summary"`
	Billing        *Billing          `json:"billing,omitempty"`
	Errors         map[string]string `json:"errors,omitempty"`
	Message        string            `json:"message,omitempty"`
	OrderReference string            `json:"order_reference,omitempty"`
	Redirect       string            `json:"redirect,omitempty"`
}

type Config struct {
	Timeout  time.Duration
	Currency string
	// ConfirmationPath is prefixed to the order reference on success.
	ConfirmationPath string
}

type Deps struct {
	Gateway  Gateway
	Catalog  Catalog
	Carts    Carts
	Orders   Orders
	Grants   Grants
	Locker   Locker
	Recorder Recorder
	Log      *zap.Logger
}

type Orchestrator struct {
	gateway Gateway
	catalog Catalog
	carts   Carts
	orders  Orders
	grants  Grants
	locker  Locker
	rec     Recorder
	log     *zap.Logger
	cfg     Config
	now     func() time.Time
}

const DefaultTimeout = 30 * time.Second

func New(d Deps, cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.ConfirmationPath == "" {
		cfg.ConfirmationPath = "/checkout/confirmation/"
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Orchestrator{
		gateway: d.Gateway,
		catalog: d.Catalog,
		carts:   d.Carts,
		orders:  d.Orders,
		grants:  d.Grants,
		locker:  d.Locker,
		rec:     d.Recorder,
		log:     d.Log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Begin resolves what the seed points at and returns the empty form state.
func (o *Orchestrator) Begin(ctx context.Context, buyer Buyer, seed Seed) (*Result, error) {
	if buyer.UserID == 0 {
		return nil, apperr.AuthRequired("Please log in to check out")
	}
	summary, err := o.resolve(ctx, buyer, seed)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:   Collecting,
		Summary: summary,
		Billing: &Billing{Name: buyer.Name, Email: buyer.Email},
	}, nil
}

// resolve prices the purchase server-side. Only donations take the amount
// from the request.
func (o *Orchestrator) resolve(ctx context.Context, buyer Buyer, seed Seed) (Summary, error) {
	s := Summary{Category: seed.Category, Currency: o.cfg.Currency}

	switch seed.Category {
	case billing.CategoryDonation:
		s.Title = "Donation"
		s.AmountCents = seed.AmountCents
		return s, nil

	case billing.CategoryCart:
		c, err := o.carts.Get(ctx, buyer.UserID)
		if err != nil {
			return s, err
		}
		if c.Empty() {
			return s, apperr.Field("cart", "is empty")
		}
		s.Title = "Cart"
		s.AmountCents = c.TotalCents
		s.Currency = c.Currency
		s.AccessType = registrations.Lifetime
		for _, line := range c.Items {
			if line.Item == nil {
				continue
			}
			s.Lines = append(s.Lines, billing.OrderLine{
				ItemID:         line.ItemID,
				ItemKind:       string(line.Item.Kind),
				Title:          line.Item.Title,
				Quantity:       line.Quantity,
				UnitPriceCents: line.Item.PriceCents,
			})
		}
		return s, nil
	}

	item, err := o.catalog.PublishedBySlug(ctx, seed.Item)
	if err != nil {
		return s, err
	}
	if string(item.Kind) != string(seed.Category) {
		return s, apperr.Field("item", fmt.Sprintf("is not a %s", seed.Category))
	}

	limited := seed.AccessType == registrations.Limited
	price, offered := item.Price(limited)
	if !offered {
		return s, apperr.Field("accessType", "limited access is not offered for this item")
	}
	if price <= 0 {
		return s, apperr.Field("item", "is free, register for it instead")
	}

	id := item.ID
	s.itemID = &id
	s.Item = item.Slug
	s.Title = item.Title
	s.AmountCents = price
	if item.Currency != "" {
		s.Currency = item.Currency
	}
	s.AccessType = registrations.Lifetime
	if limited {
		s.AccessType = registrations.Limited
		s.AccessDays = item.LimitedAccessDays
	}
	s.Lines = []billing.OrderLine{{
		ItemID:         item.ID,
		ItemKind:       string(item.Kind),
		Title:          item.Title,
		Quantity:       1,
		UnitPriceCents: price,
	}}
	return s, nil
}

func lockKey(buyer Buyer, seed Seed) string {
	return fmt.Sprintf("checkout:%d:%s:%s", buyer.UserID, seed.Category, seed.Item)
}

// Submit validates the form and, if it is complete, charges the buyer. On
// any failure the returned Result carries the billing fields back so the
// form stays filled in; the error says what kind of failure it was.
func (o *Orchestrator) Submit(ctx context.Context, buyer Buyer, seed Seed, form Form) (*Result, error) {
	if buyer.UserID == 0 {
		return nil, apperr.AuthRequired("Please log in to check out")
	}

	state := Collecting
	advance := func(to State) {
		if !CanTransition(state, to) {
			panic(fmt.Sprintf("checkout: illegal transition %s -> %s", state, to))
		}
		state = to
	}

	summary, err := o.resolve(ctx, buyer, seed)
	if err != nil {
		return nil, err
	}

	advance(Validating)
	b, card, err := Normalize(form, o.now())
	if err != nil {
		advance(Collecting)
		o.rec.RecordCheckout(string(seed.Category), "invalid")
		res := &Result{State: state, Summary: summary, Billing: &b}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			res.Errors = ae.Fields
		}
		return res, err
	}

	advance(Submitting)
	// the charge and its bookkeeping outlive a client that goes away
	bg := context.WithoutCancel(ctx)

	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, lockKey(buyer, seed), o.cfg.Timeout+10*time.Second)
		if errors.Is(err, cache.ErrLocked) {
			o.rec.RecordCheckout(string(seed.Category), "in_progress")
			return &Result{State: Submitting, Summary: summary, Billing: &b, Message: "checkout in progress"},
				apperr.Conflict("checkout in progress")
		}
		if err != nil {
			return nil, apperr.Network("Checkout is temporarily unavailable, please try again", err)
		}
		defer func() {
			if err := unlock(bg); err != nil {
				o.log.Warn("checkout unlock failed", zap.Error(err))
			}
		}()
	}

	order := &billing.Order{
		UserID:            buyer.UserID,
		Category:          summary.Category,
		ItemID:            summary.itemID,
		AccessType:        summary.AccessType,
		AccessDays:        summary.AccessDays,
		AmountCents:       summary.AmountCents,
		Currency:          summary.Currency,
		BillingName:       b.Name,
		BillingEmail:      b.Email,
		BillingAddress:    b.Address,
		BillingCountry:    b.Country,
		BillingPostalCode: b.PostalCode,
		Lines:             summary.Lines,
	}
	if err := o.orders.CreatePending(bg, order); err != nil {
		return nil, fmt.Errorf("checkout.Submit: %w", err)
	}

	chargeCtx, cancel := context.WithTimeout(bg, o.cfg.Timeout)
	defer cancel()

	payment, err := o.gateway.Charge(chargeCtx, Charge{
		Reference:       order.Reference,
		AmountCents:     order.AmountCents,
		Currency:        order.Currency,
		Description:     summary.Title,
		Billing:         b,
		Card:            card,
		PaymentMethodID: form.PaymentMethodID,
		CustomerID:      buyer.StripeCustomerID,
		Metadata: map[string]string{
			"order_reference": order.Reference,
			"user_id":         fmt.Sprint(buyer.UserID),
			"category":        string(order.Category),
		},
	})
	if err == nil && payment == nil {
		err = apperr.Network("", errors.New("gateway returned no payment"))
	}
	if err == nil && payment.Status == PaymentRequiresAction {
		err = apperr.PaymentDeclined("Your card needs additional authentication. Please use another card.", nil)
	}
	if err == nil && payment.Status != PaymentSucceeded && payment.Status != PaymentProcessing {
		err = apperr.PaymentDeclined("Your payment was not completed. Please try again or use another card.",
			fmt.Errorf("payment %s status %q", payment.ID, payment.Status))
	}
	if err != nil {
		if errors.Is(chargeCtx.Err(), context.DeadlineExceeded) {
			err = apperr.Network("The payment timed out. Please try again.", err)
		} else if kind := apperr.KindOf(err); kind != apperr.KindPaymentDeclined && kind != apperr.KindNetwork {
			err = apperr.Network("", err)
		}
		advance(Failed)
		return o.fail(bg, order, summary, b, err), err
	}

	if err := o.orders.AttachPaymentIntent(bg, order.ID, payment.ID); err != nil {
		o.log.Error("attach payment intent failed", zap.String("order", order.Reference), zap.Error(err))
	}

	res := &Result{
		Summary:        summary,
		OrderReference: order.Reference,
		Redirect:       o.cfg.ConfirmationPath + order.Reference,
	}

	if payment.Status == PaymentProcessing {
		// the payment_intent webhook finishes this order
		o.rec.RecordCheckout(string(order.Category), "processing")
		res.State = Submitting
		res.Message = "Your payment is processing. You will receive access once it clears."
		return res, nil
	}

	advance(Succeeded)
	res.State = state
	if payment.ReceiptURL != "" {
		order.ReceiptURL = &payment.ReceiptURL
	}
	if err := o.Fulfil(bg, order); err != nil {
		// the charge went through; the webhook retries fulfilment
		o.log.Error("order fulfilment failed", zap.String("order", order.Reference), zap.Error(err))
		res.Message = "Payment received. Your access is being set up."
	}
	o.rec.RecordCheckout(string(order.Category), "succeeded")
	o.log.Info("checkout succeeded",
		zap.String("order", order.Reference),
		zap.Uint("user_id", buyer.UserID),
		zap.String("category", string(order.Category)),
		zap.Int64("amount_cents", order.AmountCents))
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, order *billing.Order, summary Summary, b Billing, cause error) *Result {
	var ae *apperr.Error
	message := "payment could not be processed"
	outcome := "network"
	if errors.As(cause, &ae) {
		message = ae.Message
		if ae.Kind == apperr.KindPaymentDeclined {
			outcome = "declined"
		}
	}

	if _, err := o.orders.Transition(ctx, order.ID, billing.StatusCancelled, map[string]interface{}{
		"failure_message": message,
	}); err != nil {
		o.log.Error("cancel order failed", zap.String("order", order.Reference), zap.Error(err))
	}
	o.rec.RecordCheckout(string(order.Category), outcome)
	o.log.Info("checkout failed",
		zap.String("order", order.Reference),
		zap.String("outcome", outcome),
		zap.Error(cause))

	return &Result{
		State:          Failed,
		Summary:        summary,
		Billing:        &b,
		Message:        message,
		OrderReference: order.Reference,
	}
}

// Fulfil confirms a paid order, grants what it bought, takes the bought lines
// out of the cart for cart purchases and completes it. It is safe to call again for the same
// order, which is how the payment webhook finishes interrupted checkouts.
func (o *Orchestrator) Fulfil(ctx context.Context, order *billing.Order) error {
	const op = "checkout.Fulfil"
	if order.Status == billing.StatusCompleted || order.Status == billing.StatusCancelled {
		return nil
	}

	confirm := map[string]interface{}{}
	if order.ReceiptURL != nil {
		confirm["receipt_url"] = *order.ReceiptURL
	}
	if _, err := o.orders.Transition(ctx, order.ID, billing.StatusConfirmed, confirm); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var expiresAt *time.Time
	if order.AccessType == registrations.Limited {
		at := o.now().AddDate(0, 0, order.AccessDays)
		expiresAt = &at
	}
	accessType := order.AccessType
	if accessType == "" {
		accessType = registrations.Lifetime
	}
	for _, itemID := range order.GrantedItemIDs() {
		if _, err := o.grants.GrantAccess(ctx, order.UserID, itemID, accessType, expiresAt,
			registrations.WithOrder(order.ID)); err != nil {
			return fmt.Errorf("%s: grant item %d: %w", op, itemID, err)
		}
	}

	if order.Category == billing.CategoryCart {
		if _, err := o.carts.RemoveItems(ctx, order.UserID, order.ItemIDs()); err != nil {
			return fmt.Errorf("%s: remove cart items: %w", op, err)
		}
	}

	if _, err := o.orders.Transition(ctx, order.ID, billing.StatusCompleted, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	order.Status = billing.StatusCompleted
	return nil
}
