package stripe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"

	"github.com/stripe/stripe-go/v75"
)

// Price is a recurring Stripe price as the plan sync sees it.
type Price struct {
	ID          string
	ProductID   string
	ProductName string
	AmountCents int64
	Currency    string
	Interval    string
	Metadata    map[string]string
}

// Subscription is the part of a Stripe subscription the service stores.
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	ItemID           string
	PriceID          string
	ScheduleID       string
	CurrentPeriodEnd time.Time
	PeriodStartUnix  int64
	PeriodEndUnix    int64
	Metadata         map[string]string
}

func FromStripeSubscription(s *stripe.Subscription) Subscription {
	out := Subscription{
		ID:               s.ID,
		Status:           string(s.Status),
		CurrentPeriodEnd: time.Unix(s.CurrentPeriodEnd, 0),
		PeriodStartUnix:  s.CurrentPeriodStart,
		PeriodEndUnix:    s.CurrentPeriodEnd,
		Metadata:         s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Schedule != nil {
		out.ScheduleID = s.Schedule.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0] != nil {
		out.ItemID = s.Items.Data[0].ID
		if s.Items.Data[0].Price != nil {
			out.PriceID = s.Items.Data[0].Price.ID
		}
	}
	return out
}

// Membership is what the user row should store for this subscription. The
// plan's tier is only granted while the status keeps membership alive.
func (s Subscription) Membership(plan *plans.Plan) users.Membership {
	m := users.Membership{
		SubscriptionID: s.ID,
		CustomerID:     s.CustomerID,
		Status:         s.Status,
		Plan:           plan,
		Tier:           plans.TierFree,
	}
	if s.PeriodStartUnix > 0 {
		start := time.Unix(s.PeriodStartUnix, 0)
		m.PeriodStart = &start
	}
	if s.PeriodEndUnix > 0 {
		end := time.Unix(s.PeriodEndUnix, 0)
		m.PeriodEnd = &end
	}
	if plan != nil && GrantsMembership(s.Status) {
		m.Tier = plans.PlanTier(plan)
	}
	return m
}

// EnsureCustomer returns customerID, creating a Stripe customer when it is
// empty.
func (c *Client) EnsureCustomer(ctx context.Context, customerID, email string, userID uint, env string) (string, bool, error) {
	if customerID != "" {
		return customerID, false, nil
	}
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.AddMetadata("user_id", fmt.Sprint(userID))
	params.AddMetadata("app_env", env)
	params.Context = ctx
	cus, err := c.api.Customers.New(params)
	if err != nil {
		return "", false, fmt.Errorf("stripe.EnsureCustomer: %w", err)
	}
	return cus.ID, true, nil
}

type SubscriptionCheckout struct {
	CustomerID string
	PriceID    string
	UserID     uint
	PlanID     uint
	SuccessURL string
	CancelURL  string
}

// NewSubscriptionCheckout opens a hosted checkout for a membership plan and
// returns its URL.
func (c *Client) NewSubscriptionCheckout(ctx context.Context, in SubscriptionCheckout) (string, error) {
	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(in.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(fmt.Sprint(in.UserID)),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": fmt.Sprint(in.UserID),
				"plan_id": fmt.Sprint(in.PlanID),
			},
		},
	}
	params.Context = ctx
	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe.NewSubscriptionCheckout: %w", err)
	}
	return s.URL, nil
}

func (c *Client) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	p, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe.PortalURL: %w", err)
	}
	return p.URL, nil
}

func (c *Client) Subscription(ctx context.Context, id string) (Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe.Subscription: %w", err)
	}
	return FromStripeSubscription(s), nil
}

// Upgrade swaps the subscription's price now, prorated.
func (c *Client) Upgrade(ctx context.Context, sub Subscription, priceID string) (Subscription, error) {
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(sub.ItemID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	s, err := c.api.Subscriptions.Update(sub.ID, params)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe.Upgrade: %w", err)
	}
	return FromStripeSubscription(s), nil
}

// ScheduleDowngrade keeps the current price until the period ends and
// switches to priceID after that. It returns the schedule id.
func (c *Client) ScheduleDowngrade(ctx context.Context, sub Subscription, priceID string) (string, error) {
	scheduleID := sub.ScheduleID
	if scheduleID == "" {
		params := &stripe.SubscriptionScheduleParams{FromSubscription: stripe.String(sub.ID)}
		params.Context = ctx
		schedule, err := c.api.SubscriptionSchedules.New(params)
		if err != nil {
			return "", fmt.Errorf("stripe.ScheduleDowngrade: create: %w", err)
		}
		scheduleID = schedule.ID
	}

	params := &stripe.SubscriptionScheduleParams{
		EndBehavior: stripe.String("release"),
		Phases: []*stripe.SubscriptionSchedulePhaseParams{
			{
				StartDate: stripe.Int64(sub.PeriodStartUnix),
				EndDate:   stripe.Int64(sub.PeriodEndUnix),
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{Price: stripe.String(sub.PriceID), Quantity: stripe.Int64(1)},
				},
			},
			{
				StartDate: stripe.Int64(sub.PeriodEndUnix),
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
				},
			},
		},
	}
	params.Context = ctx
	if _, err := c.api.SubscriptionSchedules.Update(scheduleID, params); err != nil {
		return "", fmt.Errorf("stripe.ScheduleDowngrade: phases: %w", err)
	}
	return scheduleID, nil
}

func (c *Client) ReleaseSchedule(ctx context.Context, scheduleID string) error {
	params := &stripe.SubscriptionScheduleReleaseParams{}
	params.Context = ctx
	if _, err := c.api.SubscriptionSchedules.Release(scheduleID, params); err != nil {
		return fmt.Errorf("stripe.ReleaseSchedule: %w", err)
	}
	return nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := c.api.Subscriptions.Cancel(id, params); err != nil {
		return fmt.Errorf("stripe.CancelSubscription: %w", err)
	}
	return nil
}

// CompletedSession is a finished hosted checkout with its subscription.
type CompletedSession struct {
	ID                string
	CustomerID        string
	ClientReferenceID string
	AmountTotal       int64
	Subscription      Subscription
}

// CompletedSession loads a checkout session with its subscription expanded.
func (c *Client) CompletedSession(ctx context.Context, sessionID string) (CompletedSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("subscription")
	params.AddExpand("customer")
	params.Context = ctx
	s, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return CompletedSession{}, fmt.Errorf("stripe.CompletedSession: %w", err)
	}
	if s.Subscription == nil || s.Subscription.ID == "" {
		return CompletedSession{}, fmt.Errorf("stripe.CompletedSession: session %s has no subscription", sessionID)
	}

	sub, err := c.Subscription(ctx, s.Subscription.ID)
	if err != nil {
		return CompletedSession{}, err
	}
	out := CompletedSession{
		ID:                s.ID,
		ClientReferenceID: s.ClientReferenceID,
		AmountTotal:       s.AmountTotal,
		Subscription:      sub,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	return out, nil
}

// RecurringPrices lists active recurring prices, optionally of one product.
func (c *Client) RecurringPrices(ctx context.Context, productID string) ([]Price, error) {
	params := &stripe.PriceListParams{}
	params.Active = stripe.Bool(true)
	params.Type = stripe.String("recurring")
	if productID != "" {
		params.Product = stripe.String(productID)
	}
	params.AddExpand("data.product")
	params.Context = ctx

	var out []Price
	it := c.api.Prices.List(params)
	for it.Next() {
		p := it.Price()
		if !p.Active || p.Recurring == nil || p.Product == nil || !p.Product.Active {
			continue
		}
		out = append(out, Price{
			ID:          p.ID,
			ProductID:   p.Product.ID,
			ProductName: p.Product.Name,
			AmountCents: p.UnitAmount,
			Currency:    string(p.Currency),
			Interval:    string(p.Recurring.Interval),
			Metadata:    p.Metadata,
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe.RecurringPrices: %w", err)
	}
	return out, nil
}

// UserIDFromMetadata reads metadata.user_id, falling back to ref.
func UserIDFromMetadata(md map[string]string, ref string) uint {
	s := md["user_id"]
	if s == "" {
		s = ref
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
