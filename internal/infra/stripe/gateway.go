package stripe

import (
	"context"
	"errors"
	"strings"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/checkout"

	"github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

// Charge creates and confirms a PaymentIntent. The order reference is the
// idempotency key, so a retried request never charges twice.
func (c *Client) Charge(ctx context.Context, ch checkout.Charge) (*checkout.Payment, error) {
	methodID := ch.PaymentMethodID
	if methodID == "" {
		if ch.Card == nil {
			return nil, apperr.Field("card_number", "is required")
		}
		pmParams := &stripe.PaymentMethodParams{
			Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
			Card: &stripe.PaymentMethodCardParams{
				Number:   stripe.String(ch.Card.Number),
				ExpMonth: stripe.Int64(int64(ch.Card.ExpMonth)),
				ExpYear:  stripe.Int64(int64(ch.Card.ExpYear)),
				CVC:      stripe.String(ch.Card.CVC),
			},
			BillingDetails: &stripe.PaymentMethodBillingDetailsParams{
				Name:  stripe.String(ch.Billing.Name),
				Email: stripe.String(ch.Billing.Email),
				Address: &stripe.AddressParams{
					Line1:      stripe.String(ch.Billing.Address),
					Country:    stripe.String(ch.Billing.Country),
					PostalCode: stripe.String(ch.Billing.PostalCode),
				},
			},
		}
		pmParams.Context = ctx
		pm, err := c.api.PaymentMethods.New(pmParams)
		if err != nil {
			return nil, c.classify(err)
		}
		methodID = pm.ID
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(ch.AmountCents),
		Currency:           stripe.String(strings.ToLower(ch.Currency)),
		PaymentMethod:      stripe.String(methodID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(ch.Description),
		ReceiptEmail:       stripe.String(ch.Billing.Email),
	}
	if ch.CustomerID != "" {
		params.Customer = stripe.String(ch.CustomerID)
	}
	for k, v := range ch.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_charge")
	params.SetIdempotencyKey(ch.Reference)
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, c.classify(err)
	}

	payment := &checkout.Payment{ID: pi.ID, Status: normalizeIntentStatus(pi.Status)}
	if pi.LatestCharge != nil {
		payment.ReceiptURL = pi.LatestCharge.ReceiptURL
	}
	return payment, nil
}

// Ready checks that the key works by reading the account balance.
func (c *Client) Ready(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	_, err := c.api.Balance.Get(params)
	return err
}

func normalizeIntentStatus(s stripe.PaymentIntentStatus) string {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return checkout.PaymentSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return checkout.PaymentProcessing
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return checkout.PaymentRequiresAction
	default:
		return string(s)
	}
}

// classify turns a Stripe error into the service taxonomy. Card errors keep
// Stripe's message, which is written for the cardholder; everything else
// gets a generic one.
func (c *Client) classify(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Type == stripe.ErrorTypeCard {
			return apperr.PaymentDeclined(se.Msg, err)
		}
		c.log.Warn("stripe request failed",
			zap.String("type", string(se.Type)),
			zap.String("code", string(se.Code)),
			zap.String("request_id", se.RequestID),
			zap.Int("status", se.HTTPStatusCode))
		return apperr.Network("", err)
	}
	c.log.Warn("stripe unreachable", zap.Error(err))
	return apperr.Network("", err)
}
