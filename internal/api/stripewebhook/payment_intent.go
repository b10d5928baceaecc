package stripewebhooks

import (
	"context"

	"membership-portal/internal/domain/billing"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

// orderForIntent finds the order a card payment belongs to. Checkouts that
// died before storing the intent id are found by the reference in metadata.
func (h *Handler) orderForIntent(ctx context.Context, pi *stripeapi.PaymentIntent) (*billing.Order, error) {
	order, err := h.orders.ByPaymentIntent(ctx, pi.ID)
	if err == nil {
		return order, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	ref := pi.Metadata["order_reference"]
	if ref == "" {
		return nil, errIgnore
	}
	order, err = h.orders.ByReference(ctx, ref)
	if isNotFound(err) {
		return nil, errIgnore
	}
	if err != nil {
		return nil, err
	}
	if err := h.orders.AttachPaymentIntent(ctx, order.ID, pi.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (h *Handler) paymentSucceeded(ctx context.Context, pi *stripeapi.PaymentIntent) error {
	order, err := h.orderForIntent(ctx, pi)
	if err != nil {
		return err
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ReceiptURL != "" {
		receipt := pi.LatestCharge.ReceiptURL
		order.ReceiptURL = &receipt
	}
	if err := h.fulfil.Fulfil(ctx, order); err != nil {
		return err
	}
	h.log.Info("order fulfilled from webhook", zap.String("order", order.Reference))
	return nil
}

func (h *Handler) paymentFailed(ctx context.Context, pi *stripeapi.PaymentIntent) error {
	order, err := h.orderForIntent(ctx, pi)
	if err != nil {
		return err
	}
	message := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		message = pi.LastPaymentError.Msg
	}
	moved, err := h.orders.Transition(ctx, order.ID, billing.StatusCancelled, map[string]interface{}{
		"failure_message": message,
	})
	if err != nil {
		return err
	}
	if moved {
		h.log.Info("order cancelled from webhook", zap.String("order", order.Reference))
	}
	return nil
}
