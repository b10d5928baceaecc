package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/checkout"

	"github.com/gin-gonic/gin"
)

// Flow is the checkout orchestrator as the handler uses it.
type Flow interface {
	Begin(ctx context.Context, buyer checkout.Buyer, seed checkout.Seed) (*checkout.Result, error)
	Submit(ctx context.Context, buyer checkout.Buyer, seed checkout.Seed, form checkout.Form) (*checkout.Result, error)
}

type Orders interface {
	ByReferenceForUser(ctx context.Context, ref string, userID uint) (*billing.Order, error)
}

type Handler struct {
	flow   Flow
	orders Orders
}

func NewHandler(flow Flow, orders Orders) *Handler {
	return &Handler{flow: flow, orders: orders}
}

type submitInput struct {
	Category   string      `json:"category"`
	Amount     json.Number `json:"amount"`
	AccessType string      `json:"accessType"`
	Item       string      `json:"item"`
	checkout.Form
}

func buyer(c *gin.Context) checkout.Buyer {
	u := middleware.CurrentUser(c)
	if u == nil {
		return checkout.Buyer{UserID: middleware.UserID(c)}
	}
	b := checkout.Buyer{
		UserID: u.ID,
		Email:  u.Email,
		Name:   strings.TrimSpace(u.Name + " " + u.Lastname),
	}
	if u.StripeCustomerID != nil {
		b.StripeCustomerID = *u.StripeCustomerID
	}
	return b
}

// writeResult sends res with the status of err. Failed and invalid
// submissions still carry the result so the form can be redrawn.
func writeResult(c *gin.Context, res *checkout.Result, err error, fallback string) {
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}
	if res == nil {
		apperr.Respond(c, err, fallback)
		return
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		apperr.Respond(c, err, fallback)
		return
	}
	body := gin.H{
		"error":  ae.Message,
		"kind":   ae.Kind,
		"result": res,
	}
	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	c.JSON(apperr.Status(ae.Kind), body)
}

// GET /checkout?amount=&category=&accessType=&item=
func (h *Handler) Begin(c *gin.Context) {
	seed, err := checkout.ParseSeed(c.Query("amount"), c.Query("category"), c.Query("accessType"), c.Query("item"))
	if err != nil {
		apperr.Respond(c, err, "")
		return
	}
	res, err := h.flow.Begin(c.Request.Context(), buyer(c), seed)
	writeResult(c, res, err, "Failed to start checkout")
}

// POST /checkout
func (h *Handler) Submit(c *gin.Context) {
	var input submitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seed, err := checkout.ParseSeed(input.Amount.String(), input.Category, input.AccessType, input.Item)
	if err != nil {
		apperr.Respond(c, err, "")
		return
	}
	res, err := h.flow.Submit(c.Request.Context(), buyer(c), seed, input.Form)
	writeResult(c, res, err, "Checkout failed")
}

// GET /checkout/confirmation/:ref
func (h *Handler) Confirmation(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == 0 {
		apperr.Respond(c, apperr.AuthRequired("Login required"), "")
		return
	}
	order, err := h.orders.ByReferenceForUser(c.Request.Context(), c.Param("ref"), userID)
	if err != nil {
		apperr.Respond(c, err, "Failed to load order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
