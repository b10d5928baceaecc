package plans

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PriceSource lists the recurring prices plans are synced from.
type PriceSource interface {
	RecurringPrices(ctx context.Context, productID string) ([]stripe.Price, error)
}

type Handler struct {
	db        *gorm.DB
	prices    PriceSource
	productID string
	currency  string
	log       *zap.Logger
}

func NewHandler(db *gorm.DB, prices PriceSource, productID, currency string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{db: db, prices: prices, productID: productID, currency: strings.ToLower(currency), log: log}
}

type SyncResult struct {
	Synced  int `json:"synced"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// tierOf reads the tier a price sells from its metadata. Prices without a
// recognised tier are left to inference by amount.
func tierOf(md map[string]string) plans.Tier {
	for _, key := range []string{"tier", "plan"} {
		if t, ok := plans.LookupTier(md[key]); ok && t != plans.TierFree {
			return t
		}
	}
	return ""
}

// Sync upserts a plan per active recurring price, keyed by Stripe price id.
func (h *Handler) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	prices, err := h.prices.RecurringPrices(ctx, h.productID)
	if err != nil {
		return res, apperr.Network("Failed to fetch Stripe prices", err)
	}

	for _, p := range prices {
		if h.currency != "" && !strings.EqualFold(p.Currency, h.currency) {
			res.Skipped++
			continue
		}
		if p.Metadata["visible"] == "false" {
			res.Skipped++
			continue
		}

		name := p.ProductName
		if v := p.Metadata["name"]; v != "" {
			name = v
		}
		tier := tierOf(p.Metadata)

		var existing plans.Plan
		err := h.db.WithContext(ctx).Where("stripe_price_id = ?", p.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			plan := plans.Plan{
				Name:            name,
				PriceCents:      p.AmountCents,
				Currency:        strings.ToLower(p.Currency),
				StripePriceID:   p.ID,
				StripeProductID: p.ProductID,
				Interval:        p.Interval,
				Tier:            tier,
			}
			if err := h.db.WithContext(ctx).Create(&plan).Error; err != nil {
				return res, err
			}
			res.Created++
		case err != nil:
			return res, err
		default:
			existing.Name = name
			existing.PriceCents = p.AmountCents
			existing.Currency = strings.ToLower(p.Currency)
			existing.StripeProductID = p.ProductID
			existing.Interval = p.Interval
			if tier != "" {
				existing.Tier = tier
			}
			if err := h.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return res, err
			}
			res.Updated++
		}
		res.Synced++
	}
	return res, nil
}

// POST /admin/plans/sync
func (h *Handler) SyncFromStripe(c *gin.Context) {
	res, err := h.Sync(c.Request.Context())
	if err != nil {
		h.log.Error("plan sync failed", zap.Error(err))
		apperr.Respond(c, err, "Failed to sync plans")
		return
	}
	h.log.Info("plans synced",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped))
	c.JSON(http.StatusOK, res)
}

type PlanDTO struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	StripePriceID string `json:"stripe_price_id"`
}

// GET /plans
func (h *Handler) List(c *gin.Context) {
	var list []plans.Plan
	q := h.db.WithContext(c.Request.Context()).Model(&plans.Plan{})
	if h.productID != "" {
		q = q.Where("stripe_product_id = ?", h.productID)
	}
	if err := q.Order("price_cents ASC, id ASC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plans"})
		return
	}

	out := make([]PlanDTO, 0, len(list))
	for i := range list {
		p := list[i]
		out = append(out, PlanDTO{
			ID:            p.ID,
			Name:          p.Name,
			Tier:          string(plans.PlanTier(&p)),
			PriceCents:    p.PriceCents,
			Currency:      p.Currency,
			Interval:      p.Interval,
			StripePriceID: p.StripePriceID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}
