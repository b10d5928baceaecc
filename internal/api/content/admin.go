package content

import (
	"net/http"
	"strconv"
	"strings"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/plans"

	"github.com/gin-gonic/gin"
)

type ItemInput struct {
	Slug              string `json:"slug"`
	Kind              string `json:"kind" binding:"required"`
	Title             string `json:"title" binding:"required"`
	Summary           string `json:"summary"`
	Body              string `json:"body"`
	AccessLevel       string `json:"access_level"`
	PreviewDuration   int    `json:"preview_duration"`
	PriceCents        int64  `json:"price_cents"`
	LimitedPriceCents int64  `json:"limited_price_cents"`
	LimitedAccessDays int    `json:"limited_access_days"`
	Currency          string `json:"currency"`

	Media   []content.MediaRef    `json:"media"`
	Classes []content.CourseClass `json:"classes"`
}

// ToItem validates the input and builds the catalog item.
func (in ItemInput) ToItem() (*content.Item, error) {
	fields := map[string]string{}

	kind := content.Kind(strings.ToLower(strings.TrimSpace(in.Kind)))
	if !kind.Valid() {
		fields["kind"] = "must be teaching, retreat, course or product"
	}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "is required"
	}

	level := plans.TierFree
	if in.AccessLevel != "" {
		t, ok := plans.LookupTier(in.AccessLevel)
		if !ok {
			fields["access_level"] = "unknown tier"
		}
		level = t
	}
	if in.PreviewDuration < 0 {
		fields["preview_duration"] = "must not be negative"
	}
	if in.PriceCents < 0 {
		fields["price_cents"] = "must not be negative"
	}
	if in.LimitedPriceCents < 0 {
		fields["limited_price_cents"] = "must not be negative"
	}
	if in.LimitedPriceCents > 0 && in.LimitedAccessDays <= 0 {
		fields["limited_access_days"] = "is required with a limited price"
	}
	if len(in.Classes) > 0 && kind != content.KindCourse {
		fields["classes"] = "only courses have classes"
	}
	for _, m := range in.Media {
		if m.Provider == "" || m.ExternalID == "" {
			fields["media"] = "every media reference needs a provider and external_id"
			break
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &content.Item{
		Slug:              strings.TrimSpace(in.Slug),
		Kind:              kind,
		Title:             strings.TrimSpace(in.Title),
		Summary:           in.Summary,
		Body:              in.Body,
		AccessLevel:       level,
		PreviewDuration:   in.PreviewDuration,
		PriceCents:        in.PriceCents,
		LimitedPriceCents: in.LimitedPriceCents,
		LimitedAccessDays: in.LimitedAccessDays,
		Currency:          currency,
		Media:             in.Media,
		Classes:           in.Classes,
	}, nil
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// GET /admin/content
func (h *Handler) AdminList(c *gin.Context) {
	items, err := h.store.List(c.Request.Context(), content.Filter{
		Kind:               content.Kind(c.Query("kind")),
		IncludeUnpublished: true,
	})
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GET /admin/content/:id
func (h *Handler) AdminGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.store.ByID(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return
	}
	c.JSON(http.StatusOK, item)
}

// POST /admin/content
func (h *Handler) Create(c *gin.Context) {
	var input ItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := input.ToItem()
	if err != nil {
		apperr.Respond(c, err, "")
		return
	}
	if err := h.store.Create(c.Request.Context(), item); err != nil {
		apperr.Respond(c, err, "Failed to create content")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// PUT /admin/content/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var input ItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := input.ToItem()
	if err != nil {
		apperr.Respond(c, err, "")
		return
	}
	item.ID = id
	if err := h.store.Update(c.Request.Context(), item); err != nil {
		apperr.Respond(c, err, "Failed to update content")
		return
	}

	updated, err := h.store.ByID(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// POST /admin/content/:id/publish
func (h *Handler) Publish(c *gin.Context) { h.setPublished(c, true) }

// POST /admin/content/:id/unpublish
func (h *Handler) Unpublish(c *gin.Context) { h.setPublished(c, false) }

func (h *Handler) setPublished(c *gin.Context, published bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.store.SetPublished(c.Request.Context(), id, published, h.now())
	if err != nil {
		apperr.Respond(c, err, "Failed to update content")
		return
	}
	c.JSON(http.StatusOK, item)
}
