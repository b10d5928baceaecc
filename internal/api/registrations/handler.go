package registrations

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/access"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/registrations"

	"github.com/gin-gonic/gin"
)

type Catalog interface {
	PublishedBySlug(ctx context.Context, slug string) (*content.Item, error)
	ByID(ctx context.Context, id uint) (*content.Item, error)
}

type Handler struct {
	writer  *registrations.Writer
	catalog Catalog
	now     func() time.Time
}

func NewHandler(writer *registrations.Writer, catalog Catalog) *Handler {
	return &Handler{writer: writer, catalog: catalog, now: time.Now}
}

type registrationView struct {
	registrations.Registration
	Active bool `json:"active"`
}

// GET /registrations
func (h *Handler) Mine(c *gin.Context) {
	userID := middleware.UserID(c)
	regs, err := h.writer.ListForUser(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err, "Failed to load registrations")
		return
	}

	now := h.now()
	out := make([]registrationView, 0, len(regs))
	for _, r := range regs {
		out = append(out, registrationView{Registration: r, Active: r.ActiveAt(now)})
	}
	c.JSON(http.StatusOK, gin.H{"registrations": out})
}

type selfInput struct {
	Item string `json:"item" binding:"required"`
}

// POST /registrations registers the caller for a free item their tier
// allows. Paid items go through checkout.
func (h *Handler) Register(c *gin.Context) {
	var input selfInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.catalog.PublishedBySlug(c.Request.Context(), strings.TrimSpace(input.Item))
	if err != nil {
		apperr.Respond(c, err, "Failed to load item")
		return
	}
	if !item.Free() {
		apperr.Respond(c, apperr.Field("item", "is not free, use checkout"), "")
		return
	}
	s := middleware.Subject(c)
	if d := access.CanAccess(s, *item); d != access.Full {
		apperr.Respond(c, apperr.AccessDenied("Your membership does not include this item", access.Redirect(s, d)), "")
		return
	}

	reg, err := h.writer.GrantAccess(c.Request.Context(), s.UserID, item.ID, registrations.Lifetime, nil)
	if err != nil {
		apperr.Respond(c, err, "Failed to register")
		return
	}
	c.JSON(http.StatusCreated, reg)
}

type grantInput struct {
	UserID          uint       `json:"user_id" binding:"required"`
	ItemID          uint       `json:"item_id" binding:"required"`
	AccessType      string     `json:"access_type"`
	AccessExpiresAt *time.Time `json:"access_expires_at"`
}

// POST /admin/registrations
func (h *Handler) Grant(c *gin.Context) {
	var input grantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accessType, ok := registrations.ParseAccessType(strings.ToLower(input.AccessType))
	if !ok {
		apperr.Respond(c, apperr.Field("access_type", "must be lifetime or limited"), "")
		return
	}
	if _, err := h.catalog.ByID(c.Request.Context(), input.ItemID); err != nil {
		apperr.Respond(c, err, "Failed to load item")
		return
	}

	reg, err := h.writer.GrantAccess(c.Request.Context(), input.UserID, input.ItemID, accessType, input.AccessExpiresAt)
	if err != nil {
		apperr.Respond(c, err, "Failed to grant access")
		return
	}
	c.JSON(http.StatusOK, reg)
}

type statusInput struct {
	Status   string `json:"status" binding:"required"`
	Override bool   `json:"override"`
}

// PATCH /admin/registrations/:id/status
func (h *Handler) SetStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return
	}
	var input statusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg, err := h.writer.SetStatus(c.Request.Context(), uint(id), registrations.Status(strings.ToLower(input.Status)), input.Override)
	if err != nil {
		apperr.Respond(c, err, "Failed to update registration")
		return
	}
	c.JSON(http.StatusOK, reg)
}
