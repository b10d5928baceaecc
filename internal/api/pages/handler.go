package pagesapi

import (
	"net/http"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/pages"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	store *pages.Store
	log   *zap.Logger
}

func NewHandler(store *pages.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, log: log}
}

// GET /pages
// Pages above the caller's tier are listed as locked without sections.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context(), false)
	if err != nil {
		apperr.Respond(c, err, "Failed to load pages")
		return
	}

	tier := middleware.Subject(c).Tier
	out := ListPagesResponse{Pages: make([]PageDTO, 0, len(list))}
	for _, p := range list {
		dto := toDTO(p, false)
		dto.Locked = !p.VisibleTo(tier)
		out.Pages = append(out.Pages, dto)
	}
	c.JSON(http.StatusOK, out)
}

// GET /pages/:slug
func (h *Handler) Get(c *gin.Context) {
	p, err := h.store.BySlug(c.Request.Context(), c.Param("slug"), false)
	if err != nil {
		apperr.Respond(c, err, "Failed to load page")
		return
	}

	s := middleware.Subject(c)
	if !p.VisibleTo(s.Tier) {
		redirect := "/membership"
		if !s.Authenticated {
			redirect = "/signup"
		}
		apperr.Respond(c, apperr.AccessDenied("Your membership does not include this page", redirect), "")
		return
	}
	c.JSON(http.StatusOK, GetPageResponse{Page: toDTO(*p, true)})
}

// GET /admin/pages
func (h *Handler) AdminList(c *gin.Context) {
	list, err := h.store.List(c.Request.Context(), true)
	if err != nil {
		apperr.Respond(c, err, "Failed to load pages")
		return
	}
	out := ListPagesResponse{Pages: make([]PageDTO, 0, len(list))}
	for _, p := range list {
		out.Pages = append(out.Pages, toDTO(p, false))
	}
	c.JSON(http.StatusOK, out)
}

// GET /admin/pages/:slug
func (h *Handler) AdminGet(c *gin.Context) {
	p, err := h.store.BySlug(c.Request.Context(), c.Param("slug"), true)
	if err != nil {
		apperr.Respond(c, err, "Failed to load page")
		return
	}
	c.JSON(http.StatusOK, GetPageResponse{Page: toDTO(*p, true)})
}

// PUT /admin/pages
func (h *Handler) Save(c *gin.Context) {
	var form pages.PageForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := pages.ToPage(form)
	if err != nil {
		apperr.Respond(c, err, "")
		return
	}
	if err := h.store.Upsert(c.Request.Context(), p); err != nil {
		apperr.Respond(c, err, "Failed to save page")
		return
	}

	h.log.Info("page saved",
		zap.String("slug", p.Slug),
		zap.String("status", p.Status),
		zap.Int("sections", len(p.Sections)),
		zap.Uint("admin_id", middleware.UserID(c)))
	c.JSON(http.StatusOK, GetPageResponse{Page: toDTO(*p, true)})
}

// DELETE /admin/pages/:slug
func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("slug")); err != nil {
		apperr.Respond(c, err, "Failed to delete page")
		return
	}
	c.Status(http.StatusNoContent)
}
