package content

import (
	"net/http"
	"strconv"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/access"
	"membership-portal/internal/domain/content"

	"github.com/gin-gonic/gin"
)

// course loads a published course the caller has full access to.
func (h *Handler) course(c *gin.Context) (*content.Item, bool) {
	item, err := h.store.PublishedBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		apperr.Respond(c, err, "Failed to load course")
		return nil, false
	}
	if item.Kind != content.KindCourse {
		apperr.Respond(c, apperr.NotFound("Course not found"), "")
		return nil, false
	}
	s, d, err := h.decide(c, item)
	if err != nil {
		apperr.Respond(c, err, "Failed to load course")
		return nil, false
	}
	if d != access.Full {
		apperr.Respond(c, apperr.AccessDenied("Register for this course to track progress", access.Redirect(s, d)), "")
		return nil, false
	}
	return item, true
}

// GET /courses/:slug/progress
func (h *Handler) Progress(c *gin.Context) {
	item, ok := h.course(c)
	if !ok {
		return
	}
	report, err := h.progress.ForCourse(c.Request.Context(), middleware.UserID(c), item)
	if err != nil {
		apperr.Respond(c, err, "Failed to load progress")
		return
	}
	c.JSON(http.StatusOK, report)
}

// POST /courses/:slug/components/:component/complete
func (h *Handler) Complete(c *gin.Context) { h.mark(c, true) }

// DELETE /courses/:slug/components/:component/complete
func (h *Handler) Uncomplete(c *gin.Context) { h.mark(c, false) }

func (h *Handler) mark(c *gin.Context, done bool) {
	item, ok := h.course(c)
	if !ok {
		return
	}
	componentID, err := strconv.ParseUint(c.Param("component"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component id"})
		return
	}

	owner, err := h.store.ComponentItem(c.Request.Context(), uint(componentID))
	if err != nil {
		apperr.Respond(c, err, "Failed to load component")
		return
	}
	if owner != item.ID {
		apperr.Respond(c, apperr.NotFound("Component not found"), "")
		return
	}

	userID := middleware.UserID(c)
	if done {
		err = h.progress.MarkComplete(c.Request.Context(), userID, item.ID, uint(componentID))
	} else {
		err = h.progress.Unmark(c.Request.Context(), userID, uint(componentID))
	}
	if err != nil {
		apperr.Respond(c, err, "Failed to update progress")
		return
	}

	report, err := h.progress.ForCourse(c.Request.Context(), userID, item)
	if err != nil {
		apperr.Respond(c, err, "Failed to load progress")
		return
	}
	c.JSON(http.StatusOK, report)
}
