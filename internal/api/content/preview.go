package content

import (
	"fmt"
	"net/http"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/access"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/preview"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	previewCookie    = "preview_id"
	previewCookieAge = 30 * 24 * 60 * 60
)

type previewResponse struct {
	preview.Snapshot
	Media         []content.MediaRef `json:"media,omitempty"`
	LoginRequired bool               `json:"login_required,omitempty"`
	Redirect      string             `json:"redirect,omitempty"`
}

// viewer identifies who is previewing: the account when logged in, else a
// random id kept in a cookie.
func viewer(c *gin.Context, s access.Subject, create bool) string {
	if s.Authenticated {
		return fmt.Sprintf("u%d", s.UserID)
	}
	if id, err := c.Cookie(previewCookie); err == nil && id != "" {
		return id
	}
	if !create {
		return ""
	}
	id := uuid.NewString()
	c.SetCookie(previewCookie, id, previewCookieAge, "/", "", false, true)
	return id
}

func previewBody(item *content.Item, snap preview.Snapshot, s access.Subject) previewResponse {
	resp := previewResponse{Snapshot: snap}
	switch snap.State {
	case preview.Playing:
		resp.Media = item.Media
	case preview.Ended:
		resp.LoginRequired = true
		resp.Redirect = access.Redirect(s, access.Preview)
	}
	if snap.Decision == access.Denied {
		resp.Redirect = access.Redirect(s, access.Denied)
	}
	return resp
}

func (h *Handler) previewItem(c *gin.Context) (*content.Item, access.Subject, access.Decision, bool) {
	item, err := h.store.PublishedBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return nil, access.Subject{}, access.Denied, false
	}
	s, d, err := h.decide(c, item)
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return nil, s, d, false
	}
	if d == access.Denied {
		apperr.Respond(c, apperr.AccessDenied("This content is not available on your membership", access.Redirect(s, d)), "")
		return nil, s, d, false
	}
	return item, s, d, true
}

// POST /content/:slug/preview
func (h *Handler) StartPreview(c *gin.Context) {
	item, s, d, ok := h.previewItem(c)
	if !ok {
		return
	}

	snap, err := h.previews.Start(c.Request.Context(), viewer(c, s, true), item, d, s.Authenticated)
	if err != nil {
		h.log.Error("preview start failed", zap.String("slug", item.Slug), zap.Error(err))
		apperr.Respond(c, apperr.Network("Preview is temporarily unavailable", err), "")
		return
	}
	h.rec.RecordPreview(string(snap.State))
	c.JSON(http.StatusOK, previewBody(item, snap, s))
}

// GET /content/:slug/preview
func (h *Handler) PreviewStatus(c *gin.Context) {
	item, s, d, ok := h.previewItem(c)
	if !ok {
		return
	}

	snap, err := h.previews.Status(c.Request.Context(), viewer(c, s, false), item, d, s.Authenticated)
	if err != nil {
		apperr.Respond(c, apperr.Network("Preview is temporarily unavailable", err), "")
		return
	}
	c.JSON(http.StatusOK, previewBody(item, snap, s))
}

// GET /content/:slug/preview/events streams "playing" then "ended" as
// server-sent events. Only an anonymous preview ever ends.
func (h *Handler) PreviewEvents(c *gin.Context) {
	item, s, d, ok := h.previewItem(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	snap, err := h.previews.Status(ctx, viewer(c, s, false), item, d, s.Authenticated)
	if err != nil {
		apperr.Respond(c, apperr.Network("Preview is temporarily unavailable", err), "")
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	if snap.State != preview.Playing {
		c.SSEvent(string(snap.State), previewBody(item, snap, s))
		c.Writer.Flush()
		return
	}

	ended := make(chan struct{}, 1)
	ctrl := preview.NewController(preview.PlayerFunc(func() {
		h.rec.RecordPreview(string(preview.Ended))
		ended <- struct{}{}
	}))
	startedAt := h.now()
	if snap.StartedAt != nil {
		startedAt = *snap.StartedAt
	}
	ctrl.Mount(d, s.Authenticated, item.PreviewWindow(), startedAt)
	defer ctrl.Unmount()

	c.SSEvent(string(preview.Playing), previewBody(item, snap, s))
	c.Writer.Flush()

	if ctrl.Watch(ctx) != preview.Ended {
		return
	}
	<-ended
	final := snap
	final.State = preview.Ended
	final.RemainingSeconds = 0
	c.SSEvent(string(preview.Ended), previewBody(item, final, s))
	c.Writer.Flush()
}
