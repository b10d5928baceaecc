package content

import (
	"context"
	"net/http"
	"time"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/access"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/preview"
	"membership-portal/internal/domain/progress"
	"membership-portal/internal/domain/registrations"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Grants reads a user's registrations. It must not cache: a grant written
// by checkout has to be visible on the very next request.
type Grants interface {
	ForUserItem(ctx context.Context, userID, itemID uint) ([]registrations.Registration, error)
	ListForUser(ctx context.Context, userID uint) ([]registrations.Registration, error)
}

type Recorder interface {
	RecordPreview(state string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPreview(string) {}

type Handler struct {
	store    *content.Store
	grants   Grants
	previews *preview.Sessions
	progress *progress.Service
	rec      Recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewHandler(store *content.Store, grants Grants, previews *preview.Sessions, prog *progress.Service, rec Recorder, log *zap.Logger) *Handler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Handler{store: store, grants: grants, previews: previews, progress: prog, rec: rec, log: log, now: time.Now}
}

type itemView struct {
	content.Item
	Decision access.Decision `json:"decision"`
	Redirect string          `json:"redirect,omitempty"`
}

// view strips what the decision does not allow: media references, the body
// and component sources are only handed out with full access.
func view(item content.Item, d access.Decision, s access.Subject) itemView {
	v := itemView{Item: item, Decision: d, Redirect: access.Redirect(s, d)}
	if d == access.Full {
		return v
	}
	v.Body = ""
	v.Media = nil
	v.Classes = outline(item.Classes)
	return v
}

func outline(classes []content.CourseClass) []content.CourseClass {
	if len(classes) == 0 {
		return nil
	}
	out := make([]content.CourseClass, len(classes))
	for i, cl := range classes {
		out[i] = cl
		out[i].Components = make([]content.CourseComponent, len(cl.Components))
		for j, comp := range cl.Components {
			comp.Provider = ""
			comp.ExternalID = ""
			out[i].Components[j] = comp
		}
	}
	return out
}

// decide evaluates the caller against item using fresh registrations.
func (h *Handler) decide(c *gin.Context, item *content.Item) (access.Subject, access.Decision, error) {
	s := middleware.Subject(c)
	var grants []registrations.Registration
	if s.Authenticated {
		var err error
		grants, err = h.grants.ForUserItem(c.Request.Context(), s.UserID, item.ID)
		if err != nil {
			return s, access.Denied, err
		}
	}
	return s, access.Evaluate(h.now(), s, *item, grants), nil
}

// GET /content?kind=
func (h *Handler) List(c *gin.Context) {
	kind := content.Kind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		apperr.Respond(c, apperr.Field("kind", "unknown content kind"), "")
		return
	}

	items, err := h.store.List(c.Request.Context(), content.Filter{Kind: kind})
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return
	}

	s := middleware.Subject(c)
	var grants []registrations.Registration
	if s.Authenticated {
		grants, err = h.grants.ListForUser(c.Request.Context(), s.UserID)
		if err != nil {
			apperr.Respond(c, err, "Failed to load content")
			return
		}
	}

	now := h.now()
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		d := access.Evaluate(now, s, item, grants)
		v := view(item, d, s)
		v.Body = ""
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// GET /content/:slug
func (h *Handler) Detail(c *gin.Context) {
	item, err := h.store.PublishedBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return
	}

	s, d, err := h.decide(c, item)
	if err != nil {
		apperr.Respond(c, err, "Failed to load content")
		return
	}
	c.JSON(http.StatusOK, view(*item, d, s))
}
