package users

import (
	"context"
	"net/http"
	"strings"
	"time"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/domain/users"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RegistrationLister interface {
	ListForUser(ctx context.Context, userID uint) ([]registrations.Registration, error)
}

type Handler struct {
	db   *gorm.DB
	regs RegistrationLister
	now  func() time.Time
}

func NewHandler(db *gorm.DB, regs RegistrationLister) *Handler {
	return &Handler{db: db, regs: regs, now: time.Now}
}

// GET /me
func (h *Handler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		apperr.Respond(c, apperr.AuthRequired("Unauthorized"), "")
		return
	}

	regs, err := h.regs.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		apperr.Respond(c, err, "Failed to load registrations")
		return
	}

	now := h.now()
	c.JSON(http.StatusOK, MeResponse{
		User: toUserDTO(*user),
		Billing: BillingDTO{
			Plan:          BuildPlanDTO(user.Plan),
			Subscription:  BuildSubscriptionDTO(*user),
			PendingChange: BuildPendingChangeDTO(*user),
		},
		Access: AccessDTO{
			Tier:          string(user.EffectiveTier()),
			ActiveMember:  activeMember(now, *user),
			Registrations: BuildRegistrationDTOs(now, regs),
		},
	})
}

// PATCH /me
func (h *Handler) UpdateProfile(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		apperr.Respond(c, apperr.AuthRequired("Unauthorized"), "")
		return
	}

	var input struct {
		Name     *string `json:"name"`
		Lastname *string `json:"lastname"`
		Tel      *string `json:"tel"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			apperr.Respond(c, apperr.Field("name", "cannot be empty"), "")
			return
		}
		updates["name"] = name
		user.Name = name
	}
	if input.Lastname != nil {
		updates["lastname"] = strings.TrimSpace(*input.Lastname)
		user.Lastname = strings.TrimSpace(*input.Lastname)
	}
	if input.Tel != nil {
		updates["tel"] = strings.TrimSpace(*input.Tel)
		user.Tel = strings.TrimSpace(*input.Tel)
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(&users.User{}).
			Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserDTO(*user)})
}

func toUserDTO(u users.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Lastname:     u.Lastname,
		Tel:          stringPtrIfNotEmpty(u.Tel),
		Role:         u.Role,
		IsVerified:   u.IsVerified,
		AuthProvider: u.AuthProvider,
	}
}

func stringPtrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
