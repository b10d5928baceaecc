package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"membership-portal/config"
	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	verificationTTL = 48 * time.Hour
	resetTTL        = time.Hour
)

type Handler struct {
	db     *gorm.DB
	users  *users.Store
	tokens *users.Tokens
	mailer Mailer
	cfg    *config.Config
	log    *zap.Logger
	now    func() time.Time

	// verifyIDToken is swapped in tests; it defaults to Google's OIDC verifier.
	verifyIDToken func(ctx context.Context, raw string) (*googleIDClaims, error)
}

func NewHandler(db *gorm.DB, store *users.Store, tokens *users.Tokens, mailer Mailer, cfg *config.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{db: db, users: store, tokens: tokens, mailer: mailer, cfg: cfg, log: log, now: time.Now}
	h.verifyIDToken = h.verifyGoogleIDToken
	return h
}

func isPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter := false
	hasDigit := false
	for _, c := range password {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
			hasLetter = true
		case '0' <= c && c <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// issueToken replaces any token of the same type the user holds.
func (h *Handler) issueToken(ctx context.Context, userID uint, kind string, ttl time.Duration) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND type = ?", userID, kind).Delete(&users.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&users.VerificationToken{
			UserID:    userID,
			Token:     token,
			Type:      kind,
			ExpiresAt: h.now().Add(ttl),
		}).Error
	})
	if err != nil {
		return "", fmt.Errorf("auth.issueToken: %w", err)
	}
	return token, nil
}

func (h *Handler) verificationLink(token string) string {
	return fmt.Sprintf("%s/verify?token=%s", strings.TrimRight(h.cfg.AppURL, "/"), url.QueryEscape(token))
}

func (h *Handler) resetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(h.cfg.AppURL, "/"), url.QueryEscape(token))
}

// POST /register
func (h *Handler) Register(c *gin.Context) {
	var input struct {
		Name     string `json:"name" binding:"required"`
		Lastname string `json:"lastname" binding:"required"`
		Tel      string `json:"tel"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !isPasswordStrong(input.Password) {
		apperr.Respond(c, apperr.Field("password", "must be at least 8 characters long and contain both letters and numbers"), "")
		return
	}

	ctx := c.Request.Context()
	email := users.NormalizeEmail(input.Email)
	if _, err := h.users.ByEmail(ctx, email); err == nil {
		apperr.Respond(c, apperr.Conflict("Email already registered"), "")
		return
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		apperr.Respond(c, err, "Failed to register")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}
	password := string(hashed)

	user := users.User{
		Name:         strings.TrimSpace(input.Name),
		Lastname:     strings.TrimSpace(input.Lastname),
		Tel:          strings.TrimSpace(input.Tel),
		Email:        email,
		Password:     &password,
		AuthProvider: "local",
		Role:         users.RoleUser,
		Tier:         plans.TierFree,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		h.log.Error("register: insert user", zap.String("email", email), zap.Error(err))
		apperr.Respond(c, apperr.Conflict("Email already registered"), "")
		return
	}

	token, err := h.issueToken(ctx, user.ID, users.TokenEmailVerification, verificationTTL)
	if err != nil {
		h.log.Error("register: verification token", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create verification token"})
		return
	}
	if err := h.mailer.SendVerification(ctx, user.Email, h.verificationLink(token)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send verification email"})
		return
	}

	h.log.Info("user registered", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully. Please check your email to verify your account."})
}

// GET /verify
func (h *Handler) Verify(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing token"})
		return
	}

	ctx := c.Request.Context()
	var vt users.VerificationToken
	err := h.db.WithContext(ctx).
		Where("token = ? AND type = ?", token, users.TokenEmailVerification).
		First(&vt).Error
	if err != nil || vt.Expired(h.now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token"})
		return
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&users.User{}).Where("id = ?", vt.UserID).Update("is_verified", true).Error; err != nil {
			return err
		}
		return tx.Delete(&vt).Error
	})
	if err != nil {
		h.log.Error("verify email", zap.Uint("user_id", vt.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify user"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, strings.TrimRight(h.cfg.AppURL, "/")+"/signin")
}

// POST /login
func (h *Handler) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.ByEmail(c.Request.Context(), input.Email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			apperr.Respond(c, apperr.AuthRequired("Invalid credentials"), "")
			return
		}
		apperr.Respond(c, err, "Failed to log in")
		return
	}
	if user.DeactivatedAt != nil {
		apperr.Respond(c, apperr.AuthRequired("Account deactivated"), "")
		return
	}
	if user.Password == nil || *user.Password == "" {
		apperr.Respond(c, apperr.AuthRequired("This account uses Google sign-in"), "")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(input.Password)); err != nil {
		apperr.Respond(c, apperr.AuthRequired("Invalid credentials"), "")
		return
	}
	if !user.IsVerified {
		c.JSON(http.StatusForbidden, gin.H{"error": "Please verify your email before logging in"})
		return
	}

	token, err := h.tokens.Issue(*user)
	if err != nil {
		h.log.Error("login: issue token", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type emailInput struct {
	Email string `json:"email" binding:"required,email"`
}

// POST /resend-verification
func (h *Handler) ResendVerification(c *gin.Context) {
	var body emailInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid email"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.ByEmail(ctx, body.Email)
	if err != nil {
		apperr.Respond(c, err, "Failed to load user")
		return
	}
	if user.IsVerified {
		apperr.Respond(c, apperr.Conflict("User already verified"), "")
		return
	}

	token, err := h.issueToken(ctx, user.ID, users.TokenEmailVerification, verificationTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store verification token"})
		return
	}
	if err := h.mailer.SendVerification(ctx, user.Email, h.verificationLink(token)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send verification email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Verification email resent"})
}

const resetMessage = "If your email exists, you'll receive a reset link."

// POST /password-reset
// The answer is the same whether or not the email exists.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var body emailInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.ByEmail(ctx, body.Email)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			h.log.Error("password reset: load user", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"message": resetMessage})
		return
	}

	token, err := h.issueToken(ctx, user.ID, users.TokenPasswordReset, resetTTL)
	if err != nil {
		h.log.Error("password reset: token", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"message": resetMessage})
		return
	}
	if err := h.mailer.SendPasswordReset(ctx, user.Email, h.resetLink(token)); err != nil {
		h.log.Warn("password reset: send", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": resetMessage})
}

// POST /password-reset/confirm
func (h *Handler) ResetPassword(c *gin.Context) {
	var body struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !isPasswordStrong(body.NewPassword) {
		apperr.Respond(c, apperr.Field("new_password", "must be at least 8 characters with letters and numbers"), "")
		return
	}

	ctx := c.Request.Context()
	var reset users.VerificationToken
	err := h.db.WithContext(ctx).Where("token = ? AND type = ?", body.Token, users.TokenPasswordReset).First(&reset).Error
	if err != nil || reset.Expired(h.now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&users.User{}).Where("id = ?", reset.UserID).Update("password", string(hashed)).Error; err != nil {
			return err
		}
		return tx.Delete(&reset).Error
	})
	if err != nil {
		h.log.Error("password reset: update", zap.Uint("user_id", reset.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}

// POST /change-password
func (h *Handler) ChangePassword(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		apperr.Respond(c, apperr.AuthRequired("Unauthorized"), "")
		return
	}

	var body struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if !isPasswordStrong(body.NewPassword) {
		apperr.Respond(c, apperr.Field("new_password", "must be at least 8 characters with letters and numbers"), "")
		return
	}
	if user.Password == nil || *user.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "This account does not have a password. Sign in with Google or set a password first.",
		})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(body.OldPassword)); err != nil {
		apperr.Respond(c, apperr.AuthRequired("Old password is incorrect"), "")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&users.User{}).
		Where("id = ?", user.ID).Update("password", string(hashed)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}
