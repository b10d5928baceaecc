package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"
)

const (
	stateCookie  = "oauth_state"
	googleIssuer = "https://accounts.google.com"
)

var errNoGoogle = errors.New("google sign-in is not configured")

func (h *Handler) googleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.cfg.GoogleClientID,
		ClientSecret: h.cfg.GoogleClientSecret,
		RedirectURL:  h.cfg.GoogleRedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GET /auth/google
func (h *Handler) GoogleStart(c *gin.Context) {
	if !h.cfg.GoogleEnabled() {
		apperr.Respond(c, apperr.NotFound(errNoGoogle.Error()), "")
		return
	}
	state, err := randomState()
	if err != nil {
		apperr.Respond(c, err, "Could not start Google sign-in")
		return
	}

	c.SetCookie(stateCookie, state, 300, "/", "", h.cfg.IsProduction(), true)
	c.Redirect(http.StatusFound, h.googleOAuthConfig().AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// GET /auth/google/callback
func (h *Handler) GoogleCallback(c *gin.Context) {
	if !h.cfg.GoogleEnabled() {
		apperr.Respond(c, apperr.NotFound(errNoGoogle.Error()), "")
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if code == "" || state == "" {
		apperr.Respond(c, apperr.Field("code", "Google did not return an authorization code"), "")
		return
	}
	if saved, err := c.Cookie(stateCookie); err != nil || saved != state {
		apperr.Respond(c, apperr.Field("state", "Sign-in expired, please try again"), "")
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", h.cfg.IsProduction(), true)

	ctx := c.Request.Context()
	tok, err := h.googleOAuthConfig().Exchange(ctx, code)
	if err != nil {
		h.log.Warn("google: exchange failed", zap.Error(err))
		apperr.Respond(c, apperr.AuthRequired("failed to exchange code"), "")
		return
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		apperr.Respond(c, apperr.AuthRequired("missing id_token"), "")
		return
	}

	h.finishGoogle(c, rawIDToken)
}

// finishGoogle turns a Google ID token into an app token.
func (h *Handler) finishGoogle(c *gin.Context, rawIDToken string) {
	claims, err := h.verifyIDToken(c.Request.Context(), rawIDToken)
	if err != nil {
		h.log.Warn("google: id token rejected", zap.Error(err))
		apperr.Respond(c, apperr.AuthRequired("Google sign-in failed"), "")
		return
	}

	user, err := h.findOrCreateGoogleUser(c.Request.Context(), claims)
	if err != nil {
		h.log.Error("google: find or create user", zap.String("email", claims.Email), zap.Error(err))
		apperr.Respond(c, err, "Could not sign in with Google")
		return
	}
	if user.DeactivatedAt != nil {
		apperr.Respond(c, apperr.AuthRequired("Account deactivated"), "")
		return
	}

	token, err := h.tokens.Issue(*user)
	if err != nil {
		apperr.Respond(c, err, "Could not sign in with Google")
		return
	}

	if h.cfg.GoogleFrontendRedirect == "" {
		c.JSON(http.StatusOK, gin.H{"token": token})
		return
	}
	c.Redirect(http.StatusFound, h.cfg.GoogleFrontendRedirect+"?token="+url.QueryEscape(token))
}

type googleIDClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

func (h *Handler) verifyGoogleIDToken(ctx context.Context, rawIDToken string) (*googleIDClaims, error) {
	const op = "auth.verifyGoogleIDToken"
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("%s: provider: %w", op, err)
	}
	idToken, err := provider.Verifier(&oidc.Config{ClientID: h.cfg.GoogleClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var claims googleIDClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: claims: %w", op, err)
	}
	if claims.Email == "" || claims.Sub == "" {
		return nil, fmt.Errorf("%s: token has no subject or email", op)
	}
	return &claims, nil
}

// findOrCreateGoogleUser matches by Google subject, then by email (linking
// the account), and otherwise creates a verified free member.
func (h *Handler) findOrCreateGoogleUser(ctx context.Context, gc *googleIDClaims) (*users.User, error) {
	db := h.db.WithContext(ctx)

	var user users.User
	err := db.Where("google_sub = ?", gc.Sub).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := users.NormalizeEmail(gc.Email)
	err = db.Where("email = ?", email).First(&user).Error
	if err == nil {
		if user.GoogleSub == nil {
			sub := gc.Sub
			user.GoogleSub = &sub
			user.IsVerified = true
			if err := db.Model(&user).Updates(map[string]interface{}{"google_sub": sub, "is_verified": true}).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sub := gc.Sub
	user = users.User{
		Name:         firstNonEmpty(gc.GivenName, gc.Name),
		Lastname:     gc.FamilyName,
		Email:        email,
		AuthProvider: "google",
		GoogleSub:    &sub,
		Role:         users.RoleUser,
		IsVerified:   true,
		Tier:         plans.TierFree,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	h.log.Info("user registered via google", zap.Uint("user_id", user.ID))
	return &user, nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
