package middleware

import (
	"context"
	"strings"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/access"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by the auth middleware.
const (
	KeyUserID = "user_id"
	KeyEmail  = "email"
	KeyRole   = "role"
	KeyTier   = "tier"
	KeyUser   = "user"
)

// UserLoader reloads the account behind a token.
type UserLoader interface {
	ByID(ctx context.Context, id uint) (*users.User, error)
}

type Auth struct {
	tokens *users.Tokens
	users  UserLoader
	log    *zap.Logger
}

func NewAuth(tokens *users.Tokens, loader UserLoader, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{tokens: tokens, users: loader, log: log}
}

// Required rejects requests without a valid token for an active account.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apperr.Respond(c, apperr.AuthRequired("Authorization header missing"), "")
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			apperr.Respond(c, apperr.AuthRequired("Bearer token malformed"), "")
			c.Abort()
			return
		}

		if err := a.load(c, strings.TrimSpace(tokenString)); err != nil {
			apperr.Respond(c, err, "Authentication failed")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Optional identifies the caller when a valid token is sent and lets
// everyone else through as anonymous.
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString != "" {
			if err := a.load(c, strings.TrimSpace(tokenString)); err != nil {
				a.log.Debug("ignoring bad token on public route", zap.Error(err))
			}
		}
		c.Next()
	}
}

// load parses the token and reloads the user so tier and role are never
// older than this request.
func (a *Auth) load(c *gin.Context, raw string) error {
	claims, err := a.tokens.Parse(raw)
	if err != nil {
		return apperr.AuthRequired("Invalid or expired token")
	}

	u, err := a.users.ByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.AuthRequired("Account not found")
		}
		return err
	}
	if u.DeactivatedAt != nil {
		return apperr.AuthRequired("Account is deactivated")
	}

	c.Set(KeyUserID, u.ID)
	c.Set(KeyEmail, u.Email)
	c.Set(KeyRole, u.Role)
	c.Set(KeyTier, u.EffectiveTier())
	c.Set(KeyUser, u)
	return nil
}

func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(KeyRole)
		if !exists {
			apperr.Respond(c, apperr.AuthRequired("Login required"), "")
			c.Abort()
			return
		}

		if value != role {
			apperr.Respond(c, apperr.AccessDenied("Access denied", ""), "")
			c.Abort()
			return
		}

		c.Next()
	}
}

// UserID is 0 for anonymous requests.
func UserID(c *gin.Context) uint {
	return c.GetUint(KeyUserID)
}

// CurrentUser returns the account loaded by the auth middleware, or nil.
func CurrentUser(c *gin.Context) *users.User {
	v, ok := c.Get(KeyUser)
	if !ok {
		return nil
	}
	u, _ := v.(*users.User)
	return u
}

// Subject describes the caller for access checks.
func Subject(c *gin.Context) access.Subject {
	id := UserID(c)
	if id == 0 {
		return access.Anonymous()
	}
	tier, _ := c.Get(KeyTier)
	t, _ := tier.(plans.Tier)
	return access.Subject{UserID: id, Authenticated: true, Tier: plans.ParseTier(string(t))}
}
