package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"membership-portal/config"
	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *fakeMailer) SendVerification(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links["verify:"+to] = link
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links["reset:"+to] = link
	return nil
}

func (m *fakeMailer) token(t *testing.T, key string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := url.Parse(m.links[key])
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok, "no link sent for %s", key)
	return tok
}

type env struct {
	r      *gin.Engine
	h      *Handler
	mailer *fakeMailer
	tokens *users.Tokens
	store  *users.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	cfg := &config.Config{AppURL: "http://site.test"}
	store := users.NewStore(db)
	tokens := users.NewTokens("test-secret", time.Hour)
	mailer := &fakeMailer{links: map[string]string{}}
	h := NewHandler(db, store, tokens, mailer, cfg, nil)
	authMW := middleware.NewAuth(tokens, store, nil)

	r := gin.New()
	r.POST("/register", h.Register)
	r.GET("/verify", h.Verify)
	r.POST("/login", h.Login)
	r.POST("/resend-verification", h.ResendVerification)
	r.POST("/password-reset", h.RequestPasswordReset)
	r.POST("/password-reset/confirm", h.ResetPassword)
	r.POST("/change-password", authMW.Required(), h.ChangePassword)
	return &env{r: r, h: h, mailer: mailer, tokens: tokens, store: store}
}

func (e *env) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func loginToken(t *testing.T, e *env, email, password string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/login", `{"email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Token
}

func TestRegisterVerifyLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	w := e.do(http.MethodPost, "/register", `{"name":"Ana","lastname":"Ruiz","email":"Ana@Example.com","password":"short"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(http.MethodPost, "/register", `{"name":"Ana","lastname":"Ruiz","email":"Ana@Example.com","password":"sunrise2024"}`, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	u, err := e.store.ByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, plans.TierFree, u.Tier)
	assert.False(t, u.IsVerified)

	w = e.do(http.MethodPost, "/register", `{"name":"Ana","lastname":"Ruiz","email":"ana@example.com","password":"sunrise2024"}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/login", `{"email":"ana@example.com","password":"sunrise2024"}`, "")
	assert.Equal(t, http.StatusForbidden, w.Code, "unverified accounts cannot log in")

	w = e.do(http.MethodPost, "/resend-verification", `{"email":"ana@example.com"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	tok := e.mailer.token(t, "verify:ana@example.com")
	w = e.do(http.MethodGet, "/verify?token="+tok, "", "")
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "http://site.test/signin", w.Header().Get("Location"))

	w = e.do(http.MethodGet, "/verify?token="+tok, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "tokens are single use")

	w = e.do(http.MethodPost, "/login", `{"email":"ana@example.com","password":"wrong-pass1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	claims, err := e.tokens.Parse(loginToken(t, e, "ANA@example.com", "sunrise2024"))
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, users.RoleUser, claims.Role)

	w = e.do(http.MethodPost, "/resend-verification", `{"email":"ana@example.com"}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func register(t *testing.T, e *env, email, password string) {
	t.Helper()
	w := e.do(http.MethodPost, "/register", `{"name":"N","lastname":"L","email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(http.MethodGet, "/verify?token="+e.mailer.token(t, "verify:"+email), "", "")
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
}

func TestPasswordResetAndChange(t *testing.T) {
	e := newEnv(t)
	register(t, e, "bo@example.com", "original1")

	w := e.do(http.MethodPost, "/password-reset", `{"email":"nobody@example.com"}`, "")
	assert.Equal(t, http.StatusOK, w.Code, "unknown emails get the same answer")

	w = e.do(http.MethodPost, "/password-reset", `{"email":"bo@example.com"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	tok := e.mailer.token(t, "reset:bo@example.com")

	w = e.do(http.MethodPost, "/password-reset/confirm", `{"token":"`+tok+`","new_password":"weak"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = e.do(http.MethodPost, "/password-reset/confirm", `{"token":"`+tok+`","new_password":"renewed22"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodPost, "/password-reset/confirm", `{"token":"`+tok+`","new_password":"renewed33"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bearer := loginToken(t, e, "bo@example.com", "renewed22")

	w = e.do(http.MethodPost, "/change-password", `{"old_password":"original1","new_password":"another44"}`, bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(http.MethodPost, "/change-password", `{"old_password":"renewed22","new_password":"another44"}`, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	loginToken(t, e, "bo@example.com", "another44")

	w = e.do(http.MethodPost, "/change-password", `{"old_password":"another44","new_password":"x"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExpiredResetToken(t *testing.T) {
	e := newEnv(t)
	register(t, e, "cy@example.com", "original1")

	w := e.do(http.MethodPost, "/password-reset", `{"email":"cy@example.com"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	tok := e.mailer.token(t, "reset:cy@example.com")

	e.h.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	w = e.do(http.MethodPost, "/password-reset/confirm", `{"token":"`+tok+`","new_password":"renewed22"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGoogleSignIn(t *testing.T) {
	e := newEnv(t)
	register(t, e, "dee@example.com", "original1")

	e.h.verifyIDToken = func(_ context.Context, raw string) (*googleIDClaims, error) {
		switch raw {
		case "existing":
			return &googleIDClaims{Sub: "g-1", Email: "Dee@example.com", GivenName: "Dee"}, nil
		case "new":
			return &googleIDClaims{Sub: "g-2", Email: "eve@example.com", Name: "Eve"}, nil
		}
		return nil, errors.New("invalid id_token")
	}

	call := func(raw string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
		e.h.finishGoogle(c, raw)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("forged").Code)

	w := call("existing")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	linked, err := e.store.ByEmail(context.Background(), "dee@example.com")
	require.NoError(t, err)
	require.NotNil(t, linked.GoogleSub)
	assert.Equal(t, "g-1", *linked.GoogleSub)

	require.Equal(t, http.StatusOK, call("new").Code)
	created, err := e.store.ByEmail(context.Background(), "eve@example.com")
	require.NoError(t, err)
	assert.True(t, created.IsVerified)
	assert.Equal(t, plans.TierFree, created.Tier)
	assert.Nil(t, created.Password)

	require.Equal(t, http.StatusOK, call("new").Code)
	var n int64
	require.NoError(t, e.h.db.Model(&users.User{}).Where("email = ?", "eve@example.com").Count(&n).Error)
	assert.EqualValues(t, 1, n)

	w = e.do(http.MethodPost, "/login", `{"email":"eve@example.com","password":"whatever1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "google accounts have no password")
}

func TestGoogleDisabled(t *testing.T) {
	e := newEnv(t)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/google", nil)
	e.h.GoogleStart(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
