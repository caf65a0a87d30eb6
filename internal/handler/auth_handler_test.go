package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-auth/internal/middleware"
	"github.com/noah-isme/sma-adp-auth/internal/models"
	"github.com/noah-isme/sma-adp-auth/pkg/config"
	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

type authServiceMock struct {
	loginResp     *models.LoginResponse
	loginErr      error
	refreshResp   *models.RefreshTokenResponse
	refreshErr    error
	logoutErr     error
	revoked       int64
	lastLogin     models.LoginRequest
	lastRefresh   models.RefreshTokenRequest
	lastLogout    models.LogoutRequest
	lastUserID    string
	refreshCalled bool
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastLogin = req
	return m.loginResp, m.loginErr
}

func (m *authServiceMock) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	m.refreshCalled = true
	m.lastRefresh = req
	return m.refreshResp, m.refreshErr
}

func (m *authServiceMock) Logout(ctx context.Context, userID string, req models.LogoutRequest) error {
	m.lastUserID = userID
	m.lastLogout = req
	return m.logoutErr
}

func (m *authServiceMock) LogoutAll(ctx context.Context, userID string, meta models.LogoutRequest) (int64, error) {
	m.lastUserID = userID
	return m.revoked, nil
}

func (m *authServiceMock) AccessTTL() time.Duration  { return 900 * time.Second }
func (m *authServiceMock) RefreshTTL() time.Duration { return 7 * 24 * time.Hour }

func testCookieConfig() config.CookieConfig {
	return config.CookieConfig{
		Secure:            true,
		SameSite:          http.SameSiteStrictMode,
		AccessCookieName:  "access_token",
		RefreshCookieName: "refresh_token",
		RefreshCookiePath: "/api/v1/auth",
	}
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func userClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{Kind: models.TokenKindAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   id,
		ExpiresAt: jwt.NewNumericDate(time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)),
	}}
}

func TestAuthHandlerLoginSetsCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{loginResp: &models.LoginResponse{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    900,
		User:         models.UserInfo{ID: "u1", Email: "a@x.com"},
	}}
	handler := NewAuthHandler(mockSvc, testCookieConfig())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"a@x.com","password":"correct"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	c.Request = req

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-agent", mockSvc.lastLogin.UserAgent)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(900), body.Data.ExpiresIn)
	assert.Equal(t, "u1", body.Data.User.ID)

	access := cookieByName(t, w, "access_token")
	assert.Equal(t, "access", access.Value)
	assert.Equal(t, 900, access.MaxAge)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)

	refresh := cookieByName(t, w, "refresh_token")
	assert.Equal(t, "refresh", refresh.Value)
	assert.Equal(t, 604800, refresh.MaxAge)
	assert.Equal(t, "/api/v1/auth", refresh.Path)
	assert.True(t, refresh.HttpOnly)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "malformed", body: `{"email":`, status: http.StatusBadRequest, code: appErrors.ErrValidation.Code},
		{name: "invalid credentials", body: `{"email":"a@x.com","password":"x"}`, err: appErrors.Clone(appErrors.ErrInvalidCredentials, ""), status: http.StatusUnauthorized, code: appErrors.ErrInvalidCredentials.Code},
		{name: "inactive", body: `{"email":"a@x.com","password":"x"}`, err: appErrors.Clone(appErrors.ErrInactiveAccount, ""), status: http.StatusForbidden, code: appErrors.ErrInactiveAccount.Code},
		{name: "upstream", body: `{"email":"a@x.com","password":"x"}`, err: appErrors.Wrap(errors.New("dial tcp"), appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "credential store unavailable"), status: http.StatusServiceUnavailable, code: appErrors.ErrUpstreamUnavailable.Code},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthHandler(&authServiceMock{loginErr: tc.err}, testCookieConfig())
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			c.Request = req

			handler.Login(c)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
			assert.NotContains(t, w.Body.String(), "dial tcp")
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestAuthHandlerRefreshFromBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{refreshResp: &models.RefreshTokenResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 900}}
	handler := NewAuthHandler(mockSvc, testCookieConfig())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(`{"refresh_token":"from-body"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "from-cookie"})
	c.Request = req

	handler.Refresh(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "from-body", mockSvc.lastRefresh.RefreshToken)
	assert.Equal(t, "r2", cookieByName(t, w, "refresh_token").Value)
}

func TestAuthHandlerRefreshFallsBackToCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, body := range []string{"", "{}"} {
		mockSvc := &authServiceMock{refreshResp: &models.RefreshTokenResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 900}}
		handler := NewAuthHandler(mockSvc, testCookieConfig())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "from-cookie"})
		c.Request = req

		handler.Refresh(c)
		require.Equal(t, http.StatusOK, w.Code, "body %q", body)
		assert.Equal(t, "from-cookie", mockSvc.lastRefresh.RefreshToken)
	}
}

func TestAuthHandlerRefreshWithoutTokenDelegatesToService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{refreshErr: appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")}
	handler := NewAuthHandler(mockSvc, testCookieConfig())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/auth/refresh", nil)

	handler.Refresh(c)
	assert.True(t, mockSvc.refreshCalled)
	assert.Empty(t, mockSvc.lastRefresh.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrInvalidRefreshToken.Code)
}

func TestAuthHandlerRefreshMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc, testCookieConfig())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(`{"refresh_token":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Refresh(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.refreshCalled)
}

func TestAuthHandlerLogoutClearsCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc, testCookieConfig())

	r := gin.New()
	r.POST("/auth/logout", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, userClaims("u1"))
		handler.Logout(c)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "from-cookie"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "u1", mockSvc.lastUserID)
	assert.Equal(t, "from-cookie", mockSvc.lastLogout.RefreshToken)
	assert.Equal(t, -1, cookieByName(t, w, "access_token").MaxAge)
	assert.Equal(t, -1, cookieByName(t, w, "refresh_token").MaxAge)
}

func TestAuthHandlerLogoutRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{}, testCookieConfig())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/auth/logout", nil)

	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogoutAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{revoked: 3}
	handler := NewAuthHandler(mockSvc, testCookieConfig())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/auth/logout-all", nil)
	c.Set(middleware.ContextUserKey, userClaims("u1"))

	handler.LogoutAll(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"revoked":3}}`, w.Body.String())
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{}, testCookieConfig())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, userClaims("u1"))

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"user_id":"u1","expires_at":"2024-01-01T00:15:00Z"}}`, w.Body.String())
}
