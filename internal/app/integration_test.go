package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/internal/app/controller"
	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/app/service"
	"github.com/lojamoda/storefront-auth/internal/db"
	"github.com/lojamoda/storefront-auth/internal/middleware"
	"github.com/lojamoda/storefront-auth/internal/router"
	"github.com/lojamoda/storefront-auth/pkg/mailer"
	"github.com/lojamoda/storefront-auth/pkg/redis"
	"github.com/lojamoda/storefront-auth/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testSecret   = "integration-secret"
	testPassword = "senha-forte-123"
)

type inbox struct {
	messages []mailer.LoginCodeMessage
}

func (i *inbox) SendLoginCode(_ context.Context, msg mailer.LoginCodeMessage) error {
	i.messages = append(i.messages, msg)
	return nil
}

func (i *inbox) last() string {
	return i.messages[len(i.messages)-1].Code
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type TestServer struct {
	Handler     http.Handler
	DB          *gorm.DB
	Inbox       *inbox
	Clock       *clock
	AuthService service.AuthService
}

func setupIntegrationTest(t *testing.T) *TestServer {
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	clk := &clock{now: time.Now().UTC()}
	mail := &inbox{}

	userRepo := repository.NewUserRepository(testDB)
	codeRepo := repository.NewTwoFactorCodeRepository(testDB)
	rateLimitRepo := repository.NewRateLimitRepository(testDB)

	authService := service.NewAuthService(userRepo, redis.NopBlacklist{}, testSecret, 15*time.Minute, time.Hour)
	twoFactorService := service.NewTwoFactorService(codeRepo, service.TwoFactorOptions{Clock: clk.Now})
	rateLimiter := service.NewRateLimiterService(rateLimitRepo, service.RateLimiterOptions{Clock: clk.Now})
	cleanupService := service.NewCleanupService(codeRepo, rateLimitRepo, 24*time.Hour, 24*time.Hour, clk.Now)

	authController := controller.NewAuthController(authService, twoFactorService, rateLimiter, mail,
		controller.SessionCookieConfig{Name: "auth_token", MaxAge: 15 * time.Minute}, true)
	adminController := controller.NewAdminController(cleanupService)
	authMiddleware := middleware.NewAuthMiddleware(testSecret, "auth_token", redis.NopBlacklist{})

	cfg := &config.Config{Server: config.ServerConfig{GinMode: gin.TestMode}}
	handler := router.NewRouter(authController, adminController, authMiddleware, cfg).Setup()

	return &TestServer{Handler: handler, DB: testDB, Inbox: mail, Clock: clk, AuthService: authService}
}

func (s *TestServer) post(t *testing.T, path string, body interface{}, bearer string) (int, map[string]interface{}) {
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestIntegration_TwoFactorLogin(t *testing.T) {
	s := setupIntegrationTest(t)

	status, _ := s.post(t, "/api/auth/register", gin.H{"email": "a@b.com", "password": testPassword, "name": "Ana"}, "")
	require.Equal(t, http.StatusCreated, status)

	login := gin.H{"email": "a@b.com", "password": testPassword}

	// First request issues a code.
	status, body := s.post(t, "/api/auth/send-2fa-code", login, "")
	require.Equal(t, http.StatusOK, status)
	firstToken := body["sessionToken"].(string)
	firstCode := s.Inbox.last()

	// Within the cooldown the limiter refuses.
	status, body = s.post(t, "/api/auth/send-2fa-code", login, "")
	require.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, float64(60), body["retryAfter"])

	// After the cooldown a new code replaces the first one.
	s.Clock.now = s.Clock.now.Add(61 * time.Second)
	status, body = s.post(t, "/api/auth/send-2fa-code", login, "")
	require.Equal(t, http.StatusOK, status)
	secondToken := body["sessionToken"].(string)
	secondCode := s.Inbox.last()
	require.NotEqual(t, firstToken, secondToken)

	status, body = s.post(t, "/api/auth/verify-2fa-code", gin.H{
		"email": "a@b.com", "password": testPassword, "code": firstCode, "sessionToken": firstToken,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, service.MsgCodeInvalidOrExpired, body["message"])

	// The second code works once.
	verify := gin.H{"email": "a@b.com", "password": testPassword, "code": secondCode, "sessionToken": secondToken}
	status, body = s.post(t, "/api/auth/verify-2fa-code", verify, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	refreshToken := body["tokens"].(map[string]interface{})["refresh_token"].(string)

	status, _ = s.post(t, "/api/auth/verify-2fa-code", verify, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	// The refresh token from the login renews the session once.
	status, body = s.post(t, "/api/auth/refresh", gin.H{"refresh_token": refreshToken}, "")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["tokens"].(map[string]interface{})["access_token"])

	var unused int64
	require.NoError(t, s.DB.Model(&model.TwoFactorCode{}).Where("is_used = ?", false).Count(&unused).Error)
	assert.Equal(t, int64(0), unused)
}

func TestIntegration_ExpiredCode(t *testing.T) {
	s := setupIntegrationTest(t)

	_, err := s.AuthService.Register(context.Background(), "a@b.com", testPassword, "Ana")
	require.NoError(t, err)

	status, body := s.post(t, "/api/auth/send-2fa-code", gin.H{"email": "a@b.com", "password": testPassword}, "")
	require.Equal(t, http.StatusOK, status)
	token := body["sessionToken"].(string)

	s.Clock.now = s.Clock.now.Add(10*time.Minute + time.Second)

	status, body = s.post(t, "/api/auth/verify-2fa-code", gin.H{
		"email": "a@b.com", "password": testPassword, "code": s.Inbox.last(), "sessionToken": token,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, service.MsgCodeInvalidOrExpired, body["message"])
}

func TestIntegration_AdminCleanup(t *testing.T) {
	s := setupIntegrationTest(t)
	ctx := context.Background()

	_, err := s.AuthService.Register(ctx, "a@b.com", testPassword, "Ana")
	require.NoError(t, err)

	hash, err := util.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, s.DB.Create(&model.User{
		Email:        "admin@b.com",
		Name:         "Admin",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	}).Error)

	// Admin logs in through the same two-factor flow.
	status, body := s.post(t, "/api/auth/send-2fa-code", gin.H{"email": "admin@b.com", "password": testPassword}, "")
	require.Equal(t, http.StatusOK, status)
	status, body = s.post(t, "/api/auth/verify-2fa-code", gin.H{
		"email": "admin@b.com", "password": testPassword, "code": s.Inbox.last(), "sessionToken": body["sessionToken"],
	}, "")
	require.Equal(t, http.StatusOK, status)
	accessToken := body["tokens"].(map[string]interface{})["access_token"].(string)

	// A customer code that is older than the retention window. Both requests
	// share the client IP, so wait out its cooldown first.
	s.Clock.now = s.Clock.now.Add(61 * time.Second)
	status, _ = s.post(t, "/api/auth/send-2fa-code", gin.H{"email": "a@b.com", "password": testPassword}, "")
	require.Equal(t, http.StatusOK, status)
	s.Clock.now = s.Clock.now.Add(25 * time.Hour)

	status, body = s.post(t, "/api/admin/two-factor/cleanup", gin.H{}, accessToken)
	require.Equal(t, http.StatusOK, status)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(2), result["deleted_codes"])
	// One email row per account plus the shared client IP row.
	assert.Equal(t, float64(3), result["deleted_rate_limits"])
}
