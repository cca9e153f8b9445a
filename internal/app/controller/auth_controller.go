package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/service"
	apperrors "github.com/lojamoda/storefront-auth/internal/errors"
	"github.com/lojamoda/storefront-auth/internal/metrics"
	"github.com/lojamoda/storefront-auth/internal/middleware"
	"github.com/lojamoda/storefront-auth/pkg/mailer"
	"github.com/lojamoda/storefront-auth/pkg/util"
)

type SessionCookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

type AuthController struct {
	authService      service.AuthService
	twoFactorService service.TwoFactorService
	rateLimiter      service.RateLimiterService
	mailer           mailer.Mailer
	cookie           SessionCookieConfig
	limitByIP        bool
}

func NewAuthController(
	authService service.AuthService,
	twoFactorService service.TwoFactorService,
	rateLimiter service.RateLimiterService,
	m mailer.Mailer,
	cookie SessionCookieConfig,
	limitByIP bool,
) *AuthController {
	return &AuthController{
		authService:      authService,
		twoFactorService: twoFactorService,
		rateLimiter:      rateLimiter,
		mailer:           m,
		cookie:           cookie,
		limitByIP:        limitByIP,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,max=100"`
}

type SendTwoFactorCodeRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type VerifyTwoFactorCodeRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required"`
	Code         string `json:"code" binding:"required"`
	SessionToken string `json:"sessionToken" binding:"required,max=64"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

const (
	msgInvalidCredentials = "E-mail ou senha incorretos"
	msgCodeSent           = "Código de verificação enviado para o seu e-mail"
	msgCodeFormat         = "O código deve ter 6 dígitos"
	msgRateLimitedFormat  = "Aguarde %d segundos antes de solicitar um novo código."
	msgMailFailed         = "Não foi possível enviar o código. Tente novamente em instantes."
)

func respondBindError(c *gin.Context, err error) {
	if fields, ok := apperrors.ParseValidationError(err); ok {
		apperrors.RespondWithValidationError(c, fields)
		return
	}
	apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Dados inválidos")
}

func userResponse(user *model.User) gin.H {
	return gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"role":  user.Role,
	}
}

// Register handles account creation
// POST /api/auth/register
func (ctrl *AuthController) Register(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid registration request", map[string]interface{}{
			"error": err.Error(),
		})
		respondBindError(c, err)
		return
	}

	user, err := ctrl.authService.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyExists) {
			apperrors.Conflict(c, apperrors.AuthEmailAlreadyExists, "Este e-mail já está cadastrado")
			return
		}
		log.Error("Registration failed", err)
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "register user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Conta criada com sucesso",
		"user":    userResponse(user),
	})
}

// SendTwoFactorCode checks the password and emails a login code
// POST /api/auth/send-2fa-code
func (ctrl *AuthController) SendTwoFactorCode(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	ctx := c.Request.Context()

	var req SendTwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := ctrl.authService.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			apperrors.UnauthorizedWithCode(c, apperrors.AuthInvalidCredentials, msgInvalidCredentials)
			return
		}
		log.Error("Authentication failed", err)
		apperrors.InternalError(c, "")
		return
	}

	ip := ""
	if ctrl.limitByIP {
		ip = c.ClientIP()
	}
	decision := ctrl.rateLimiter.CheckLoginCodeRequest(ctx, user.Email, ip)
	if !decision.Allowed {
		log.Warn("Login code request rate limited", map[string]interface{}{
			"user_id":     user.ID,
			"retry_after": decision.RetryAfterSeconds,
		})
		apperrors.TooManyRequests(c, decision.RetryAfterSeconds, fmt.Sprintf(msgRateLimitedFormat, decision.RetryAfterSeconds))
		return
	}

	sessionToken, err := util.GenerateSessionToken()
	if err != nil {
		log.Error("Failed to generate session token", err)
		apperrors.InternalError(c, "")
		return
	}

	issued, err := ctrl.twoFactorService.Issue(ctx, service.IssueRequest{
		UserID:       user.ID,
		Email:        user.Email,
		SessionToken: sessionToken,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		apperrors.InternalError(c, "")
		return
	}

	err = ctrl.mailer.SendLoginCode(ctx, mailer.LoginCodeMessage{
		To:        user.Email,
		Name:      user.Name,
		Code:      issued.Code,
		ExpiresAt: issued.ExpiresAt,
	})
	if err != nil {
		metrics.MailFailures.Inc()
		log.Error("Failed to deliver login code", err, map[string]interface{}{
			"user_id": user.ID,
		})
		apperrors.RespondWithError(c, http.StatusInternalServerError, apperrors.MailDeliveryFailed, msgMailFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      msgCodeSent,
		"sessionToken": sessionToken,
		"expiresAt":    issued.ExpiresAt,
	})
}

// VerifyTwoFactorCode completes the login and opens the session
// POST /api/auth/verify-2fa-code
func (ctrl *AuthController) VerifyTwoFactorCode(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	ctx := c.Request.Context()

	var req VerifyTwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !util.IsValidLoginCodeFormat(req.Code) {
		apperrors.BadRequest(c, apperrors.ValidationInvalidFormat, msgCodeFormat)
		return
	}

	user, err := ctrl.authService.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			apperrors.UnauthorizedWithCode(c, apperrors.AuthInvalidCredentials, msgInvalidCredentials)
			return
		}
		log.Error("Authentication failed", err)
		apperrors.InternalError(c, "")
		return
	}

	result, err := ctrl.twoFactorService.Verify(ctx, req.SessionToken, req.Code, user.ID, user.Email)
	if err != nil {
		apperrors.InternalError(c, "")
		return
	}
	if !result.Valid {
		apperrors.UnauthorizedWithCode(c, verifyFailureCode(result.Failure), result.Error)
		return
	}

	tokens, err := ctrl.authService.IssueSession(ctx, user)
	if err != nil {
		apperrors.InternalError(c, "")
		return
	}
	ctrl.setSessionCookie(c, tokens.AccessToken)

	log.Info("Two-factor login completed", map[string]interface{}{
		"user_id": user.ID,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login realizado com sucesso",
		"user":    userResponse(user),
		"tokens":  tokens,
	})
}

func verifyFailureCode(f service.VerifyFailure) string {
	switch f {
	case service.VerifyFailureTooManyAttempts:
		return apperrors.AuthCodeAttemptsExceeded
	case service.VerifyFailureMismatch:
		return apperrors.AuthCodeInvalid
	default:
		return apperrors.AuthCodeExpired
	}
}

// RefreshToken exchanges a refresh token for a new token pair
// POST /api/auth/refresh
func (ctrl *AuthController) RefreshToken(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tokens, err := ctrl.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenRevoked):
			apperrors.UnauthorizedWithCode(c, apperrors.AuthTokenRevoked, "Sessão encerrada. Faça login novamente.")
		case errors.Is(err, util.ErrExpiredToken):
			apperrors.UnauthorizedWithCode(c, apperrors.AuthTokenExpired, "Sua sessão expirou. Faça login novamente.")
		case errors.Is(err, util.ErrInvalidToken):
			apperrors.UnauthorizedWithCode(c, apperrors.AuthTokenInvalid, "Token de atualização inválido. Faça login novamente.")
		default:
			log.Error("Failed to refresh session", err)
			apperrors.InternalError(c, "")
		}
		return
	}
	ctrl.setSessionCookie(c, tokens.AccessToken)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sessão renovada",
		"tokens":  tokens,
	})
}

// GetMe returns the current user
// GET /api/auth/me
func (ctrl *AuthController) GetMe(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	user, err := ctrl.authService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			apperrors.NotFound(c, apperrors.ResourceNotFound, "Usuário não encontrado")
			return
		}
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "get user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    userResponse(user),
	})
}

// Logout revokes the access token and clears the cookie
// POST /api/auth/logout
func (ctrl *AuthController) Logout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	claims, _ := middleware.GetClaims(c)
	if err := ctrl.authService.Logout(c.Request.Context(), claims); err != nil {
		log.Error("Failed to revoke token on logout", err)
		apperrors.InternalError(c, "")
		return
	}
	ctrl.clearSessionCookie(c)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sessão encerrada",
	})
}

func (ctrl *AuthController) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ctrl.cookie.Name, token, int(ctrl.cookie.MaxAge.Seconds()), "/", "", ctrl.cookie.Secure, true)
}

func (ctrl *AuthController) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ctrl.cookie.Name, "", -1, "/", "", ctrl.cookie.Secure, true)
}
