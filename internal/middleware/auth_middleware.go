package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lojamoda/storefront-auth/internal/app/model"
	apperrors "github.com/lojamoda/storefront-auth/internal/errors"
	"github.com/lojamoda/storefront-auth/pkg/redis"
	"github.com/lojamoda/storefront-auth/pkg/util"
)

const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
	UserRoleKey  = "user_role"
	ClaimsKey    = "claims"
)

type AuthMiddleware struct {
	jwtSecret  string
	cookieName string
	blacklist  redis.Blacklist
}

func NewAuthMiddleware(jwtSecret, cookieName string, blacklist redis.Blacklist) *AuthMiddleware {
	if blacklist == nil {
		blacklist = redis.NopBlacklist{}
	}
	return &AuthMiddleware{
		jwtSecret:  jwtSecret,
		cookieName: cookieName,
		blacklist:  blacklist,
	}
}

// Authenticate requires a valid access token from the Authorization header
// or, failing that, the session cookie.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		token, ok := m.extractToken(c)
		if !ok {
			log.Warn("Invalid authorization header format")
			apperrors.UnauthorizedWithCode(c, apperrors.AuthTokenInvalid, "Formato de autenticação inválido")
			c.Abort()
			return
		}
		if token == "" {
			apperrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		claims, err := util.ValidateAccessToken(token, m.jwtSecret)
		if err != nil {
			log.Warn("Token validation failed", map[string]interface{}{
				"error": err.Error(),
			})
			if errors.Is(err, util.ErrExpiredToken) {
				apperrors.UnauthorizedWithCode(c, apperrors.AuthTokenExpired, "Sua sessão expirou. Faça login novamente.")
			} else {
				apperrors.UnauthorizedWithCode(c, apperrors.AuthTokenInvalid, "Token de autenticação inválido")
			}
			c.Abort()
			return
		}

		revoked, err := m.blacklist.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			apperrors.InternalError(c, "")
			c.Abort()
			return
		}
		if revoked {
			log.Warn("Revoked token presented", map[string]interface{}{
				"user_id": claims.UserID,
			})
			apperrors.UnauthorizedWithCode(c, apperrors.AuthTokenRevoked, "Sessão encerrada. Faça login novamente.")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserEmailKey, claims.Email)
		c.Set(UserRoleKey, model.UserRole(claims.Role))
		c.Set(ClaimsKey, claims)

		log.Debug("User authenticated", map[string]interface{}{
			"user_id": claims.UserID,
			"role":    claims.Role,
		})
		c.Next()
	}
}

// extractToken returns ok=false only for a malformed Authorization header.
func (m *AuthMiddleware) extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if m.cookieName == "" {
		return "", true
	}
	cookie, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", true
	}
	return cookie, true
}

// RequireRole must run after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		role, exists := GetUserRole(c)
		if !exists {
			apperrors.Forbidden(c, "")
			c.Abort()
			return
		}

		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}

		userID, _ := GetUserID(c)
		log.Warn("Insufficient permissions", map[string]interface{}{
			"user_id":        userID,
			"user_role":      role,
			"required_roles": roles,
		})
		apperrors.Forbidden(c, "")
		c.Abort()
	}
}

func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(uint)
	return id, ok
}

func GetUserRole(c *gin.Context) (model.UserRole, bool) {
	role, exists := c.Get(UserRoleKey)
	if !exists {
		return "", false
	}
	r, ok := role.(model.UserRole)
	return r, ok
}

// GetClaims returns the validated token claims set by Authenticate.
func GetClaims(c *gin.Context) (*util.Claims, bool) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	cl, ok := claims.(*util.Claims)
	return cl, ok
}
