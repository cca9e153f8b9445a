package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/lojamoda/storefront-auth/pkg/redis"
	"github.com/lojamoda/storefront-auth/pkg/util"
	"gorm.io/gorm"
)

var (
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*model.User, error)
	// Authenticate is the first factor. Unknown emails and wrong passwords
	// both return ErrInvalidCredentials after the same bcrypt work.
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	// IssueSession signs the JWT pair once the second factor passed.
	IssueSession(ctx context.Context, user *model.User) (*util.TokenPair, error)
	// Refresh trades a refresh token for a new pair. The presented refresh
	// token is revoked so it works once.
	Refresh(ctx context.Context, refreshToken string) (*util.TokenPair, error)
	GetUserByID(ctx context.Context, id uint) (*model.User, error)
	Logout(ctx context.Context, claims *util.Claims) error
}

type authService struct {
	userRepo      repository.UserRepository
	blacklist     redis.Blacklist
	jwtSecret     string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewAuthService(
	userRepo repository.UserRepository,
	blacklist redis.Blacklist,
	jwtSecret string,
	accessExpiry, refreshExpiry time.Duration,
) AuthService {
	if blacklist == nil {
		blacklist = redis.NopBlacklist{}
	}
	return &authService{
		userRepo:      userRepo,
		blacklist:     blacklist,
		jwtSecret:     jwtSecret,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// NormalizeEmail lowercases and trims so lookups and rate limit keys agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = NormalizeEmail(email)
	logger.Info("Attempting user registration", map[string]interface{}{
		"email": email,
	})

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("Failed to check existing user", err, map[string]interface{}{
			"email": email,
		})
		return nil, err
	}
	if existing != nil {
		logger.Warn("Registration failed: email already exists", map[string]interface{}{
			"email": email,
		})
		return nil, ErrEmailAlreadyExists
	}

	hashed, err := util.HashPassword(password)
	if err != nil {
		logger.Error("Failed to hash password", err)
		return nil, err
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hashed,
		Name:         strings.TrimSpace(name),
		Role:         model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.Info("User registered successfully", map[string]interface{}{
		"user_id": user.ID,
		"email":   email,
	})
	return user, nil
}

func (s *authService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.BurnPasswordCheck(password)
			logger.Warn("Authentication failed: unknown email", map[string]interface{}{
				"email": email,
			})
			return nil, ErrInvalidCredentials
		}
		logger.Error("Failed to load user for authentication", err, map[string]interface{}{
			"email": email,
		})
		return nil, err
	}

	if !util.VerifyPassword(user.PasswordHash, password) {
		logger.Warn("Authentication failed: wrong password", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *authService) IssueSession(ctx context.Context, user *model.User) (*util.TokenPair, error) {
	tokens, err := util.GenerateTokenPair(
		user.ID,
		user.Email,
		string(user.Role),
		s.jwtSecret,
		s.accessExpiry,
		s.refreshExpiry,
	)
	if err != nil {
		logger.Error("Failed to generate tokens", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Don't fail the login over bookkeeping.
		logger.Warn("Failed to record last login", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	} else {
		user.LastLoginAt = &now
	}

	logger.Info("Session issued", map[string]interface{}{
		"user_id": user.ID,
	})
	return tokens, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*util.TokenPair, error) {
	claims, err := util.ValidateToken(refreshToken, s.jwtSecret)
	if err != nil {
		logger.Warn("Refresh token validation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	if claims.TokenType != util.TokenTypeRefresh {
		logger.Warn("Non-refresh token presented for refresh", map[string]interface{}{
			"user_id":    claims.UserID,
			"token_type": claims.TokenType,
		})
		return nil, util.ErrInvalidToken
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		logger.Error("Failed to check refresh token revocation", err, map[string]interface{}{
			"user_id": claims.UserID,
		})
		return nil, err
	}
	if revoked {
		logger.Warn("Revoked refresh token presented", map[string]interface{}{
			"user_id": claims.UserID,
		})
		return nil, ErrTokenRevoked
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidToken
		}
		logger.Error("Failed to load user for refresh", err, map[string]interface{}{
			"user_id": claims.UserID,
		})
		return nil, err
	}

	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, ttl); err != nil {
		logger.Error("Failed to revoke used refresh token", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, err
	}

	tokens, err := util.GenerateTokenPair(
		user.ID,
		user.Email,
		string(user.Role),
		s.jwtSecret,
		s.accessExpiry,
		s.refreshExpiry,
	)
	if err != nil {
		logger.Error("Failed to generate tokens", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, err
	}

	logger.Info("Session refreshed", map[string]interface{}{
		"user_id": user.ID,
	})
	return tokens, nil
}

func (s *authService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) Logout(ctx context.Context, claims *util.Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, ttl); err != nil {
		return err
	}
	logger.Info("User logged out", map[string]interface{}{
		"user_id": claims.UserID,
	})
	return nil
}
