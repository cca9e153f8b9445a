package service

import (
	"context"
	"testing"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/db"
	"github.com/lojamoda/storefront-auth/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret"

// memoryBlacklist records revocations for assertions.
type memoryBlacklist struct {
	revoked map[string]time.Duration
}

func (b *memoryBlacklist) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	b.revoked[tokenID] = ttl
	return nil
}

func (b *memoryBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := b.revoked[tokenID]
	return ok, nil
}

func setupAuthServiceTest(t *testing.T) (AuthService, repository.UserRepository, *memoryBlacklist) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(testDB)
	blacklist := &memoryBlacklist{revoked: map[string]time.Duration{}}
	svc := NewAuthService(userRepo, blacklist, testJWTSecret, 15*time.Minute, 7*24*time.Hour)
	return svc, userRepo, blacklist
}

func TestAuthService_Register(t *testing.T) {
	svc, _, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{name: "Valid registration", email: "Cliente@Loja.com "},
		{name: "Duplicate email", email: "cliente@loja.com", wantErr: ErrEmailAlreadyExists},
		{name: "Duplicate email other case", email: "CLIENTE@LOJA.COM", wantErr: ErrEmailAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.Register(ctx, tt.email, "senha-segura-1", " Maria ")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, user.ID)
			assert.Equal(t, "cliente@loja.com", user.Email)
			assert.Equal(t, "Maria", user.Name)
			assert.Equal(t, model.RoleUser, user.Role)
			assert.NotEqual(t, "senha-segura-1", user.PasswordHash)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, _, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "correct-password", "Ana")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "Valid credentials", email: "a@b.com", password: "correct-password"},
		{name: "Email is normalized", email: " A@B.com", password: "correct-password"},
		{name: "Wrong password", email: "a@b.com", password: "wrong-password", wantErr: ErrInvalidCredentials},
		{name: "Unknown email", email: "ghost@b.com", password: "correct-password", wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.Authenticate(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registered.ID, user.ID)
		})
	}
}

func TestAuthService_IssueSession(t *testing.T) {
	svc, userRepo, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@b.com", "correct-password", "Ana")
	require.NoError(t, err)

	tokens, err := svc.IssueSession(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)

	claims, err := util.ValidateAccessToken(tokens.AccessToken, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, string(model.RoleUser), claims.Role)

	stored, err := userRepo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestAuthService_GetUserByID(t *testing.T) {
	svc, _, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@b.com", "correct-password", "Ana")
	require.NoError(t, err)

	found, err := svc.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", found.Email)

	_, err = svc.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, blacklist := setupAuthServiceTest(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@b.com", "correct-password", "Ana")
	require.NoError(t, err)
	tokens, err := svc.IssueSession(ctx, user)
	require.NoError(t, err)
	claims, err := util.ValidateAccessToken(tokens.AccessToken, testJWTSecret)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims))

	ttl, ok := blacklist.revoked[claims.ID]
	require.True(t, ok)
	assert.Greater(t, ttl, 14*time.Minute)
	assert.LessOrEqual(t, ttl, 15*time.Minute)

	assert.NoError(t, svc.Logout(ctx, nil))
}

func TestAuthService_Refresh(t *testing.T) {
	svc, _, blacklist := setupAuthServiceTest(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@b.com", "correct-password", "Ana")
	require.NoError(t, err)
	tokens, err := svc.IssueSession(ctx, user)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)

	claims, err := util.ValidateAccessToken(refreshed.AccessToken, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	old, err := util.ValidateToken(tokens.RefreshToken, testJWTSecret)
	require.NoError(t, err)
	_, revoked := blacklist.revoked[old.ID]
	assert.True(t, revoked)

	_, err = svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = svc.Refresh(ctx, refreshed.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RefreshRejections(t *testing.T) {
	svc, _, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@b.com", "correct-password", "Ana")
	require.NoError(t, err)
	tokens, err := svc.IssueSession(ctx, user)
	require.NoError(t, err)

	expired, err := util.GenerateTokenPair(user.ID, user.Email, string(user.Role), testJWTSecret, -time.Minute, -time.Minute)
	require.NoError(t, err)
	foreign, err := util.GenerateTokenPair(user.ID, user.Email, string(user.Role), "other-secret", time.Minute, time.Hour)
	require.NoError(t, err)
	ghost, err := util.GenerateTokenPair(user.ID+100, "ghost@b.com", string(model.RoleUser), testJWTSecret, time.Minute, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "Access token", token: tokens.AccessToken, wantErr: util.ErrInvalidToken},
		{name: "Garbage", token: "not-a-jwt", wantErr: util.ErrInvalidToken},
		{name: "Wrong signature", token: foreign.RefreshToken, wantErr: util.ErrInvalidToken},
		{name: "Expired", token: expired.RefreshToken, wantErr: util.ErrExpiredToken},
		{name: "Unknown user", token: ghost.RefreshToken, wantErr: util.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := svc.Refresh(ctx, tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, pair)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.Com\t"))
}
