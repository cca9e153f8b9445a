package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRateLimiterTest(t *testing.T) (RateLimiterService, repository.RateLimitRepository, *testClock) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	clock := newTestClock()
	repo := repository.NewRateLimitRepository(testDB)
	svc := NewRateLimiterService(repo, RateLimiterOptions{
		Cooldown:    60 * time.Second,
		MaxRequests: 5,
		Window:      time.Hour,
		Clock:       clock.Now,
	})
	return svc, repo, clock
}

func TestRateLimiterService_FirstRequestCreatesRecord(t *testing.T) {
	svc, repo, clock := setupRateLimiterTest(t)
	ctx := context.Background()

	decision := svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, decision.RetryAfterSeconds)

	record, err := repo.Find(ctx, "a@b.com", model.IdentifierEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, record.RequestCount)
	assert.True(t, record.LastRequestAt.Equal(clock.Now()))
}

func TestRateLimiterService_Cooldown(t *testing.T) {
	svc, _, clock := setupRateLimiterTest(t)
	ctx := context.Background()

	require.True(t, svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail).Allowed)

	tests := []struct {
		name      string
		advance   time.Duration
		wantAllow bool
		wantRetry int
	}{
		{name: "Immediately after", advance: 0, wantAllow: false, wantRetry: 60},
		{name: "Partial seconds round up", advance: 30*time.Second + 500*time.Millisecond, wantAllow: false, wantRetry: 30},
		{name: "Cooldown over", advance: 30 * time.Second, wantAllow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.advance)
			decision := svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail)
			assert.Equal(t, tt.wantAllow, decision.Allowed)
			assert.Equal(t, tt.wantRetry, decision.RetryAfterSeconds)
		})
	}
}

func TestRateLimiterService_DeniedRequestsAreNotCounted(t *testing.T) {
	svc, repo, clock := setupRateLimiterTest(t)
	ctx := context.Background()

	require.True(t, svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail).Allowed)
	clock.Advance(10 * time.Second)
	require.False(t, svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail).Allowed)

	record, err := repo.Find(ctx, "a@b.com", model.IdentifierEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, record.RequestCount)
	assert.True(t, record.LastRequestAt.Equal(clock.Now().Add(-10*time.Second)))
}

func TestRateLimiterService_HourlyLimit(t *testing.T) {
	svc, repo, clock := setupRateLimiterTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision := svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail)
		require.True(t, decision.Allowed, "request %d", i+1)
		clock.Advance(61 * time.Second)
	}

	// Sixth request in the same hour, outside the cooldown.
	decision := svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail)
	assert.False(t, decision.Allowed)
	// Last accepted request was 61s ago, so the window ends in 3539s.
	assert.Equal(t, 3600-61, decision.RetryAfterSeconds)

	record, err := repo.Find(ctx, "a@b.com", model.IdentifierEmail)
	require.NoError(t, err)
	assert.Equal(t, 5, record.RequestCount)

	// An hour after the last accepted request the window restarts.
	clock.Advance(time.Hour - 61*time.Second)
	decision = svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail)
	assert.True(t, decision.Allowed)

	record, err = repo.Find(ctx, "a@b.com", model.IdentifierEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, record.RequestCount)
}

func TestRateLimiterService_IdentifiersAreIndependent(t *testing.T) {
	svc, _, _ := setupRateLimiterTest(t)
	ctx := context.Background()

	require.True(t, svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierEmail).Allowed)
	assert.True(t, svc.CheckAndRecord(ctx, "c@d.com", model.IdentifierEmail).Allowed)
	// Same string, different type.
	assert.True(t, svc.CheckAndRecord(ctx, "a@b.com", model.IdentifierIP).Allowed)
}

func TestRateLimiterService_CheckLoginCodeRequest(t *testing.T) {
	svc, repo, clock := setupRateLimiterTest(t)
	ctx := context.Background()

	assert.True(t, svc.CheckLoginCodeRequest(ctx, "a@b.com", "203.0.113.9").Allowed)

	_, err := repo.Find(ctx, "203.0.113.9", model.IdentifierIP)
	require.NoError(t, err)

	// The IP is still cooling down even for another account.
	clock.Advance(5 * time.Second)
	decision := svc.CheckLoginCodeRequest(ctx, "c@d.com", "203.0.113.9")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 55, decision.RetryAfterSeconds)

	// Without an IP only the email is checked.
	assert.True(t, svc.CheckLoginCodeRequest(ctx, "e@f.com", "").Allowed)
}

// brokenRateLimitRepo simulates an unreachable database.
type brokenRateLimitRepo struct {
	repository.RateLimitRepository
}

func (brokenRateLimitRepo) Find(context.Context, string, model.RateLimitIdentifierType) (*model.TwoFactorRateLimit, error) {
	return nil, errors.New("connection refused")
}

func TestRateLimiterService_FailsOpen(t *testing.T) {
	svc := NewRateLimiterService(brokenRateLimitRepo{}, RateLimiterOptions{})

	for i := 0; i < 10; i++ {
		decision := svc.CheckAndRecord(context.Background(), "a@b.com", model.IdentifierEmail)
		assert.True(t, decision.Allowed)
	}
}
