package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTwoFactorCodeTest(t *testing.T) (*gorm.DB, TwoFactorCodeRepository) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)
	return testDB, NewTwoFactorCodeRepository(testDB)
}

func newTestCode(userID uint, token string, createdAt time.Time) *model.TwoFactorCode {
	return &model.TwoFactorCode{
		UserID:       userID,
		Email:        "a@b.com",
		CodeHash:     "hash-" + token,
		SessionToken: token,
		ExpiresAt:    createdAt.Add(10 * time.Minute),
		MaxAttempts:  5,
		CreatedAt:    createdAt,
	}
}

func TestTwoFactorCodeRepository_FindActive(t *testing.T) {
	_, repo := setupTwoFactorCodeTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active := newTestCode(42, "tok-active", now)
	require.NoError(t, repo.Create(ctx, active))

	expired := newTestCode(42, "tok-expired", now.Add(-20*time.Minute))
	require.NoError(t, repo.Create(ctx, expired))

	used := newTestCode(42, "tok-used", now)
	used.IsUsed = true
	require.NoError(t, repo.Create(ctx, used))

	tests := []struct {
		name    string
		token   string
		userID  uint
		email   string
		wantID  uint
		wantErr error
	}{
		{name: "Active code", token: "tok-active", userID: 42, email: "a@b.com", wantID: active.ID},
		{name: "Expired code", token: "tok-expired", userID: 42, email: "a@b.com", wantErr: gorm.ErrRecordNotFound},
		{name: "Used code", token: "tok-used", userID: 42, email: "a@b.com", wantErr: gorm.ErrRecordNotFound},
		{name: "Other user", token: "tok-active", userID: 7, email: "a@b.com", wantErr: gorm.ErrRecordNotFound},
		{name: "Email changed", token: "tok-active", userID: 42, email: "new@b.com", wantErr: gorm.ErrRecordNotFound},
		{name: "Unknown token", token: "nope", userID: 42, email: "a@b.com", wantErr: gorm.ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.FindActive(ctx, tt.token, tt.userID, tt.email, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, found)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, found.ID)
		})
	}
}

func TestTwoFactorCodeRepository_InvalidateActiveByUser(t *testing.T) {
	testDB, repo := setupTwoFactorCodeTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newTestCode(42, "a", now)))
	require.NoError(t, repo.Create(ctx, newTestCode(42, "b", now)))
	other := newTestCode(7, "c", now)
	require.NoError(t, repo.Create(ctx, other))

	n, err := repo.InvalidateActiveByUser(ctx, 42)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var unused int64
	require.NoError(t, testDB.Model(&model.TwoFactorCode{}).Where("user_id = ? AND is_used = ?", 42, false).Count(&unused).Error)
	assert.Zero(t, unused)

	found, err := repo.FindActive(ctx, "c", 7, "a@b.com", now)
	require.NoError(t, err)
	assert.Equal(t, other.ID, found.ID)
}

func TestTwoFactorCodeRepository_ClaimAttempt(t *testing.T) {
	testDB, repo := setupTwoFactorCodeTest(t)
	ctx := context.Background()

	code := newTestCode(42, "tok", time.Now().UTC())
	code.MaxAttempts = 3
	require.NoError(t, repo.Create(ctx, code))

	for want := 1; want <= 3; want++ {
		got, claimed, err := repo.ClaimAttempt(ctx, code.ID)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, want, got)
	}

	// Exhausted: nothing more is counted.
	got, claimed, err := repo.ClaimAttempt(ctx, code.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, 3, got)

	var stored model.TwoFactorCode
	require.NoError(t, testDB.First(&stored, code.ID).Error)
	assert.Equal(t, 3, stored.Attempts)
}

func TestTwoFactorCodeRepository_ClaimAttemptOnUsedCode(t *testing.T) {
	_, repo := setupTwoFactorCodeTest(t)
	ctx := context.Background()

	code := newTestCode(42, "tok", time.Now().UTC())
	code.IsUsed = true
	require.NoError(t, repo.Create(ctx, code))

	got, claimed, err := repo.ClaimAttempt(ctx, code.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Zero(t, got)
}

func TestTwoFactorCodeRepository_MarkVerifiedAndSiblings(t *testing.T) {
	testDB, repo := setupTwoFactorCodeTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	winner := newTestCode(42, "win", now)
	sibling := newTestCode(42, "sib", now)
	require.NoError(t, repo.Create(ctx, winner))
	require.NoError(t, repo.Create(ctx, sibling))

	_, claimed, err := repo.ClaimAttempt(ctx, winner.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	ok, err := repo.MarkVerified(ctx, winner.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := repo.InvalidateOthersByUser(ctx, 42, winner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var stored model.TwoFactorCode
	require.NoError(t, testDB.First(&stored, winner.ID).Error)
	assert.True(t, stored.IsUsed)
	require.NotNil(t, stored.VerifiedAt)
	// The matching attempt is not counted.
	assert.Equal(t, 0, stored.Attempts)

	var sib model.TwoFactorCode
	require.NoError(t, testDB.First(&sib, sibling.ID).Error)
	assert.True(t, sib.IsUsed)
	assert.Nil(t, sib.VerifiedAt)
}

func TestTwoFactorCodeRepository_MarkVerifiedOnlyOnce(t *testing.T) {
	_, repo := setupTwoFactorCodeTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	code := newTestCode(42, "tok", now)
	require.NoError(t, repo.Create(ctx, code))

	ok, err := repo.MarkVerified(ctx, code.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkVerified(ctx, code.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTwoFactorCodeRepository_DeleteCreatedBefore(t *testing.T) {
	testDB, repo := setupTwoFactorCodeTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newTestCode(1, "old", now.Add(-48*time.Hour))))
	require.NoError(t, repo.Create(ctx, newTestCode(1, "new", now)))

	n, err := repo.DeleteCreatedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var remaining int64
	require.NoError(t, testDB.Model(&model.TwoFactorCode{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}
