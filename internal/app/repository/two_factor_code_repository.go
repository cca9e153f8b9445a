package repository

import (
	"context"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"gorm.io/gorm"
)

// TwoFactorCodeRepository persists login codes. Every mutation is a single
// statement keyed by id, user_id or session_token.
type TwoFactorCodeRepository interface {
	Create(ctx context.Context, code *model.TwoFactorCode) error
	// InvalidateActiveByUser marks every unused code of the user as used.
	InvalidateActiveByUser(ctx context.Context, userID uint) (int64, error)
	// FindActive returns the newest unused, unexpired code bound to the
	// session token, user and email. gorm.ErrRecordNotFound when none exists.
	FindActive(ctx context.Context, sessionToken string, userID uint, email string, now time.Time) (*model.TwoFactorCode, error)
	// ClaimAttempt counts one attempt against an unused code that still has
	// attempts left. claimed is false when the code is used or exhausted.
	// attempts is the stored count after the call; it never exceeds max_attempts.
	ClaimAttempt(ctx context.Context, id uint) (attempts int, claimed bool, err error)
	MarkUsed(ctx context.Context, id uint) error
	// MarkVerified consumes an unused code and gives back the attempt claimed
	// for the matching comparison. ok is false when the code was already used.
	MarkVerified(ctx context.Context, id uint, at time.Time) (ok bool, err error)
	// InvalidateOthersByUser marks the user's unused codes other than exceptID as used.
	InvalidateOthersByUser(ctx context.Context, userID, exceptID uint) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type twoFactorCodeRepository struct {
	db *gorm.DB
}

func NewTwoFactorCodeRepository(db *gorm.DB) TwoFactorCodeRepository {
	return &twoFactorCodeRepository{db: db}
}

func (r *twoFactorCodeRepository) Create(ctx context.Context, code *model.TwoFactorCode) error {
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		logger.Error("Failed to create two-factor code in database", err, map[string]interface{}{
			"user_id": code.UserID,
		})
		return err
	}

	logger.Debug("Two-factor code created in database", map[string]interface{}{
		"id":         code.ID,
		"user_id":    code.UserID,
		"expires_at": code.ExpiresAt,
	})
	return nil
}

func (r *twoFactorCodeRepository) InvalidateActiveByUser(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).
		Where("user_id = ? AND is_used = ?", userID, false).
		Update("is_used", true)
	if result.Error != nil {
		logger.Error("Failed to invalidate two-factor codes in database", result.Error, map[string]interface{}{
			"user_id": userID,
		})
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *twoFactorCodeRepository) FindActive(ctx context.Context, sessionToken string, userID uint, email string, now time.Time) (*model.TwoFactorCode, error) {
	var code model.TwoFactorCode
	err := r.db.WithContext(ctx).
		Where("session_token = ? AND user_id = ? AND email = ?", sessionToken, userID, email).
		Where("is_used = ? AND expires_at > ?", false, now).
		Order("created_at DESC").Order("id DESC").
		First(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *twoFactorCodeRepository) ClaimAttempt(ctx context.Context, id uint) (int, bool, error) {
	db := r.db.WithContext(ctx)
	result := db.Model(&model.TwoFactorCode{}).
		Where("id = ? AND is_used = ? AND attempts < max_attempts", id, false).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
	if result.Error != nil {
		logger.Error("Failed to claim two-factor attempt in database", result.Error, map[string]interface{}{
			"id": id,
		})
		return 0, false, result.Error
	}
	var attempts int
	if err := db.Model(&model.TwoFactorCode{}).Where("id = ?", id).
		Select("attempts").Scan(&attempts).Error; err != nil {
		logger.Error("Failed to read two-factor attempts from database", err, map[string]interface{}{
			"id": id,
		})
		return 0, false, err
	}
	return attempts, result.RowsAffected == 1, nil
}

func (r *twoFactorCodeRepository) MarkUsed(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).Where("id = ?", id).
		Update("is_used", true).Error
	if err != nil {
		logger.Error("Failed to mark two-factor code as used in database", err, map[string]interface{}{
			"id": id,
		})
	}
	return err
}

func (r *twoFactorCodeRepository) MarkVerified(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).
		Where("id = ? AND is_used = ?", id, false).
		UpdateColumns(map[string]interface{}{
			"is_used":     true,
			"verified_at": at,
			"attempts":    gorm.Expr("CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END"),
		})
	if result.Error != nil {
		logger.Error("Failed to mark two-factor code as verified in database", result.Error, map[string]interface{}{
			"id": id,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *twoFactorCodeRepository) InvalidateOthersByUser(ctx context.Context, userID, exceptID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).
		Where("user_id = ? AND id <> ? AND is_used = ?", userID, exceptID, false).
		Update("is_used", true)
	if result.Error != nil {
		logger.Error("Failed to invalidate sibling two-factor codes in database", result.Error, map[string]interface{}{
			"user_id": userID,
		})
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *twoFactorCodeRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.TwoFactorCode{})
	if result.Error != nil {
		logger.Error("Failed to delete old two-factor codes from database", result.Error, nil)
		return 0, result.Error
	}

	logger.Debug("Old two-factor codes deleted from database", map[string]interface{}{
		"count": result.RowsAffected,
	})
	return result.RowsAffected, nil
}
