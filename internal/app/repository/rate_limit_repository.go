package repository

import (
	"context"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"gorm.io/gorm"
)

type RateLimitRepository interface {
	// Find returns gorm.ErrRecordNotFound when the identifier has no record yet.
	Find(ctx context.Context, identifier string, identifierType model.RateLimitIdentifierType) (*model.TwoFactorRateLimit, error)
	Create(ctx context.Context, record *model.TwoFactorRateLimit) error
	// Record overwrites the counter and last request time of an existing record.
	Record(ctx context.Context, id uint, requestCount int, at time.Time) error
	DeleteLastRequestBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type rateLimitRepository struct {
	db *gorm.DB
}

func NewRateLimitRepository(db *gorm.DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

func (r *rateLimitRepository) Find(ctx context.Context, identifier string, identifierType model.RateLimitIdentifierType) (*model.TwoFactorRateLimit, error) {
	var record model.TwoFactorRateLimit
	err := r.db.WithContext(ctx).
		Where("identifier = ? AND identifier_type = ?", identifier, identifierType).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *rateLimitRepository) Create(ctx context.Context, record *model.TwoFactorRateLimit) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		logger.Error("Failed to create rate limit record in database", err, map[string]interface{}{
			"identifier_type": record.IdentifierType,
		})
		return err
	}
	return nil
}

func (r *rateLimitRepository) Record(ctx context.Context, id uint, requestCount int, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.TwoFactorRateLimit{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"request_count":   requestCount,
			"last_request_at": at,
		}).Error
	if err != nil {
		logger.Error("Failed to update rate limit record in database", err, map[string]interface{}{
			"id": id,
		})
	}
	return err
}

func (r *rateLimitRepository) DeleteLastRequestBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("last_request_at < ?", cutoff).Delete(&model.TwoFactorRateLimit{})
	if result.Error != nil {
		logger.Error("Failed to delete old rate limit records from database", result.Error, nil)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
