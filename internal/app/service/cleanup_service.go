package service

import (
	"context"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/metrics"
	"github.com/lojamoda/storefront-auth/pkg/logger"
)

type CleanupResult struct {
	DeletedCodes      int64 `json:"deleted_codes"`
	DeletedRateLimits int64 `json:"deleted_rate_limits"`
}

// CleanupService purges old two-factor rows. Correctness never depends on it:
// expiry is checked when a code is read.
type CleanupService interface {
	Run(ctx context.Context) (*CleanupResult, error)
}

type cleanupService struct {
	codeRepo           repository.TwoFactorCodeRepository
	rateLimitRepo      repository.RateLimitRepository
	codeRetention      time.Duration
	rateLimitRetention time.Duration
	now                func() time.Time
}

func NewCleanupService(
	codeRepo repository.TwoFactorCodeRepository,
	rateLimitRepo repository.RateLimitRepository,
	codeRetention, rateLimitRetention time.Duration,
	clock func() time.Time,
) CleanupService {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &cleanupService{
		codeRepo:           codeRepo,
		rateLimitRepo:      rateLimitRepo,
		codeRetention:      codeRetention,
		rateLimitRetention: rateLimitRetention,
		now:                clock,
	}
}

func (s *cleanupService) Run(ctx context.Context) (*CleanupResult, error) {
	now := s.now()
	result := &CleanupResult{}

	deleted, err := s.codeRepo.DeleteCreatedBefore(ctx, now.Add(-s.codeRetention))
	if err != nil {
		logger.Error("Two-factor code cleanup failed", err)
		return nil, err
	}
	result.DeletedCodes = deleted
	metrics.CleanupDeleted.WithLabelValues("two_factor_codes").Add(float64(deleted))

	deleted, err = s.rateLimitRepo.DeleteLastRequestBefore(ctx, now.Add(-s.rateLimitRetention))
	if err != nil {
		logger.Error("Rate limit cleanup failed", err)
		return result, err
	}
	result.DeletedRateLimits = deleted
	metrics.CleanupDeleted.WithLabelValues("two_factor_rate_limits").Add(float64(deleted))

	logger.Info("Two-factor cleanup completed", map[string]interface{}{
		"deleted_codes":       result.DeletedCodes,
		"deleted_rate_limits": result.DeletedRateLimits,
	})
	return result, nil
}
