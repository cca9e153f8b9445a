package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/metrics"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"gorm.io/gorm"
)

const (
	DefaultCooldown           = 60 * time.Second
	DefaultMaxRequestsPerHour = 5
	DefaultRateLimitWindow    = time.Hour
)

type RateLimitDecision struct {
	Allowed           bool
	RetryAfterSeconds int
}

type RateLimiterOptions struct {
	Cooldown    time.Duration
	MaxRequests int
	Window      time.Duration
	Clock       func() time.Time
}

// RateLimiterService throttles login code requests per email or IP.
//
// Storage errors fail open: the request is allowed and the error logged, so
// a database hiccup does not lock every user out of login.
type RateLimiterService interface {
	CheckAndRecord(ctx context.Context, identifier string, identifierType model.RateLimitIdentifierType) RateLimitDecision
	// CheckLoginCodeRequest applies the email limit and, when ip is not
	// empty, the IP limit. The first denial wins.
	CheckLoginCodeRequest(ctx context.Context, email, ip string) RateLimitDecision
}

type rateLimiterService struct {
	repo        repository.RateLimitRepository
	cooldown    time.Duration
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

func NewRateLimiterService(repo repository.RateLimitRepository, opts RateLimiterOptions) RateLimiterService {
	s := &rateLimiterService{
		repo:        repo,
		cooldown:    opts.Cooldown,
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		now:         opts.Clock,
	}
	if s.cooldown <= 0 {
		s.cooldown = DefaultCooldown
	}
	if s.maxRequests <= 0 {
		s.maxRequests = DefaultMaxRequestsPerHour
	}
	if s.window <= 0 {
		s.window = DefaultRateLimitWindow
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *rateLimiterService) CheckAndRecord(ctx context.Context, identifier string, identifierType model.RateLimitIdentifierType) RateLimitDecision {
	now := s.now()
	fields := map[string]interface{}{
		"identifier_type": identifierType,
	}

	record, err := s.repo.Find(ctx, identifier, identifierType)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Rate limit lookup failed, allowing request", err, fields)
			return RateLimitDecision{Allowed: true}
		}

		if err := s.repo.Create(ctx, &model.TwoFactorRateLimit{
			Identifier:     identifier,
			IdentifierType: identifierType,
			RequestCount:   1,
			LastRequestAt:  now,
		}); err != nil {
			logger.Error("Rate limit insert failed, allowing request", err, fields)
		}
		return RateLimitDecision{Allowed: true}
	}

	cooldownEnds := record.LastRequestAt.Add(s.cooldown)
	if now.Before(cooldownEnds) {
		retry := ceilSeconds(cooldownEnds.Sub(now))
		metrics.RateLimited.WithLabelValues(string(identifierType)).Inc()
		logger.Warn("Login code requested during cooldown", map[string]interface{}{
			"identifier_type": identifierType,
			"retry_after":     retry,
		})
		return RateLimitDecision{Allowed: false, RetryAfterSeconds: retry}
	}

	requestCount := 1
	if now.Sub(record.LastRequestAt) < s.window {
		if record.RequestCount >= s.maxRequests {
			retry := ceilSeconds(record.LastRequestAt.Add(s.window).Sub(now))
			metrics.RateLimited.WithLabelValues(string(identifierType)).Inc()
			logger.Warn("Hourly login code limit reached", map[string]interface{}{
				"identifier_type": identifierType,
				"request_count":   record.RequestCount,
				"retry_after":     retry,
			})
			return RateLimitDecision{Allowed: false, RetryAfterSeconds: retry}
		}
		requestCount = record.RequestCount + 1
	}

	if err := s.repo.Record(ctx, record.ID, requestCount, now); err != nil {
		logger.Error("Rate limit update failed, allowing request", err, fields)
	}
	return RateLimitDecision{Allowed: true}
}

func (s *rateLimiterService) CheckLoginCodeRequest(ctx context.Context, email, ip string) RateLimitDecision {
	decision := s.CheckAndRecord(ctx, email, model.IdentifierEmail)
	if !decision.Allowed || ip == "" {
		return decision
	}
	return s.CheckAndRecord(ctx, ip, model.IdentifierIP)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
