package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/metrics"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/lojamoda/storefront-auth/pkg/util"
	"gorm.io/gorm"
)

// ErrTwoFactorUnavailable hides persistence failures from callers; the cause
// is logged where it happens.
var ErrTwoFactorUnavailable = errors.New("two-factor storage unavailable")

const (
	DefaultCodeTTL     = 10 * time.Minute
	DefaultMaxAttempts = 5
)

// User facing verification messages.
const (
	MsgCodeInvalidOrExpired = "Código inválido ou expirado. Solicite um novo código."
	MsgTooManyAttempts      = "Muitas tentativas incorretas. Solicite um novo código."
	msgWrongCodeFormat      = "Código incorreto. Você tem mais %d tentativa(s)."
)

// VerifyFailure tells the caller why a verification was rejected.
type VerifyFailure string

const (
	VerifyFailureNone             VerifyFailure = ""
	VerifyFailureInvalidOrExpired VerifyFailure = "invalid_or_expired"
	VerifyFailureTooManyAttempts  VerifyFailure = "too_many_attempts"
	VerifyFailureMismatch         VerifyFailure = "mismatch"
)

type IssueRequest struct {
	UserID       uint
	Email        string
	SessionToken string
	IPAddress    string
	UserAgent    string
}

// IssuedCode carries the plaintext code for delivery. It is never persisted.
type IssuedCode struct {
	Code      string
	ExpiresAt time.Time
}

type VerifyResult struct {
	Valid             bool
	Failure           VerifyFailure
	Error             string
	RemainingAttempts int
	Record            *model.TwoFactorCode
}

type TwoFactorOptions struct {
	CodeTTL     time.Duration
	MaxAttempts int
	// HashKey keys the code digest with HMAC-SHA256. Empty means plain SHA-256.
	HashKey string
	Clock   func() time.Time
}

type TwoFactorService interface {
	// Issue supersedes the user's unused codes and stores a new one bound to
	// the session token. The caller must have checked the password already.
	Issue(ctx context.Context, req IssueRequest) (*IssuedCode, error)
	// Verify checks a submitted code. Rejections are reported in the result;
	// the error is only set when storage fails.
	Verify(ctx context.Context, sessionToken, inputCode string, userID uint, email string) (*VerifyResult, error)
}

type twoFactorService struct {
	codeRepo    repository.TwoFactorCodeRepository
	codeTTL     time.Duration
	maxAttempts int
	hashKey     string
	now         func() time.Time
}

func NewTwoFactorService(codeRepo repository.TwoFactorCodeRepository, opts TwoFactorOptions) TwoFactorService {
	s := &twoFactorService{
		codeRepo:    codeRepo,
		codeTTL:     opts.CodeTTL,
		maxAttempts: opts.MaxAttempts,
		hashKey:     opts.HashKey,
		now:         opts.Clock,
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Issue invalidates and then inserts as two separate statements. Two
// concurrent issues for one user can both survive; only the code whose
// session token the client holds can be verified.
func (s *twoFactorService) Issue(ctx context.Context, req IssueRequest) (*IssuedCode, error) {
	logger.Info("Issuing two-factor code", map[string]interface{}{
		"user_id": req.UserID,
		"ip":      req.IPAddress,
	})

	superseded, err := s.codeRepo.InvalidateActiveByUser(ctx, req.UserID)
	if err != nil {
		logger.Error("Failed to supersede previous two-factor codes", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		return nil, ErrTwoFactorUnavailable
	}

	code, err := util.GenerateLoginCode()
	if err != nil {
		logger.Error("Failed to generate two-factor code", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		return nil, err
	}

	now := s.now()
	record := &model.TwoFactorCode{
		UserID:       req.UserID,
		Email:        req.Email,
		CodeHash:     util.HashLoginCode(code, s.hashKey),
		SessionToken: req.SessionToken,
		ExpiresAt:    now.Add(s.codeTTL),
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Attempts:     0,
		MaxAttempts:  s.maxAttempts,
		CreatedAt:    now,
	}
	if err := s.codeRepo.Create(ctx, record); err != nil {
		logger.Error("Failed to store two-factor code", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		return nil, ErrTwoFactorUnavailable
	}

	metrics.CodesIssued.Inc()
	logger.Info("Two-factor code issued", map[string]interface{}{
		"user_id":    req.UserID,
		"code_id":    record.ID,
		"superseded": superseded,
		"expires_at": record.ExpiresAt,
	})

	return &IssuedCode{Code: code, ExpiresAt: record.ExpiresAt}, nil
}

func (s *twoFactorService) Verify(ctx context.Context, sessionToken, inputCode string, userID uint, email string) (*VerifyResult, error) {
	record, err := s.codeRepo.FindActive(ctx, sessionToken, userID, email, s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("No active two-factor code for session", map[string]interface{}{
				"user_id": userID,
			})
			metrics.Verifications.WithLabelValues(string(VerifyFailureInvalidOrExpired)).Inc()
			return &VerifyResult{
				Failure: VerifyFailureInvalidOrExpired,
				Error:   MsgCodeInvalidOrExpired,
			}, nil
		}
		logger.Error("Failed to look up two-factor code", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, ErrTwoFactorUnavailable
	}

	if record.Attempts >= record.MaxAttempts {
		return s.tooManyAttempts(ctx, record, userID), nil
	}

	// Claim the attempt before comparing; attempts never exceed max_attempts.
	attempts, claimed, err := s.codeRepo.ClaimAttempt(ctx, record.ID)
	if err != nil {
		logger.Error("Failed to count two-factor attempt", err, map[string]interface{}{
			"code_id": record.ID,
		})
		return nil, ErrTwoFactorUnavailable
	}
	if !claimed {
		if attempts >= record.MaxAttempts {
			return s.tooManyAttempts(ctx, record, userID), nil
		}
		return s.alreadyConsumed(record, userID), nil
	}
	record.Attempts = attempts

	if !util.LoginCodeMatches(inputCode, record.CodeHash, s.hashKey) {
		remaining := record.RemainingAttempts()

		logger.Warn("Wrong two-factor code submitted", map[string]interface{}{
			"user_id":   userID,
			"code_id":   record.ID,
			"remaining": remaining,
		})
		metrics.Verifications.WithLabelValues(string(VerifyFailureMismatch)).Inc()
		return &VerifyResult{
			Failure:           VerifyFailureMismatch,
			Error:             fmt.Sprintf(msgWrongCodeFormat, remaining),
			RemainingAttempts: remaining,
		}, nil
	}

	verifiedAt := s.now()
	ok, err := s.codeRepo.MarkVerified(ctx, record.ID, verifiedAt)
	if err != nil {
		logger.Error("Failed to consume two-factor code", err, map[string]interface{}{
			"code_id": record.ID,
		})
		return nil, ErrTwoFactorUnavailable
	}
	if !ok {
		return s.alreadyConsumed(record, userID), nil
	}
	record.IsUsed = true
	record.VerifiedAt = &verifiedAt
	record.Attempts = attempts - 1

	closed, err := s.codeRepo.InvalidateOthersByUser(ctx, userID, record.ID)
	if err != nil {
		// Don't fail the login: this code is already consumed.
		logger.Error("Failed to close parallel two-factor codes", err, map[string]interface{}{
			"user_id": userID,
		})
	}

	metrics.Verifications.WithLabelValues("success").Inc()
	logger.Info("Two-factor code verified", map[string]interface{}{
		"user_id":         userID,
		"code_id":         record.ID,
		"closed_siblings": closed,
	})

	return &VerifyResult{Valid: true, Record: record, RemainingAttempts: record.RemainingAttempts()}, nil
}

// tooManyAttempts closes a code whose attempts are spent.
func (s *twoFactorService) tooManyAttempts(ctx context.Context, record *model.TwoFactorCode, userID uint) *VerifyResult {
	if err := s.codeRepo.MarkUsed(ctx, record.ID); err != nil {
		// The code stays unusable because attempts >= max_attempts.
		logger.Error("Failed to invalidate exhausted two-factor code", err, map[string]interface{}{
			"code_id": record.ID,
		})
	}
	logger.Warn("Two-factor code exhausted its attempts", map[string]interface{}{
		"user_id": userID,
		"code_id": record.ID,
	})
	metrics.Verifications.WithLabelValues(string(VerifyFailureTooManyAttempts)).Inc()
	return &VerifyResult{
		Failure: VerifyFailureTooManyAttempts,
		Error:   MsgTooManyAttempts,
	}
}

// alreadyConsumed reports a code that another request used or superseded
// after it was read.
func (s *twoFactorService) alreadyConsumed(record *model.TwoFactorCode, userID uint) *VerifyResult {
	logger.Warn("Two-factor code consumed by another request", map[string]interface{}{
		"user_id": userID,
		"code_id": record.ID,
	})
	metrics.Verifications.WithLabelValues(string(VerifyFailureInvalidOrExpired)).Inc()
	return &VerifyResult{
		Failure: VerifyFailureInvalidOrExpired,
		Error:   MsgCodeInvalidOrExpired,
	}
}
