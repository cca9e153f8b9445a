package model

import (
	"time"
)

// TwoFactorCode is one emailed login code. Only the hash of the code is stored.
//
// A code is usable while IsUsed is false, ExpiresAt is in the future and
// Attempts is below MaxAttempts. Issuing a new code for a user marks every
// older unused code of that user as used.
type TwoFactorCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	Email        string     `gorm:"size:255;not null" json:"email"`
	CodeHash     string     `gorm:"size:64;not null" json:"-"`
	SessionToken string     `gorm:"size:64;not null;index" json:"-"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	IPAddress    string     `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent    string     `gorm:"size:512" json:"user_agent,omitempty"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts  int        `gorm:"not null;default:5" json:"max_attempts"`
	IsUsed       bool       `gorm:"not null;default:false;index" json:"is_used"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

func (TwoFactorCode) TableName() string {
	return "two_factor_codes"
}

// RemainingAttempts never goes below zero.
func (c *TwoFactorCode) RemainingAttempts() int {
	if c.Attempts >= c.MaxAttempts {
		return 0
	}
	return c.MaxAttempts - c.Attempts
}

type RateLimitIdentifierType string

const (
	IdentifierEmail RateLimitIdentifierType = "email"
	IdentifierIP    RateLimitIdentifierType = "ip"
)

// TwoFactorRateLimit counts code requests per identifier in a rolling window.
type TwoFactorRateLimit struct {
	ID             uint                    `gorm:"primaryKey" json:"id"`
	Identifier     string                  `gorm:"size:255;not null;uniqueIndex:idx_two_factor_rate_limits_identifier" json:"identifier"`
	IdentifierType RateLimitIdentifierType `gorm:"type:varchar(10);not null;uniqueIndex:idx_two_factor_rate_limits_identifier" json:"identifier_type"`
	RequestCount   int                     `gorm:"not null;default:1" json:"request_count"`
	LastRequestAt  time.Time               `gorm:"not null;index" json:"last_request_at"`
}

func (TwoFactorRateLimit) TableName() string {
	return "two_factor_rate_limits"
}
