package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lojamoda/storefront-auth/config"
)

// LoginCodeMessage is the second-factor email sent after a correct password.
type LoginCodeMessage struct {
	To        string
	Name      string
	Code      string
	ExpiresAt time.Time
}

// Mailer delivers login codes. Implementations must not log the code except
// the console driver, which exists for local development.
type Mailer interface {
	SendLoginCode(ctx context.Context, msg LoginCodeMessage) error
}

const (
	DriverSMTP     = "smtp"
	DriverSES      = "ses"
	DriverSendGrid = "sendgrid"
	DriverConsole  = "console"
)

// New builds the mailer selected by cfg.Driver.
func New(ctx context.Context, cfg config.MailConfig) (Mailer, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSMTP:
		return NewSMTPMailer(cfg), nil
	case DriverSES:
		return NewSESMailer(ctx, cfg)
	case DriverSendGrid:
		return NewSendGridMailer(cfg)
	case DriverConsole, "":
		return NewConsoleMailer(cfg.AppName), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
