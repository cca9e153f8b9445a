package mailer

import (
	"context"
	"fmt"

	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"gopkg.in/gomail.v2"
)

type smtpSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpMailer struct {
	sender   smtpSender
	from     string
	renderer *renderer
}

func NewSMTPMailer(cfg config.MailConfig) Mailer {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return &smtpMailer{sender: dialer, from: cfg.From, renderer: newRenderer(cfg.AppName)}
}

// SendLoginCode ignores ctx: gomail dials synchronously without one.
func (m *smtpMailer) SendLoginCode(_ context.Context, msg LoginCodeMessage) error {
	email, err := m.renderer.loginCode(msg)
	if err != nil {
		return err
	}

	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", msg.To)
	message.SetHeader("Subject", email.Subject)
	message.SetBody("text/plain", email.Text)
	message.AddAlternative("text/html", email.HTML)

	if err := m.sender.DialAndSend(message); err != nil {
		logger.Error("Failed to send login code over SMTP", err, map[string]interface{}{
			"to": msg.To,
		})
		return fmt.Errorf("failed to send login code email: %w", err)
	}

	logger.Info("Login code email sent", map[string]interface{}{
		"to":     msg.To,
		"driver": DriverSMTP,
	})
	return nil
}
