package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendGridAPI interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridMailer struct {
	client   sendGridAPI
	from     *mail.Email
	sandbox  bool
	renderer *renderer
}

func NewSendGridMailer(cfg config.MailConfig) (Mailer, error) {
	if cfg.SendGridAPIKey == "" {
		return nil, errors.New("SENDGRID_API_KEY is required for the sendgrid mail driver")
	}

	logger.Info("SendGrid mailer initialized", map[string]interface{}{
		"sandbox": cfg.SendGridSandbox,
	})
	return &sendGridMailer{
		client:   sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:     mail.NewEmail(cfg.AppName, cfg.From),
		sandbox:  cfg.SendGridSandbox,
		renderer: newRenderer(cfg.AppName),
	}, nil
}

// SendLoginCode ignores ctx: the SendGrid client has no context-aware send.
func (m *sendGridMailer) SendLoginCode(_ context.Context, msg LoginCodeMessage) error {
	email, err := m.renderer.loginCode(msg)
	if err != nil {
		return err
	}

	message := mail.NewSingleEmail(m.from, email.Subject, mail.NewEmail(msg.Name, msg.To), email.Text, email.HTML)
	if m.sandbox {
		settings := mail.NewMailSettings()
		settings.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(settings)
	}

	resp, err := m.client.Send(message)
	if err == nil && resp.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	if err != nil {
		logger.Error("Failed to send login code over SendGrid", err, map[string]interface{}{
			"to": msg.To,
		})
		return fmt.Errorf("failed to send login code email: %w", err)
	}

	logger.Info("Login code email sent", map[string]interface{}{
		"to":      msg.To,
		"driver":  DriverSendGrid,
		"sandbox": m.sandbox,
	})
	return nil
}
