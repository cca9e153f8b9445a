package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/pkg/logger"
)

const charsetUTF8 = "UTF-8"

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type sesMailer struct {
	client   sesAPI
	from     string
	renderer *renderer
}

// NewSESMailer uses static credentials when both keys are set and the default
// AWS credential chain otherwise.
func NewSESMailer(ctx context.Context, cfg config.MailConfig) (Mailer, error) {
	var awsCfg aws.Config
	if cfg.SESAccessKeyID != "" && cfg.SESSecretAccessKey != "" {
		awsCfg = aws.Config{
			Region: cfg.SESRegion,
			Credentials: credentials.NewStaticCredentialsProvider(
				cfg.SESAccessKeyID,
				cfg.SESSecretAccessKey,
				"",
			),
		}
	} else {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SESRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	logger.Info("SES mailer initialized", map[string]interface{}{
		"region": cfg.SESRegion,
	})
	return &sesMailer{client: ses.NewFromConfig(awsCfg), from: cfg.From, renderer: newRenderer(cfg.AppName)}, nil
}

func (m *sesMailer) SendLoginCode(ctx context.Context, msg LoginCodeMessage) error {
	email, err := m.renderer.loginCode(msg)
	if err != nil {
		return err
	}

	out, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String(charsetUTF8)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(email.HTML), Charset: aws.String(charsetUTF8)},
				Text: &types.Content{Data: aws.String(email.Text), Charset: aws.String(charsetUTF8)},
			},
		},
	})
	if err != nil {
		logger.Error("Failed to send login code over SES", err, map[string]interface{}{
			"to": msg.To,
		})
		return fmt.Errorf("failed to send login code email: %w", err)
	}

	logger.Info("Login code email sent", map[string]interface{}{
		"to":         msg.To,
		"driver":     DriverSES,
		"message_id": aws.ToString(out.MessageId),
	})
	return nil
}
