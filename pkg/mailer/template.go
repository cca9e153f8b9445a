package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var loginCodeTemplate = template.Must(template.New("login_code").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{.AppName}}</h2>
  <p>Olá{{if .Name}}, {{.Name}}{{end}}!</p>
  <p>Use o código abaixo para concluir seu login:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">{{.Code}}</p>
  <p>O código expira em {{.Minutes}} minutos.</p>
  <p>Se você não tentou entrar na sua conta, ignore este e-mail e considere trocar sua senha.</p>
</body>
</html>
`))

type renderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

type renderer struct {
	appName string
	now     func() time.Time
}

func newRenderer(appName string) *renderer {
	if appName == "" {
		appName = "Loja Moda"
	}
	return &renderer{appName: appName, now: time.Now}
}

func (r *renderer) loginCode(msg LoginCodeMessage) (*renderedEmail, error) {
	minutes := int(msg.ExpiresAt.Sub(r.now()).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	var html bytes.Buffer
	err := loginCodeTemplate.Execute(&html, map[string]interface{}{
		"AppName": r.appName,
		"Name":    msg.Name,
		"Code":    msg.Code,
		"Minutes": minutes,
	})
	if err != nil {
		return nil, fmt.Errorf("render login code email: %w", err)
	}

	return &renderedEmail{
		Subject: fmt.Sprintf("%s: seu código de verificação", r.appName),
		HTML:    html.String(),
		Text:    fmt.Sprintf("Seu código de verificação é %s. Ele expira em %d minutos.", msg.Code, minutes),
	}, nil
}
