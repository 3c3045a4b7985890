package notification

import (
	"context"
	"fmt"
	"net/smtp"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// Configured reports whether enough of the config is set to send mail.
func (c EmailConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

type EmailService struct {
	config EmailConfig
}

func NewEmailService(config EmailConfig) *EmailService {
	return &EmailService{config: config}
}

// SendResetCode emails a password reset code to the given address.
func (s *EmailService) SendResetCode(ctx context.Context, to, code string) error {
	subject := "Your Password Reset Code"
	body := fmt.Sprintf(`<html><body>
		<h2>Reset Your Password</h2>
		<p>A password reset has been requested for your account.</p>
		<p>Your reset code is:</p>
		<p style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">%s</p>
		<p>This code will expire in 15 minutes.</p>
		<p>If you did not request this password reset, please ignore this email.</p>
	</body></html>`, code)
	return s.sendEmail(ctx, to, subject, body)
}

func (s *EmailService) sendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body)

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return smtp.SendMail(addr, auth, s.config.From, []string{to}, []byte(msg))
}
