package auth

import (
	"context"
	"fmt"
	"net/smtp"

	"membership-portal/config"

	"go.uber.org/zap"
)

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
	SendPasswordReset(ctx context.Context, to, link string) error
}

type SMTPMailer struct {
	cfg config.SMTP
	log *zap.Logger
}

func NewSMTPMailer(cfg config.SMTP, log *zap.Logger) *SMTPMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, log: log}
}

func (m *SMTPMailer) SendVerification(ctx context.Context, to, link string) error {
	body := fmt.Sprintf("Click the following link to verify your account:\n\n%s", link)
	return m.send(to, "Verify Your Account", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	body := fmt.Sprintf("Use the following link to choose a new password. It expires in one hour.\n\n%s", link)
	return m.send(to, "Reset Your Password", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	// Without a host the link is only logged, which is enough for local runs.
	if m.cfg.SMTPHost == "" {
		m.log.Info("smtp not configured, email not sent", zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
		return nil
	}

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}

	message := []byte("Subject: " + subject + "\r\n" +
		"From: " + m.cfg.SMTPFrom + "\r\n" +
		"To: " + to + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	if err := smtp.SendMail(addr, auth, m.cfg.SMTPFrom, []string{to}, message); err != nil {
		m.log.Error("smtp send failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("auth.SendMail: %w", err)
	}
	return nil
}
