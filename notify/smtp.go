// Package notify delivers password reset links and login codes.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SendMailFunc matches smtp.SendMail
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig holds the mail relay settings
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	AppName  string
	ResetTTL time.Duration
	OTPTTL   time.Duration
	SendMail SendMailFunc
}

// SMTPNotifier sends plain text emails through an SMTP relay
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.AppName == "" {
		cfg.AppName = "Account"
	}
	if cfg.SendMail == nil {
		cfg.SendMail = smtp.SendMail
	}
	return &SMTPNotifier{cfg: cfg}
}

func (m *SMTPNotifier) SendPasswordResetEmail(ctx context.Context, to, link string) error {
	subject := fmt.Sprintf("%s password reset", m.cfg.AppName)
	body := fmt.Sprintf(
		"Use the following link to reset your password:\n\n%s\n\nThe link expires in %s. If you did not request this, ignore this email.",
		link, humanize(m.cfg.ResetTTL, "15 minutes"),
	)
	return m.send(ctx, to, subject, body)
}

func (m *SMTPNotifier) SendOTPEmail(ctx context.Context, to, code string) error {
	subject := fmt.Sprintf("%s login code", m.cfg.AppName)
	body := fmt.Sprintf(
		"Your login code is: %s\n\nThe code expires in %s. If you did not request this, ignore this email.",
		code, humanize(m.cfg.OTPTTL, "5 minutes"),
	)
	return m.send(ctx, to, subject, body)
}

func (m *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	if m.cfg.Host == "" || m.cfg.Port == "" || m.cfg.From == "" {
		return goerrors.New("mailer missing configuration", goerrors.CategoryInternal)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if m.cfg.Username != "" || m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	if err := m.cfg.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{"subject": subject})
	}

	return nil
}

func humanize(d time.Duration, def string) string {
	if d <= 0 {
		return def
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
