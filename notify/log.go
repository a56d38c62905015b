package notify

import (
	"context"
)

// Logger is the subset of auth.Logger the log notifier needs
type Logger interface {
	Info(format string, args ...any)
}

// LogNotifier writes notifications to the log. Meant for local development
// only since it prints the secret.
type LogNotifier struct {
	logger Logger
}

func NewLogNotifier(logger Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordResetEmail(_ context.Context, to, link string) error {
	n.logger.Info("password reset email to=%s link=%s", to, link)
	return nil
}

func (n *LogNotifier) SendOTPEmail(_ context.Context, to, code string) error {
	n.logger.Info("otp email to=%s code=%s", to, code)
	return nil
}
