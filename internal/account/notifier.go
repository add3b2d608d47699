package account

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers the out-of-band password reset message.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogNotifier writes reset tokens to the log instead of sending mail.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.log.Infow("password reset requested", "email", email, "reset_token", token)
	return nil
}
