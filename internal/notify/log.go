package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the structured log. It is the default
// driver for local runs where no broker is available.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("appointment_id", n.AppointmentID),
		zap.String("recipient", n.Recipient),
		zap.String("email", n.Email),
		zap.String("subject", n.Subject),
		zap.Any("content", n.Content),
	)
	return nil
}
