package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/resource-planning/internal/notifications"
)

// LogSender writes reminders to the structured log instead of a mail server.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements notifications.Sender.
func (s LogSender) Send(ctx context.Context, msg notifications.Log) error {
	if msg.RecipientEmail == "" {
		return errors.New("recipient has no email address")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "send notification",
		slog.String("tenant_id", msg.TenantID),
		slog.String("to", msg.RecipientEmail),
		slog.String("subject", msg.Subject),
		slog.String("phase", string(msg.Phase)))
	return nil
}
