package notify

import (
	"context"
	"log/slog"

	"onboarding/internal/registration/models"
)

// LogSender records the welcome notification in the log instead of sending
// it. It is the default backend for local runs.
type LogSender struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) SendWelcome(ctx context.Context, summary models.ProfileSummary) error {
	if l.logger == nil {
		return nil
	}
	l.logger.InfoContext(ctx, "welcome notification",
		"event", EventWelcome,
		"identity_id", summary.IdentityID.String(),
		"organization_id", summary.OrganizationID.String(),
		"user_type", string(summary.UserType),
	)
	return nil
}
