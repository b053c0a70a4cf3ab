package service

import (
	"context"
	"errors"
	"fmt"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

// dispatchWelcome sends the welcome notification on a detached goroutine and
// returns its error channel. The channel yields at most one error and is
// closed when the send finishes. Nothing on the registration path reads it.
func (s *Service) dispatchWelcome(ctx context.Context, summary models.ProfileSummary) <-chan error {
	errs := make(chan error, 1)
	if s.notifier == nil {
		close(errs)
		return errs
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(errs)
		ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		if err := s.sendWelcome(ctx, summary); err != nil {
			errs <- err
		}
	}()
	return errs
}

func (s *Service) sendWelcome(ctx context.Context, summary models.ProfileSummary) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("welcome notifier panicked: %v", rec)
		}
	}()
	return s.notifier.SendWelcome(ctx, summary)
}

// observeWelcome logs the outcome of a dispatch.
func (s *Service) observeWelcome(ctx context.Context, identityID id.IdentityID, errs <-chan error) {
	if s.notifier == nil {
		s.metrics.IncWelcomeNotification("skipped")
		return
	}
	err, ok := <-errs
	switch {
	case !ok:
		s.metrics.IncWelcomeNotification("sent")
		if s.logger != nil {
			s.logger.DebugContext(ctx, "welcome notification sent", "identity_id", identityID.String())
		}
	case errors.Is(err, sentinel.ErrUnavailable):
		s.metrics.IncWelcomeNotification("skipped")
		if s.logger != nil {
			s.logger.InfoContext(ctx, "welcome notification skipped",
				"identity_id", identityID.String(),
				"reason", err.Error(),
			)
		}
	default:
		s.metrics.IncWelcomeNotification("failed")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "welcome notification failed",
				"identity_id", identityID.String(),
				"error", err,
			)
		}
	}
}
