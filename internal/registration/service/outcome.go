package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/audit"
	"onboarding/internal/registration/classifier"
	"onboarding/internal/registration/models"
	"onboarding/pkg/attrs"
	"onboarding/pkg/requestcontext"
)

const phaseValidation = "validation"

// reject returns a validation failure. Nothing ran, so there is nothing to
// roll back and the state is returned untouched.
func (s *Service) reject(ctx context.Context, state *models.TransactionState, err error) models.TransactionResult {
	c := classifier.Classify(err, "")
	s.metrics.IncRegistration("rejected", phaseValidation)
	s.logAudit(ctx, audit.EventRegistrationRejected,
		"phase", phaseValidation,
		"outcome", "rejected",
		"reason", c.Message,
	)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("registration.outcome", "rejected"))
	return models.TransactionResult{
		ErrorMessage:  c.Message,
		ErrorCategory: string(c.Category),
		State:         state,
	}
}

// fail rolls back whatever committed and classifies cause for the caller.
// Rollback problems are logged by the compensator and never change the
// message: the caller only sees the original failure.
func (s *Service) fail(ctx context.Context, state *models.TransactionState, phase models.Phase, cause error) models.TransactionResult {
	span := trace.SpanFromContext(ctx)
	state.LastError = cause
	c := classifier.Classify(cause, phase)
	identityID := ""
	if !state.IdentityID.IsNil() {
		identityID = state.IdentityID.String()
	}

	if actions := state.DrainRollbackActions(); len(actions) > 0 {
		state.Status = models.StatusRollingBack
		span.AddEvent("registration.rollback", trace.WithAttributes(attribute.Int("actions", len(actions))))
		report := s.compensator.Rollback(ctx, actions)
		state.Rollback = report.Outcomes
		s.logAudit(ctx, audit.EventRollbackCompleted,
			"identity_id", identityID,
			"phase", string(phase),
			"outcome", rollbackOutcome(report.Failed),
			"actions", len(actions),
			"failed_actions", report.Failed,
		)
		if report.Orphaned {
			s.logAudit(ctx, audit.EventIdentityOrphaned,
				"identity_id", identityID,
				"phase", string(phase),
				"outcome", "orphaned",
				"reason", "identity could not be compensated",
			)
		}
	}
	state.Status = models.StatusFailed

	if s.logger != nil {
		level := slog.LevelWarn
		if c.Category == classifier.CategoryPhaseFailure {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "registration failed",
			"phase", string(phase),
			"category", string(c.Category),
			"identity_id", identityID,
			"error", cause,
		)
	}
	s.metrics.IncRegistration("failure", string(phase))
	s.logAudit(ctx, audit.EventRegistrationFailed,
		"identity_id", identityID,
		"phase", string(phase),
		"outcome", "failure",
		"reason", string(c.Category),
	)

	span.RecordError(cause)
	span.SetStatus(codes.Error, "registration failed")
	span.SetAttributes(
		attribute.String("registration.outcome", "failure"),
		attribute.String("registration.failed_phase", string(phase)),
		attribute.String("registration.error_category", string(c.Category)),
	)

	return models.TransactionResult{
		ErrorMessage:  c.Message,
		ErrorCategory: string(c.Category),
		FailedPhase:   phase,
		State:         state,
	}
}

func (s *Service) succeed(ctx context.Context, state *models.TransactionState) {
	s.metrics.IncRegistration("success", string(models.PhaseComplete))
	s.logAudit(ctx, audit.EventRegistrationCompleted,
		"identity_id", state.IdentityID.String(),
		"organization_id", state.OrganizationID.String(),
		"phase", string(models.PhaseComplete),
		"outcome", "success",
	)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("registration.outcome", "success"))
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		IdentityID: attrs.ExtractString(attributes, "identity_id"),
		Action:     event,
		Phase:      attrs.ExtractString(attributes, "phase"),
		Outcome:    attrs.ExtractString(attributes, "outcome"),
		Reason:     attrs.ExtractString(attributes, "reason"),
		RequestID:  requestID,
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}

func rollbackOutcome(failed int) string {
	if failed > 0 {
		return "partial"
	}
	return "complete"
}
