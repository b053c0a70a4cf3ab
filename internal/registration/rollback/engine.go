// Package rollback replays compensating actions for a failed registration.
//
// Compensation is best effort: actions run in LIFO order, each failure is
// logged and counted, and the next action runs regardless. A failed delete can
// leave residue in the store; the Report says which actions did not complete.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"onboarding/internal/registration/metrics"
	"onboarding/internal/registration/models"
	"onboarding/internal/registration/ports"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

const defaultActionTimeout = 10 * time.Second

type ProfileDeleter interface {
	Delete(ctx context.Context, profileID id.ProfileID) error
}

type MetadataDeleter interface {
	Delete(ctx context.Context, metadataID id.MetadataID) error
}

type OrganizationDeleter interface {
	DeleteOrganization(ctx context.Context, organizationID id.OrganizationID) error
	DeleteMembership(ctx context.Context, membershipID id.MembershipID) error
}

// ErrIdentityCompensationUnavailable is recorded for delete_identity actions
// when no privileged IdentityAdmin is configured.
var ErrIdentityCompensationUnavailable = fmt.Errorf("identity compensation requires admin capability: %w", sentinel.ErrNotSupported)

// Report summarizes a rollback run.
type Report struct {
	Outcomes []models.RollbackOutcome
	Failed   int
	// Orphaned is set when an identity could not be deleted.
	Orphaned bool
}

// Engine dispatches each RollbackAction kind to its compensating delete.
type Engine struct {
	profiles      ProfileDeleter
	metadata      MetadataDeleter
	organizations OrganizationDeleter
	identities    ports.IdentityAdmin
	logger        *slog.Logger
	metrics       *metrics.Metrics
	actionTimeout time.Duration
}

type Option func(*Engine)

// WithIdentityAdmin enables real identity deletion.
func WithIdentityAdmin(admin ports.IdentityAdmin) Option {
	return func(e *Engine) {
		e.identities = admin
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithActionTimeout bounds each compensating call.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.actionTimeout = d
		}
	}
}

func New(profiles ProfileDeleter, metadata MetadataDeleter, organizations OrganizationDeleter, opts ...Option) *Engine {
	e := &Engine{
		profiles:      profiles,
		metadata:      metadata,
		organizations: organizations,
		actionTimeout: defaultActionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rollback replays actions in reverse order. It always returns; individual
// failures (including panics in a compensator) are recorded, never raised.
func (e *Engine) Rollback(ctx context.Context, actions []models.RollbackAction) Report {
	report := Report{Outcomes: make([]models.RollbackOutcome, 0, len(actions))}

	for i := len(actions) - 1; i >= 0; i-- {
		action := actions[i]
		err := e.run(ctx, action)

		outcome := models.RollbackOutcome{Action: action}
		switch {
		case err == nil:
			e.metrics.IncRollbackAction(string(action.Kind), "ok")
			e.log(ctx, slog.LevelInfo, "rollback action completed", action, nil)
		case errors.Is(err, ErrIdentityCompensationUnavailable):
			outcome.Err = err.Error()
			report.Orphaned = true
			e.metrics.IncRollbackAction(string(action.Kind), "unsupported")
			e.metrics.IncOrphanedIdentity()
			e.log(ctx, slog.LevelWarn, "identity left orphaned: no admin capability to delete it", action, nil)
		default:
			outcome.Err = err.Error()
			report.Failed++
			if action.Kind == models.ActionDeleteIdentity {
				report.Orphaned = true
				e.metrics.IncOrphanedIdentity()
			}
			e.metrics.IncRollbackAction(string(action.Kind), "failed")
			e.log(ctx, slog.LevelError, "rollback action failed", action, err)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report
}

func (e *Engine) run(ctx context.Context, action models.RollbackAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	err = e.compensate(ctx, action)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Already gone.
		return nil
	}
	return err
}

func (e *Engine) compensate(ctx context.Context, action models.RollbackAction) error {
	switch action.Kind {
	case models.ActionDeleteIdentity:
		if e.identities == nil {
			return ErrIdentityCompensationUnavailable
		}
		identityID, err := id.ParseIdentityID(action.TargetID)
		if err != nil {
			return err
		}
		return e.identities.DeleteIdentity(ctx, identityID)
	case models.ActionDeleteProfileRecord:
		profileID, err := id.ParseProfileID(action.TargetID)
		if err != nil {
			return err
		}
		return e.profiles.Delete(ctx, profileID)
	case models.ActionDeleteMetadataRecord:
		metadataID, err := id.ParseMetadataID(action.TargetID)
		if err != nil {
			return err
		}
		return e.metadata.Delete(ctx, metadataID)
	case models.ActionDeleteOrganization:
		organizationID, err := id.ParseOrganizationID(action.TargetID)
		if err != nil {
			return err
		}
		return e.organizations.DeleteOrganization(ctx, organizationID)
	case models.ActionDeleteMembership:
		membershipID, err := id.ParseMembershipID(action.TargetID)
		if err != nil {
			return err
		}
		return e.organizations.DeleteMembership(ctx, membershipID)
	default:
		return fmt.Errorf("unknown rollback action kind %q", action.Kind)
	}
}

func (e *Engine) log(ctx context.Context, level slog.Level, msg string, action models.RollbackAction, err error) {
	if e.logger == nil {
		return
	}
	args := []any{
		"action", string(action.Kind),
		"target_id", action.TargetID,
	}
	if identityID, ok := action.Extra["identity_id"]; ok {
		args = append(args, "identity_id", identityID)
	}
	if err != nil {
		args = append(args, "error", err)
	}
	e.logger.Log(ctx, level, msg, args...)
}
