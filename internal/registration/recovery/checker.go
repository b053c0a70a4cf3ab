// Package recovery reports which records of a registration are missing.
package recovery

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"onboarding/internal/registration/models"
	"onboarding/internal/registration/ports"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

// Checker probes the profile store and the organization membership for an
// identity. It never writes.
type Checker struct {
	profiles    ports.ProfileStore
	memberships ports.MembershipChecker
	logger      *slog.Logger
}

type Option func(*Checker)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

func New(profiles ports.ProfileStore, memberships ports.MembershipChecker, opts ...Option) *Checker {
	c := &Checker{
		profiles:    profiles,
		memberships: memberships,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// componentsChecked is the number of components Check probes.
const componentsChecked = 2

// Check runs both probes concurrently and reports missing components in a
// fixed order (user_profile, organization). A failed probe fails the whole
// check rather than reporting the component as missing.
func (c *Checker) Check(ctx context.Context, identityID id.IdentityID) (models.RecoveryStatus, error) {
	if identityID.IsNil() {
		return models.RecoveryStatus{}, dErrors.New(dErrors.CodeBadRequest, "identity id required")
	}

	var hasProfile, hasMembership bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := c.profiles.ExistsForIdentity(gctx, identityID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check profile record")
		}
		hasProfile = ok
		return nil
	})
	g.Go(func() error {
		ok, err := c.memberships.HasMembership(gctx, identityID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check organization membership")
		}
		hasMembership = ok
		return nil
	})
	if err := g.Wait(); err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "recovery check failed",
				"identity_id", identityID.String(),
				"error", err,
			)
		}
		return models.RecoveryStatus{}, err
	}

	missing := make([]string, 0, componentsChecked)
	if !hasProfile {
		missing = append(missing, models.ComponentUserProfile)
	}
	if !hasMembership {
		missing = append(missing, models.ComponentOrganization)
	}

	return models.RecoveryStatus{
		NeedsRecovery:     len(missing) > 0,
		MissingComponents: missing,
		// Deliberately <= rather than <: missing every component still counts
		// as recoverable, so this equals NeedsRecovery for two components.
		// TODO: agree a real recoverability rule before probing a third component.
		CanRecover: len(missing) > 0 && len(missing) <= componentsChecked,
	}, nil
}
