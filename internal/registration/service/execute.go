package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/registration/classifier"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/requestcontext"
)

// Execute runs one registration attempt and always returns a result.
//
// The caller's cancellation is not propagated: an abandoned request still
// finishes the phase in flight and runs rollback if needed. Values on ctx
// (request id, client metadata, trace) are kept.
func (s *Service) Execute(ctx context.Context, req *models.RegistrationRequest) models.TransactionResult {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "registration.execute")
	defer span.End()

	state := models.NewTransactionState()
	if req == nil {
		return s.reject(ctx, state, dErrors.New(dErrors.CodeValidation, "Registration details are required"))
	}
	r := *req
	r.Normalize()
	if err := r.Validate(); err != nil {
		return s.reject(ctx, state, err)
	}

	identity, err := s.createIdentity(ctx, state, &r)
	if err != nil {
		return s.fail(ctx, state, models.PhaseAuth, err)
	}
	state.IdentityID = identity.ID
	state.Commit(models.StepAuthUserCreated, undo(models.ActionDeleteIdentity, identity.ID, identity.ID))
	span.SetAttributes(attribute.String("identity_id", identity.ID.String()))

	profileID, err := s.createProfile(ctx, state, identity.ID, &r)
	if err != nil {
		return s.fail(ctx, state, models.PhaseUserProfile, err)
	}
	state.ProfileRecordID = profileID
	state.Commit(models.StepUserProfileCreated, undo(models.ActionDeleteProfileRecord, profileID, identity.ID))

	s.recordMetadata(ctx, state, identity.ID, &r)

	org, err := s.createOrganization(ctx, state, identity.ID, &r)
	if err != nil {
		return s.fail(ctx, state, models.PhaseOrganization, err)
	}
	state.OrganizationID = org.ID
	orgUndo := undo(models.ActionDeleteOrganization, org.ID, identity.ID)
	if !org.MembershipID.IsNil() {
		orgUndo.Extra["membership_id"] = org.MembershipID.String()
	}
	state.Commit(models.StepOrganizationCreated, orgUndo)
	if err := state.Advance(models.PhaseComplete); err != nil {
		return s.fail(ctx, state, models.PhaseOrganization,
			dErrors.Wrap(err, dErrors.CodeInvariantViolation, "registration phase out of order"))
	}

	profile := s.assembleProfile(ctx, identity, profileID, org, &r)
	s.succeed(ctx, state)
	go s.observeWelcome(ctx, identity.ID, s.dispatchWelcome(ctx, profile.Summary()))

	return models.TransactionResult{
		Success:        true,
		User:           &profile,
		OrganizationID: org.ID,
		State:          state,
	}
}

type authOutcome struct {
	identity models.Identity
	err      error
}

// createIdentity races the Identity Provider against the auth timeout. On
// timeout the remote call is not cancelled; it keeps running and a late
// identity is handed to awaitLateIdentity.
func (s *Service) createIdentity(ctx context.Context, state *models.TransactionState, r *models.RegistrationRequest) (models.Identity, error) {
	var identity models.Identity
	err := s.runPhase(ctx, state, models.PhaseAuth, func(ctx context.Context) error {
		done := make(chan authOutcome, 1)
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					done <- authOutcome{err: fmt.Errorf("identity provider panicked: %v", rec)}
				}
			}()
			created, err := s.identities.CreateIdentity(ctx, r.Email, r.Password, identityAttributes(r))
			done <- authOutcome{identity: created, err: err}
		}()

		timer := time.NewTimer(s.authTimeout)
		defer timer.Stop()

		select {
		case out := <-done:
			if out.err != nil {
				return out.err
			}
			if out.identity.ID.IsNil() {
				return dErrors.New(dErrors.CodeInternal, "identity provider returned no identity id")
			}
			identity = out.identity
			return nil
		case <-timer.C:
			go s.awaitLateIdentity(ctx, done)
			return classifier.ErrTimeout
		}
	})
	if identity.Email == "" {
		identity.Email = r.Email
	}
	return identity, err
}

// awaitLateIdentity compensates an identity the provider created after the
// auth phase already timed out.
func (s *Service) awaitLateIdentity(ctx context.Context, done <-chan authOutcome) {
	out := <-done
	if out.err != nil || out.identity.ID.IsNil() {
		return
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "identity created after auth timeout",
			"identity_id", out.identity.ID.String(),
		)
	}
	s.compensator.Rollback(ctx, []models.RollbackAction{
		undo(models.ActionDeleteIdentity, out.identity.ID, out.identity.ID),
	})
}

func (s *Service) createProfile(ctx context.Context, state *models.TransactionState, identityID id.IdentityID, r *models.RegistrationRequest) (id.ProfileID, error) {
	var profileID id.ProfileID
	err := s.runPhase(ctx, state, models.PhaseUserProfile, func(ctx context.Context) error {
		created, err := s.profiles.Insert(ctx, identityID, models.ProfileFields{
			Email:       r.Email,
			FirstName:   r.FirstName,
			LastName:    r.LastName,
			Phone:       r.Phone,
			UserType:    r.UserType,
			CompanyName: r.CompanyName,
		})
		if err != nil {
			return err
		}
		if created.IsNil() {
			return dErrors.New(dErrors.CodeInternal, "profile store returned no record id")
		}
		profileID = created
		return nil
	})
	return profileID, err
}

// recordMetadata is the soft phase. A failure is logged and counted; the
// step and its compensating action are only recorded on success.
func (s *Service) recordMetadata(ctx context.Context, state *models.TransactionState, identityID id.IdentityID, r *models.RegistrationRequest) {
	var metadataID id.MetadataID
	err := s.runPhase(ctx, state, models.PhaseUserMetadata, func(ctx context.Context) error {
		created, err := s.metadata.Insert(ctx, identityID, s.metadataFields(ctx, r))
		if err != nil {
			return err
		}
		if created.IsNil() {
			return errors.New("metadata store returned no record id")
		}
		metadataID = created
		return nil
	})
	if err != nil {
		s.metrics.IncSoftFailure()
		trace.SpanFromContext(ctx).AddEvent("user_metadata.skipped")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "user metadata not recorded, continuing",
				"identity_id", identityID.String(),
				"phase", string(models.PhaseUserMetadata),
				"error", err,
			)
		}
		return
	}
	state.MetadataID = metadataID
	state.Commit(models.StepUserMetadataCreated, undo(models.ActionDeleteMetadataRecord, metadataID, identityID))
}

func (s *Service) metadataFields(ctx context.Context, r *models.RegistrationRequest) models.MetadataFields {
	fields := models.MetadataFields{
		Email:           r.Email,
		UserType:        r.UserType,
		TermsAcceptedAt: s.now().UTC(),
		SignupIP:        requestcontext.ClientIP(ctx),
		UserAgent:       requestcontext.UserAgent(ctx),
	}
	if fields.UserAgent != "" {
		ua := useragent.New(fields.UserAgent)
		fields.Browser, _ = ua.Browser()
		fields.OS = ua.OS()
		fields.Platform = ua.Platform()
		fields.Mobile = ua.Mobile()
	}
	return fields
}

func (s *Service) createOrganization(ctx context.Context, state *models.TransactionState, identityID id.IdentityID, r *models.RegistrationRequest) (models.Organization, error) {
	var org models.Organization
	err := s.runPhase(ctx, state, models.PhaseOrganization, func(ctx context.Context) error {
		created, err := s.organizations.CreateOrganization(ctx, identityID, models.OrganizationFields{
			Name:      r.OrganizationName(),
			OwnerRole: OwnerRole,
			UserType:  r.UserType,
		})
		if err != nil {
			return err
		}
		if created.ID.IsNil() {
			return dErrors.New(dErrors.CodeInternal, "organization provisioner returned no organization id")
		}
		org = created
		return nil
	})
	return org, err
}

// runPhase advances the state machine and runs fn under its own span. A
// panic in fn is returned as an error.
func (s *Service) runPhase(ctx context.Context, state *models.TransactionState, phase models.Phase, fn func(ctx context.Context) error) (err error) {
	if err := state.Advance(phase); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "registration phase out of order")
	}

	ctx, span := s.tracer.Start(ctx, "registration."+string(phase))
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s phase panicked: %v", phase, rec)
		}
		s.metrics.ObservePhase(string(phase), start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(phase)+" failed")
		}
		span.End()
	}()

	return fn(ctx)
}

// assembleProfile reads back the joined view. A failed read never fails the
// registration; the view is then built from what phase 1..4 returned.
func (s *Service) assembleProfile(ctx context.Context, identity models.Identity, profileID id.ProfileID, org models.Organization, r *models.RegistrationRequest) models.UserProfile {
	if s.reader != nil {
		view, err := s.reader.FindProfileView(ctx, identity.ID)
		if err == nil {
			if view.OrganizationID.IsNil() {
				view.OrganizationID = org.ID
			}
			return view
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "profile read-back failed, returning minimal profile",
				"identity_id", identity.ID.String(),
				"error", err,
			)
		}
	}

	attrs := identity.Attributes
	if attrs.FirstName == "" && attrs.LastName == "" {
		attrs = identityAttributes(r)
	}
	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	return models.UserProfile{
		ID:               identity.ID,
		ProfileID:        profileID,
		Email:            identity.Email,
		FirstName:        attrs.FirstName,
		LastName:         attrs.LastName,
		Phone:            attrs.Phone,
		UserType:         attrs.UserType,
		CompanyName:      attrs.CompanyName,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		OrganizationRole: OwnerRole,
		CreatedAt:        createdAt,
	}
}

func identityAttributes(r *models.RegistrationRequest) models.IdentityAttributes {
	return models.IdentityAttributes{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Phone:       r.Phone,
		UserType:    r.UserType,
		CompanyName: r.CompanyName,
	}
}

func undo(kind models.ActionKind, target fmt.Stringer, identityID id.IdentityID) models.RollbackAction {
	return models.RollbackAction{
		Kind:     kind,
		TargetID: target.String(),
		Extra:    map[string]string{"identity_id": identityID.String()},
	}
}
