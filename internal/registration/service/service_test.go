package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"onboarding/internal/audit"
	"onboarding/internal/registration/classifier"
	"onboarding/internal/registration/metrics"
	"onboarding/internal/registration/models"
	"onboarding/internal/registration/ports/mocks"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	identities    *mocks.MockIdentityProvider
	admin         *mocks.MockIdentityAdmin
	profiles      *mocks.MockProfileStore
	reader        *mocks.MockProfileReader
	metadata      *mocks.MockMetadataStore
	organizations *mocks.MockOrganizationProvisioner
	notifier      *mocks.MockNotifier
	metrics       *metrics.Metrics
	auditStore    *audit.InMemoryStore
	logger        *slog.Logger

	identityID     id.IdentityID
	profileID      id.ProfileID
	metadataID     id.MetadataID
	organizationID id.OrganizationID
	membershipID   id.MembershipID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.identities = mocks.NewMockIdentityProvider(s.ctrl)
	s.admin = mocks.NewMockIdentityAdmin(s.ctrl)
	s.profiles = mocks.NewMockProfileStore(s.ctrl)
	s.reader = mocks.NewMockProfileReader(s.ctrl)
	s.metadata = mocks.NewMockMetadataStore(s.ctrl)
	s.organizations = mocks.NewMockOrganizationProvisioner(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.auditStore = audit.NewInMemoryStore()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	s.identityID = id.NewIdentityID()
	s.profileID = id.NewProfileID()
	s.metadataID = id.NewMetadataID()
	s.organizationID = id.NewOrganizationID()
	s.membershipID = id.NewMembershipID()
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) service(opts ...Option) *Service {
	base := []Option{
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithAuditPublisher(audit.NewPublisher(s.auditStore)),
	}
	return New(s.identities, s.profiles, s.metadata, s.organizations, append(base, opts...)...)
}

func validRequest() *models.RegistrationRequest {
	return &models.RegistrationRequest{
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "  Jane@Example.com ",
		Password:        "s3cretpass",
		ConfirmPassword: "s3cretpass",
		UserType:        models.UserTypeSME,
		CompanyName:     "Acme Ltd",
		AgreeToTerms:    true,
	}
}

func (s *ServiceSuite) expectIdentity() *gomock.Call {
	return s.identities.EXPECT().
		CreateIdentity(gomock.Any(), "jane@example.com", "s3cretpass", gomock.Any()).
		Return(models.Identity{ID: s.identityID, Email: "jane@example.com"}, nil)
}

func (s *ServiceSuite) expectProfile() *gomock.Call {
	return s.profiles.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).Return(s.profileID, nil)
}

func (s *ServiceSuite) expectMetadata() *gomock.Call {
	return s.metadata.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).Return(s.metadataID, nil)
}

func (s *ServiceSuite) expectOrganization() *gomock.Call {
	return s.organizations.EXPECT().CreateOrganization(gomock.Any(), s.identityID, gomock.Any()).
		Return(models.Organization{ID: s.organizationID, Name: "Acme Ltd", MembershipID: s.membershipID}, nil)
}

func (s *ServiceSuite) TestExecuteSuccess() {
	ctx := context.Background()

	s.Run("all phases complete", func() {
		gomock.InOrder(
			s.expectIdentity(),
			s.expectProfile(),
			s.expectMetadata(),
			s.organizations.EXPECT().CreateOrganization(gomock.Any(), s.identityID, models.OrganizationFields{
				Name:      "Acme Ltd",
				OwnerRole: OwnerRole,
				UserType:  models.UserTypeSME,
			}).Return(models.Organization{ID: s.organizationID, Name: "Acme Ltd"}, nil),
			s.reader.EXPECT().FindProfileView(gomock.Any(), s.identityID).Return(models.UserProfile{
				ID:               s.identityID,
				Email:            "jane@example.com",
				FirstName:        "Jane",
				OrganizationID:   s.organizationID,
				OrganizationName: "Acme Ltd",
			}, nil),
		)

		result := s.service(WithProfileReader(s.reader)).Execute(ctx, validRequest())

		s.True(result.Success)
		s.Empty(result.ErrorMessage)
		s.Equal(s.organizationID, result.OrganizationID)
		s.Require().NotNil(result.User)
		s.Equal("Jane", result.User.FirstName)
		s.Equal(models.PhaseComplete, result.State.Phase)
		s.Equal(models.StatusComplete, result.State.Status)
		s.Equal([]models.Step{
			models.StepAuthUserCreated,
			models.StepUserProfileCreated,
			models.StepUserMetadataCreated,
			models.StepOrganizationCreated,
		}, result.State.CompletedSteps)
		s.Len(result.State.RollbackActions, len(result.State.CompletedSteps))
		s.Equal(models.ActionDeleteIdentity, result.State.RollbackActions[0].Kind)
		s.Equal(models.ActionDeleteOrganization, result.State.RollbackActions[3].Kind)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Registrations.WithLabelValues("success", "complete")))
	})

	s.Run("organization name falls back to the person", func() {
		req := validRequest()
		req.CompanyName = ""
		s.expectIdentity()
		s.expectProfile()
		s.expectMetadata()
		s.organizations.EXPECT().CreateOrganization(gomock.Any(), s.identityID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.IdentityID, fields models.OrganizationFields) (models.Organization, error) {
				s.Equal("Jane Doe", fields.Name)
				return models.Organization{ID: s.organizationID, Name: fields.Name}, nil
			})

		result := s.service().Execute(ctx, req)
		s.True(result.Success)
		s.Equal("Jane Doe", result.User.OrganizationName)
	})

	s.Run("read-back failure returns a minimal profile", func() {
		s.expectIdentity()
		s.expectProfile()
		s.expectMetadata()
		s.expectOrganization()
		s.reader.EXPECT().FindProfileView(gomock.Any(), s.identityID).Return(models.UserProfile{}, errors.New("replica lag"))

		result := s.service(WithProfileReader(s.reader)).Execute(ctx, validRequest())

		s.True(result.Success)
		s.Require().NotNil(result.User)
		s.Equal(s.identityID, result.User.ID)
		s.Equal(s.profileID, result.User.ProfileID)
		s.Equal("jane@example.com", result.User.Email)
		s.Equal("Jane", result.User.FirstName)
		s.Equal("Doe", result.User.LastName)
		s.Equal(s.organizationID, result.User.OrganizationID)
		s.Equal(OwnerRole, result.User.OrganizationRole)
	})
}

func (s *ServiceSuite) TestMetadataCarriesClientDetails() {
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.7",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.expectIdentity()
	s.expectProfile()
	s.metadata.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.IdentityID, fields models.MetadataFields) (id.MetadataID, error) {
			s.Equal("jane@example.com", fields.Email)
			s.Equal("203.0.113.7", fields.SignupIP)
			s.Equal("Safari", fields.Browser)
			s.False(fields.Mobile)
			s.Equal(fixed, fields.TermsAcceptedAt)
			return s.metadataID, nil
		})
	s.expectOrganization()

	result := s.service(WithClock(func() time.Time { return fixed })).Execute(ctx, validRequest())
	s.True(result.Success)
}

func (s *ServiceSuite) TestValidationFailure() {
	req := validRequest()
	req.ConfirmPassword = "different1"

	result := s.service().Execute(context.Background(), req)

	s.False(result.Success)
	s.Equal("Passwords do not match", result.ErrorMessage)
	s.Equal(string(classifier.CategoryValidation), result.ErrorCategory)
	s.Equal(models.StatusInit, result.State.Status)
	s.Empty(result.State.CompletedSteps)
	s.Empty(result.State.RollbackActions)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registrations.WithLabelValues("rejected", "validation")))
}

func (s *ServiceSuite) TestNilRequest() {
	result := s.service().Execute(context.Background(), nil)
	s.False(result.Success)
	s.Equal(string(classifier.CategoryValidation), result.ErrorCategory)
}

func (s *ServiceSuite) TestAuthFailures() {
	ctx := context.Background()

	s.Run("duplicate email surfaces provider text and rolls nothing back", func() {
		s.identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.Identity{}, dErrors.New(dErrors.CodeConflict, "User already registered"))

		result := s.service(WithIdentityAdmin(s.admin)).Execute(ctx, validRequest())

		s.False(result.Success)
		s.Contains(result.ErrorMessage, "already registered")
		s.Equal(string(classifier.CategoryDuplicateAccount), result.ErrorCategory)
		s.Equal(models.PhaseAuth, result.FailedPhase)
		s.Equal(models.StatusFailed, result.State.Status)
		s.Empty(result.State.Rollback)
		s.Empty(result.State.CompletedSteps)
	})

	s.Run("uncoded rate limit text is recognized", func() {
		s.identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.Identity{}, errors.New("Email rate limit exceeded"))

		result := s.service().Execute(ctx, validRequest())

		s.Equal("Email rate limit exceeded", result.ErrorMessage)
		s.Equal(string(classifier.CategoryRateLimit), result.ErrorCategory)
	})

	s.Run("internal provider errors are replaced", func() {
		s.identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.Identity{}, errors.New("dial tcp 10.0.0.4:5432: connect: connection refused"))

		result := s.service().Execute(ctx, validRequest())

		s.Equal(classifier.MessageAuth, result.ErrorMessage)
		s.Equal(string(classifier.CategoryPhaseFailure), result.ErrorCategory)
	})

	s.Run("missing identity id is a phase failure", func() {
		s.identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.Identity{}, nil)

		result := s.service().Execute(ctx, validRequest())

		s.False(result.Success)
		s.Equal(classifier.MessageAuth, result.ErrorMessage)
	})
}

func (s *ServiceSuite) TestAuthTimeout() {
	release := make(chan struct{})
	deleted := make(chan struct{})

	s.identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, models.IdentityAttributes) (models.Identity, error) {
			<-release
			return models.Identity{ID: s.identityID}, nil
		})
	s.admin.EXPECT().DeleteIdentity(gomock.Any(), s.identityID).
		DoAndReturn(func(context.Context, id.IdentityID) error {
			close(deleted)
			return nil
		})

	svc := s.service(WithAuthTimeout(20*time.Millisecond), WithIdentityAdmin(s.admin))
	result := svc.Execute(context.Background(), validRequest())

	s.False(result.Success)
	s.Equal(classifier.MessageTimeout, result.ErrorMessage)
	s.Equal(string(classifier.CategoryTimeout), result.ErrorCategory)
	s.Empty(result.State.Rollback)

	// The provider finishes after we stopped waiting; the late identity is
	// compensated.
	close(release)
	select {
	case <-deleted:
	case <-time.After(time.Second):
		s.Fail("late identity was not compensated")
	}
}

func (s *ServiceSuite) TestProfileFailure() {
	ctx := context.Background()

	s.Run("identity left orphaned without admin", func() {
		s.expectIdentity()
		s.profiles.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).
			Return(id.ProfileID{}, errors.New(`ERROR: relation "profiles" does not exist (SQLSTATE 42P01)`))

		result := s.service().Execute(ctx, validRequest())

		s.False(result.Success)
		s.Equal(classifier.MessageUserProfile, result.ErrorMessage)
		s.Equal(models.PhaseUserProfile, result.FailedPhase)
		s.Require().Len(result.State.Rollback, 1)
		s.Equal(models.ActionDeleteIdentity, result.State.Rollback[0].Action.Kind)
		s.NotEmpty(result.State.Rollback[0].Err)
		s.Empty(result.State.RollbackActions)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.OrphanedIdentities))

		events, err := s.auditStore.ListByIdentity(ctx, s.identityID.String())
		s.Require().NoError(err)
		actions := make([]string, 0, len(events))
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		s.Contains(actions, audit.EventIdentityOrphaned)
		s.Contains(actions, audit.EventRegistrationFailed)
	})

	s.Run("identity deleted with admin", func() {
		s.expectIdentity()
		s.profiles.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).Return(id.ProfileID{}, errors.New("boom"))
		s.admin.EXPECT().DeleteIdentity(gomock.Any(), s.identityID).Return(nil)

		result := s.service(WithIdentityAdmin(s.admin)).Execute(ctx, validRequest())

		s.False(result.Success)
		s.Require().Len(result.State.Rollback, 1)
		s.Empty(result.State.Rollback[0].Err)
	})

	s.Run("panicking store is a phase failure", func() {
		s.expectIdentity()
		s.profiles.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).
			DoAndReturn(func(context.Context, id.IdentityID, models.ProfileFields) (id.ProfileID, error) {
				panic("nil pool")
			})
		s.admin.EXPECT().DeleteIdentity(gomock.Any(), s.identityID).Return(nil)

		result := s.service(WithIdentityAdmin(s.admin)).Execute(ctx, validRequest())

		s.False(result.Success)
		s.Equal(classifier.MessageUserProfile, result.ErrorMessage)
	})
}

func (s *ServiceSuite) TestOrganizationFailureRollsBackInReverse() {
	s.expectIdentity()
	s.expectProfile()
	s.expectMetadata()
	s.organizations.EXPECT().CreateOrganization(gomock.Any(), s.identityID, gomock.Any()).
		Return(models.Organization{}, errors.New("insert into organizations: duplicate key value violates unique constraint"))

	gomock.InOrder(
		s.metadata.EXPECT().Delete(gomock.Any(), s.metadataID).Return(nil),
		s.profiles.EXPECT().Delete(gomock.Any(), s.profileID).Return(nil),
		s.admin.EXPECT().DeleteIdentity(gomock.Any(), s.identityID).Return(nil),
	)

	result := s.service(WithIdentityAdmin(s.admin)).Execute(context.Background(), validRequest())

	s.False(result.Success)
	s.Equal(classifier.MessageOrganization, result.ErrorMessage)
	s.Equal(models.PhaseOrganization, result.FailedPhase)
	s.Equal(models.StatusFailed, result.State.Status)
	s.True(result.OrganizationID.IsNil())
	s.Require().Len(result.State.Rollback, 3)
	s.Equal(models.ActionDeleteMetadataRecord, result.State.Rollback[0].Action.Kind)
	s.Equal(models.ActionDeleteProfileRecord, result.State.Rollback[1].Action.Kind)
	s.Equal(models.ActionDeleteIdentity, result.State.Rollback[2].Action.Kind)
}

func (s *ServiceSuite) TestRollbackContinuesPastFailedAction() {
	s.expectIdentity()
	s.expectProfile()
	s.expectMetadata()
	s.organizations.EXPECT().CreateOrganization(gomock.Any(), s.identityID, gomock.Any()).
		Return(models.Organization{}, errors.New("insert organization: connection reset by peer"))

	calls := 0
	count := func() { calls++ }
	gomock.InOrder(
		s.metadata.EXPECT().Delete(gomock.Any(), s.metadataID).Do(func(context.Context, id.MetadataID) { count() }).Return(nil),
		s.profiles.EXPECT().Delete(gomock.Any(), s.profileID).Do(func(context.Context, id.ProfileID) { count() }).Return(errors.New("profiles unavailable")),
		s.admin.EXPECT().DeleteIdentity(gomock.Any(), s.identityID).Do(func(context.Context, id.IdentityID) { count() }).Return(nil),
	)

	result := s.service(WithIdentityAdmin(s.admin)).Execute(context.Background(), validRequest())

	s.Equal(3, calls)
	s.Len(result.State.Rollback, 3)
	s.Equal("profiles unavailable", result.State.Rollback[1].Err)
	// The caller sees the original failure, not the rollback one.
	s.Equal(classifier.MessageOrganization, result.ErrorMessage)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RollbackActions.WithLabelValues("delete_profile_record", "failed")))
}

func (s *ServiceSuite) TestMetadataIsSoft() {
	ctx := context.Background()

	s.Run("failure does not change the outcome", func() {
		s.expectIdentity()
		s.expectProfile()
		s.metadata.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).Return(id.MetadataID{}, errors.New("redis: connection pool timeout"))
		s.expectOrganization()

		result := s.service().Execute(ctx, validRequest())

		s.True(result.Success)
		s.Empty(result.ErrorMessage)
		s.Empty(result.ErrorCategory)
		s.Nil(result.State.LastError)
		s.Equal([]models.Step{
			models.StepAuthUserCreated,
			models.StepUserProfileCreated,
			models.StepOrganizationCreated,
		}, result.State.CompletedSteps)
		s.False(result.State.HasStep(models.StepUserMetadataCreated))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.SoftFailures))
	})

	s.Run("skipped metadata is not compensated", func() {
		s.expectIdentity()
		s.expectProfile()
		s.metadata.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).Return(id.MetadataID{}, errors.New("down"))
		s.organizations.EXPECT().CreateOrganization(gomock.Any(), s.identityID, gomock.Any()).
			Return(models.Organization{}, errors.New("boom"))
		gomock.InOrder(
			s.profiles.EXPECT().Delete(gomock.Any(), s.profileID).Return(nil),
			s.admin.EXPECT().DeleteIdentity(gomock.Any(), s.identityID).Return(nil),
		)

		result := s.service(WithIdentityAdmin(s.admin)).Execute(ctx, validRequest())

		s.False(result.Success)
		s.Len(result.State.Rollback, 2)
	})
}

func (s *ServiceSuite) TestCallerCancellationIsDetached() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _ string, _ models.IdentityAttributes) (models.Identity, error) {
			s.NoError(ctx.Err())
			return models.Identity{ID: s.identityID}, nil
		})
	s.profiles.EXPECT().Insert(gomock.Any(), s.identityID, gomock.Any()).Return(id.ProfileID{}, errors.New("boom"))
	s.admin.EXPECT().DeleteIdentity(gomock.Any(), s.identityID).
		DoAndReturn(func(ctx context.Context, _ id.IdentityID) error {
			s.NoError(ctx.Err())
			return nil
		})

	result := s.service(WithIdentityAdmin(s.admin)).Execute(ctx, validRequest())

	s.False(result.Success)
	s.Len(result.State.Rollback, 1)
}

func (s *ServiceSuite) TestWelcomeNotification() {
	ctx := context.Background()

	s.Run("slow notifier does not hold the result", func() {
		release := make(chan struct{})
		sent := make(chan models.ProfileSummary, 1)
		s.expectIdentity()
		s.expectProfile()
		s.expectMetadata()
		s.expectOrganization()
		s.notifier.EXPECT().SendWelcome(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, summary models.ProfileSummary) error {
				<-release
				sent <- summary
				return errors.New("smtp unavailable")
			})

		result := s.service(WithNotifier(s.notifier)).Execute(ctx, validRequest())
		s.True(result.Success)

		close(release)
		select {
		case summary := <-sent:
			s.Equal(s.identityID, summary.IdentityID)
			s.Equal(s.organizationID, summary.OrganizationID)
		case <-time.After(time.Second):
			s.Fail("welcome notification never sent")
		}
		s.Eventually(func() bool {
			return testutil.ToFloat64(s.metrics.WelcomeNotifications.WithLabelValues("failed")) == 1
		}, time.Second, 5*time.Millisecond)
	})

	s.Run("failed registration sends nothing", func() {
		s.identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.Identity{}, dErrors.New(dErrors.CodeConflict, "User already registered"))

		result := s.service(WithNotifier(s.notifier)).Execute(ctx, validRequest())
		s.False(result.Success)
	})
}

func (s *ServiceSuite) TestDispatchWelcome() {
	summary := models.ProfileSummary{IdentityID: s.identityID}

	s.Run("error is delivered on the channel", func() {
		s.notifier.EXPECT().SendWelcome(gomock.Any(), summary).Return(errors.New("broker down"))
		err := <-s.service(WithNotifier(s.notifier)).dispatchWelcome(context.Background(), summary)
		s.EqualError(err, "broker down")
	})

	s.Run("success closes the channel", func() {
		s.notifier.EXPECT().SendWelcome(gomock.Any(), summary).Return(nil)
		_, ok := <-s.service(WithNotifier(s.notifier)).dispatchWelcome(context.Background(), summary)
		s.False(ok)
	})

	s.Run("panic is reported as an error", func() {
		s.notifier.EXPECT().SendWelcome(gomock.Any(), summary).DoAndReturn(
			func(context.Context, models.ProfileSummary) error { panic("nil producer") })
		err := <-s.service(WithNotifier(s.notifier)).dispatchWelcome(context.Background(), summary)
		s.ErrorContains(err, "panicked")
	})

	s.Run("paused notifier counts as skipped", func() {
		svc := s.service(WithNotifier(s.notifier))
		errs := make(chan error, 1)
		errs <- sentinel.ErrUnavailable
		close(errs)
		svc.observeWelcome(context.Background(), s.identityID, errs)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.WelcomeNotifications.WithLabelValues("skipped")))
	})

	s.Run("no notifier configured", func() {
		_, ok := <-s.service().dispatchWelcome(context.Background(), summary)
		s.False(ok)
	})
}
