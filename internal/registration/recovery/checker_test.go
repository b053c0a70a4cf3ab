package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"onboarding/internal/registration/models"
	"onboarding/internal/registration/ports/mocks"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

type CheckerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	profiles    *mocks.MockProfileStore
	memberships *mocks.MockMembershipChecker
	checker     *Checker
}

func TestCheckerSuite(t *testing.T) {
	suite.Run(t, new(CheckerSuite))
}

func (s *CheckerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.profiles = mocks.NewMockProfileStore(s.ctrl)
	s.memberships = mocks.NewMockMembershipChecker(s.ctrl)
	s.checker = New(s.profiles, s.memberships)
}

func (s *CheckerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CheckerSuite) TestCheck() {
	ctx := context.Background()

	s.Run("complete registration needs nothing", func() {
		identityID := id.NewIdentityID()
		s.profiles.EXPECT().ExistsForIdentity(gomock.Any(), identityID).Return(true, nil)
		s.memberships.EXPECT().HasMembership(gomock.Any(), identityID).Return(true, nil)

		status, err := s.checker.Check(ctx, identityID)
		s.Require().NoError(err)
		s.False(status.NeedsRecovery)
		s.Empty(status.MissingComponents)
		s.False(status.CanRecover)
	})

	s.Run("missing membership", func() {
		identityID := id.NewIdentityID()
		s.profiles.EXPECT().ExistsForIdentity(gomock.Any(), identityID).Return(true, nil)
		s.memberships.EXPECT().HasMembership(gomock.Any(), identityID).Return(false, nil)

		status, err := s.checker.Check(ctx, identityID)
		s.Require().NoError(err)
		s.True(status.NeedsRecovery)
		s.Equal([]string{models.ComponentOrganization}, status.MissingComponents)
		s.True(status.CanRecover)
	})

	s.Run("missing both keeps a fixed order", func() {
		identityID := id.NewIdentityID()
		s.profiles.EXPECT().ExistsForIdentity(gomock.Any(), identityID).Return(false, nil)
		s.memberships.EXPECT().HasMembership(gomock.Any(), identityID).Return(false, nil)

		status, err := s.checker.Check(ctx, identityID)
		s.Require().NoError(err)
		s.Equal([]string{models.ComponentUserProfile, models.ComponentOrganization}, status.MissingComponents)
		s.True(status.NeedsRecovery)
		s.True(status.CanRecover, "missing every component is still recoverable")
	})

	s.Run("probe failure is returned", func() {
		identityID := id.NewIdentityID()
		s.profiles.EXPECT().ExistsForIdentity(gomock.Any(), identityID).Return(false, errors.New("connection refused"))
		s.memberships.EXPECT().HasMembership(gomock.Any(), identityID).Return(true, nil).AnyTimes()

		_, err := s.checker.Check(ctx, identityID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("nil identity is rejected without probing", func() {
		_, err := s.checker.Check(ctx, id.IdentityID{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *CheckerSuite) TestCheckIsIdempotent() {
	ctx := context.Background()
	identityID := id.NewIdentityID()
	s.profiles.EXPECT().ExistsForIdentity(gomock.Any(), identityID).Return(true, nil).Times(2)
	s.memberships.EXPECT().HasMembership(gomock.Any(), identityID).Return(false, nil).Times(2)

	first, err := s.checker.Check(ctx, identityID)
	s.Require().NoError(err)
	second, err := s.checker.Check(ctx, identityID)
	s.Require().NoError(err)
	s.Equal(first, second)
}
