package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func (s *InMemoryStoreSuite) TestInsertFindDelete() {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	identityID := id.NewIdentityID()
	fields := models.MetadataFields{
		Email:    "linus@example.com",
		UserType: models.UserTypeConsultant,
		SignupIP: "198.51.100.4",
		Browser:  "Firefox",
	}

	metadataID, err := s.store.Insert(ctx, identityID, fields)
	s.Require().NoError(err)

	rec, err := s.store.Find(ctx, metadataID)
	s.Require().NoError(err)
	s.Equal(identityID, rec.IdentityID)
	s.Equal(fields, rec.Fields)
	s.Equal(now, rec.CreatedAt)

	exists, err := s.store.ExistsForIdentity(ctx, identityID)
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(s.store.Delete(ctx, metadataID))
	s.ErrorIs(s.store.Delete(ctx, metadataID), sentinel.ErrNotFound)

	_, err = s.store.Find(ctx, metadataID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	exists, err = s.store.ExistsForIdentity(ctx, identityID)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *InMemoryStoreSuite) TestRecordsAreNotUniquePerIdentity() {
	ctx := context.Background()
	identityID := id.NewIdentityID()

	first, err := s.store.Insert(ctx, identityID, models.MetadataFields{})
	s.Require().NoError(err)
	second, err := s.store.Insert(ctx, identityID, models.MetadataFields{})
	s.Require().NoError(err)
	s.NotEqual(first, second)
}
