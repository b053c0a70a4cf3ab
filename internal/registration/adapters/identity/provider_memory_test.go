package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"onboarding/internal/registration/classifier"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
)

type InMemoryProviderSuite struct {
	suite.Suite
	provider *InMemoryProvider
}

func TestInMemoryProviderSuite(t *testing.T) {
	suite.Run(t, new(InMemoryProviderSuite))
}

func (s *InMemoryProviderSuite) SetupTest() {
	s.provider = NewInMemory(WithBcryptCost(bcrypt.MinCost))
}

func attrs() models.IdentityAttributes {
	return models.IdentityAttributes{FirstName: " Alan ", LastName: "Turing", UserType: models.UserTypeConsultant}
}

func (s *InMemoryProviderSuite) TestCreateIdentity() {
	identity, err := s.provider.CreateIdentity(context.Background(), " Alan@Example.com ", "enigma-1940", attrs())
	s.Require().NoError(err)
	s.False(identity.ID.IsNil())
	s.Equal("alan@example.com", identity.Email)
	s.Equal("Alan", identity.Attributes.FirstName)

	stored, ok := s.provider.byID.Load(identity.ID)
	s.Require().True(ok)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(stored.passwordHash), []byte("enigma-1940")))
}

func (s *InMemoryProviderSuite) TestRecognizedFailures() {
	ctx := context.Background()
	_, err := s.provider.CreateIdentity(ctx, "alan@example.com", "enigma-1940", attrs())
	s.Require().NoError(err)

	tests := []struct {
		name     string
		provider *InMemoryProvider
		email    string
		password string
		code     dErrors.Code
		message  string
		category classifier.Category
	}{
		{"duplicate email", s.provider, "ALAN@example.com", "enigma-1940", dErrors.CodeConflict, MessageAlreadyRegistered, classifier.CategoryDuplicateAccount},
		{"invalid email", s.provider, "not-an-email", "enigma-1940", dErrors.CodeInvalidInput, MessageInvalidEmail, classifier.CategoryInvalidInput},
		{"weak password", s.provider, "new@example.com", "short", dErrors.CodeInvalidInput, MessageWeakPassword, classifier.CategoryInvalidInput},
		{"weak multi-byte password", s.provider, "new@example.com", "pässwö1", dErrors.CodeInvalidInput, MessageWeakPassword, classifier.CategoryInvalidInput},
		{"signups disabled", NewInMemory(WithSignupsEnabled(false)), "new@example.com", "enigma-1940", dErrors.CodeInvalidState, MessageSignupsDisabled, classifier.CategoryProviderState},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := tt.provider.CreateIdentity(ctx, tt.email, tt.password, attrs())
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tt.code))
			s.Equal(tt.message, err.Error())

			c := classifier.Classify(err, models.PhaseAuth)
			s.Equal(tt.category, c.Category)
			s.Equal(tt.message, c.Message)
		})
	}
}

func (s *InMemoryProviderSuite) TestConcurrentSameEmailOneWins() {
	ctx := context.Background()
	const goroutines = 16

	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.provider.CreateIdentity(ctx, "race@example.com", "enigma-1940", attrs())
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *InMemoryProviderSuite) TestDeleteIdentityReleasesEmail() {
	ctx := context.Background()
	identity, err := s.provider.CreateIdentity(ctx, "alan@example.com", "enigma-1940", attrs())
	s.Require().NoError(err)

	s.Require().NoError(s.provider.DeleteIdentity(ctx, identity.ID))
	_, ok := s.provider.Find(identity.ID)
	s.False(ok)

	_, err = s.provider.CreateIdentity(ctx, "alan@example.com", "enigma-1940", attrs())
	s.NoError(err)

	s.ErrorIs(s.provider.DeleteIdentity(ctx, id.NewIdentityID()), sentinel.ErrNotFound)
}
