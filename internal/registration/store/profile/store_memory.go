// Package profile implements the primary record store.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

// OrganizationLookup resolves the organization an identity belongs to, for
// the in-memory profile view.
type OrganizationLookup interface {
	FindForMember(ctx context.Context, identityID id.IdentityID) (models.Organization, string, error)
}

type record struct {
	id         id.ProfileID
	identityID id.IdentityID
	fields     models.ProfileFields
	createdAt  time.Time
}

// InMemoryStore is the profile store used in tests and local runs. One
// profile per identity is enforced through the identity index.
type InMemoryStore struct {
	records    *xsync.MapOf[id.ProfileID, record]
	byIdentity *xsync.MapOf[id.IdentityID, id.ProfileID]
	orgs       OrganizationLookup
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records:    xsync.NewMapOf[id.ProfileID, record](),
		byIdentity: xsync.NewMapOf[id.IdentityID, id.ProfileID](),
	}
}

// WithOrganizations lets FindProfileView fill the organization columns.
func (s *InMemoryStore) WithOrganizations(orgs OrganizationLookup) *InMemoryStore {
	s.orgs = orgs
	return s
}

func (s *InMemoryStore) Insert(ctx context.Context, identityID id.IdentityID, fields models.ProfileFields) (id.ProfileID, error) {
	profileID := id.NewProfileID()
	if _, loaded := s.byIdentity.LoadOrStore(identityID, profileID); loaded {
		return id.ProfileID{}, fmt.Errorf("insert profile: %w", sentinel.ErrConflict)
	}
	s.records.Store(profileID, record{
		id:         profileID,
		identityID: identityID,
		fields:     fields,
		createdAt:  requestcontext.Now(ctx).UTC(),
	})
	return profileID, nil
}

func (s *InMemoryStore) Delete(_ context.Context, profileID id.ProfileID) error {
	rec, ok := s.records.LoadAndDelete(profileID)
	if !ok {
		return sentinel.ErrNotFound
	}
	s.byIdentity.Delete(rec.identityID)
	return nil
}

func (s *InMemoryStore) ExistsForIdentity(_ context.Context, identityID id.IdentityID) (bool, error) {
	_, ok := s.byIdentity.Load(identityID)
	return ok, nil
}

func (s *InMemoryStore) FindProfileView(ctx context.Context, identityID id.IdentityID) (models.UserProfile, error) {
	profileID, ok := s.byIdentity.Load(identityID)
	if !ok {
		return models.UserProfile{}, sentinel.ErrNotFound
	}
	rec, ok := s.records.Load(profileID)
	if !ok {
		return models.UserProfile{}, sentinel.ErrNotFound
	}

	view := models.UserProfile{
		ID:          identityID,
		ProfileID:   rec.id,
		Email:       rec.fields.Email,
		FirstName:   rec.fields.FirstName,
		LastName:    rec.fields.LastName,
		Phone:       rec.fields.Phone,
		UserType:    rec.fields.UserType,
		CompanyName: rec.fields.CompanyName,
		CreatedAt:   rec.createdAt,
	}
	if s.orgs != nil {
		org, role, err := s.orgs.FindForMember(ctx, identityID)
		switch {
		case err == nil:
			view.OrganizationID = org.ID
			view.OrganizationName = org.Name
			view.OrganizationRole = role
		case !errors.Is(err, sentinel.ErrNotFound):
			return models.UserProfile{}, err
		}
	}
	return view, nil
}
