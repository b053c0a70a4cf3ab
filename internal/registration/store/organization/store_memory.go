package organization

import (
	"context"
	"sync"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

type membership struct {
	id             id.MembershipID
	organizationID id.OrganizationID
	identityID     id.IdentityID
	role           string
	seq            uint64
}

// InMemoryStore mirrors the relational store: deleting an organization drops
// its memberships. A single mutex keeps the organization/membership pair
// consistent.
type InMemoryStore struct {
	mu          sync.RWMutex
	orgs        map[id.OrganizationID]models.Organization
	memberships map[id.MembershipID]membership
	seq         uint64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		orgs:        make(map[id.OrganizationID]models.Organization),
		memberships: make(map[id.MembershipID]membership),
	}
}

func (s *InMemoryStore) CreateOrganization(ctx context.Context, identityID id.IdentityID, fields models.OrganizationFields) (models.Organization, error) {
	org := models.Organization{
		ID:           id.NewOrganizationID(),
		Name:         fields.Name,
		OwnerID:      identityID,
		MembershipID: id.NewMembershipID(),
		CreatedAt:    requestcontext.Now(ctx).UTC(),
	}
	org.Slug = makeSlug(fields.Name, org.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.orgs[org.ID] = org
	s.memberships[org.MembershipID] = membership{
		id:             org.MembershipID,
		organizationID: org.ID,
		identityID:     identityID,
		role:           fields.OwnerRole,
		seq:            s.seq,
	}
	return org, nil
}

func (s *InMemoryStore) DeleteOrganization(_ context.Context, organizationID id.OrganizationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[organizationID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.orgs, organizationID)
	for key, m := range s.memberships {
		if m.organizationID == organizationID {
			delete(s.memberships, key)
		}
	}
	return nil
}

func (s *InMemoryStore) DeleteMembership(_ context.Context, membershipID id.MembershipID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[membershipID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.memberships, membershipID)
	return nil
}

func (s *InMemoryStore) HasMembership(_ context.Context, identityID id.IdentityID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.identityID == identityID {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) FindForMember(_ context.Context, identityID id.IdentityID) (models.Organization, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		oldest membership
		found  bool
	)
	for _, m := range s.memberships {
		if m.identityID != identityID {
			continue
		}
		if !found || m.seq < oldest.seq {
			oldest, found = m, true
		}
	}
	if !found {
		return models.Organization{}, "", sentinel.ErrNotFound
	}
	org := s.orgs[oldest.organizationID]
	org.MembershipID = oldest.id
	return org, oldest.role, nil
}
