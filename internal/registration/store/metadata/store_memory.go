package metadata

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

type InMemoryStore struct {
	records *xsync.MapOf[id.MetadataID, Record]
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: xsync.NewMapOf[id.MetadataID, Record]()}
}

func (s *InMemoryStore) Insert(ctx context.Context, identityID id.IdentityID, fields models.MetadataFields) (id.MetadataID, error) {
	metadataID := id.NewMetadataID()
	s.records.Store(metadataID, Record{
		ID:         metadataID,
		IdentityID: identityID,
		Fields:     fields,
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	})
	return metadataID, nil
}

func (s *InMemoryStore) Delete(_ context.Context, metadataID id.MetadataID) error {
	if _, ok := s.records.LoadAndDelete(metadataID); !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, metadataID id.MetadataID) (Record, error) {
	rec, ok := s.records.Load(metadataID)
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) ExistsForIdentity(_ context.Context, identityID id.IdentityID) (bool, error) {
	found := false
	s.records.Range(func(_ id.MetadataID, rec Record) bool {
		if rec.IdentityID == identityID {
			found = true
			return false
		}
		return true
	})
	return found, nil
}
