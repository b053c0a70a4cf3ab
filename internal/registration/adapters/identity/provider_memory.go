package identity

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

type storedIdentity struct {
	identity     models.Identity
	passwordHash string
}

// InMemoryProvider keeps identities keyed by normalized email. Email
// uniqueness is enforced with LoadOrStore on the email index.
type InMemoryProvider struct {
	settings settings
	byEmail  *xsync.MapOf[string, id.IdentityID]
	byID     *xsync.MapOf[id.IdentityID, storedIdentity]
}

func NewInMemory(opts ...Option) *InMemoryProvider {
	return &InMemoryProvider{
		settings: newSettings(opts),
		byEmail:  xsync.NewMapOf[string, id.IdentityID](),
		byID:     xsync.NewMapOf[id.IdentityID, storedIdentity](),
	}
}

func (p *InMemoryProvider) CreateIdentity(ctx context.Context, address, password string, attrs models.IdentityAttributes) (models.Identity, error) {
	normalized, err := p.settings.admit(address, password)
	if err != nil {
		return models.Identity{}, err
	}

	identityID := id.NewIdentityID()
	if _, loaded := p.byEmail.LoadOrStore(normalized, identityID); loaded {
		return models.Identity{}, dErrors.New(dErrors.CodeConflict, MessageAlreadyRegistered)
	}

	hashed, err := p.settings.hash(password)
	if err != nil {
		p.byEmail.Delete(normalized)
		return models.Identity{}, err
	}

	identity := models.Identity{
		ID:         identityID,
		Email:      normalized,
		Attributes: trimAttributes(attrs),
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	}
	p.byID.Store(identityID, storedIdentity{identity: identity, passwordHash: hashed})
	return identity, nil
}

func (p *InMemoryProvider) DeleteIdentity(_ context.Context, identityID id.IdentityID) error {
	stored, ok := p.byID.LoadAndDelete(identityID)
	if !ok {
		return sentinel.ErrNotFound
	}
	p.byEmail.Delete(stored.identity.Email)
	return nil
}

// Find returns a stored identity.
func (p *InMemoryProvider) Find(identityID id.IdentityID) (models.Identity, bool) {
	stored, ok := p.byID.Load(identityID)
	return stored.identity, ok
}
