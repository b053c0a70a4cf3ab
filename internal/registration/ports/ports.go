// Package ports declares the external collaborators of the registration saga.
// Every collaborator is injected into the orchestrator; there are no
// package-level clients.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
)

// IdentityProvider creates authentication identities. Recognized failures are
// returned as coded domain errors carrying the provider's own text.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password string, attrs models.IdentityAttributes) (models.Identity, error)
}

// IdentityAdmin is the privileged capability needed to compensate phase 1.
// It is optional; without it identity compensation only warns.
type IdentityAdmin interface {
	DeleteIdentity(ctx context.Context, identityID id.IdentityID) error
}

// ProfileStore is the primary record store.
type ProfileStore interface {
	Insert(ctx context.Context, identityID id.IdentityID, fields models.ProfileFields) (id.ProfileID, error)
	Delete(ctx context.Context, profileID id.ProfileID) error
	ExistsForIdentity(ctx context.Context, identityID id.IdentityID) (bool, error)
}

// ProfileReader reads back the joined profile + organization view.
type ProfileReader interface {
	FindProfileView(ctx context.Context, identityID id.IdentityID) (models.UserProfile, error)
}

// MetadataStore is the secondary, auxiliary metadata store.
type MetadataStore interface {
	Insert(ctx context.Context, identityID id.IdentityID, fields models.MetadataFields) (id.MetadataID, error)
	Delete(ctx context.Context, metadataID id.MetadataID) error
}

// OrganizationProvisioner creates an organization and the owner membership
// as one atomic unit on its side.
type OrganizationProvisioner interface {
	CreateOrganization(ctx context.Context, identityID id.IdentityID, fields models.OrganizationFields) (models.Organization, error)
	DeleteOrganization(ctx context.Context, organizationID id.OrganizationID) error
	DeleteMembership(ctx context.Context, membershipID id.MembershipID) error
}

// MembershipChecker probes for an organization membership of an identity.
type MembershipChecker interface {
	HasMembership(ctx context.Context, identityID id.IdentityID) (bool, error)
}

// Notifier sends the best-effort welcome notification.
type Notifier interface {
	SendWelcome(ctx context.Context, summary models.ProfileSummary) error
}
