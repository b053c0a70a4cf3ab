// Package domain holds typed identifiers shared across the registration saga.
//
// Each identifier is a distinct named UUID type so a profile id can never be
// passed where an identity id is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "onboarding/pkg/domain-errors"
)

type (
	// IdentityID is assigned by the Identity Provider once phase 1 succeeds.
	IdentityID     uuid.UUID
	ProfileID      uuid.UUID
	MetadataID     uuid.UUID
	OrganizationID uuid.UUID
	MembershipID   uuid.UUID
)

func (id IdentityID) String() string     { return uuid.UUID(id).String() }
func (id ProfileID) String() string      { return uuid.UUID(id).String() }
func (id MetadataID) String() string     { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id MembershipID) String() string   { return uuid.UUID(id).String() }

func (id IdentityID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ProfileID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id MetadataID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MembershipID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func NewIdentityID() IdentityID         { return IdentityID(uuid.New()) }
func NewProfileID() ProfileID           { return ProfileID(uuid.New()) }
func NewMetadataID() MetadataID         { return MetadataID(uuid.New()) }
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }
func NewMembershipID() MembershipID     { return MembershipID(uuid.New()) }

func ParseIdentityID(s string) (IdentityID, error) {
	u, err := parseUUID(s, "identity")
	return IdentityID(u), err
}

func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s, "profile")
	return ProfileID(u), err
}

func ParseMetadataID(s string) (MetadataID, error) {
	u, err := parseUUID(s, "metadata")
	return MetadataID(u), err
}

func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parseUUID(s, "organization")
	return OrganizationID(u), err
}

func ParseMembershipID(s string) (MembershipID, error) {
	u, err := parseUUID(s, "membership")
	return MembershipID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs at trust boundaries.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be nil")
	}
	return u, nil
}

func (id IdentityID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ProfileID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id MetadataID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id OrganizationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id MembershipID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *IdentityID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ProfileID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MetadataID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *OrganizationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MembershipID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
