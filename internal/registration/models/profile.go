package models

import (
	"time"

	id "onboarding/pkg/domain"
)

// IdentityAttributes are the profile fields bound to the identity at creation.
type IdentityAttributes struct {
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Phone       string   `json:"phone,omitempty"`
	UserType    UserType `json:"user_type"`
	CompanyName string   `json:"company_name,omitempty"`
}

// Identity is what the Identity Provider returns after phase 1.
type Identity struct {
	ID         id.IdentityID
	Email      string
	Attributes IdentityAttributes
	CreatedAt  time.Time
}

// ProfileFields are written to the primary record store.
type ProfileFields struct {
	Email       string
	FirstName   string
	LastName    string
	Phone       string
	UserType    UserType
	CompanyName string
}

// MetadataFields are written to the secondary metadata store.
type MetadataFields struct {
	Email           string
	UserType        UserType
	TermsAcceptedAt time.Time
	SignupIP        string
	UserAgent       string
	Browser         string
	OS              string
	Platform        string
	Mobile          bool
}

// OrganizationFields describe the organization provisioned in phase 4.
type OrganizationFields struct {
	Name      string
	OwnerRole string
	UserType  UserType
}

// Organization is the provisioner's view of a created organization.
type Organization struct {
	ID           id.OrganizationID
	Name         string
	Slug         string
	OwnerID      id.IdentityID
	MembershipID id.MembershipID
	CreatedAt    time.Time
}

// UserProfile is the assembled view returned on success.
type UserProfile struct {
	ID               id.IdentityID     `json:"id"`
	ProfileID        id.ProfileID      `json:"profile_id"`
	Email            string            `json:"email"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Phone            string            `json:"phone,omitempty"`
	UserType         UserType          `json:"user_type"`
	CompanyName      string            `json:"company_name,omitempty"`
	OrganizationID   id.OrganizationID `json:"organization_id"`
	OrganizationName string            `json:"organization_name,omitempty"`
	OrganizationRole string            `json:"organization_role,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ProfileSummary is the payload of the welcome notification.
type ProfileSummary struct {
	IdentityID       id.IdentityID     `json:"identity_id"`
	Email            string            `json:"email"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	UserType         UserType          `json:"user_type"`
	OrganizationID   id.OrganizationID `json:"organization_id"`
	OrganizationName string            `json:"organization_name,omitempty"`
}

func (p UserProfile) Summary() ProfileSummary {
	return ProfileSummary{
		IdentityID:       p.ID,
		Email:            p.Email,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		UserType:         p.UserType,
		OrganizationID:   p.OrganizationID,
		OrganizationName: p.OrganizationName,
	}
}

// TransactionResult is the single outcome of Execute.
type TransactionResult struct {
	Success        bool              `json:"success"`
	User           *UserProfile      `json:"user,omitempty"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	ErrorMessage   string            `json:"error,omitempty"`

	// ErrorCategory is the classifier category of the failure.
	ErrorCategory string            `json:"error_category,omitempty"`
	FailedPhase   Phase             `json:"failed_phase,omitempty"`
	State         *TransactionState `json:"state"`
}

// Recovery component names.
const (
	ComponentUserProfile  = "user_profile"
	ComponentOrganization = "organization"
)

// RecoveryStatus reports which records of a registration are missing.
type RecoveryStatus struct {
	NeedsRecovery     bool     `json:"needs_recovery"`
	MissingComponents []string `json:"missing_components"`
	CanRecover        bool     `json:"can_recover"`
}
