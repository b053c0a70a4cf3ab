package models

import (
	"strings"
	"unicode/utf8"

	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/email"
)

// MinPasswordLength counts characters, not bytes.
const MinPasswordLength = 8

// UserType is the account category chosen at signup.
type UserType string

const (
	UserTypeSME        UserType = "sme"
	UserTypeFunder     UserType = "funder"
	UserTypeConsultant UserType = "consultant"
	UserTypeAdmin      UserType = "admin"
)

func (t UserType) IsValid() bool {
	switch t {
	case UserTypeSME, UserTypeFunder, UserTypeConsultant, UserTypeAdmin:
		return true
	}
	return false
}

// RegistrationRequest is the input of a single registration attempt.
type RegistrationRequest struct {
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone,omitempty"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirm_password"`
	UserType        UserType `json:"user_type"`
	CompanyName     string   `json:"company_name,omitempty"`
	AgreeToTerms    bool     `json:"agree_to_terms"`
}

// Normalize trims free-text fields and lower-cases the email. Passwords are
// left untouched.
func (r *RegistrationRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = email.Normalize(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.UserType = UserType(strings.ToLower(strings.TrimSpace(string(r.UserType))))
}

// Validate returns the first failing rule as a CodeValidation error. The
// message is shown to the caller verbatim.
func (r *RegistrationRequest) Validate() error {
	switch {
	case r.FirstName == "":
		return dErrors.New(dErrors.CodeValidation, "First name is required")
	case r.LastName == "":
		return dErrors.New(dErrors.CodeValidation, "Last name is required")
	case r.Email == "":
		return dErrors.New(dErrors.CodeValidation, "Email is required")
	case !email.IsValid(r.Email):
		return dErrors.New(dErrors.CodeValidation, "Please enter a valid email address")
	case utf8.RuneCountInString(r.Password) < MinPasswordLength:
		return dErrors.New(dErrors.CodeValidation, "Password must be at least 8 characters")
	case r.Password != r.ConfirmPassword:
		return dErrors.New(dErrors.CodeValidation, "Passwords do not match")
	case !r.UserType.IsValid():
		return dErrors.New(dErrors.CodeValidation, "Please select a valid user type")
	case !r.AgreeToTerms:
		return dErrors.New(dErrors.CodeValidation, "You must agree to the terms and conditions")
	}
	return nil
}

// OrganizationName is the company name when given, otherwise the person's
// full name.
func (r *RegistrationRequest) OrganizationName() string {
	if r.CompanyName != "" {
		return r.CompanyName
	}
	return r.FirstName + " " + r.LastName
}
