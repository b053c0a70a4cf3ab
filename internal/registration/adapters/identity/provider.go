// Package identity provides Identity Provider implementations: a local
// provider backed by PostgreSQL and an in-memory one for tests and local
// runs. Both also satisfy the privileged IdentityAdmin port.
package identity

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"onboarding/internal/registration/models"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/email"
)

// Provider texts. The classifier recognizes these phrases.
const (
	MessageAlreadyRegistered = "User already registered"
	MessageSignupsDisabled   = "Signups not allowed for this instance"
	MessageInvalidEmail      = "Unable to validate email address: invalid format"
	MessageWeakPassword      = "Password should be at least 8 characters"
)

const minPasswordLength = 8

type settings struct {
	signupsEnabled bool
	bcryptCost     int
}

// Option configures an identity provider.
type Option func(*settings)

// WithSignupsEnabled toggles new identity creation. Disabled instances reject
// every CreateIdentity with an invalid-state error.
func WithSignupsEnabled(enabled bool) Option {
	return func(s *settings) {
		s.signupsEnabled = enabled
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *settings) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{signupsEnabled: true, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// admit applies the provider-side checks shared by both implementations and
// returns the normalized email.
func (s settings) admit(address, password string) (string, error) {
	if !s.signupsEnabled {
		return "", dErrors.New(dErrors.CodeInvalidState, MessageSignupsDisabled)
	}
	normalized := email.Normalize(address)
	if !email.IsValid(normalized) {
		return "", dErrors.New(dErrors.CodeInvalidInput, MessageInvalidEmail)
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, MessageWeakPassword)
	}
	return normalized, nil
}

func (s settings) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}
	return string(hashed), nil
}

func trimAttributes(attrs models.IdentityAttributes) models.IdentityAttributes {
	attrs.FirstName = strings.TrimSpace(attrs.FirstName)
	attrs.LastName = strings.TrimSpace(attrs.LastName)
	attrs.Phone = strings.TrimSpace(attrs.Phone)
	attrs.CompanyName = strings.TrimSpace(attrs.CompanyName)
	return attrs
}
