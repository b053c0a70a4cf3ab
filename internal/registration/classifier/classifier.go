// Package classifier turns raw phase failures into caller-safe messages.
//
// Coded domain errors are classified by code. Uncoded errors fall back to the
// message heuristic: a known provider phrase, or a short message that does not
// look internal, is surfaced verbatim; anything else is replaced by a fixed
// per-phase message. The heuristic can pass a short internal error through as
// safe; replacing it with structured provider codes is the intended fix.
package classifier

import (
	"errors"
	"strings"

	"onboarding/internal/registration/models"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
)

// Category is the closed set of failure kinds a caller can branch on.
type Category string

const (
	CategoryValidation       Category = "validation"
	CategoryTimeout          Category = "timeout"
	CategoryDuplicateAccount Category = "duplicate_account"
	CategoryRateLimit        Category = "rate_limit"
	CategoryInvalidInput     Category = "invalid_input"
	CategoryProviderState    Category = "provider_state"
	CategoryPhaseFailure     Category = "phase_failure"
	CategorySoftFailure      Category = "soft_failure"
)

// MaxSafeMessageLength is the length below which an unrecognized message may
// be surfaced verbatim.
const MaxSafeMessageLength = 100

const (
	MessageTimeout      = "Registration timed out. Please check your connection and try again."
	MessageAuth         = "Failed to create your account. Please try again."
	MessageUserProfile  = "Failed to create your user profile. Please try again."
	MessageOrganization = "Failed to set up your organization. Please try again."
	MessageGeneric      = "Registration failed. Please try again."
)

// ErrTimeout is returned by the auth phase when the identity provider did not
// answer in time.
var ErrTimeout = dErrors.New(dErrors.CodeTimeout, MessageTimeout)

// Classification is the classifier's verdict on one failure.
type Classification struct {
	Message  string
	Category Category
	// Verbatim is true when Message is the raw error text.
	Verbatim bool
}

type knownPhrase struct {
	fragment string
	category Category
}

// knownPhrases are provider messages that are already safe to show.
var knownPhrases = []knownPhrase{
	{"already registered", CategoryDuplicateAccount},
	{"already exists", CategoryDuplicateAccount},
	{"rate limit", CategoryRateLimit},
	{"too many requests", CategoryRateLimit},
	{"invalid email", CategoryInvalidInput},
	{"unable to validate email", CategoryInvalidInput},
	{"password should be", CategoryInvalidInput},
	{"weak password", CategoryInvalidInput},
	{"email already confirmed", CategoryProviderState},
	{"already confirmed", CategoryProviderState},
	{"signups not allowed", CategoryProviderState},
	{"signup is disabled", CategoryProviderState},
}

// internalMarkers flag text that must never reach the caller.
var internalMarkers = []string{
	"sql", "syntax", "relation", "column", "constraint", "violates",
	"duplicate key", "stack", "panic", "goroutine", "exception",
	"http", "status code", "econn", "dial tcp", "connection",
	"timeout", "deadline", "internal", "null", "undefined", ".go:",
}

// Classify maps err raised during phase to a message and category. It is
// pure and deterministic.
func Classify(err error, phase models.Phase) Classification {
	if err == nil {
		return Classification{Message: genericMessage(phase), Category: CategoryPhaseFailure}
	}

	if c, ok := classifyCoded(err, phase); ok {
		return c
	}
	if isInfrastructure(err) {
		return Classification{Message: genericMessage(phase), Category: phaseCategory(phase)}
	}

	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, p := range knownPhrases {
		if strings.Contains(lower, p.fragment) {
			return Classification{Message: raw, Category: p.category, Verbatim: true}
		}
	}
	if looksSafe(raw, lower) {
		return Classification{Message: raw, Category: phaseCategory(phase), Verbatim: true}
	}
	return Classification{Message: genericMessage(phase), Category: phaseCategory(phase)}
}

// Message is Classify(err, phase).Message.
func Message(err error, phase models.Phase) string {
	return Classify(err, phase).Message
}

func classifyCoded(err error, phase models.Phase) (Classification, bool) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		return Classification{}, false
	}

	var category Category
	switch de.Code {
	case dErrors.CodeValidation:
		category = CategoryValidation
	case dErrors.CodeTimeout:
		return Classification{Message: MessageTimeout, Category: CategoryTimeout}, true
	case dErrors.CodeConflict:
		category = CategoryDuplicateAccount
	case dErrors.CodeRateLimited:
		category = CategoryRateLimit
	case dErrors.CodeInvalidInput:
		category = CategoryInvalidInput
	case dErrors.CodeInvalidState, dErrors.CodeForbidden:
		category = CategoryProviderState
	default:
		// Internal and unknown codes never surface their text.
		return Classification{Message: genericMessage(phase), Category: phaseCategory(phase)}, true
	}
	return Classification{Message: de.Message, Category: category, Verbatim: true}, true
}

// isInfrastructure reports store sentinels. Their wrapped text names tables
// and operations, so it is never shown.
func isInfrastructure(err error) bool {
	for _, target := range []error{
		sentinel.ErrNotFound, sentinel.ErrConflict, sentinel.ErrInvalidState,
		sentinel.ErrUnavailable, sentinel.ErrNotSupported,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func looksSafe(raw, lower string) bool {
	if raw == "" || len(raw) >= MaxSafeMessageLength {
		return false
	}
	if strings.ContainsAny(raw, "\n{}[]<>;=") {
		return false
	}
	for _, marker := range internalMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

func phaseCategory(phase models.Phase) Category {
	if phase == models.PhaseUserMetadata {
		return CategorySoftFailure
	}
	return CategoryPhaseFailure
}

func genericMessage(phase models.Phase) string {
	switch phase {
	case models.PhaseAuth:
		return MessageAuth
	case models.PhaseUserProfile:
		return MessageUserProfile
	case models.PhaseOrganization:
		return MessageOrganization
	default:
		return MessageGeneric
	}
}
