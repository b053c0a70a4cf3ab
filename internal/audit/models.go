package audit

import "time"

// Event is emitted from the registration saga to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	IdentityID string    `json:"identity_id"`
	Action     string    `json:"action"`
	Phase      string    `json:"phase,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

const (
	EventRegistrationCompleted = "registration_completed"
	EventRegistrationFailed    = "registration_failed"
	EventRegistrationRejected  = "registration_rejected"
	EventRollbackCompleted     = "registration_rolled_back"
	EventIdentityOrphaned      = "identity_orphaned"
)
