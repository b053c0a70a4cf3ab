// Package notify delivers the best-effort welcome notification sent after a
// successful registration.
package notify

import (
	"encoding/json"
	"time"

	"onboarding/internal/registration/models"
)

// EventWelcome is the event type carried by every welcome message.
const EventWelcome = "registration.welcome"

// Message is the wire form of a welcome notification.
type Message struct {
	Type             string    `json:"type"`
	IdentityID       string    `json:"identity_id"`
	Email            string    `json:"email"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	UserType         string    `json:"user_type"`
	OrganizationID   string    `json:"organization_id,omitempty"`
	OrganizationName string    `json:"organization_name,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func newMessage(summary models.ProfileSummary, at time.Time) Message {
	msg := Message{
		Type:             EventWelcome,
		IdentityID:       summary.IdentityID.String(),
		Email:            summary.Email,
		FirstName:        summary.FirstName,
		LastName:         summary.LastName,
		UserType:         string(summary.UserType),
		OrganizationName: summary.OrganizationName,
		OccurredAt:       at.UTC(),
	}
	if !summary.OrganizationID.IsNil() {
		msg.OrganizationID = summary.OrganizationID.String()
	}
	return msg
}

func encode(summary models.ProfileSummary, at time.Time) ([]byte, error) {
	return json.Marshal(newMessage(summary, at))
}
