// Package metadata implements the auxiliary metadata store written during
// registration. Records are advisory; losing one never fails a signup.
package metadata

import (
	"time"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
)

// Record is a stored metadata entry.
type Record struct {
	ID         id.MetadataID
	IdentityID id.IdentityID
	Fields     models.MetadataFields
	CreatedAt  time.Time
}
