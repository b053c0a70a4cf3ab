package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/platform/postgres"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/platform/tx"
	"onboarding/pkg/requestcontext"
)

// PostgresStore persists primary profile records in PostgreSQL. It also
// serves the joined profile view read back after a registration.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed profile store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, identityID id.IdentityID, fields models.ProfileFields) (id.ProfileID, error) {
	profileID := id.NewProfileID()
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO profiles (id, identity_id, email, first_name, last_name, phone, user_type, company_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(profileID), uuid.UUID(identityID), fields.Email, fields.FirstName, fields.LastName,
		fields.Phone, string(fields.UserType), fields.CompanyName, requestcontext.Now(ctx).UTC(),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return id.ProfileID{}, fmt.Errorf("insert profile: %w", sentinel.ErrConflict)
		}
		return id.ProfileID{}, fmt.Errorf("insert profile: %w", err)
	}
	return profileID, nil
}

// Delete removes a profile record. A missing record is sentinel.ErrNotFound.
func (s *PostgresStore) Delete(ctx context.Context, profileID id.ProfileID) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, uuid.UUID(profileID))
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ExistsForIdentity(ctx context.Context, identityID id.IdentityID) (bool, error) {
	var exists bool
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE identity_id = $1)`, uuid.UUID(identityID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check profile exists: %w", err)
	}
	return exists, nil
}

// FindProfileView joins the profile with the identity's oldest organization
// membership. Missing organization columns are left empty.
func (s *PostgresStore) FindProfileView(ctx context.Context, identityID id.IdentityID) (models.UserProfile, error) {
	var (
		profileID, ident uuid.UUID
		orgID            uuid.NullUUID
		orgName, role    sql.NullString
		userType         string
		createdAt        time.Time
		view             models.UserProfile
	)
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT p.id, p.identity_id, p.email, p.first_name, p.last_name, p.phone, p.user_type,
		       p.company_name, p.created_at, o.id, o.name, m.role
		FROM profiles p
		LEFT JOIN organization_memberships m ON m.identity_id = p.identity_id
		LEFT JOIN organizations o ON o.id = m.organization_id
		WHERE p.identity_id = $1
		ORDER BY m.created_at ASC NULLS LAST
		LIMIT 1`, uuid.UUID(identityID),
	).Scan(&profileID, &ident, &view.Email, &view.FirstName, &view.LastName, &view.Phone, &userType,
		&view.CompanyName, &createdAt, &orgID, &orgName, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserProfile{}, sentinel.ErrNotFound
		}
		return models.UserProfile{}, fmt.Errorf("find profile view: %w", err)
	}

	view.ID = id.IdentityID(ident)
	view.ProfileID = id.ProfileID(profileID)
	view.UserType = models.UserType(userType)
	view.CreatedAt = createdAt
	if orgID.Valid {
		view.OrganizationID = id.OrganizationID(orgID.UUID)
	}
	view.OrganizationName = orgName.String
	view.OrganizationRole = role.String
	return view, nil
}
