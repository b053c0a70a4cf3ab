package organization

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

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateOrganization inserts the organization and the owner membership in a
// single transaction.
func (s *PostgresStore) CreateOrganization(ctx context.Context, identityID id.IdentityID, fields models.OrganizationFields) (models.Organization, error) {
	now := requestcontext.Now(ctx).UTC()
	org := models.Organization{
		ID:           id.NewOrganizationID(),
		Name:         fields.Name,
		OwnerID:      identityID,
		MembershipID: id.NewMembershipID(),
		CreatedAt:    now,
	}
	org.Slug = makeSlug(fields.Name, org.ID)

	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.Conn(ctx, s.db)
		if _, err := q.ExecContext(ctx, `
			INSERT INTO organizations (id, name, slug, owner_identity_id, user_type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.UUID(org.ID), org.Name, org.Slug, uuid.UUID(identityID), string(fields.UserType), now,
		); err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO organization_memberships (id, organization_id, identity_id, role, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.UUID(org.MembershipID), uuid.UUID(org.ID), uuid.UUID(identityID), fields.OwnerRole, now,
		); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		return nil
	})
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return models.Organization{}, fmt.Errorf("create organization: %w", sentinel.ErrConflict)
		}
		return models.Organization{}, err
	}
	return org, nil
}

// DeleteOrganization removes the organization; memberships cascade.
func (s *PostgresStore) DeleteOrganization(ctx context.Context, organizationID id.OrganizationID) error {
	return s.deleteOne(ctx, `DELETE FROM organizations WHERE id = $1`, uuid.UUID(organizationID), "organization")
}

func (s *PostgresStore) DeleteMembership(ctx context.Context, membershipID id.MembershipID) error {
	return s.deleteOne(ctx, `DELETE FROM organization_memberships WHERE id = $1`, uuid.UUID(membershipID), "membership")
}

func (s *PostgresStore) deleteOne(ctx context.Context, query string, key uuid.UUID, what string) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s rows affected: %w", what, err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) HasMembership(ctx context.Context, identityID id.IdentityID) (bool, error) {
	var exists bool
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM organization_memberships WHERE identity_id = $1)`, uuid.UUID(identityID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// FindForMember returns the identity's oldest organization and its role there.
func (s *PostgresStore) FindForMember(ctx context.Context, identityID id.IdentityID) (models.Organization, string, error) {
	var (
		orgID, ownerID, membershipID uuid.UUID
		org                          models.Organization
		role                         string
		createdAt                    time.Time
	)
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT o.id, o.name, o.slug, o.owner_identity_id, o.created_at, m.id, m.role
		FROM organization_memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.identity_id = $1
		ORDER BY m.created_at ASC
		LIMIT 1`, uuid.UUID(identityID),
	).Scan(&orgID, &org.Name, &org.Slug, &ownerID, &createdAt, &membershipID, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Organization{}, "", sentinel.ErrNotFound
		}
		return models.Organization{}, "", fmt.Errorf("find organization for member: %w", err)
	}
	org.ID = id.OrganizationID(orgID)
	org.OwnerID = id.IdentityID(ownerID)
	org.MembershipID = id.MembershipID(membershipID)
	org.CreatedAt = createdAt
	return org, role, nil
}
