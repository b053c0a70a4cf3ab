package identity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"onboarding/internal/platform/postgres"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/platform/tx"
	"onboarding/pkg/requestcontext"
)

// PostgresProvider stores identities with bcrypt password hashes.
type PostgresProvider struct {
	db       *sql.DB
	settings settings
}

func NewPostgres(db *sql.DB, opts ...Option) *PostgresProvider {
	return &PostgresProvider{db: db, settings: newSettings(opts)}
}

func (p *PostgresProvider) CreateIdentity(ctx context.Context, address, password string, attrs models.IdentityAttributes) (models.Identity, error) {
	normalized, err := p.settings.admit(address, password)
	if err != nil {
		return models.Identity{}, err
	}
	hashed, err := p.settings.hash(password)
	if err != nil {
		return models.Identity{}, err
	}

	identity := models.Identity{
		ID:         id.NewIdentityID(),
		Email:      normalized,
		Attributes: trimAttributes(attrs),
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	}
	_, err = tx.Conn(ctx, p.db).ExecContext(ctx, `
		INSERT INTO identities (id, email, password_hash, first_name, last_name, phone, user_type, company_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(identity.ID), identity.Email, hashed, identity.Attributes.FirstName, identity.Attributes.LastName,
		identity.Attributes.Phone, string(identity.Attributes.UserType), identity.Attributes.CompanyName, identity.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "identities_email_key") {
			return models.Identity{}, dErrors.New(dErrors.CodeConflict, MessageAlreadyRegistered)
		}
		return models.Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return identity, nil
}

// DeleteIdentity is the privileged compensation for identity creation.
func (p *PostgresProvider) DeleteIdentity(ctx context.Context, identityID id.IdentityID) error {
	res, err := tx.Conn(ctx, p.db).ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, uuid.UUID(identityID))
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
