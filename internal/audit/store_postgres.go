package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"onboarding/pkg/platform/tx"
)

// PostgresStore appends audit events to the audit_events table. When a
// transaction is active in ctx the event joins it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, identity_id, action, phase, outcome, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), event.Timestamp.UTC(), event.IdentityID, event.Action,
		event.Phase, event.Outcome, event.Reason, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByIdentity returns the identity's events oldest first.
func (s *PostgresStore) ListByIdentity(ctx context.Context, identityID string) ([]Event, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT occurred_at, identity_id, action, phase, outcome, reason, request_id
		FROM audit_events
		WHERE identity_id = $1
		ORDER BY occurred_at ASC, id ASC`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Timestamp, &e.IdentityID, &e.Action, &e.Phase, &e.Outcome, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
