package entitlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vuraweg/prepgate/pkg/postgresutil"
)

// Migrations for the grants table. Version range 100-199 belongs to this
// package.
var Migrations = []postgresutil.Migration{
	{
		Version:     100,
		Description: "create grants table",
		SQL: `
			CREATE TABLE IF NOT EXISTS grants (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				resource_id TEXT NOT NULL,
				starts_at TIMESTAMP NOT NULL,
				expires_at TIMESTAMP NOT NULL,
				payment_ref TEXT NOT NULL,
				amount_cents BIGINT NOT NULL
			)
		`,
	},
	{
		Version:     101,
		Description: "index grants by user and resource",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_grants_user_resource
			ON grants (user_id, resource_id, expires_at)
		`,
	},
}

// PostgresStore implements Store over the system-of-record database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, g Grant) error {
	query := `
		INSERT INTO grants (id, user_id, resource_id, starts_at, expires_at, payment_ref, amount_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		g.ID, g.UserID, g.ResourceID, g.StartsAt, g.ExpiresAt, g.PaymentRef, g.AmountCents)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) Newest(ctx context.Context, userID, resourceID string) (*Grant, error) {
	query := `
		SELECT id, user_id, resource_id, starts_at, expires_at, payment_ref, amount_cents
		FROM grants
		WHERE user_id = $1 AND resource_id = $2
		ORDER BY expires_at DESC
		LIMIT 1
	`
	g := &Grant{}
	err := s.db.QueryRowContext(ctx, query, userID, resourceID).Scan(
		&g.ID, &g.UserID, &g.ResourceID, &g.StartsAt, &g.ExpiresAt, &g.PaymentRef, &g.AmountCents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query newest grant: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Grant, error) {
	query := `
		SELECT id, user_id, resource_id, starts_at, expires_at, payment_ref, amount_cents
		FROM grants
		WHERE user_id = $1
		ORDER BY starts_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.UserID, &g.ResourceID, &g.StartsAt, &g.ExpiresAt, &g.PaymentRef, &g.AmountCents); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM grants WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired grants: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted grants: %w", err)
	}
	return deleted, nil
}
