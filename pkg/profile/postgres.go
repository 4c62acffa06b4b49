package profile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vuraweg/prepgate/pkg/postgresutil"
)

// Migrations for the profiles table. Version range 200-299 belongs to
// this package.
var Migrations = []postgresutil.Migration{
	{
		Version:     200,
		Description: "create profiles table",
		SQL: `
			CREATE TABLE IF NOT EXISTS profiles (
				user_id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL,
				avatar_key TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP NOT NULL
			)
		`,
	},
}

// PostgresStore implements Store over the system-of-record database.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates the store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (StoredProfile, error) {
	query := `
		SELECT user_id, display_name, avatar_key, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	var p StoredProfile
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.DisplayName, &p.AvatarKey, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return StoredProfile{}, ErrNotFound
	}
	if err != nil {
		return StoredProfile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p StoredProfile) error {
	query := `
		INSERT INTO profiles (user_id, display_name, avatar_key, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    avatar_key = EXCLUDED.avatar_key,
		    updated_at = EXCLUDED.updated_at
	`
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	if _, err := s.db.ExecContext(ctx, query, p.UserID, p.DisplayName, p.AvatarKey, updatedAt); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
