package postgresutil

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/vuraweg/prepgate/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// RunMigrations applies pending migrations in version order, tracking
// applied versions in the prepgate_migrations table. Each domain package
// contributes its own migrations with a disjoint version range.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger, migrations []Migration) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS prepgate_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM prepgate_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version == sorted[i-1].Version {
			return fmt.Errorf("duplicate migration version %d", sorted[i].Version)
		}
	}

	// Run pending migrations
	for _, migration := range sorted {
		if appliedVersions[migration.Version] {
			continue
		}

		if logger != nil {
			logger.WithFields(map[string]interface{}{
				"version":     migration.Version,
				"description": migration.Description,
			}).Info("Running migration")
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO prepgate_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
