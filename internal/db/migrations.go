package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS tickets (
		ticket_id        TEXT PRIMARY KEY,
		plate            TEXT NOT NULL,
		normalized_plate TEXT NOT NULL,
		lot_id           TEXT NOT NULL,
		entry_time       TIMESTAMPTZ,
		status           TEXT NOT NULL DEFAULT 'active',
		exit_time        TIMESTAMPTZ,
		fee              NUMERIC(10,2),
		total_minutes    INT,
		meta             JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_normalized_plate ON tickets(normalized_plate);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_lot_status ON tickets(lot_id, status);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM pg_constraint WHERE conname = 'chk_tickets_status'
		) THEN
			ALTER TABLE tickets
				ADD CONSTRAINT chk_tickets_status CHECK (status IN ('active', 'processed'));
		END IF;
	END
	$$;`,
}

// migrationLockID serializes migrations across replicas starting together.
const migrationLockID = 7_414_002

// runMigrations applies every statement not yet recorded in
// schema_migrations. Version N is migrationStatements[N-1]; append only.
func runMigrations(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrationLockID).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`).Error; err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		var current int
		if err := tx.Raw("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current).Error; err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}

		for version := current + 1; version <= len(migrationStatements); version++ {
			if err := tx.Exec(migrationStatements[version-1]).Error; err != nil {
				return fmt.Errorf("apply migration %d: %w", version, err)
			}
			if err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version).Error; err != nil {
				return fmt.Errorf("record migration %d: %w", version, err)
			}
			log.Info().Int("version", version).Msg("migration applied")
		}
		return nil
	})
}
