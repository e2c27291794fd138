package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order, each in its own transaction.
// Version 2 mirrors the backend migration that added updated_at columns.
var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		sql: `
	CREATE TABLE IF NOT EXISTS meals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		meal_type TEXT NOT NULL DEFAULT '',
		calories INTEGER NOT NULL DEFAULT 0 CHECK(calories >= 0),
		protein_g REAL NOT NULL DEFAULT 0,
		carbs_g REAL NOT NULL DEFAULT 0,
		fat_g REAL NOT NULL DEFAULT 0,
		image_path TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		eaten_at TEXT NOT NULL,
		is_synced INTEGER NOT NULL DEFAULT 0,
		pending_deletion INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS water_logs (
		id TEXT PRIMARY KEY,
		amount_ml INTEGER NOT NULL CHECK(amount_ml > 0),
		recorded_at TEXT NOT NULL,
		is_synced INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weight_logs (
		id TEXT PRIMARY KEY,
		weight_kg REAL NOT NULL CHECK(weight_kg > 0),
		recorded_at TEXT NOT NULL,
		is_synced INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- No UNIQUE(type): at-most-one-per-type is enforced by the evaluator.
	CREATE TABLE IF NOT EXISTS achievements (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		tier TEXT NOT NULL,
		earned_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_meals_unsynced ON meals(is_synced, pending_deletion, created_at);
	CREATE INDEX IF NOT EXISTS idx_meals_eaten ON meals(eaten_at);
	CREATE INDEX IF NOT EXISTS idx_water_unsynced ON water_logs(is_synced, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_weight_unsynced ON weight_logs(is_synced, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_achievements_type ON achievements(type);
	`,
	},
	{
		version: 2,
		name:    "add_updated_at",
		sql: `
	ALTER TABLE meals ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';
	ALTER TABLE water_logs ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';
	ALTER TABLE weight_logs ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';
	UPDATE meals SET updated_at = created_at WHERE updated_at = '';
	UPDATE water_logs SET updated_at = created_at WHERE updated_at = '';
	UPDATE weight_logs SET updated_at = created_at WHERE updated_at = '';
	`,
	},
}

// applyMigrations runs every migration newer than the recorded version.
func applyMigrations(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.DB, m migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}
