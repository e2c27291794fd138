package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// InsertWaterLog stores a new water log.
func (db *DB) InsertWaterLog(ctx context.Context, w *schema.WaterLog) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid water log: %w", err)
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO water_logs (id, amount_ml, recorded_at, is_synced, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.AmountML, formatTime(w.RecordedAt), boolToInt(w.IsSynced),
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert water log %s: %w", w.ID, err)
	}
	return nil
}

// UnsyncedWaterLogs returns water logs not yet pushed, oldest recorded_at first.
func (db *DB) UnsyncedWaterLogs(ctx context.Context) ([]*schema.WaterLog, error) {
	return db.queryWaterLogs(ctx, `WHERE is_synced = 0 ORDER BY recorded_at ASC, id ASC`)
}

// WaterLogsBetween returns water logs recorded in [from, to).
func (db *DB) WaterLogsBetween(ctx context.Context, from, to time.Time) ([]*schema.WaterLog, error) {
	return db.queryWaterLogs(ctx, `WHERE recorded_at >= ? AND recorded_at < ? ORDER BY recorded_at ASC, id ASC`,
		formatTime(from), formatTime(to))
}

// AllWaterLogs returns every water log, oldest recorded_at first.
func (db *DB) AllWaterLogs(ctx context.Context) ([]*schema.WaterLog, error) {
	return db.queryWaterLogs(ctx, `ORDER BY recorded_at ASC, id ASC`)
}

// MarkWaterLogSynced records the backend acknowledgment of a water log.
func (db *DB) MarkWaterLogSynced(ctx context.Context, id string) error {
	return db.markSynced(ctx, "water_logs", id)
}

func (db *DB) queryWaterLogs(ctx context.Context, where string, args ...any) ([]*schema.WaterLog, error) {
	query := `SELECT id, amount_ml, recorded_at, is_synced, created_at, updated_at FROM water_logs ` + where
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query water logs: %w", err)
	}
	defer rows.Close()

	var logs []*schema.WaterLog
	for rows.Next() {
		var w schema.WaterLog
		var recordedAt, createdAt, updatedAt string
		var synced int
		if err := rows.Scan(&w.ID, &w.AmountML, &recordedAt, &synced, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan water log: %w", err)
		}
		w.RecordedAt = parseTime(recordedAt)
		w.CreatedAt = parseTime(createdAt)
		w.UpdatedAt = parseTime(updatedAt)
		w.IsSynced = synced != 0
		logs = append(logs, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating water logs: %w", err)
	}
	return logs, nil
}

// InsertWeightLog stores a new weight log.
func (db *DB) InsertWeightLog(ctx context.Context, w *schema.WeightLog) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid weight log: %w", err)
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO weight_logs (id, weight_kg, recorded_at, is_synced, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.WeightKG, formatTime(w.RecordedAt), boolToInt(w.IsSynced),
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert weight log %s: %w", w.ID, err)
	}
	return nil
}

// UnsyncedWeightLogs returns weight logs not yet pushed, oldest recorded_at first.
func (db *DB) UnsyncedWeightLogs(ctx context.Context) ([]*schema.WeightLog, error) {
	return db.queryWeightLogs(ctx, `WHERE is_synced = 0 ORDER BY recorded_at ASC, id ASC`)
}

// WeightLogsBetween returns weight logs recorded in [from, to).
func (db *DB) WeightLogsBetween(ctx context.Context, from, to time.Time) ([]*schema.WeightLog, error) {
	return db.queryWeightLogs(ctx, `WHERE recorded_at >= ? AND recorded_at < ? ORDER BY recorded_at ASC, id ASC`,
		formatTime(from), formatTime(to))
}

// AllWeightLogs returns every weight log, oldest recorded_at first.
func (db *DB) AllWeightLogs(ctx context.Context) ([]*schema.WeightLog, error) {
	return db.queryWeightLogs(ctx, `ORDER BY recorded_at ASC, id ASC`)
}

// MarkWeightLogSynced records the backend acknowledgment of a weight log.
func (db *DB) MarkWeightLogSynced(ctx context.Context, id string) error {
	return db.markSynced(ctx, "weight_logs", id)
}

func (db *DB) queryWeightLogs(ctx context.Context, where string, args ...any) ([]*schema.WeightLog, error) {
	query := `SELECT id, weight_kg, recorded_at, is_synced, created_at, updated_at FROM weight_logs ` + where
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight logs: %w", err)
	}
	defer rows.Close()

	var logs []*schema.WeightLog
	for rows.Next() {
		var w schema.WeightLog
		var recordedAt, createdAt, updatedAt string
		var synced int
		if err := rows.Scan(&w.ID, &w.WeightKG, &recordedAt, &synced, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan weight log: %w", err)
		}
		w.RecordedAt = parseTime(recordedAt)
		w.CreatedAt = parseTime(createdAt)
		w.UpdatedAt = parseTime(updatedAt)
		w.IsSynced = synced != 0
		logs = append(logs, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weight logs: %w", err)
	}
	return logs, nil
}

// PendingCount returns the number of local changes the backend has not seen:
// unsynced meals, meals pending deletion, unsynced water and weight logs.
// A meal that is both unsynced and pending deletion counts once.
func (db *DB) PendingCount(ctx context.Context) (int, error) {
	query := `
	SELECT
		(SELECT COUNT(*) FROM meals WHERE is_synced = 0 AND pending_deletion = 0) +
		(SELECT COUNT(*) FROM meals WHERE pending_deletion = 1) +
		(SELECT COUNT(*) FROM water_logs WHERE is_synced = 0) +
		(SELECT COUNT(*) FROM weight_logs WHERE is_synced = 0)
	`
	var count sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return int(count.Int64), nil
}

// recordTables are the tables Exists may look in.
var recordTables = map[string]bool{
	"meals":        true,
	"water_logs":   true,
	"weight_logs":  true,
	"achievements": true,
}

// Exists reports whether a row with id exists in table.
func (db *DB) Exists(ctx context.Context, table, id string) (bool, error) {
	if !recordTables[table] {
		return false, fmt.Errorf("unknown table %q", table)
	}
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s %s: %w", table, id, err)
	}
	return true, nil
}
