package db

import (
	"context"
	"fmt"

	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// EarnedAchievementTypes returns the set of achievement types already earned.
func (db *DB) EarnedAchievementTypes(ctx context.Context) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT type FROM achievements`)
	if err != nil {
		return nil, fmt.Errorf("failed to query earned achievements: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]bool)
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			return nil, fmt.Errorf("failed to scan achievement type: %w", err)
		}
		earned[typ] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}
	return earned, nil
}

// InsertAchievements saves all achievements in a single transaction.
func (db *DB) InsertAchievements(ctx context.Context, achievements []*schema.Achievement) error {
	if len(achievements) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO achievements (id, type, tier, earned_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare achievement insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range achievements {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("invalid achievement: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.Type, string(a.Tier), formatTime(a.EarnedAt)); err != nil {
			return fmt.Errorf("failed to insert achievement %s: %w", a.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit achievements: %w", err)
	}
	return nil
}

// ListAchievements returns earned achievements, oldest first.
func (db *DB) ListAchievements(ctx context.Context) ([]*schema.Achievement, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, type, tier, earned_at FROM achievements ORDER BY earned_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var out []*schema.Achievement
	for rows.Next() {
		var a schema.Achievement
		var tier, earnedAt string
		if err := rows.Scan(&a.ID, &a.Type, &tier, &earnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.Tier = schema.Tier(tier)
		a.EarnedAt = parseTime(earnedAt)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}
	return out, nil
}
