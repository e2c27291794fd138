package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

const mealColumns = `id, name, meal_type, calories, protein_g, carbs_g, fat_g,
	       image_path, notes, eaten_at, is_synced, pending_deletion,
	       created_at, updated_at`

// InsertMeal stores a new meal.
func (db *DB) InsertMeal(ctx context.Context, meal *schema.MealRecord) error {
	if err := meal.Validate(); err != nil {
		return fmt.Errorf("invalid meal: %w", err)
	}
	if meal.UpdatedAt.IsZero() {
		meal.UpdatedAt = meal.CreatedAt
	}

	query := `
	INSERT INTO meals (
		id, name, meal_type, calories, protein_g, carbs_g, fat_g,
		image_path, notes, eaten_at, is_synced, pending_deletion,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		meal.ID,
		meal.Name,
		meal.MealType,
		meal.Calories,
		meal.ProteinG,
		meal.CarbsG,
		meal.FatG,
		meal.ImagePath,
		meal.Notes,
		formatTime(meal.EatenAt),
		boolToInt(meal.IsSynced),
		boolToInt(meal.PendingDeletion),
		formatTime(meal.CreatedAt),
		formatTime(meal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert meal %s: %w", meal.ID, err)
	}
	return nil
}

// GetMeal retrieves a single meal by id.
// Returns ErrNotFound if the meal does not exist.
func (db *DB) GetMeal(ctx context.Context, id string) (*schema.MealRecord, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+mealColumns+` FROM meals WHERE id = ?`, id)
	meal, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return meal, nil
}

// ListMeals returns meals eaten in [from, to), excluding meals pending
// deletion. Results are ordered by eaten_at ASC.
func (db *DB) ListMeals(ctx context.Context, from, to time.Time) ([]*schema.MealRecord, error) {
	query := `
	SELECT ` + mealColumns + `
	FROM meals
	WHERE pending_deletion = 0 AND eaten_at >= ? AND eaten_at < ?
	ORDER BY eaten_at ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer rows.Close()

	return scanMeals(rows)
}

// AllMeals returns every meal row, including pending deletions, ordered by
// created_at ASC.
func (db *DB) AllMeals(ctx context.Context) ([]*schema.MealRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+mealColumns+` FROM meals ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer rows.Close()

	return scanMeals(rows)
}

// DeleteMeal marks a meal for deletion. The row stays until the sync pass
// has removed it remotely and calls PurgeMeal. A meal marked here is never
// pushed as a create.
func (db *DB) DeleteMeal(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE meals SET pending_deletion = 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete meal %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete meal %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("meal %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeMeal removes a meal row entirely. Idempotent.
func (db *DB) PurgeMeal(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM meals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge meal %s: %w", id, err)
	}
	return nil
}

// UnsyncedMeals returns meals not yet acknowledged by the backend, oldest
// created_at first. Meals pending deletion are excluded.
func (db *DB) UnsyncedMeals(ctx context.Context) ([]*schema.MealRecord, error) {
	query := `
	SELECT ` + mealColumns + `
	FROM meals
	WHERE is_synced = 0 AND pending_deletion = 0
	ORDER BY created_at ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced meals: %w", err)
	}
	defer rows.Close()

	return scanMeals(rows)
}

// PendingDeletionMeals returns meals flagged for remote deletion, oldest
// created_at first.
func (db *DB) PendingDeletionMeals(ctx context.Context) ([]*schema.MealRecord, error) {
	query := `
	SELECT ` + mealColumns + `
	FROM meals
	WHERE pending_deletion = 1
	ORDER BY created_at ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending deletions: %w", err)
	}
	defer rows.Close()

	return scanMeals(rows)
}

// MarkMealSynced records the backend acknowledgment of a meal.
func (db *DB) MarkMealSynced(ctx context.Context, id string) error {
	return db.markSynced(ctx, "meals", id)
}

// MealCount returns the number of meals ever logged that are still stored.
func (db *DB) MealCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM meals`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get meal count: %w", err)
	}
	return count, nil
}

// markSynced sets is_synced = 1 on a row of table.
func (db *DB) markSynced(ctx context.Context, table, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET is_synced = 1, updated_at = ? WHERE id = ?`, table)
	res, err := db.conn.ExecContext(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s synced: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark %s %s synced: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func scanMeal(row rowScanner) (*schema.MealRecord, error) {
	var meal schema.MealRecord
	var eatenAt, createdAt, updatedAt string
	var synced, pendingDeletion int

	err := row.Scan(
		&meal.ID,
		&meal.Name,
		&meal.MealType,
		&meal.Calories,
		&meal.ProteinG,
		&meal.CarbsG,
		&meal.FatG,
		&meal.ImagePath,
		&meal.Notes,
		&eatenAt,
		&synced,
		&pendingDeletion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	meal.EatenAt = parseTime(eatenAt)
	meal.CreatedAt = parseTime(createdAt)
	meal.UpdatedAt = parseTime(updatedAt)
	meal.IsSynced = synced != 0
	meal.PendingDeletion = pendingDeletion != 0
	return &meal, nil
}

func scanMeals(rows *sql.Rows) ([]*schema.MealRecord, error) {
	var meals []*schema.MealRecord
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, meal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meals: %w", err)
	}
	return meals, nil
}
