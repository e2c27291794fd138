package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

// openTestDB opens a fresh database with the schema applied.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func mealCreatedAt(t *testing.T, name string, createdAt time.Time) *schema.MealRecord {
	t.Helper()
	m := schema.NewMeal(name, 400, createdAt)
	m.CreatedAt = createdAt.UTC()
	m.UpdatedAt = createdAt.UTC()
	return m
}

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("path = %q, want %q", db.Path(), path)
	}
}

// TestOpen_StripsFilePrefix tests that a file: DSN prefix is tolerated
func TestOpen_StripsFilePrefix(t *testing.T) {
	path := testDBPath(t)
	db, err := Open("file:" + path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("path = %q, want %q", db.Path(), path)
	}
}

// TestInitSchema_Tables tests that all tables exist after migration
func TestInitSchema_Tables(t *testing.T) {
	db := openTestDB(t)

	tables := []string{"meals", "water_logs", "weight_logs", "achievements", "schema_migrations"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	version, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestInsertAndGetMeal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	meal := schema.NewMeal("Salmon bowl", 650, time.Now())
	meal.MealType = schema.MealLunch
	meal.ProteinG = 42.5
	if err := db.InsertMeal(ctx, meal); err != nil {
		t.Fatalf("InsertMeal() failed: %v", err)
	}

	got, err := db.GetMeal(ctx, meal.ID)
	if err != nil {
		t.Fatalf("GetMeal() failed: %v", err)
	}
	if got.Name != "Salmon bowl" || got.Calories != 650 || got.ProteinG != 42.5 {
		t.Errorf("unexpected meal: %+v", got)
	}
	if got.IsSynced {
		t.Error("new meal should be unsynced")
	}
	if !got.CreatedAt.Equal(meal.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, meal.CreatedAt)
	}

	if _, err := db.GetMeal(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMeal(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInsertMeal_Invalid(t *testing.T) {
	db := openTestDB(t)

	meal := schema.NewMeal("", 100, time.Now())
	if err := db.InsertMeal(context.Background(), meal); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestUnsyncedMeals_OrderedByCreatedAt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	// Inserted out of order on purpose.
	for _, m := range []*schema.MealRecord{
		mealCreatedAt(t, "lunch", base.Add(4*time.Hour)),
		mealCreatedAt(t, "breakfast", base),
		mealCreatedAt(t, "dinner", base.Add(10*time.Hour)),
	} {
		if err := db.InsertMeal(ctx, m); err != nil {
			t.Fatalf("InsertMeal() failed: %v", err)
		}
	}

	meals, err := db.UnsyncedMeals(ctx)
	if err != nil {
		t.Fatalf("UnsyncedMeals() failed: %v", err)
	}
	want := []string{"breakfast", "lunch", "dinner"}
	if len(meals) != len(want) {
		t.Fatalf("got %d meals, want %d", len(meals), len(want))
	}
	for i, m := range meals {
		if m.Name != want[i] {
			t.Errorf("meals[%d] = %s, want %s", i, m.Name, want[i])
		}
	}
}

func TestUnsyncedMeals_SubSecondOrdering(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 5, 0, time.UTC)
	later := mealCreatedAt(t, "later", base.Add(120*time.Millisecond))
	earlier := mealCreatedAt(t, "earlier", base.Add(100*time.Millisecond))
	for _, m := range []*schema.MealRecord{later, earlier} {
		if err := db.InsertMeal(ctx, m); err != nil {
			t.Fatalf("InsertMeal() failed: %v", err)
		}
	}

	meals, err := db.UnsyncedMeals(ctx)
	if err != nil {
		t.Fatalf("UnsyncedMeals() failed: %v", err)
	}
	if len(meals) != 2 || meals[0].Name != "earlier" {
		t.Fatalf("expected earlier first, got %v", meals)
	}
}

func TestMarkMealSynced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	meal := schema.NewMeal("Toast", 200, time.Now())
	if err := db.InsertMeal(ctx, meal); err != nil {
		t.Fatalf("InsertMeal() failed: %v", err)
	}
	if err := db.MarkMealSynced(ctx, meal.ID); err != nil {
		t.Fatalf("MarkMealSynced() failed: %v", err)
	}

	unsynced, err := db.UnsyncedMeals(ctx)
	if err != nil {
		t.Fatalf("UnsyncedMeals() failed: %v", err)
	}
	if len(unsynced) != 0 {
		t.Errorf("expected no unsynced meals, got %d", len(unsynced))
	}

	got, err := db.GetMeal(ctx, meal.ID)
	if err != nil {
		t.Fatalf("GetMeal() failed: %v", err)
	}
	if !got.UpdatedAt.After(meal.CreatedAt) && !got.UpdatedAt.Equal(meal.CreatedAt) {
		t.Errorf("UpdatedAt %v moved backwards", got.UpdatedAt)
	}

	if err := db.MarkMealSynced(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkMealSynced(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteMeal_MarksPendingDeletion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	meal := schema.NewMeal("Pizza", 900, time.Now())
	if err := db.InsertMeal(ctx, meal); err != nil {
		t.Fatalf("InsertMeal() failed: %v", err)
	}
	if err := db.DeleteMeal(ctx, meal.ID); err != nil {
		t.Fatalf("DeleteMeal() failed: %v", err)
	}

	unsynced, err := db.UnsyncedMeals(ctx)
	if err != nil {
		t.Fatalf("UnsyncedMeals() failed: %v", err)
	}
	if len(unsynced) != 0 {
		t.Error("meal pending deletion must not be offered as a create")
	}

	pending, err := db.PendingDeletionMeals(ctx)
	if err != nil {
		t.Fatalf("PendingDeletionMeals() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != meal.ID {
		t.Fatalf("expected the deleted meal pending, got %v", pending)
	}

	count, err := db.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() = %d, want 1", count)
	}

	if err := db.PurgeMeal(ctx, meal.ID); err != nil {
		t.Fatalf("PurgeMeal() failed: %v", err)
	}
	if _, err := db.GetMeal(ctx, meal.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected purged meal to be gone, got %v", err)
	}
	if err := db.PurgeMeal(ctx, meal.ID); err != nil {
		t.Errorf("PurgeMeal() should be idempotent: %v", err)
	}

	if err := db.DeleteMeal(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteMeal(missing) = %v, want ErrNotFound", err)
	}
}

func TestPendingCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	count, err := db.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("empty store PendingCount() = %d", count)
	}

	synced := schema.NewMeal("Synced", 100, time.Now())
	synced.IsSynced = true
	inserts := []error{
		db.InsertMeal(ctx, schema.NewMeal("Unsynced", 100, time.Now())),
		db.InsertMeal(ctx, synced),
		db.InsertWaterLog(ctx, schema.NewWaterLog(300, time.Now())),
		db.InsertWeightLog(ctx, schema.NewWeightLog(70.2, time.Now())),
	}
	for i, err := range inserts {
		if err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	if err := db.DeleteMeal(ctx, synced.ID); err != nil {
		t.Fatalf("DeleteMeal() failed: %v", err)
	}

	count, err = db.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 4 {
		t.Errorf("PendingCount() = %d, want 4", count)
	}
}

func TestWaterAndWeightLogs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	second := schema.NewWaterLog(500, base.Add(time.Hour))
	first := schema.NewWaterLog(250, base)
	for _, w := range []*schema.WaterLog{second, first} {
		if err := db.InsertWaterLog(ctx, w); err != nil {
			t.Fatalf("InsertWaterLog() failed: %v", err)
		}
	}

	water, err := db.UnsyncedWaterLogs(ctx)
	if err != nil {
		t.Fatalf("UnsyncedWaterLogs() failed: %v", err)
	}
	if len(water) != 2 || water[0].ID != first.ID {
		t.Fatalf("expected oldest recorded_at first, got %+v", water)
	}
	if err := db.MarkWaterLogSynced(ctx, first.ID); err != nil {
		t.Fatalf("MarkWaterLogSynced() failed: %v", err)
	}

	weight := schema.NewWeightLog(68.9, base)
	if err := db.InsertWeightLog(ctx, weight); err != nil {
		t.Fatalf("InsertWeightLog() failed: %v", err)
	}
	if err := db.MarkWeightLogSynced(ctx, weight.ID); err != nil {
		t.Fatalf("MarkWeightLogSynced() failed: %v", err)
	}
	unsyncedWeight, err := db.UnsyncedWeightLogs(ctx)
	if err != nil {
		t.Fatalf("UnsyncedWeightLogs() failed: %v", err)
	}
	if len(unsyncedWeight) != 0 {
		t.Errorf("expected no unsynced weight logs, got %d", len(unsyncedWeight))
	}

	count, err := db.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() = %d, want 1", count)
	}

	day, err := db.WaterLogsBetween(ctx, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("WaterLogsBetween() failed: %v", err)
	}
	if len(day) != 2 {
		t.Errorf("WaterLogsBetween() = %d logs, want 2", len(day))
	}
}

func TestAchievements(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	earned, err := db.EarnedAchievementTypes(ctx)
	if err != nil {
		t.Fatalf("EarnedAchievementTypes() failed: %v", err)
	}
	if len(earned) != 0 {
		t.Fatalf("expected nothing earned, got %v", earned)
	}

	batch := []*schema.Achievement{
		schema.NewAchievement("first_glimpse", schema.TierGold),
		schema.NewAchievement("hydration_hero", schema.TierBronze),
	}
	if err := db.InsertAchievements(ctx, batch); err != nil {
		t.Fatalf("InsertAchievements() failed: %v", err)
	}

	earned, err = db.EarnedAchievementTypes(ctx)
	if err != nil {
		t.Fatalf("EarnedAchievementTypes() failed: %v", err)
	}
	if !earned["first_glimpse"] || !earned["hydration_hero"] {
		t.Errorf("earned = %v", earned)
	}

	list, err := db.ListAchievements(ctx)
	if err != nil {
		t.Fatalf("ListAchievements() failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListAchievements() = %d, want 2", len(list))
	}
}

func TestInsertAchievements_AllOrNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	bad := schema.NewAchievement("broken", schema.TierGold)
	bad.Tier = "wood"
	err := db.InsertAchievements(ctx, []*schema.Achievement{
		schema.NewAchievement("first_glimpse", schema.TierGold),
		bad,
	})
	if err == nil {
		t.Fatal("expected error for invalid achievement")
	}

	list, err := db.ListAchievements(ctx)
	if err != nil {
		t.Fatalf("ListAchievements() failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected rollback, found %d achievements", len(list))
	}
}

func TestListMeals_Window(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	inside := schema.NewMeal("inside", 300, day.Add(12*time.Hour))
	outside := schema.NewMeal("outside", 300, day.Add(30*time.Hour))
	deleted := schema.NewMeal("deleted", 300, day.Add(13*time.Hour))
	for _, m := range []*schema.MealRecord{inside, outside, deleted} {
		if err := db.InsertMeal(ctx, m); err != nil {
			t.Fatalf("InsertMeal() failed: %v", err)
		}
	}
	if err := db.DeleteMeal(ctx, deleted.ID); err != nil {
		t.Fatalf("DeleteMeal() failed: %v", err)
	}

	meals, err := db.ListMeals(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListMeals() failed: %v", err)
	}
	if len(meals) != 1 || meals[0].ID != inside.ID {
		t.Errorf("ListMeals() = %v, want only %s", meals, inside.ID)
	}

	count, err := db.MealCount(ctx)
	if err != nil {
		t.Fatalf("MealCount() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("MealCount() = %d, want 3", count)
	}
}

func TestAllLogs_IncludeSynced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	late := schema.NewWaterLog(300, base.Add(2*time.Hour))
	early := schema.NewWaterLog(200, base)
	for _, w := range []*schema.WaterLog{late, early} {
		if err := db.InsertWaterLog(ctx, w); err != nil {
			t.Fatalf("InsertWaterLog() failed: %v", err)
		}
	}
	if err := db.MarkWaterLogSynced(ctx, early.ID); err != nil {
		t.Fatalf("MarkWaterLogSynced() failed: %v", err)
	}

	water, err := db.AllWaterLogs(ctx)
	if err != nil {
		t.Fatalf("AllWaterLogs() failed: %v", err)
	}
	if len(water) != 2 || water[0].ID != early.ID || water[1].ID != late.ID {
		t.Fatalf("expected both logs oldest first, got %+v", water)
	}
	if !water[0].IsSynced {
		t.Error("expected synced flag to round-trip")
	}

	weight := schema.NewWeightLog(70.2, base)
	if err := db.InsertWeightLog(ctx, weight); err != nil {
		t.Fatalf("InsertWeightLog() failed: %v", err)
	}
	if err := db.MarkWeightLogSynced(ctx, weight.ID); err != nil {
		t.Fatalf("MarkWeightLogSynced() failed: %v", err)
	}
	weights, err := db.AllWeightLogs(ctx)
	if err != nil {
		t.Fatalf("AllWeightLogs() failed: %v", err)
	}
	if len(weights) != 1 || weights[0].ID != weight.ID {
		t.Fatalf("expected the synced weight log, got %+v", weights)
	}
}

func TestExists(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	meal := schema.NewMeal("Toast", 180, time.Now())
	if err := db.InsertMeal(ctx, meal); err != nil {
		t.Fatalf("InsertMeal() failed: %v", err)
	}

	tests := []struct {
		name    string
		table   string
		id      string
		want    bool
		wantErr bool
	}{
		{"present meal", "meals", meal.ID, true, false},
		{"missing meal", "meals", "nope", false, false},
		{"wrong table", "water_logs", meal.ID, false, false},
		{"unknown table", "users", meal.ID, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Exists(ctx, tt.table, tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Exists() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Exists() = %v, want %v", got, tt.want)
			}
		})
	}
}
