package migrate

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func seed(t *testing.T, store *db.DB) (synced, deleted *schema.MealRecord) {
	t.Helper()
	ctx := context.Background()

	synced = schema.NewMeal("Synced bowl", 500, time.Now())
	require.NoError(t, store.InsertMeal(ctx, synced))
	require.NoError(t, store.MarkMealSynced(ctx, synced.ID))

	deleted = schema.NewMeal("Deleted bowl", 300, time.Now())
	require.NoError(t, store.InsertMeal(ctx, deleted))
	require.NoError(t, store.DeleteMeal(ctx, deleted.ID))

	require.NoError(t, store.InsertWaterLog(ctx, schema.NewWaterLog(500, time.Now())))
	require.NoError(t, store.InsertWeightLog(ctx, schema.NewWeightLog(68.2, time.Now())))
	require.NoError(t, store.InsertAchievements(ctx, []*schema.Achievement{
		schema.NewAchievement("first_glimpse", schema.TierGold),
	}))
	return synced, deleted
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)
	synced, deleted := seed(t, src)

	var buf bytes.Buffer
	exp, err := Export(ctx, src, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, exp.Meals, "pending deletions are not exported")
	assert.Equal(t, 1, exp.Water)
	assert.Equal(t, 1, exp.Weight)
	assert.Equal(t, 1, exp.Achievements)
	assert.NotContains(t, buf.String(), deleted.ID)

	dst := openStore(t)
	imp, err := Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	require.NoError(t, err)
	assert.Equal(t, 4, imp.Imported)
	assert.Zero(t, imp.Invalid)

	got, err := dst.GetMeal(ctx, synced.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSynced, "sync flag is preserved")

	n, err := dst.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "water and weight were unsynced at export")

	again, err := Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, 4, again.Skipped)

	achievements, err := dst.ListAchievements(ctx)
	require.NoError(t, err)
	assert.Len(t, achievements, 1)
}

func TestImportReportsBadLines(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	input := strings.Join([]string{
		`not json`,
		`{"kind":"pizza","record":{}}`,
		`{"kind":"water","record":{"id":"w1","amount_ml":0,"recorded_at":"2026-01-01T00:00:00Z","created_at":"2026-01-01T00:00:00Z"}}`,
		``,
		`{"kind":"water","record":{"id":"w2","amount_ml":250,"recorded_at":"2026-01-01T00:00:00Z","created_at":"2026-01-01T00:00:00Z"}}`,
	}, "\n")

	res, err := Import(ctx, strings.NewReader(input), store)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 3, res.Invalid)
	require.Len(t, res.Errors, 3)
	assert.True(t, strings.HasPrefix(res.Errors[0], "line 1:"))
	assert.Contains(t, res.Errors[1], "unknown kind")
}
