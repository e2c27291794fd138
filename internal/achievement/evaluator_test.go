package achievement

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

type memStore struct {
	mu       sync.Mutex
	meals    int
	earned   map[string]bool
	inserted []*schema.Achievement
	saves    int
	saveErr  error

	// block, when set, holds MealCount until closed.
	block   chan struct{}
	entered chan struct{}
}

func newMemStore(meals int) *memStore {
	return &memStore{meals: meals, earned: map[string]bool{}}
}

func (s *memStore) MealCount(ctx context.Context) (int, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meals, nil
}

func (s *memStore) EarnedAchievementTypes(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.earned))
	for k, v := range s.earned {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) InsertAchievements(ctx context.Context, as []*schema.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	for _, a := range as {
		s.inserted = append(s.inserted, a)
		s.earned[a.Type] = true
	}
	return nil
}

type recordingSink struct {
	items []Item
}

func (r *recordingSink) Enqueue(item Item) { r.items = append(r.items, item) }

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestEvaluator(t *testing.T, checkers []Checker) *Evaluator {
	t.Helper()
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	return NewEvaluator(checkers, catalog, quietLogger())
}

func fixedChecker(typ string, tier schema.Tier) Checker {
	return Checker{
		Type: typ,
		Check: func(context.Context, Store) (schema.Tier, bool, error) {
			return tier, true, nil
		},
	}
}

func TestFirstMealUnlocksFirstGlimpse(t *testing.T) {
	store := newMemStore(1)
	sink := &recordingSink{}
	e := newTestEvaluator(t, DefaultCheckers())

	items, err := e.CheckAndUnlock(context.Background(), store, sink)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, TypeFirstGlimpse, item.Type)
	assert.Equal(t, schema.TierGold, item.Tier)
	assert.Equal(t, "First Glimpse", item.Title)
	assert.Equal(t, "milestone", item.Category)
	assert.Equal(t, items, sink.items)
	assert.Len(t, store.inserted, 1)
}

func TestNoMealsNoUnlock(t *testing.T) {
	store := newMemStore(0)
	sink := &recordingSink{}
	e := newTestEvaluator(t, DefaultCheckers())

	items, err := e.CheckAndUnlock(context.Background(), store, sink)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, sink.items)
	assert.Zero(t, store.saves)
}

func TestAlreadyEarnedNeverDuplicates(t *testing.T) {
	store := newMemStore(5)
	e := newTestEvaluator(t, DefaultCheckers())

	for i := 0; i < 3; i++ {
		_, err := e.CheckAndUnlock(context.Background(), store, nil)
		require.NoError(t, err)
	}
	assert.Len(t, store.inserted, 1)
	assert.Equal(t, 1, store.saves)
}

func TestRegistrationOrderAndSingleSave(t *testing.T) {
	store := newMemStore(0)
	sink := &recordingSink{}
	e := newTestEvaluator(t, []Checker{
		fixedChecker("zeta", schema.TierBronze),
		fixedChecker("alpha", schema.TierSilver),
		fixedChecker("mid", schema.TierGold),
	})

	items, err := e.CheckAndUnlock(context.Background(), store, sink)
	require.NoError(t, err)

	var types []string
	for _, it := range sink.items {
		types = append(types, it.Type)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, types)
	assert.Len(t, items, 3)
	assert.Equal(t, 1, store.saves)
	// Unknown types fall back to the type key.
	assert.Equal(t, "zeta", items[0].Title)
}

func TestFailingCheckerIsSkipped(t *testing.T) {
	store := newMemStore(1)
	broken := Checker{
		Type: "broken",
		Check: func(context.Context, Store) (schema.Tier, bool, error) {
			return "", false, errors.New("boom")
		},
	}
	e := newTestEvaluator(t, []Checker{broken, FirstGlimpse()})

	items, err := e.CheckAndUnlock(context.Background(), store, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeFirstGlimpse, items[0].Type)
}

func TestSaveFailureEnqueuesNothing(t *testing.T) {
	store := newMemStore(1)
	store.saveErr = errors.New("disk full")
	sink := &recordingSink{}
	e := newTestEvaluator(t, DefaultCheckers())

	_, err := e.CheckAndUnlock(context.Background(), store, sink)
	require.Error(t, err)
	assert.Empty(t, sink.items)
	assert.False(t, e.IsChecking())
}

func TestOverlappingCheckIsDropped(t *testing.T) {
	store := newMemStore(1)
	store.block = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	e := newTestEvaluator(t, DefaultCheckers())

	done := make(chan []Item, 1)
	go func() {
		items, _ := e.CheckAndUnlock(context.Background(), store, nil)
		done <- items
	}()

	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never ran a checker")
	}
	assert.True(t, e.IsChecking())

	items, err := e.CheckAndUnlock(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Nil(t, items)

	close(store.block)
	assert.Len(t, <-done, 1)
	assert.False(t, e.IsChecking())
	assert.Len(t, store.inserted, 1)
}

func TestEvaluatorWithDatabase(t *testing.T) {
	ctx := context.Background()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.InitSchema())

	e := newTestEvaluator(t, DefaultCheckers())

	items, err := e.CheckAndUnlock(ctx, database, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, database.InsertMeal(ctx, schema.NewMeal("Toast", 180, time.Now())))

	items, err = e.CheckAndUnlock(ctx, database, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = e.CheckAndUnlock(ctx, database, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	saved, err := database.ListAchievements(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, TypeFirstGlimpse, saved[0].Type)
	assert.Equal(t, schema.TierGold, saved[0].Tier)
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte("streak:\n  title: On a Roll\n  icon: flame\n"))
	require.NoError(t, err)
	assert.Equal(t, "On a Roll", c.Lookup("streak").Title)
	assert.Equal(t, "flame", c.Lookup("streak").Icon)

	_, err = ParseCatalog([]byte("streak: [unclosed"))
	require.Error(t, err)

	empty, err := ParseCatalog(nil)
	require.NoError(t, err)
	assert.Equal(t, "x", empty.Lookup("x").Title)
}
