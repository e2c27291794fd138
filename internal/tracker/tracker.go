// Package tracker is the entry point for user actions: every write lands in
// the local store first, then achievements are evaluated and, when allowed,
// an opportunistic sync pass runs.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/achievement"
	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
	"github.com/ZhaoChaoqun/foodmoment/internal/sync"
)

// Tracker records meals, water and weight.
type Tracker struct {
	store     *db.DB
	evaluator *achievement.Evaluator
	sync      *sync.Manager
	sink      achievement.Sink
	logger    *log.Logger

	// AutoSync runs a sync pass after each write when the manager reports
	// connected.
	AutoSync bool
}

// Options configures a Tracker. Sync and Sink may be nil.
type Options struct {
	Store     *db.DB
	Evaluator *achievement.Evaluator
	Sync      *sync.Manager
	Sink      achievement.Sink
	AutoSync  bool
	Logger    *log.Logger
}

// New creates a tracker.
func New(opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[tracker] ", log.LstdFlags)
	}
	return &Tracker{
		store:     opts.Store,
		evaluator: opts.Evaluator,
		sync:      opts.Sync,
		sink:      opts.Sink,
		logger:    logger,
		AutoSync:  opts.AutoSync,
	}
}

// Outcome reports what happened after a write besides the write itself.
type Outcome struct {
	Unlocked []achievement.Item
	Pending  int
	Synced   *sync.Result
}

// LogMeal validates and stores a meal, evaluates achievements and runs an
// opportunistic sync pass.
func (t *Tracker) LogMeal(ctx context.Context, meal *schema.MealRecord) (*Outcome, error) {
	if err := meal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid meal: %w", err)
	}
	if err := t.store.InsertMeal(ctx, meal); err != nil {
		return nil, err
	}

	out := &Outcome{}
	if t.evaluator != nil {
		items, err := t.evaluator.CheckAndUnlock(ctx, t.store, t.sink)
		if err != nil {
			t.logger.Printf("WARNING: Failed to evaluate achievements: %v", err)
		}
		out.Unlocked = items
	}
	t.afterWrite(ctx, out)
	return out, nil
}

// LogWater stores a water log.
func (t *Tracker) LogWater(ctx context.Context, amountML int, at time.Time) (*schema.WaterLog, *Outcome, error) {
	w := schema.NewWaterLog(amountML, at)
	if err := w.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid water log: %w", err)
	}
	if err := t.store.InsertWaterLog(ctx, w); err != nil {
		return nil, nil, err
	}
	out := &Outcome{}
	t.afterWrite(ctx, out)
	return w, out, nil
}

// LogWeight stores a weight log.
func (t *Tracker) LogWeight(ctx context.Context, weightKG float64, at time.Time) (*schema.WeightLog, *Outcome, error) {
	w := schema.NewWeightLog(weightKG, at)
	if err := w.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid weight log: %w", err)
	}
	if err := t.store.InsertWeightLog(ctx, w); err != nil {
		return nil, nil, err
	}
	out := &Outcome{}
	t.afterWrite(ctx, out)
	return w, out, nil
}

// DeleteMeal marks a meal for deletion. The backend delete happens on the
// next sync pass.
func (t *Tracker) DeleteMeal(ctx context.Context, id string) (*Outcome, error) {
	if err := t.store.DeleteMeal(ctx, id); err != nil {
		return nil, err
	}
	out := &Outcome{}
	t.afterWrite(ctx, out)
	return out, nil
}

// afterWrite refreshes the pending count and, when enabled, pushes. Sync
// failures are logged only.
func (t *Tracker) afterWrite(ctx context.Context, out *Outcome) {
	if t.sync == nil {
		n, err := t.store.PendingCount(ctx)
		if err != nil {
			t.logger.Printf("WARNING: %v", err)
		}
		out.Pending = n
		return
	}

	n, err := t.sync.RefreshPendingCount(ctx)
	if err != nil {
		t.logger.Printf("WARNING: %v", err)
	}
	out.Pending = n

	if !t.AutoSync || !t.sync.IsConnected() || n == 0 {
		return
	}
	result, err := t.sync.SyncAll(ctx)
	switch {
	case err == nil:
		out.Synced = result
		out.Pending = result.Pending
	case errors.Is(err, sync.ErrOffline), errors.Is(err, sync.ErrInProgress):
	default:
		t.logger.Printf("WARNING: Sync failed: %v", err)
	}
}
