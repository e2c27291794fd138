package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/api"
)

var (
	// ErrOffline is returned by SyncAll when the backend is unreachable.
	ErrOffline = errors.New("sync: offline")

	// ErrInProgress is returned by SyncAll when a pass is already running.
	ErrInProgress = errors.New("sync: pass already in progress")
)

// Result summarizes one sync pass.
type Result struct {
	MealsPushed   int           `json:"meals_pushed"`
	MealsFailed   int           `json:"meals_failed"`
	DeletesPushed int           `json:"deletes_pushed"`
	DeletesFailed int           `json:"deletes_failed"`
	WaterPushed   int           `json:"water_pushed"`
	WaterFailed   int           `json:"water_failed"`
	WeightPushed  int           `json:"weight_pushed"`
	WeightFailed  int           `json:"weight_failed"`
	Pending       int           `json:"pending"`
	Duration      time.Duration `json:"duration"`
}

// Pushed returns the number of records the pass delivered.
func (r *Result) Pushed() int {
	return r.MealsPushed + r.DeletesPushed + r.WaterPushed + r.WeightPushed
}

// Failed returns the number of records left for a later pass.
func (r *Result) Failed() int {
	return r.MealsFailed + r.DeletesFailed + r.WaterFailed + r.WeightFailed
}

// Manager coordinates sync passes between the local store and the backend.
type Manager struct {
	store  Store
	remote Remote
	logger *log.Logger

	mu        gosync.Mutex
	syncing   bool
	connected bool
	pending   int
	onPending []func(int)
}

// New creates a sync manager. The manager starts disconnected; the network
// monitor (or a caller that knows better) flips it with SetConnected.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store Store, remote Remote, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Manager{
		store:  store,
		remote: remote,
		logger: logger,
	}
}

// SetConnected records the latest reachability observation.
func (m *Manager) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// IsConnected reports the latest reachability observation.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// IsSyncing reports whether a pass is running.
func (m *Manager) IsSyncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncing
}

// PendingCount returns the last computed number of records waiting for the
// backend.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// OnPendingChange registers fn to be called whenever the pending count is
// recomputed and differs from the previous value.
func (m *Manager) OnPendingChange(fn func(int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPending = append(m.onPending, fn)
}

// RefreshPendingCount recomputes the pending count from the store. On a store
// error the previous value is kept and the error returned.
func (m *Manager) RefreshPendingCount(ctx context.Context) (int, error) {
	n, err := m.store.PendingCount(ctx)
	if err != nil {
		return m.PendingCount(), fmt.Errorf("failed to count pending records: %w", err)
	}

	m.mu.Lock()
	changed := n != m.pending
	m.pending = n
	hooks := append([]func(int){}, m.onPending...)
	m.mu.Unlock()

	if changed {
		for _, fn := range hooks {
			fn(n)
		}
	}
	return n, nil
}

// begin claims the pass guard.
func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrOffline
	}
	if m.syncing {
		return ErrInProgress
	}
	m.syncing = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncing = false
}

// SyncAll runs one pass: unsynced meals, pending meal deletions, unsynced
// water logs and unsynced weight logs, each table oldest first. A record that
// fails is logged and left for the next pass. The pending count is
// recomputed at the end even if every push failed.
//
// A call made while offline or while another pass is running does nothing
// and returns ErrOffline or ErrInProgress.
func (m *Manager) SyncAll(ctx context.Context) (*Result, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	defer m.end()

	start := time.Now()
	result := &Result{}

	m.pushMeals(ctx, result)
	m.pushDeletions(ctx, result)
	m.pushWater(ctx, result)
	m.pushWeight(ctx, result)

	pending, err := m.RefreshPendingCount(ctx)
	if err != nil {
		m.logger.Printf("WARNING: %v", err)
	}
	result.Pending = pending
	result.Duration = time.Since(start)

	m.logger.Printf("Sync complete: meals=%d (failed=%d), deletes=%d (failed=%d), water=%d (failed=%d), weight=%d (failed=%d), pending=%d in %v",
		result.MealsPushed, result.MealsFailed,
		result.DeletesPushed, result.DeletesFailed,
		result.WaterPushed, result.WaterFailed,
		result.WeightPushed, result.WeightFailed,
		result.Pending, result.Duration.Round(time.Millisecond))

	return result, nil
}

func (m *Manager) pushMeals(ctx context.Context, result *Result) {
	meals, err := m.store.UnsyncedMeals(ctx)
	if err != nil {
		m.logger.Printf("WARNING: Failed to load unsynced meals: %v", err)
		return
	}

	for _, meal := range meals {
		if _, err := m.remote.CreateMeal(ctx, api.MealFromRecord(meal)); err != nil {
			m.logger.Printf("WARNING: Failed to push meal %s: %v", meal.ID, err)
			result.MealsFailed++
			continue
		}
		if err := m.store.MarkMealSynced(ctx, meal.ID); err != nil {
			m.logger.Printf("WARNING: Failed to mark meal %s synced: %v", meal.ID, err)
			result.MealsFailed++
			continue
		}
		result.MealsPushed++
	}
}

func (m *Manager) pushDeletions(ctx context.Context, result *Result) {
	meals, err := m.store.PendingDeletionMeals(ctx)
	if err != nil {
		m.logger.Printf("WARNING: Failed to load pending deletions: %v", err)
		return
	}

	for _, meal := range meals {
		// 404 means the backend never saw the create.
		if err := m.remote.DeleteMeal(ctx, meal.ID); err != nil && !errors.Is(err, api.ErrNotFound) {
			m.logger.Printf("WARNING: Failed to delete meal %s remotely: %v", meal.ID, err)
			result.DeletesFailed++
			continue
		}
		if err := m.store.PurgeMeal(ctx, meal.ID); err != nil {
			m.logger.Printf("WARNING: Failed to purge meal %s: %v", meal.ID, err)
			result.DeletesFailed++
			continue
		}
		result.DeletesPushed++
	}
}

func (m *Manager) pushWater(ctx context.Context, result *Result) {
	logs, err := m.store.UnsyncedWaterLogs(ctx)
	if err != nil {
		m.logger.Printf("WARNING: Failed to load unsynced water logs: %v", err)
		return
	}

	for _, w := range logs {
		if _, err := m.remote.LogWater(ctx, api.WaterFromRecord(w)); err != nil {
			m.logger.Printf("WARNING: Failed to push water log %s: %v", w.ID, err)
			result.WaterFailed++
			continue
		}
		if err := m.store.MarkWaterLogSynced(ctx, w.ID); err != nil {
			m.logger.Printf("WARNING: Failed to mark water log %s synced: %v", w.ID, err)
			result.WaterFailed++
			continue
		}
		result.WaterPushed++
	}
}

func (m *Manager) pushWeight(ctx context.Context, result *Result) {
	logs, err := m.store.UnsyncedWeightLogs(ctx)
	if err != nil {
		m.logger.Printf("WARNING: Failed to load unsynced weight logs: %v", err)
		return
	}

	for _, w := range logs {
		if _, err := m.remote.LogWeight(ctx, api.WeightFromRecord(w)); err != nil {
			m.logger.Printf("WARNING: Failed to push weight log %s: %v", w.ID, err)
			result.WeightFailed++
			continue
		}
		if err := m.store.MarkWeightLogSynced(ctx, w.ID); err != nil {
			m.logger.Printf("WARNING: Failed to mark weight log %s synced: %v", w.ID, err)
			result.WeightFailed++
			continue
		}
		result.WeightPushed++
	}
}
