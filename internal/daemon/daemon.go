// Package daemon provides the long-running process that plays the app's role.
//
// The daemon:
// 1. Holds the single-instance lock for the store
// 2. Feeds backend reachability from the network monitor into the sync manager
// 3. Runs a sync pass when a reconnect finds pending records or a client asks
// 4. Watches the store for writes made by other processes (the CLI) and
//    re-evaluates achievements and the pending count after them
// 5. Publishes app state to dashboard clients
// 6. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/achievement"
	"github.com/ZhaoChaoqun/foodmoment/internal/appstate"
	"github.com/ZhaoChaoqun/foodmoment/internal/dashboard"
	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/lock"
	"github.com/ZhaoChaoqun/foodmoment/internal/netwatch"
	syncmgr "github.com/ZhaoChaoqun/foodmoment/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long to wait after the last store write
	// before re-evaluating. This batches the bursts SQLite produces for a
	// single transaction.
	DebounceInterval time.Duration

	// LockPath overrides the lock file location (default: next to the store)
	LockPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Components are the collaborators the daemon wires together. Dashboard
// may be nil.
type Components struct {
	Store     *db.DB
	Sync      *syncmgr.Manager
	Monitor   *netwatch.Monitor
	Evaluator *achievement.Evaluator
	State     *appstate.State
	Dashboard *dashboard.Server
}

// Daemon orchestrates connectivity, sync, evaluation and the dashboard.
type Daemon struct {
	store     *db.DB
	manager   *syncmgr.Manager
	monitor   *netwatch.Monitor
	evaluator *achievement.Evaluator
	state     *appstate.State
	dashboard *dashboard.Server
	config    *Config

	handler *dashboard.Handler
	watcher *StoreWatcher
	lock    *lock.Lock

	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	syncRequests chan struct{}

	mu      sync.Mutex
	started bool
	running bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. Use Start() to run it.
func New(c Components, config *Config) (*Daemon, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if c.Sync == nil {
		return nil, fmt.Errorf("sync manager cannot be nil")
	}
	if c.Monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if c.Evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}
	if c.State == nil {
		return nil, fmt.Errorf("state cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.LockPath == "" {
		config.LockPath = lock.PathFor(c.Store.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:        c.Store,
		manager:      c.Sync,
		monitor:      c.Monitor,
		evaluator:    c.Evaluator,
		state:        c.State,
		dashboard:    c.Dashboard,
		config:       config,
		changeQueue:  make(map[string]time.Time),
		syncRequests: make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Take the single-instance lock (lock.ErrLocked if another daemon runs)
// 2. Compute the pending count and run an initial achievement evaluation
// 3. Start the dashboard, the store watcher and the network monitor
// 4. Run sync passes on reconnect triggers and client requests
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	d.config.Logger.Println("Starting daemon")

	l, err := lock.Acquire(d.config.LockPath)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			if pid := lock.Holder(d.config.LockPath); pid > 0 {
				return fmt.Errorf("%w (pid %d)", err, pid)
			}
		}
		return err
	}
	d.lock = l

	if err := d.run(); err != nil {
		_ = d.Stop()
		return err
	}
	d.mu.Lock()
	d.running = !d.stopped
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

func (d *Daemon) run() error {
	d.monitor.OnChange(d.manager.SetConnected)
	d.manager.OnPendingChange(d.state.SetPending)
	trigger := d.monitor.Subscribe()

	if n, err := d.manager.RefreshPendingCount(d.ctx); err != nil {
		d.config.Logger.Printf("WARNING: %v", err)
	} else {
		d.state.SetPending(n)
	}
	d.evaluate()

	if d.dashboard != nil {
		handler := dashboard.NewHandler(d.dashboard, d.state, d.RequestSync, d.config.Logger)
		d.mu.Lock()
		d.handler = handler
		d.mu.Unlock()
		if err := d.dashboard.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
	}

	watcher, err := NewStoreWatcher(d.store.Path())
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start store watcher: %w", err)
	}
	d.mu.Lock()
	d.watcher = watcher
	d.mu.Unlock()
	d.config.Logger.Printf("Watching store: %s", d.store.Path())

	d.monitor.Start()

	d.wg.Add(3)
	go d.watchStoreEvents(watcher)
	go d.processChangeQueue()
	go d.syncLoop(trigger)

	return nil
}

// Stop gracefully shuts down the daemon. A sync pass in flight runs to
// completion first. Calling Stop more than once is safe.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.running = false
	watcher, handler := d.watcher, d.handler
	d.mu.Unlock()

	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	d.monitor.Stop()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}
	if handler != nil {
		handler.Close()
	}
	if d.dashboard != nil {
		if err := d.dashboard.Stop(); err != nil {
			d.config.Logger.Printf("Error stopping dashboard: %v", err)
		}
	}

	d.wg.Wait()

	if d.lock != nil {
		if err := d.lock.Release(); err != nil {
			d.config.Logger.Printf("Error releasing lock: %v", err)
		}
	}

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// IsRunning reports whether the daemon is up and has not been stopped.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// RequestSync asks the daemon to run a sync pass. Requests made while one
// is already waiting are coalesced.
func (d *Daemon) RequestSync() {
	select {
	case d.syncRequests <- struct{}{}:
	default:
	}
}

// watchStoreEvents queues store writes for debounced processing.
func (d *Daemon) watchStoreEvents(watcher *StoreWatcher) {
	defer d.wg.Done()

	events, errs := watcher.Events(), watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			d.queueChange(ev.Path)

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued store changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.takeSettledChanges() {
				d.onStoreChanged()
			}
		}
	}
}

// takeSettledChanges drops queued paths that have been quiet for the
// debounce interval and reports whether there were any.
func (d *Daemon) takeSettledChanges() bool {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	settled := false
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		settled = true
	}
	return settled
}

func (d *Daemon) onStoreChanged() {
	d.evaluate()
	if _, err := d.manager.RefreshPendingCount(d.ctx); err != nil {
		d.config.Logger.Printf("WARNING: %v", err)
	}
}

func (d *Daemon) evaluate() {
	items, err := d.evaluator.CheckAndUnlock(d.ctx, d.store, d.state)
	if err != nil {
		d.config.Logger.Printf("WARNING: Failed to evaluate achievements: %v", err)
		return
	}
	for _, item := range items {
		d.config.Logger.Printf("Unlocked achievement: %s (%s)", item.Type, item.Tier)
	}
}

// syncLoop runs a pass for every reconnect trigger and sync request.
func (d *Daemon) syncLoop(trigger <-chan uint64) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case n := <-trigger:
			d.config.Logger.Printf("Reconnected with pending records (trigger %d)", n)
			d.runSync()

		case <-d.syncRequests:
			d.runSync()
		}
	}
}

func (d *Daemon) runSync() {
	// Shutdown waits for the pass instead of interrupting it midway.
	result, err := d.manager.SyncAll(context.WithoutCancel(d.ctx))
	switch {
	case err == nil:
		d.mu.Lock()
		handler := d.handler
		d.mu.Unlock()
		if handler != nil {
			handler.OnSyncComplete(result)
		}
	case errors.Is(err, syncmgr.ErrOffline):
		d.config.Logger.Println("Sync skipped: backend unreachable")
	case errors.Is(err, syncmgr.ErrInProgress):
	default:
		d.config.Logger.Printf("WARNING: Sync failed: %v", err)
	}
}
