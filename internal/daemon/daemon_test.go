package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/achievement"
	"github.com/ZhaoChaoqun/foodmoment/internal/api"
	"github.com/ZhaoChaoqun/foodmoment/internal/appstate"
	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/lock"
	"github.com/ZhaoChaoqun/foodmoment/internal/netwatch"
	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
	syncmgr "github.com/ZhaoChaoqun/foodmoment/internal/sync"
)

// setupTestDB creates a file-backed store in a temp directory.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "foodmoment.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// testBackend is an httptest server answering the health and create routes.
type testBackend struct {
	server  *httptest.Server
	up      atomic.Bool
	creates atomic.Int32
}

func newTestBackend(t *testing.T, up bool) *testBackend {
	t.Helper()

	b := &testBackend{}
	b.up.Store(up)
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch {
		case r.URL.Path == "/health":
			_, _ = w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/meals"):
			b.creates.Add(1)
			_, _ = w.Write([]byte(`{"id":"srv"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

type testDaemon struct {
	daemon  *Daemon
	store   *db.DB
	manager *syncmgr.Manager
	state   *appstate.State
	done    chan error
	cancel  context.CancelFunc
}

// startTestDaemon wires a daemon against store and backend and runs it.
// pendingGate, when false, keeps reconnects from triggering a pass.
func startTestDaemon(t *testing.T, store *db.DB, backend *testBackend, pendingGate bool) *testDaemon {
	t.Helper()

	quiet := log.New(io.Discard, "", 0)
	client := api.NewClient(backend.server.URL, "", time.Second)
	manager := syncmgr.New(store, client, quiet)

	pending := func(ctx context.Context) int {
		n, _ := store.PendingCount(ctx)
		return n
	}
	if !pendingGate {
		pending = func(context.Context) int { return 0 }
	}
	monitor := netwatch.New(client, netwatch.Config{
		Interval: 50 * time.Millisecond,
		Timeout:  time.Second,
		Pending:  pending,
		Logger:   quiet,
	})

	catalog, err := achievement.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() failed: %v", err)
	}
	state := appstate.New(10 * time.Millisecond)
	t.Cleanup(state.Close)

	d, err := New(Components{
		Store:     store,
		Sync:      manager,
		Monitor:   monitor,
		Evaluator: achievement.NewEvaluator(achievement.DefaultCheckers(), catalog, quiet),
		State:     state,
	}, &Config{DebounceInterval: 20 * time.Millisecond, Logger: quiet})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	td := &testDaemon{daemon: d, store: store, manager: manager, state: state, done: make(chan error, 1), cancel: cancel}
	go func() { td.done <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-td.done:
		case <-time.After(5 * time.Second):
			t.Errorf("daemon did not stop")
		}
	})
	return td
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func unsyncedMeals(t *testing.T, store *db.DB) int {
	t.Helper()
	meals, err := store.UnsyncedMeals(context.Background())
	if err != nil {
		t.Fatalf("UnsyncedMeals() failed: %v", err)
	}
	return len(meals)
}

func TestNew(t *testing.T) {
	store := setupTestDB(t)
	quiet := log.New(io.Discard, "", 0)
	manager := syncmgr.New(store, nil, quiet)
	monitor := netwatch.New(netwatch.ProbeFunc(func(context.Context) error { return nil }), netwatch.Config{Logger: quiet})
	evaluator := achievement.NewEvaluator(nil, nil, quiet)
	state := appstate.New(0)
	defer state.Close()

	tests := []struct {
		name    string
		c       Components
		wantErr bool
	}{
		{"valid", Components{Store: store, Sync: manager, Monitor: monitor, Evaluator: evaluator, State: state}, false},
		{"nil store", Components{Sync: manager, Monitor: monitor, Evaluator: evaluator, State: state}, true},
		{"nil sync", Components{Store: store, Monitor: monitor, Evaluator: evaluator, State: state}, true},
		{"nil monitor", Components{Store: store, Sync: manager, Evaluator: evaluator, State: state}, true},
		{"nil evaluator", Components{Store: store, Sync: manager, Monitor: monitor, State: state}, true},
		{"nil state", Components{Store: store, Sync: manager, Monitor: monitor, Evaluator: evaluator}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.c, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if d.config.DebounceInterval <= 0 {
				t.Errorf("DebounceInterval = %v, want default", d.config.DebounceInterval)
			}
			if want := lock.PathFor(store.Path()); d.config.LockPath != want {
				t.Errorf("LockPath = %q, want %q", d.config.LockPath, want)
			}
		})
	}
}

// TestStartSyncsPendingOnConnect covers the offline-then-online flow: a meal
// written before the daemon starts is pushed once the monitor sees the
// backend, the first-meal achievement is shown and the badge clears.
func TestStartSyncsPendingOnConnect(t *testing.T) {
	store := setupTestDB(t)
	if err := store.InsertMeal(context.Background(), schema.NewMeal("Porridge", 320, time.Now())); err != nil {
		t.Fatalf("InsertMeal() failed: %v", err)
	}

	backend := newTestBackend(t, true)
	td := startTestDaemon(t, store, backend, true)

	waitFor(t, "meal to sync", func() bool { return unsyncedMeals(t, store) == 0 })
	waitFor(t, "pending badge to clear", func() bool { return td.state.Pending() == 0 })

	if n := backend.creates.Load(); n != 1 {
		t.Errorf("creates = %d, want 1", n)
	}

	cur, ok := td.state.Current()
	if !ok {
		t.Fatalf("expected an achievement to be showing")
	}
	if cur.Type != achievement.TypeFirstGlimpse {
		t.Errorf("showing %q, want %q", cur.Type, achievement.TypeFirstGlimpse)
	}
}

// TestExternalWriteIsEvaluated covers a write made through a second handle
// (the CLI process) while the backend is down.
func TestExternalWriteIsEvaluated(t *testing.T) {
	store := setupTestDB(t)
	backend := newTestBackend(t, false)
	td := startTestDaemon(t, store, backend, true)
	waitFor(t, "daemon running", td.daemon.IsRunning)

	if td.state.IsShowing() {
		t.Fatalf("nothing should be showing on an empty store")
	}

	other, err := db.Open(store.Path())
	if err != nil {
		t.Fatalf("Open() second handle failed: %v", err)
	}
	defer other.Close()

	if err := other.InsertMeal(context.Background(), schema.NewMeal("Toast", 180, time.Now())); err != nil {
		t.Fatalf("InsertMeal() failed: %v", err)
	}

	waitFor(t, "achievement to show", td.state.IsShowing)
	waitFor(t, "pending badge", func() bool { return td.state.Pending() == 1 })

	if n := backend.creates.Load(); n != 0 {
		t.Errorf("creates = %d while offline, want 0", n)
	}
	if unsyncedMeals(t, store) != 1 {
		t.Errorf("meal should stay unsynced while offline")
	}
}

func TestRequestSync(t *testing.T) {
	store := setupTestDB(t)
	backend := newTestBackend(t, true)
	td := startTestDaemon(t, store, backend, false)

	waitFor(t, "daemon running", td.daemon.IsRunning)
	waitFor(t, "connected", td.manager.IsConnected)

	if err := store.InsertMeal(context.Background(), schema.NewMeal("Salad", 250, time.Now())); err != nil {
		t.Fatalf("InsertMeal() failed: %v", err)
	}

	td.daemon.RequestSync()
	waitFor(t, "requested pass", func() bool { return unsyncedMeals(t, store) == 0 })

	if n := backend.creates.Load(); n != 1 {
		t.Errorf("creates = %d, want 1", n)
	}
}

func TestStartFailsWhenLocked(t *testing.T) {
	store := setupTestDB(t)

	held, err := lock.Acquire(lock.PathFor(store.Path()))
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer held.Release()

	quiet := log.New(io.Discard, "", 0)
	state := appstate.New(0)
	defer state.Close()

	d, err := New(Components{
		Store:     store,
		Sync:      syncmgr.New(store, nil, quiet),
		Monitor:   netwatch.New(netwatch.ProbeFunc(func(context.Context) error { return nil }), netwatch.Config{Logger: quiet}),
		Evaluator: achievement.NewEvaluator(nil, nil, quiet),
		State:     state,
	}, &Config{Logger: quiet})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	err = d.Start(context.Background())
	if !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("Start() error = %v, want ErrLocked", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	backend := newTestBackend(t, false)
	td := startTestDaemon(t, store, backend, true)

	waitFor(t, "daemon running", td.daemon.IsRunning)

	if err := td.daemon.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := td.daemon.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}

	select {
	case err := <-td.done:
		if err != nil {
			t.Errorf("Start() returned %v after Stop", err)
		}
		td.done <- nil
	case <-time.After(5 * time.Second):
		t.Fatalf("Start() did not return after Stop")
	}

	// The lock is free again.
	l, err := lock.Acquire(lock.PathFor(store.Path()))
	if err != nil {
		t.Fatalf("Acquire() after Stop failed: %v", err)
	}
	l.Release()
}
