package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/ZhaoChaoqun/foodmoment/internal/achievement"
	"github.com/ZhaoChaoqun/foodmoment/internal/api"
	"github.com/ZhaoChaoqun/foodmoment/internal/dashboard"
	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/lock"
	"github.com/ZhaoChaoqun/foodmoment/internal/logging"
	"github.com/ZhaoChaoqun/foodmoment/internal/sync"
	"github.com/ZhaoChaoqun/foodmoment/internal/tracker"
	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

// probeTimeout bounds the reachability check a one-shot command makes
// before deciding whether to push.
const probeTimeout = 3 * time.Second

// app is the set of components a one-shot command works with.
type app struct {
	store    *db.DB
	client   *api.Client
	sync     *sync.Manager
	tracker  *tracker.Tracker
	catalog  achievement.Catalog
	logOut   io.Writer
	logClose io.Closer

	// daemonRunning is set when another process holds the daemon lock.
	// Pushing and achievement evaluation are then left to the daemon: its
	// UI sees the unlock and its pass is the only one talking to the
	// backend.
	daemonRunning bool
}

// openApp opens the store and wires the tracker. The caller must Close it.
func openApp() (*app, error) {
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, err
	}

	catalog, err := achievement.DefaultCatalog()
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{store: store, catalog: catalog}
	a.logOut, a.logClose = commandLogOutput()

	a.client = api.NewClient(cfg.API.URL, cfg.API.Token, cfg.API.Timeout)
	a.client.MinVersion = cfg.API.MinVersion
	a.sync = sync.New(store, a.client, a.logger("sync"))
	a.daemonRunning = daemonRunning(cfg.DBPath)

	opts := tracker.Options{
		Store:  store,
		Logger: a.logger("tracker"),
	}
	if !a.daemonRunning {
		opts.Evaluator = achievement.NewEvaluator(achievement.DefaultCheckers(), catalog, a.logger("achievement"))
		opts.Sync = a.sync
		opts.AutoSync = cfg.Sync.Auto
	}
	a.tracker = tracker.New(opts)
	return a, nil
}

// Close releases the store and the log file.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("WARNING: Failed to close store: %v", err)
	}
	_ = a.logClose.Close()
}

func (a *app) logger(component string) *log.Logger {
	return logging.New(a.logOut, component)
}

// connect probes the backend and records the result on the sync manager.
func (a *app) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := a.client.Probe(ctx)
	a.sync.SetConnected(err == nil)
	return err
}

// commandLogOutput picks where component logs go for one-shot commands:
// stderr with --verbose, the configured log file otherwise, else nowhere.
func commandLogOutput() (io.Writer, io.Closer) {
	if verbose {
		return logging.Output("")
	}
	if cfg.Log.File != "" {
		return logging.Output(cfg.Log.File)
	}
	return io.Discard, nopCloser{}
}

// daemonRunning reports whether a daemon holds the lock for the store.
func daemonRunning(storePath string) bool {
	l, err := lock.Acquire(lock.PathFor(storePath))
	if errors.Is(err, lock.ErrLocked) {
		return true
	}
	if err == nil {
		_ = l.Release()
	}
	return false
}

// requestDaemonSync asks the running daemon for a sync pass through its
// dashboard socket.
func requestDaemonSync(ctx context.Context) error {
	if !cfg.Dashboard.Enabled {
		return errors.New("dashboard disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	addr := net.JoinHostPort(cfg.Dashboard.Host, strconv.Itoa(cfg.Dashboard.Port))
	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", addr, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	data, err := json.Marshal(dashboard.Command{Type: dashboard.CommandSync})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send sync request: %w", err)
	}
	return nil
}

var timeParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseWhen reads a time given as RFC3339, "YYYY-MM-DD HH:MM", "YYYY-MM-DD"
// or natural language ("yesterday 8pm", "2 hours ago"). Empty means now.
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	r, err := timeParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return r.Time, nil
}

// dayBounds returns local midnight of t's day and of the next day.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// printOutcome reports unlocks and sync state after a write.
func printOutcome(w io.Writer, out *tracker.Outcome) {
	for _, item := range out.Unlocked {
		fmt.Fprintf(w, "%s Achievement unlocked: %s\n", ui.TierIcon(string(item.Tier)), ui.RenderAccent(item.Title))
		if item.Subtitle != "" {
			fmt.Fprintf(w, "   %s\n", ui.RenderMuted(item.Subtitle))
		}
	}
	switch {
	case out.Synced != nil && out.Pending == 0:
		fmt.Fprintf(w, "%s Synced\n", ui.RenderPass("✓"))
	case out.Pending > 0:
		fmt.Fprintf(w, "%s %s\n", ui.RenderWarn("⏳"), pendingLabel(out.Pending))
	}
}

func pendingLabel(n int) string {
	if n == 1 {
		return "1 record waiting to sync"
	}
	return fmt.Sprintf("%d records waiting to sync", n)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
