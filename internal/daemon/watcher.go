package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// StoreEvent is a change to one of the database files (the main file, its
// WAL or its shared-memory index).
type StoreEvent struct {
	Path string
	Op   EventOp
}

// StoreWatcher watches the directory holding the database for writes made
// by other processes, such as the CLI logging a meal.
type StoreWatcher struct {
	watcher *fsnotify.Watcher
	events  chan StoreEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dbPath  string
	dbBase  string

	// closed is set once the fsnotify watcher has been released.
	closed bool
}

// NewStoreWatcher creates a watcher for the database at dbPath.
// The watcher must be started with Start() before it will emit events.
func NewStoreWatcher(dbPath string) (*StoreWatcher, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dbPath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &StoreWatcher{
		watcher: watcher,
		events:  make(chan StoreEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		dbPath:  abs,
		dbBase:  filepath.Base(abs),
	}, nil
}

// Start begins watching the database directory.
func (sw *StoreWatcher) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("watcher already running")
	}
	if sw.closed {
		return fmt.Errorf("watcher closed")
	}

	// A watcher that failed to start is released here; Stop only tears
	// down running watchers.
	dir := filepath.Dir(sw.dbPath)
	if err := sw.watcher.Add(dir); err != nil {
		sw.closed = true
		_ = sw.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	sw.running = true
	sw.wg.Add(1)
	go sw.processEvents()

	return nil
}

// Stop stops watching and closes the event channels. It blocks until the
// event loop has exited. Calling Stop on a stopped watcher does nothing.
func (sw *StoreWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = false
	sw.closed = true
	sw.mu.Unlock()

	close(sw.done)

	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	sw.wg.Wait()

	close(sw.events)
	close(sw.errors)

	return nil
}

// Events returns the channel that emits StoreEvent notifications.
// This channel is closed when the watcher is stopped.
func (sw *StoreWatcher) Events() <-chan StoreEvent {
	return sw.events
}

// Errors returns the channel that emits watcher errors.
// This channel is closed when the watcher is stopped.
func (sw *StoreWatcher) Errors() <-chan error {
	return sw.errors
}

// IsRunning returns true if the watcher is currently running.
func (sw *StoreWatcher) IsRunning() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}

func (sw *StoreWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := sw.convertEvent(event); ok {
				select {
				case sw.events <- ev:
				case <-sw.done:
					return
				}
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

// convertEvent keeps events for the database and its -wal/-shm siblings.
func (sw *StoreWatcher) convertEvent(event fsnotify.Event) (StoreEvent, bool) {
	if !sw.isStoreFile(event.Name) {
		return StoreEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return StoreEvent{}, false
	}
	return StoreEvent{Path: event.Name, Op: op}, true
}

func (sw *StoreWatcher) isStoreFile(path string) bool {
	base := filepath.Base(path)
	if base == sw.dbBase {
		return true
	}
	suffix, ok := strings.CutPrefix(base, sw.dbBase)
	return ok && (suffix == "-wal" || suffix == "-shm" || suffix == "-journal")
}
