// Package netwatch watches whether the backend is reachable.
//
// The monitor only observes. When the backend comes back while records are
// waiting, it advances a trigger counter and notifies subscribers; whoever
// owns sync policy decides what to do with that.
package netwatch

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Prober checks reachability once. A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// Config controls a Monitor.
type Config struct {
	// Interval between probes while connected. Probes while disconnected
	// back off exponentially up to this interval.
	Interval time.Duration

	// Timeout for a single probe.
	Timeout time.Duration

	// Pending returns the number of records waiting for the backend. A
	// reconnect only advances the trigger when it is nonzero. Nil means
	// always trigger.
	Pending func(ctx context.Context) int

	Logger *log.Logger
}

// Monitor probes the backend on an interval and tracks connectivity.
type Monitor struct {
	prober Prober
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	trigger   uint64
	subs      []chan uint64
	onChange  []func(bool)
}

// New creates a monitor. It does not probe until Start is called.
func New(prober Prober, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[netwatch] ", log.LstdFlags)
	}
	return &Monitor{
		prober: prober,
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins probing in the background. Calling Start on a running
// monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(ctx, m.done)
}

// Stop halts probing and waits for the probe loop to exit. It does not
// touch a sync pass that is already running. Calling Stop on a stopped
// monitor does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the probe loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// IsConnected reports the result of the latest probe.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Trigger returns how many times a reconnect found pending records.
func (m *Monitor) Trigger() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trigger
}

// Subscribe returns a channel that receives the trigger value each time it
// advances. The channel holds one value; a slow reader sees the latest
// value it has not yet missed, never a backlog.
func (m *Monitor) Subscribe() <-chan uint64 {
	ch := make(chan uint64, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// OnChange registers fn to be called on every connectivity transition.
func (m *Monitor) OnChange(fn func(connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.Interval / 8
	if bo.InitialInterval > time.Second {
		bo.InitialInterval = time.Second
	}
	bo.MaxInterval = m.cfg.Interval
	bo.MaxElapsedTime = 0
	bo.Reset()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := m.cfg.Interval
		if m.probe(ctx) {
			bo.Reset()
		} else if d := bo.NextBackOff(); d != backoff.Stop {
			next = d
		}
		timer.Reset(next)
	}
}

// probe runs one check and applies the result. It returns the new state.
func (m *Monitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	if ctx.Err() != nil {
		return m.IsConnected()
	}
	connected := err == nil

	m.mu.Lock()
	was := m.connected
	m.connected = connected
	hooks := append([]func(bool){}, m.onChange...)
	m.mu.Unlock()

	if was == connected {
		return connected
	}

	if connected {
		m.logger.Printf("Backend reachable")
	} else {
		m.logger.Printf("Backend unreachable: %v", err)
	}
	for _, fn := range hooks {
		fn(connected)
	}

	if connected && m.hasPending(ctx) {
		m.advance()
	}
	return connected
}

func (m *Monitor) hasPending(ctx context.Context) bool {
	if m.cfg.Pending == nil {
		return true
	}
	return m.cfg.Pending(ctx) > 0
}

func (m *Monitor) advance() {
	m.mu.Lock()
	m.trigger++
	value := m.trigger
	subs := append([]chan uint64{}, m.subs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- value:
		default:
			// Drop the stale value so the reader sees the newest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- value:
			default:
			}
		}
	}
}
