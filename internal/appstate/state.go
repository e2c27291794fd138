// Package appstate holds the process-wide state observed by the UI: the
// achievement unlock queue and the pending-sync badge.
//
// The unlock queue shows at most one item at a time. Items are shown in the
// order they were enqueued; dismissing the current item advances to the next
// one after a short settle delay.
package appstate

import (
	"sync"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/achievement"
)

// DefaultSettleDelay is the pause between dismissing an item and showing
// the next one.
const DefaultSettleDelay = 400 * time.Millisecond

// EventType identifies a state change.
type EventType string

const (
	EventShown          EventType = "achievement_unlocked"
	EventDismissed      EventType = "achievement_dismissed"
	EventPendingChanged EventType = "pending_count"
)

// Event is delivered to subscribers on every state change.
type Event struct {
	Type    EventType         `json:"type"`
	Item    *achievement.Item `json:"item,omitempty"`
	Queued  int               `json:"queued"`
	Pending int               `json:"pending"`
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Current *achievement.Item  `json:"current,omitempty"`
	Queue   []achievement.Item `json:"queue"`
	Pending int                `json:"pending"`
}

// State owns the unlock queue and the currently shown item.
type State struct {
	settle time.Duration

	mu       sync.Mutex
	queue    []achievement.Item
	current  *achievement.Item
	settling *time.Timer
	pending  int
	closed   bool
	nextSub  int
	subs     map[int]func(Event)

	// outbox holds events in the order the changes happened. Only the
	// goroutine that set delivering drains it.
	outbox     []Event
	delivering bool
}

// New returns an idle state. A non-positive settle uses DefaultSettleDelay.
func New(settle time.Duration) *State {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &State{
		settle: settle,
		subs:   make(map[int]func(Event)),
	}
}

// Enqueue appends item to the queue. When nothing is showing and no advance
// is scheduled, the head is shown immediately.
func (s *State) Enqueue(item achievement.Item) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, item)

	var deliver bool
	if s.current == nil && s.settling == nil {
		deliver = s.queueLocked(s.showNextLocked())
	}
	s.mu.Unlock()

	if deliver {
		s.deliver()
	}
}

// Dismiss clears the shown item and schedules the next one. It returns
// false when nothing was showing.
func (s *State) Dismiss() bool {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return false
	}
	item := *s.current
	s.current = nil
	ev := Event{Type: EventDismissed, Item: &item, Queued: len(s.queue), Pending: s.pending}

	if !s.closed {
		s.settling = time.AfterFunc(s.settle, s.advance)
	}
	deliver := s.queueLocked(ev)
	s.mu.Unlock()

	if deliver {
		s.deliver()
	}
	return true
}

// advance runs when the settle delay after a dismiss expires.
func (s *State) advance() {
	s.mu.Lock()
	s.settling = nil
	if s.closed || s.current != nil || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	deliver := s.queueLocked(s.showNextLocked())
	s.mu.Unlock()

	if deliver {
		s.deliver()
	}
}

func (s *State) showNextLocked() Event {
	item := s.queue[0]
	s.queue = s.queue[1:]
	s.current = &item
	shown := item
	return Event{Type: EventShown, Item: &shown, Queued: len(s.queue), Pending: s.pending}
}

// Current returns the shown item, if any.
func (s *State) Current() (achievement.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return achievement.Item{}, false
	}
	return *s.current, true
}

// IsShowing reports whether an item is shown.
func (s *State) IsShowing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Queued returns the number of items waiting behind the shown one.
func (s *State) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// SetPending updates the pending-sync badge.
func (s *State) SetPending(n int) {
	s.mu.Lock()
	if s.pending == n {
		s.mu.Unlock()
		return
	}
	s.pending = n
	deliver := s.queueLocked(Event{Type: EventPendingChanged, Queued: len(s.queue), Pending: n})
	s.mu.Unlock()

	if deliver {
		s.deliver()
	}
}

// Pending returns the pending-sync badge value.
func (s *State) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Snapshot returns a copy of the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Queue:   append([]achievement.Item{}, s.queue...),
		Pending: s.pending,
	}
	if s.current != nil {
		item := *s.current
		snap.Current = &item
	}
	return snap
}

// Subscribe registers fn for every subsequent event. Events reach every
// subscriber in the order the changes happened, one at a time, outside the
// state lock; a callback may call back into the State. The returned function
// removes the subscription.
func (s *State) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops a scheduled advance. Further enqueues are ignored.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.settling != nil {
		s.settling.Stop()
		s.settling = nil
	}
}

func (s *State) subscribersLocked() []func(Event) {
	out := make([]func(Event), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// queueLocked appends ev to the outbox and reports whether the caller must
// drain it. A change made while another goroutine drains is delivered by
// that goroutine.
func (s *State) queueLocked(ev Event) bool {
	s.outbox = append(s.outbox, ev)
	if s.delivering {
		return false
	}
	s.delivering = true
	return true
}

// deliver drains the outbox until it stays empty.
func (s *State) deliver() {
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.delivering = false
			s.mu.Unlock()
			return
		}
		batch := s.outbox
		s.outbox = nil
		subs := s.subscribersLocked()
		s.mu.Unlock()

		for _, ev := range batch {
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
}
