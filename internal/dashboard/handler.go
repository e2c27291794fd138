package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/appstate"
	"github.com/ZhaoChaoqun/foodmoment/internal/sync"
)

// StateData is the payload of a state snapshot
type StateData struct {
	Current interface{} `json:"current,omitempty"`
	Queued  int         `json:"queued"`
	Pending int         `json:"pending"`
}

// PendingData is the payload of a pending_count message
type PendingData struct {
	Pending int `json:"pending"`
}

// Handler bridges app state events and sync results to the WebSocket server,
// and routes client commands back to the app state.
type Handler struct {
	server *Server
	state  *appstate.State
	onSync func()
	logger *log.Logger

	unsubscribe func()
}

// NewHandler connects state to server. onSync runs when a client asks for a
// sync pass; it may be nil.
func NewHandler(server *Server, state *appstate.State, onSync func(), logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		state:  state,
		onSync: onSync,
		logger: logger,
	}
	server.setHooks(h.snapshot, h.handleCommand)
	h.unsubscribe = state.Subscribe(h.OnStateEvent)
	return h
}

// Close stops forwarding state events.
func (h *Handler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
}

// OnStateEvent formats an app state event as a dashboard message
func (h *Handler) OnStateEvent(ev appstate.Event) {
	var (
		typ     MessageType
		payload interface{}
	)
	switch ev.Type {
	case appstate.EventShown:
		typ, payload = MessageTypeAchievementUnlocked, ev.Item
	case appstate.EventDismissed:
		typ, payload = MessageTypeAchievementDismissed, ev.Item
	case appstate.EventPendingChanged:
		typ, payload = MessageTypePendingCount, PendingData{Pending: ev.Pending}
	default:
		return
	}
	h.send(typ, payload)
}

// OnSyncComplete broadcasts the result of a sync pass
func (h *Handler) OnSyncComplete(result *sync.Result) {
	if result == nil {
		return
	}
	h.send(MessageTypeSyncComplete, result)
}

func (h *Handler) send(typ MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (h *Handler) snapshot() Message {
	snap := h.state.Snapshot()
	state := StateData{Queued: len(snap.Queue), Pending: snap.Pending}
	if snap.Current != nil {
		state.Current = snap.Current
	}

	data, err := json.Marshal(state)
	if err != nil {
		h.logger.Printf("Failed to marshal state snapshot: %v", err)
	}
	return Message{Type: MessageTypeState, Timestamp: time.Now(), Data: data}
}

func (h *Handler) handleCommand(cmd Command) {
	switch cmd.Type {
	case CommandDismiss:
		h.state.Dismiss()
	case CommandSync:
		if h.onSync != nil {
			h.onSync()
		}
	default:
		h.logger.Printf("Ignoring unknown command %q", cmd.Type)
	}
}
