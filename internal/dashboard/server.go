// Package dashboard provides a real-time WebSocket feed of the tracker state.
//
// The dashboard broadcasts achievement unlocks, dismissals, pending-sync
// counts and sync results to connected clients, and accepts a small set of
// commands back (dismiss the shown achievement, run a sync pass).
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names a server-to-client message.
type MessageType string

const (
	MessageTypeAchievementUnlocked  MessageType = "achievement_unlocked"
	MessageTypeAchievementDismissed MessageType = "achievement_dismissed"
	MessageTypePendingCount         MessageType = "pending_count"
	MessageTypeSyncComplete         MessageType = "sync_complete"

	// MessageTypeState is the snapshot a client receives first after connecting.
	MessageTypeState MessageType = "state"
)

// Message is the envelope of every server-to-client message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Command is a message sent by a client.
type Command struct {
	Type string `json:"type"`
}

// Commands understood by the server.
const (
	CommandDismiss = "dismiss"
	CommandSync    = "sync"
)

const (
	clientQueueSize = 32
	writeTimeout    = 5 * time.Second
)

// client is one connected WebSocket peer. Frames are written only by its
// writer goroutine, in the order they were queued.
type client struct {
	conn  *websocket.Conn
	queue chan []byte
	gone  chan struct{}
	once  sync.Once
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.gone)
		_ = c.conn.Close(code, reason)
	})
}

// Server accepts dashboard clients and fans messages out to them.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server

	mu      sync.RWMutex
	clients map[*client]struct{}

	hooksMu   sync.RWMutex
	welcome   func() Message
	onCommand func(Command)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Host to bind (default: 127.0.0.1)
	Host string

	// Port to listen on; 0 picks a free port
	Port int

	Logger *log.Logger
}

// DefaultConfig returns the loopback address on the default dashboard port.
func DefaultConfig() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 7420,
	}
}

// NewServer creates a dashboard server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	host := config.Host
	if host == "" {
		host = "127.0.0.1"
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(host, strconv.Itoa(config.Port)),
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start listens and serves /ws and /health in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveClient)
	mux.HandleFunc("/health", s.serveHealth)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("WARNING: serve failed: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the listener down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for c := range s.clients {
		c.close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, c)
	}
	s.mu.Unlock()

	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down dashboard: %w", err)
	}
	s.wg.Wait()

	s.logger.Println("Stopped")
	return nil
}

// Broadcast queues msg for every connected client. A client whose queue is
// full is disconnected rather than allowed to stall the others.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	frame, err := encode(msg)
	if err != nil {
		s.logger.Printf("WARNING: failed to encode %s message: %v", msg.Type, err)
		return
	}

	var slow []*client
	s.mu.RLock()
	for c := range s.clients {
		select {
		case c.queue <- frame:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.logger.Println("WARNING: client queue full, disconnecting")
		s.drop(c, websocket.StatusPolicyViolation, "too slow")
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

func (s *Server) setHooks(welcome func() Message, onCommand func(Command)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.welcome = welcome
	s.onCommand = onCommand
}

func (s *Server) hooks() (func() Message, func(Command)) {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return s.welcome, s.onCommand
}

// serveClient upgrades the request and reads commands until the peer leaves.
func (s *Server) serveClient(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WARNING: upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:  conn,
		queue: make(chan []byte, clientQueueSize),
		gone:  make(chan struct{}),
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		c.close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	// The snapshot is taken while Broadcast is held off, so it is the first
	// frame and every later change reaches the client after it.
	if welcome, _ := s.hooks(); welcome != nil {
		if frame, err := encode(welcome()); err == nil {
			c.queue <- frame
		}
	}
	s.clients[c] = struct{}{}
	total := len(s.clients)
	s.wg.Add(1)
	s.mu.Unlock()
	s.logger.Printf("Client connected (total: %d)", total)

	go s.writeLoop(c)
	s.readLoop(c)
	s.drop(c, websocket.StatusNormalClosure, "")
}

func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	for {
		select {
		case <-c.gone:
			return
		case <-s.ctx.Done():
			return
		case frame := <-c.queue:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.logger.Printf("WARNING: write failed: %v", err)
				s.drop(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (s *Server) readLoop(c *client) {
	for {
		_, data, err := c.conn.Read(s.ctx)
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.logger.Printf("Ignoring malformed client message: %v", err)
			continue
		}
		if _, onCommand := s.hooks(); onCommand != nil {
			onCommand(cmd)
		}
	}
}

func (s *Server) drop(c *client, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()

	c.close(code, reason)
	if present {
		s.logger.Printf("Client disconnected (total: %d)", total)
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
