package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dragondrop-dev/dragondrop/pkg/dragondrop"
	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

// Message is the JSON frame exchanged with clients.
type Message struct {
	Kind    notify.Kind `json:"kind"`
	ID      string      `json:"id,omitempty"`
	Payload any         `json:"payload,omitempty"`
}

// WireFile describes a dropped file without its contents.
type WireFile struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size"`
}

// WireDrop is the wire form of a dropped notification.
type WireDrop struct {
	Files []WireFile `json:"files"`
	Valid bool       `json:"valid"`
}

// WireResponse is the wire form of an error notification's response.
type WireResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// Observer receives connection lifecycle events. *middleware.Metrics
// implements it.
type Observer interface {
	RecordRelayConnect()
	RecordRelayDisconnect()
	RecordWebSocketError(err error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithObserver sets the connection observer.
func WithObserver(o Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithCheckOrigin sets the origin check for WebSocket upgrades.
// Default: same-origin only (gorilla's default).
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// WithWriteTimeout bounds each frame write. Default: 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server relays bus notifications to WebSocket clients and republishes the
// widget notifications they send, so every client and every server-side
// observer sees the same stream.
type Server struct {
	bus          *notify.Bus
	logger       *slog.Logger
	observer     Observer
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	stop    func()
}

// New creates a relay on bus. It starts forwarding immediately; Close stops
// it.
func New(bus *notify.Bus, opts ...Option) *Server {
	s := &Server{
		bus:     bus,
		logger:  slog.Default(),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "relay")
	s.stop = bus.Tap(s.forward)
	return s
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.RecordRelayConnect()
	}
	s.logger.Debug("client connected", "remote", r.RemoteAddr)

	defer func() {
		s.drop(c)
		if s.observer != nil {
			s.observer.RecordRelayDisconnect()
		}
		s.logger.Debug("client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.observer != nil {
				s.observer.RecordWebSocketError(err)
			}
			return
		}
		s.receive(data)
	}
}

// receive republishes a notification sent by a client. Upload commands
// must carry an object or nothing; busy must carry a bool. Un-namespaced
// and unknown kinds are ignored.
func (s *Server) receive(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("invalid frame", "error", err)
		if s.observer != nil {
			s.observer.RecordWebSocketError(err)
		}
		return
	}
	if !inbound[msg.Kind] || msg.ID == "" {
		s.logger.Debug("ignoring frame", "kind", msg.Kind, "id", msg.ID)
		return
	}

	payload := msg.Payload
	switch msg.Kind {
	case notify.KindUpload:
		switch p := msg.Payload.(type) {
		case nil:
			payload = map[string]any(nil)
		case map[string]any:
			payload = p
		default:
			s.logger.Debug("ignoring upload with non-object payload", "id", msg.ID)
			return
		}
	case notify.KindBusy:
		if _, ok := msg.Payload.(bool); !ok {
			s.logger.Debug("ignoring busy without bool payload", "id", msg.ID)
			return
		}
	}
	s.bus.Publish(notify.Key{Kind: msg.Kind, ID: msg.ID}, payload)
}

// inbound lists the kinds clients may publish.
var inbound = map[notify.Kind]bool{
	notify.KindUpload:  true,
	notify.KindDropped: true,
	notify.KindBusy:    true,
	notify.KindSuccess: true,
	notify.KindError:   true,
	notify.KindManual:  true,
}

// forward pushes one notification to every client.
func (s *Server) forward(ev notify.Event) {
	data, err := Encode(ev)
	if err != nil {
		s.logger.Warn("cannot encode notification", "key", ev.Key.String(), "error", err)
		return
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data, s.writeTimeout); err != nil {
			if s.observer != nil {
				s.observer.RecordWebSocketError(err)
			}
			s.drop(c)
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close stops forwarding and closes all client connections.
func (s *Server) Close() {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
		delete(s.clients, c)
	}
}

// Encode renders a notification as a JSON frame. Drop and Response payloads
// are converted to their wire forms.
func Encode(ev notify.Event) ([]byte, error) {
	msg := Message{Kind: ev.Key.Kind, ID: ev.Key.ID}
	switch p := ev.Payload.(type) {
	case dragondrop.Drop:
		msg.Payload = wireDrop(p)
	case *dragondrop.Drop:
		if p != nil {
			msg.Payload = wireDrop(*p)
		}
	case *dragondrop.Response:
		if p != nil {
			msg.Payload = WireResponse{Status: p.StatusCode, Body: p.Body}
		}
	default:
		msg.Payload = p
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("relay: encode %s: %w", ev.Key, err)
	}
	return data, nil
}

func wireDrop(d dragondrop.Drop) WireDrop {
	files := make([]WireFile, 0, len(d.Files))
	for _, f := range d.Files {
		files = append(files, WireFile{Name: f.Name(), Type: f.Type(), Size: f.Size()})
	}
	return WireDrop{Files: files, Valid: d.Valid}
}
