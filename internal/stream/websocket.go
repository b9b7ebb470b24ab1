package stream

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/timeutil"
)

const (
	wsClientBuffer = 256
	wsWriteWait    = 10 * time.Second
)

// WebSocketHub serves every stream declared through one of its sinks at
// /streams/{name}. A subscriber first receives the declaration, then every
// row published after it joined. Subscribers that fall behind miss rows.
type WebSocketHub struct {
	codec    Codec
	clock    timeutil.Clock
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	streams map[string]*hubStream
	sinks   []*hubStream

	readers sync.WaitGroup // one per connected subscriber
}

// NewWebSocketHub returns an empty hub. Streams are open to any origin.
func NewWebSocketHub(codec Codec, clock timeutil.Clock) *WebSocketHub {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &WebSocketHub{
		codec: codec,
		clock: clock,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		streams: make(map[string]*hubStream),
	}
}

// Sink returns a new stream sink served by the hub once declared.
func (h *WebSocketHub) Sink() Sink {
	st := &hubStream{hub: h, clients: make(map[*wsClient]struct{})}
	h.mu.Lock()
	h.sinks = append(h.sinks, st)
	h.mu.Unlock()
	return st
}

// Register mounts the hub on mux.
func (h *WebSocketHub) Register(mux *http.ServeMux) {
	mux.Handle("GET /streams/{name}", h)
}

// Subscribers reports the connected clients of stream name.
func (h *WebSocketHub) Subscribers(name string) int {
	h.mu.RLock()
	st := h.streams[name]
	h.mu.RUnlock()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.clients)
}

// Shutdown closes every sink of the hub, disconnecting its subscribers, and
// waits for their connections to wind down.
func (h *WebSocketHub) Shutdown() {
	h.mu.RLock()
	sinks := append([]*hubStream(nil), h.sinks...)
	h.mu.RUnlock()
	for _, st := range sinks {
		_ = st.Close()
	}
	h.readers.Wait()
}

func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h.mu.RLock()
	st := h.streams[name]
	h.mu.RUnlock()
	if st == nil {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("ws upgrade error: %v", err)
		return
	}
	c, ok := st.add(conn)
	if !ok {
		conn.Close()
		return
	}
	monitoring.Logf("WebSocket subscriber %s joined %s", r.RemoteAddr, name)

	go func() {
		defer h.readers.Done()
		defer func() {
			st.remove(c)
			monitoring.Logf("WebSocket subscriber %s left %s", r.RemoteAddr, name)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type wsClient struct {
	conn        *websocket.Conn
	send        chan []byte
	messageType int
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(c.messageType, msg); err != nil {
			return
		}
	}
}

// hubStream is one stream's subscriber set.
type hubStream struct {
	hub *WebSocketHub

	mu       sync.Mutex
	info     Info
	declared []byte
	clients  map[*wsClient]struct{}
	closed   bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (s *hubStream) Declare(info Info) error {
	data, err := s.hub.codec.EncodeInfo(info)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.info = info
	s.declared = data
	s.mu.Unlock()

	s.hub.mu.Lock()
	s.hub.streams[info.Name] = s
	s.hub.mu.Unlock()
	return nil
}

// PublishRow never blocks: a subscriber whose buffer is full misses the row.
func (s *hubStream) PublishRow(values []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	seq := s.seq.Add(1) - 1
	if len(s.clients) == 0 {
		return nil
	}
	data, err := s.hub.codec.EncodeRow(s.info.Name, seq, s.hub.clock.Now(), values)
	if err != nil {
		return err
	}
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

func (s *hubStream) add(conn *websocket.Conn) (*wsClient, bool) {
	mt := websocket.TextMessage
	if s.hub.codec.Binary() {
		mt = websocket.BinaryMessage
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsClientBuffer), messageType: mt}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	c.send <- s.declared
	s.clients[c] = struct{}{}
	s.hub.readers.Add(1)
	go c.writePump()
	return c, true
}

func (s *hubStream) remove(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *hubStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	name := s.info.Name
	s.mu.Unlock()

	s.hub.mu.Lock()
	if s.hub.streams[name] == s {
		delete(s.hub.streams, name)
	}
	s.hub.mu.Unlock()
	return nil
}
