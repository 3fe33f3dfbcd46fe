package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

// Envelope is the frame pushed to dashboard clients.
type Envelope struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`
	Data any       `json:"data"`
}

// request is a frame sent by a dashboard client.
type request struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// hub fans frames out to connected clients. A client whose buffer is full
// misses the frame; a client that fails a write is dropped.
type hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	dropped atomic.Uint64
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

func encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// broadcast never blocks the caller.
func (h *hub) broadcast(env Envelope) {
	data, err := encode(env)
	if err != nil {
		h.log.Error("websocket encode failed", "type", env.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueue(c, data)
	}
}

func (h *hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.dropped.Add(1)
	}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAll disconnects every client.
func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// serve upgrades the request, queues the greeting frames and runs the
// client's read and write loops. onRequest answers client frames.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, greeting []Envelope, onRequest func(request) (Envelope, bool)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	for _, env := range greeting {
		if data, err := encode(env); err == nil {
			h.enqueue(c, data)
		}
	}
	h.register(c)

	go h.writeLoop(c)
	go h.readLoop(c, onRequest)
}

func (h *hub) writeLoop(c *client) {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warn("websocket write failed", "remote", c.conn.RemoteAddr().String(), "err", err)
			h.remove(c)
			return
		}
	}
}

func (h *hub) readLoop(c *client, onRequest func(request) (Envelope, bool)) {
	defer h.remove(c)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read failed", "err", err)
			}
			return
		}
		var req request
		if err := json.Unmarshal(msg, &req); err != nil {
			h.log.Debug("ignoring malformed websocket frame", "err", err)
			continue
		}
		reply, ok := onRequest(req)
		if !ok {
			continue
		}
		data, err := encode(reply)
		if err != nil {
			continue
		}
		h.mu.Lock()
		if _, live := h.clients[c]; live {
			h.enqueue(c, data)
		}
		h.mu.Unlock()
	}
}
