// Package broadcast fans orchestration events out to websocket clients.
//
// Every client connected to the hub receives each event as a JSON
// [event.Envelope] text message. Clients that fall behind are disconnected
// rather than allowed to stall the publisher.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/logging"
)

// DefaultClientBuffer is the number of messages queued per client before it
// is dropped.
const DefaultClientBuffer = 256

const writeTimeout = 15 * time.Second

type client struct {
	send chan []byte
}

// Hub is an http.Handler that upgrades requests to websockets and relays
// broadcast messages to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	buffer  int
	logger  *logging.Logger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		buffer:  DefaultClientBuffer,
		logger:  logging.NopLogger(),
	}
}

// SetLogger sets the hub's logger.
func (h *Hub) SetLogger(logger *logging.Logger) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	h.logger = logger
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Attach forwards every event on bus except raw worker output, which
// reaches clients as chat.line events instead. The returned func removes
// the subscription.
func (h *Hub) Attach(bus *event.Bus) func() {
	id := bus.SubscribeAll(func(e event.Event) {
		if e.EventType() == event.TypeWorkerOutput {
			return
		}
		env, err := event.Encode(e)
		if err != nil {
			h.logger.Warn("failed to encode event", "type", e.EventType(), "error", err)
			return
		}
		h.Broadcast(env)
	})
	return func() { bus.Unsubscribe(id) }
}

// Broadcast queues env for every connected client without blocking.
func (h *Hub) Broadcast(env event.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("failed to marshal envelope", "type", env.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropped slow websocket client")
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP accepts a websocket connection and streams messages to it until
// the client goes away or is dropped.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer disconnects.
	ctx := ws.CloseRead(r.Context())

	c := &client{send: make(chan []byte, h.buffer)}
	h.add(c)
	defer h.remove(c)
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				ws.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			}
			if err := write(ctx, ws, data); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
