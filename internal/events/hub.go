package events

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// DefaultClientBuffer is how many events a slow dashboard may fall behind
// before it is disconnected.
const DefaultClientBuffer = 16

const writeTimeout = 5 * time.Second

type client struct {
	conn *websocket.Conn
	send chan Event
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub is a websocket broadcaster for the live appointment feed.
type Hub struct {
	logger         *logging.Logger
	buffer         int
	allowedOrigins []string

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub. allowedOrigins restricts the browser origins that may
// subscribe; empty or "*" allows any.
func NewHub(buffer int, allowedOrigins []string, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Hub{
		logger:         logger,
		buffer:         buffer,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*client]struct{}),
	}
}

// Publish queues ev for every subscriber. A subscriber whose queue is full is
// dropped rather than stalling the caller.
func (h *Hub) Publish(_ context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("live feed: dropping slow subscriber", "event", ev.Type)
			c.close()
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Server{
		Handler:   h.serve,
		Handshake: h.checkOrigin,
	}.ServeHTTP(w, r)
}

func (h *Hub) checkOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	cfg.Origin = origin
	if len(h.allowedOrigins) == 0 {
		return nil
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || (origin != nil && strings.EqualFold(allowed, origin.Scheme+"://"+origin.Host)) {
			return nil
		}
	}
	return fmt.Errorf("events: origin %v not allowed", origin)
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan Event, h.buffer), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("live feed: subscriber connected", "remote", conn.Request().RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.close()
		_ = conn.Close()
		h.logger.Info("live feed: subscriber disconnected", "remote", conn.Request().RemoteAddr)
	}()

	// The feed is one-way; reading only detects the peer going away and
	// answers pings.
	go func() {
		defer c.close()
		for {
			var msg struct {
				Type string `json:"type"`
			}
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				select {
				case c.send <- Event{Type: "pong", At: time.Now().UTC()}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.JSON.Send(conn, ev); err != nil {
				h.logger.Debug("live feed: write failed", "error", err)
				return
			}
		}
	}
}
