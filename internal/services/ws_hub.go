package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"pairspace-backend/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 32
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

// WSMessage represents a message sent to a WebSocket client
type WSMessage struct {
	Type     string `json:"type"`
	CoupleID string `json:"coupleId,omitempty"`
	Online   int    `json:"online,omitempty"`
	Message  string `json:"message,omitempty"`
	Event    *Event `json:"event,omitempty"`
}

// WSClient is one registered connection. Messages are queued on send and
// written by a single writer goroutine.
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a JSON message for the client. It never blocks: a client whose
// queue is full gets errSlowClient.
func (c *WSClient) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSlowClient
	}
}

// writePump writes queued messages until the client is closed. onError runs
// when a write fails.
func (c *WSClient) writePump(onError func()) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				onError()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WSHub manages WebSocket connections grouped by couple
type WSHub struct {
	mu      sync.RWMutex
	couples map[string]map[*WSClient]struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		couples: make(map[string]map[*WSClient]struct{}),
	}
}

// Register adds a connection for a couple and starts its writer. Both
// partners may be connected at the same time, from any number of devices.
func (h *WSHub) Register(coupleID string, conn *websocket.Conn) *WSClient {
	client := newWSClient(conn)
	h.add(coupleID, client)
	go client.writePump(func() { h.Unregister(coupleID, client) })

	metrics.WebSocketConnections.Inc()
	log.Info().Str("couple_id", coupleID).Msg("WebSocket connection registered")
	return client
}

func (h *WSHub) add(coupleID string, client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.couples[coupleID]
	if !ok {
		clients = make(map[*WSClient]struct{})
		h.couples[coupleID] = clients
	}
	clients[client] = struct{}{}
}

// Unregister removes and closes a connection
func (h *WSHub) Unregister(coupleID string, client *WSClient) {
	h.mu.Lock()
	clients, ok := h.couples[coupleID]
	if ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.couples, coupleID)
			}
		} else {
			ok = false
		}
	}
	h.mu.Unlock()

	if ok {
		client.close()
		metrics.WebSocketConnections.Dec()
		log.Info().Str("couple_id", coupleID).Msg("WebSocket connection unregistered")
	}
}

// Online returns the number of open connections of a couple
func (h *WSHub) Online(coupleID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.couples[coupleID])
}

// Publish implements Publisher by queueing the event on every connection of
// the event's couple. A connection that cannot keep up is dropped.
func (h *WSHub) Publish(_ context.Context, e Event) {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.couples[e.CoupleID]))
	for c := range h.couples[e.CoupleID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	msg := WSMessage{Type: "event", CoupleID: e.CoupleID, Event: &e}
	for _, c := range clients {
		if err := c.Send(msg); err != nil {
			metrics.EventsDelivered.WithLabelValues("websocket", "error").Inc()
			log.Error().Err(err).Str("couple_id", e.CoupleID).Msg("Failed to deliver event")
			h.Unregister(e.CoupleID, c)
			continue
		}
		metrics.EventsDelivered.WithLabelValues("websocket", "ok").Inc()
	}
}
