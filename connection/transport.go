package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	log "github.com/sirupsen/logrus"
)

const (
	// EventConnect fires once the server acknowledges the session
	EventConnect = "connect"
	// EventConnectError fires when the session cannot be established
	EventConnectError = "connect_error"
	// EventDisconnect fires when the transport drops, with the close reason
	EventDisconnect = "disconnect"
)

// Transport is a bidirectional event socket. One Transport owns exactly one
// physical connection; reconnecting means discarding it and dialing a new one.
type Transport interface {
	// Dial opens the physical connection
	Dial(ctx context.Context, rawURL string) error

	// Emit sends an event frame to the server
	Emit(event string, data any) error

	// On registers a handler for a named server event and returns a
	// function that removes it
	On(event string, fn Handler) func()

	// RemoveAllListeners drops every registered handler
	RemoveAllListeners()

	// Close tears down the physical connection
	Close() error
}

// frame is the wire format: one JSON object per websocket message
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsTransport implements Transport over a gorilla websocket
type wsTransport struct {
	emitter *Emitter

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWebsocketTransport creates a websocket-backed Transport
func NewWebsocketTransport() Transport {
	return &wsTransport{
		emitter: NewEmitter(),
	}
}

func (t *wsTransport) Dial(ctx context.Context, rawURL string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial %s (status %d): %w", rawURL, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readPump()
	go t.writePump()

	return nil
}

func (t *wsTransport) Emit(event string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return fmt.Errorf("transport is not connected")
	}

	f := frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		f.Data = raw
	}

	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := t.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", event, err)
	}
	return nil
}

func (t *wsTransport) On(event string, fn Handler) func() {
	return t.emitter.On(event, fn)
}

func (t *wsTransport) RemoveAllListeners() {
	t.emitter.RemoveAllListeners()
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.conn != nil {
		t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return t.conn.Close()
	}
	return nil
}

// readPump decodes incoming frames and dispatches them to listeners. Exits
// emit a disconnect event with the read error as the reason, unless the
// transport was closed locally.
func (t *wsTransport) readPump() {
	conn := t.conn

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()

			if !closed {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Warn("Socket read failed")
				}
				reason, _ := json.Marshal(err.Error())
				t.emitter.Emit(EventDisconnect, json.RawMessage(reason))
			}
			return
		}

		t.emitter.Emit(f.Event, f.Data)
	}
}

// writePump keeps the connection alive with periodic pings
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		if t.closed || t.conn == nil {
			t.mu.Unlock()
			return
		}
		t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := t.conn.WriteMessage(websocket.PingMessage, nil)
		t.mu.Unlock()

		if err != nil {
			return
		}
	}
}
