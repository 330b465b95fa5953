// Package server manages individual WebSocket clients, handling read/write
// pumps, identity, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
	sendBuffer    = 256
)

// Client represents one WebSocket connection in the chat system. Identity
// (id, nickname, avatar) is assigned at construction and immutable for the
// connection lifetime.
type Client struct {
	id       string
	nickname string
	avatar   string

	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string
	ip   string

	// closed and lastSeen are guarded by the hub mutex.
	closed   bool
	lastSeen time.Time

	releaseOnce sync.Once
}

// NewClient creates a Client with a fresh identity. conn may be nil in
// tests; pumps are only started for real connections.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		// Frames carry a JSON envelope around the chat text, so allow
		// headroom beyond the rune cap.
		conn.SetReadLimit(int64(cfg.MaxMessageLen)*4 + 1024)
	}

	id, nickname, avatar := newIdentity()
	return &Client{
		id:       id,
		nickname: nickname,
		avatar:   avatar,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		hub:      hub,
		addr:     addr,
		ip:       hostOnly(addr),
		lastSeen: time.Now(),
	}
}

// ID returns the opaque connection handle.
func (c *Client) ID() string { return c.id }

// Nickname returns the display name assigned at connect time.
func (c *Client) Nickname() string { return c.nickname }

// Avatar returns the avatar URI assigned at connect time.
func (c *Client) Avatar() string { return c.avatar }

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte { return c.send }

// trySend queues a frame without blocking. Callers hold the hub mutex, so
// the closed check cannot race the channel close in teardown.
func (c *Client) trySend(payload []byte) bool {
	if payload == nil || c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// releaseSlot frees the admission slot exactly once, however many teardown
// paths run.
func (c *Client) releaseSlot(gate *admissionGate) {
	c.releaseOnce.Do(func() { gate.release(c.ip) })
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// logReadError logs read-loop termination with context appropriate to the
// error type.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from %s exceeded the read limit", c.addr)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("Invalid frame from %s: %v", c.addr, err)
			continue
		}
		c.hub.Dispatch(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Printf("Error setting write deadline for %s: %v", c.addr, err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					log.Printf("Error writing close message to %s: %v", c.addr, err)
				}
				return
			}
			if !c.writeFrames(frame) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing ping message to %s: %v", c.addr, err)
				}
				return
			}
		}
	}
}

// writeFrames writes the frame plus any frames already queued behind it,
// one WebSocket message each so the client-side JSON parser sees whole
// envelopes.
func (c *Client) writeFrames(frame []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error writing queued message to %s: %v", c.addr, err)
			}
			return false
		}
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
