// Package server exposes HTTP handlers: the WebSocket upgrade with
// admission control, a health check, and the read-only stats endpoint.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// ServeWS handles WebSocket upgrade requests. The admission gate runs
// before the upgrade, so a connection over the per-address or server-wide
// cap is refused with 503 and never receives an identity.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !h.AdmitConnection(r.RemoteAddr) {
		log.Printf("Connection from %s refused: admission cap reached", r.RemoteAddr)
		http.Error(w, "Server is at capacity. Try again later.", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		h.gate.release(hostOnly(r.RemoteAddr))
		return
	}

	h.Register(conn, r.RemoteAddr)
}

// ServeStats reports aggregate room/user/queue state as JSON without
// mutating anything.
func (h *Hub) ServeStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Stats()); err != nil {
		log.Printf("Error writing stats response: %v", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Hideout chat server is running!")
}
