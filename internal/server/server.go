// Package server implements the HTTP server functionality for the chat
// service.
package server

import (
	"errors"
	"log"
	"net/http"
	"time"
)

// CreateServer creates and configures the HTTP server with security settings.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it exits. A graceful
// shutdown is not an error.
func StartServer(server *http.Server) error {
	log.Printf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
