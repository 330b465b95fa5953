// Package server implements the connection, room, and matchmaking core of
// the Hideout anonymous chat service.
//
// The implementation is organized into specialized files for configuration,
// the hub (event dispatching and all mutable state), clients, rooms, the
// 1v1 matchmaking queue, typing presence, rate limiting, and the HTTP
// surface, to keep the codebase maintainable and testable as the project
// grows.
package server
