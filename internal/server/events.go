// Package server defines the JSON event protocol exchanged with browser
// clients: a small envelope carrying a named event plus its payload.
package server

import (
	"encoding/json"
	"log"
)

// Inbound event names.
const (
	EventJoinMode    = "joinMode"
	EventChatMessage = "chat message"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
	EventJoin1v1     = "join1v1"
	EventSkip1v1     = "skip1v1"
	EventLeave1v1    = "leave1v1"
	EventPing        = "ping"
)

// Outbound event names.
const (
	EventWelcome             = "welcome"
	EventRoomUpdate          = "roomUpdate"
	EventQueueStatus         = "queueStatus"
	EventMatched             = "matched"
	EventPartnerSkipped      = "partnerSkipped"
	EventPartnerDisconnected = "partnerDisconnected"
	EventRateLimited         = "rateLimited"
	EventRejected            = "rejected"
	EventPong                = "pong"
)

// Chat message types.
const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

// Envelope is the wire format for every WebSocket text frame: an event name
// plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an Envelope with the payload marshaled in place.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// WelcomePayload is sent once per connection with the assigned identity.
type WelcomePayload struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// JoinRequest is the payload of a joinMode event. Room carries the room code
// or interest tag for the modes that need one.
type JoinRequest struct {
	Mode string `json:"mode"`
	Room string `json:"room,omitempty"`
}

// RoomUpdatePayload announces the authoritative member count after every
// membership change.
type RoomUpdatePayload struct {
	UserCount int    `json:"userCount"`
	RoomName  string `json:"roomName"`
}

// ChatPayload carries a user or system chat message. Timestamp is
// server-assigned, milliseconds since the Unix epoch.
type ChatPayload struct {
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
	Msg       string `json:"msg"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// QueueStatusPayload is pushed to every waiting client after each queue
// mutation. Position is 1-based; it is zero for a freshly matched client.
type QueueStatusPayload struct {
	Position int    `json:"position"`
	Message  string `json:"message"`
	CanSkip  bool   `json:"canSkip"`
}

// MatchedPayload is delivered to both parties when a pair forms.
type MatchedPayload struct {
	PartnerID     string `json:"partnerId"`
	PartnerName   string `json:"partnerName"`
	PartnerAvatar string `json:"partnerAvatar"`
	RoomID        string `json:"roomId"`
}

// PartnerSkippedPayload is sent to the surviving party after a skip.
type PartnerSkippedPayload struct {
	Message string `json:"message"`
}

// PartnerDisconnectedPayload is sent to the surviving party when the partner
// drops.
type PartnerDisconnectedPayload struct {
	PartnerName string `json:"partnerName"`
}

// NoticePayload carries sender-only rejection notices (rateLimited, rejected).
type NoticePayload struct {
	Message string `json:"message"`
}

// encodeEvent marshals an event into a wire frame. Payload types here are
// all marshal-safe, so an error means a programming bug; it is logged and
// the frame dropped rather than killing the connection.
func encodeEvent(event string, data any) []byte {
	env, err := NewEnvelope(event, data)
	if err != nil {
		log.Printf("Error encoding %q event: %v", event, err)
		return nil
	}
	frame, err := json.Marshal(env)
	if err != nil {
		log.Printf("Error encoding %q envelope: %v", event, err)
		return nil
	}
	return frame
}
