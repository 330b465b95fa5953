// Package server assigns ephemeral identities to connections and tracks the
// set of live clients.
package server

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

var nicknameAdjectives = []string{
	"Silent", "Misty", "Crimson", "Golden", "Hidden", "Wandering",
	"Electric", "Frozen", "Lunar", "Shadow", "Swift", "Velvet",
	"Cosmic", "Neon", "Quiet", "Wild",
}

var nicknameAnimals = []string{
	"Fox", "Owl", "Wolf", "Raven", "Otter", "Lynx",
	"Falcon", "Panda", "Tiger", "Heron", "Badger", "Moth",
	"Viper", "Stag", "Crane", "Hare",
}

const avatarCount = 8

// newIdentity generates the identity for a fresh connection: an opaque id,
// a display nickname, and an avatar URI. Nicknames are not unique; the pool
// is large enough that collisions inside one room are rare.
func newIdentity() (id, nickname, avatar string) {
	id = uuid.NewString()
	nickname = fmt.Sprintf("%s%s%d",
		nicknameAdjectives[rand.Intn(len(nicknameAdjectives))],
		nicknameAnimals[rand.Intn(len(nicknameAnimals))],
		rand.Intn(99)+1)
	avatar = fmt.Sprintf("/avatars/avatar%d.png", rand.Intn(avatarCount)+1)
	return id, nickname, avatar
}

// registry is the set of live connections. All access is serialized by the
// hub mutex.
type registry struct {
	clients map[*Client]struct{}
}

func newRegistry() *registry {
	return &registry{clients: make(map[*Client]struct{})}
}

func (r *registry) add(c *Client) {
	r.clients[c] = struct{}{}
}

// remove reports whether the client was still registered, which makes the
// disconnect path idempotent.
func (r *registry) remove(c *Client) bool {
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	return true
}

func (r *registry) contains(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

func (r *registry) count() int {
	return len(r.clients)
}

func (r *registry) snapshot() []*Client {
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}
