// Package registry implements RoomRegistry (spec.md §4.4): an in-memory
// map from room name to its live participant set and connection handles.
// It generalizes the teacher's RoomService.activeRooms +
// domain.Room.Peers-with-mutex pattern into its own component, per
// spec.md §4.4's requirement that the registry be independent of the
// Store.
package registry

import (
	"sync"

	"github.com/relaymesh/signalhub/internal/domain"
)

// Conn is the minimal connection handle the registry stores per
// participant; concrete transports (internal/hub) satisfy this with their
// *websocket.Conn wrapper.
type Conn interface {
	Send(v any) error
	Close() error
}

// Room is a single room's live membership, guarded by its own lock so
// mutations to different rooms never contend (spec.md §4.4, §5).
type Room struct {
	mu           sync.RWMutex
	participants map[string]*domain.Participant // publicKey -> participant
	conns        map[string]Conn                // publicKey -> connection handle
}

func newRoom() *Room {
	return &Room{
		participants: make(map[string]*domain.Participant),
		conns:        make(map[string]Conn),
	}
}

// Snapshot returns a defensive copy of the room's participants, suitable
// for inclusion in a room-info frame (spec.md §4.4, §5).
func (r *Room) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	return out
}

// ConnFor returns the connection handle registered for publicKey, if any.
func (r *Room) ConnFor(publicKey string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[publicKey]
	return c, ok
}

// Conns returns a defensive copy of all live connections in the room,
// paired with the public key they're registered under.
func (r *Room) Conns() map[string]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Conn, len(r.conns))
	for k, v := range r.conns {
		out[k] = v
	}
	return out
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Registry is the process-wide, explicitly constructed component spec.md
// §9's "global singleton registries become process-wide components" note
// calls for: one owner per process, fresh instances in tests.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Join registers participant under conn in room, creating the room entry
// if this is its first participant. If a second connection joins under the
// same public key, the later one supersedes the earlier for routing
// purposes; the earlier connection is left open until its own client
// closes it (spec.md §3, §9(b) — a deliberate policy choice, not a bug:
// the spec makes last-writer-wins explicit but leaves force-closing the
// stale connection to the implementer, and this implementation does not
// force-close it).
func (reg *Registry) Join(roomName string, participant domain.Participant, conn Conn) {
	room := reg.getOrCreateRoom(roomName)
	room.mu.Lock()
	room.participants[participant.PublicKey] = &participant
	room.conns[participant.PublicKey] = conn
	room.mu.Unlock()
}

// Leave removes publicKey's participant slot from room, but only if conn is
// still the connection currently registered under that key. A public key
// superseded by a later Join (spec.md §3, §9(b)) leaves its old connection
// open until that connection's own client closes it; when that stale
// connection eventually calls Leave, the room's current entry belongs to
// the connection that superseded it, and removing it here would silently
// unroute a still-connected participant. Leave no-ops in that case. If the
// room becomes empty, its registry entry is reclaimed (spec.md §3, §4.4) —
// this is independent of the room's persisted existence in the Store.
// Leave reports whether it actually removed an entry; callers use this to
// decide whether a user-left notification is warranted.
func (reg *Registry) Leave(roomName, publicKey string, conn Conn) bool {
	reg.mu.RLock()
	room, ok := reg.rooms[roomName]
	reg.mu.RUnlock()
	if !ok {
		return false
	}

	room.mu.Lock()
	if room.conns[publicKey] != conn {
		room.mu.Unlock()
		return false
	}
	delete(room.participants, publicKey)
	delete(room.conns, publicKey)
	empty := len(room.participants) == 0
	room.mu.Unlock()

	if empty {
		reg.mu.Lock()
		if reg.rooms[roomName] == room && room.size() == 0 {
			delete(reg.rooms, roomName)
		}
		reg.mu.Unlock()
	}
	return true
}

// Room returns roomName's live room entry, or nil if it has no live
// participants.
func (reg *Registry) Room(roomName string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[roomName]
}

func (reg *Registry) getOrCreateRoom(roomName string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[roomName]
	if !ok {
		room = newRoom()
		reg.rooms[roomName] = room
	}
	return room
}
