package hub

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/relaymesh/signalhub/internal/canon"
	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/registry"
	"github.com/relaymesh/signalhub/internal/signing"
	"github.com/relaymesh/signalhub/internal/store"
)

// connState is the per-connection lifecycle spec.md §4.5 names: a socket is
// OPENING until its first valid join frame, JOINED while routable, and
// CLOSING/CLOSED once teardown has started so a racing frame from the read
// loop can't re-enter dispatch after cleanup.
type connState int

const (
	stateOpening connState = iota
	stateJoined
	stateClosing
	stateClosed
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub is the SignalingHub (C5): it starts no goroutines of its own — each
// accepted socket's dispatch loop runs on the HTTP request goroutine that
// called ServeWS — and defers all
// shared membership state to Registry (C4) and all persistence to Store
// (C3), the same separation the teacher's RoomService kept from its
// repository.
type Hub struct {
	registry *registry.Registry
	store    *store.Store
	log      *slog.Logger
}

func New(reg *registry.Registry, st *store.Store, log *slog.Logger) *Hub {
	return &Hub{registry: reg, store: st, log: log}
}

// ServeWS upgrades r into a websocket connection and runs its dispatch loop
// to completion. It returns once the connection is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &connection{
		hub:   h,
		ws:    newWSConn(raw),
		raw:   raw,
		state: stateOpening,
	}
	c.run()
}

// connection is one accepted socket's dispatch state: its own room/identity
// once joined, and the state machine guarding cleanup-once semantics. ws is
// held as the registry.Conn interface rather than the concrete websocket
// wrapper so dispatch/broadcast logic is exercisable against a fake
// connection in tests, the same way registry_test.go stubs Conn.
type connection struct {
	hub   *Hub
	ws    registry.Conn
	raw   *websocket.Conn
	state connState

	room      string
	publicKey string
	name      string
}

func (c *connection) run() {
	defer c.cleanup()
	for {
		if c.state == stateClosing || c.state == stateClosed {
			return
		}
		_, raw, err := c.raw.ReadMessage()
		if err != nil {
			return
		}
		frame, err := Decode(raw)
		if err != nil {
			c.hub.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *connection) dispatch(f *Frame) {
	switch f.Type {
	case FrameJoin:
		c.handleJoin(f)
	case FrameOffer, FrameAnswer, FrameICECandidate:
		c.relayToTarget(f)
	case FrameBroadcast:
		c.hub.broadcastMessage(context.Background(), c, f)
	// delete-msg is server-originated only (Hub.BroadcastDelete, driven by
	// messagesapi); Frame.validate never accepts it from a decoded client
	// frame, so it never reaches dispatch.
	default:
		c.hub.log.Debug("unhandled frame type on dispatch", "type", f.Type)
	}
}

// handleJoin verifies the join signature, then registers the connection
// under its claimed room and public key. A second join under the same
// public key supersedes the first for routing (registry.Join's documented
// last-writer-wins policy, spec.md §9(b)); it does not force-close the
// superseded connection.
func (c *connection) handleJoin(f *Frame) {
	sig, err := hex.DecodeString(f.Signature)
	if err != nil {
		c.hub.log.Debug("rejecting join with malformed signature", "room", f.Room)
		return
	}
	if ok, err := signing.Verify(f.User.PublicKey, canon.Join(f.Room, f.User.Name, f.User.PublicKey), sig); err != nil || !ok {
		c.hub.log.Debug("rejecting join with invalid signature", "room", f.Room, "publicKey", f.User.PublicKey)
		return
	}

	c.room = f.Room
	c.publicKey = f.User.PublicKey
	c.name = f.User.Name
	c.state = stateJoined

	room := c.hub.registry.Room(c.room)
	var others []domain.User
	if room != nil {
		for _, p := range room.Snapshot() {
			others = append(others, p.User)
		}
	}

	c.hub.registry.Join(c.room, domain.Participant{User: *f.User}, c.ws)

	// room-info goes only to the joining connection and lists only the
	// participants already present before it joined (spec.md §4.5).
	_ = c.ws.Send(&Frame{Type: FrameRoomInfo, Room: c.room, Participants: others})
}

// relayToTarget forwards an offer/answer/ice-candidate frame to its target
// public key within the sender's own room. Looking the target up via
// c.room's registry entry (rather than comparing two ambient room values)
// is the fix for spec.md §9(a)'s tautological room-comparison bug: the
// lookup is structurally scoped to one room's connection map, so there is
// no comparison to get backwards.
func (c *connection) relayToTarget(f *Frame) {
	if f.Target == nil {
		return
	}
	room := c.hub.registry.Room(c.room)
	if room == nil {
		return
	}
	targetConn, ok := room.ConnFor(f.Target.PublicKey)
	if !ok {
		return
	}
	f.Sender = &domain.User{Name: c.name, PublicKey: c.publicKey}
	_ = targetConn.Send(f)
}

func (c *connection) cleanup() {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	if c.room == "" || c.publicKey == "" {
		return
	}
	if !c.hub.registry.Leave(c.room, c.publicKey, c.ws) {
		// This connection was already superseded by a later Join under the
		// same public key (spec.md §3, §9(b)); the room's live entry belongs
		// to that other connection, so there is nothing to announce.
		return
	}

	room := c.hub.registry.Room(c.room)
	left := &Frame{Type: FrameUserLeft, Room: c.room, User: &domain.User{Name: c.name, PublicKey: c.publicKey}}
	if room == nil {
		return
	}
	for _, conn := range room.Conns() {
		_ = conn.Send(left)
	}
}

// relayDeleteToRoom fans a delete-msg notification out to every live
// connection in roomName, used by messagesapi's delete-message path so open
// clients drop a deleted message without polling (spec.md §4.5, §4.7).
func (h *Hub) relayDeleteToRoom(roomName string, f *Frame) {
	room := h.registry.Room(roomName)
	if room == nil {
		return
	}
	for _, conn := range room.Conns() {
		_ = conn.Send(f)
	}
}

// BroadcastDelete is messagesapi's entry point for notifying a room's live
// members that a message was deleted.
func (h *Hub) BroadcastDelete(roomName, messageID string) {
	h.relayDeleteToRoom(roomName, &Frame{Type: FrameDeleteMsg, Room: roomName, MessageID: messageID})
}
