package hub

import (
	"context"
	"encoding/hex"

	"github.com/relaymesh/signalhub/internal/canon"
	"github.com/relaymesh/signalhub/internal/signing"
)

// broadcastMessage is the BroadcastPipeline (C6, spec.md §4.6): verify the
// signature, drop it silently if the sender is blocked, persist, then fan
// out — an ack frame back to the originating connection and the full
// message frame to every other live connection in the room. A message that
// fails verification or persistence never reaches any connection.
func (h *Hub) broadcastMessage(ctx context.Context, c *connection, f *Frame) {
	msg := f.Message
	if msg == nil {
		return
	}

	sig, err := hex.DecodeString(msg.Signature)
	if err != nil {
		h.log.Debug("dropping broadcast with malformed signature", "id", msg.ID)
		return
	}
	ok, err := signing.Verify(msg.PublicKey, canon.ChatMessage(msg.ID, msg.Timestamp, msg.Sender, msg.Content, msg.PublicKey), sig)
	if err != nil || !ok {
		h.log.Debug("dropping broadcast with invalid signature", "id", msg.ID)
		return
	}

	blocked, err := h.store.IsBlocked(ctx, msg.PublicKey)
	if err != nil {
		h.log.Error("block-check failed", "error", err)
		return
	}
	if blocked {
		h.log.Debug("dropping broadcast from blocked key", "publicKey", msg.PublicKey)
		return
	}

	roomID, err := h.store.GetOrCreateRoom(ctx, f.Room)
	if err != nil {
		h.log.Error("room lookup failed during broadcast", "error", err)
		return
	}

	saved, err := h.store.PersistMessage(ctx, roomID, *msg)
	if err != nil {
		// spec.md §4.6 step 5 only defines an ack for a message that reached
		// step 3; a persist failure is dropped like any other rejected
		// broadcast (no ack), and the client's own ack timeout
		// (ClientSyncEngine, §4.9) marks the message FAILED.
		h.log.Error("persist failed during broadcast", "error", err)
		return
	}

	// ack carries msg.id only (spec.md §6); the originator already holds its
	// own copy locally and only needs the SENT->SAVED promotion signal.
	_ = c.ws.Send(&Frame{Type: FrameAck, ID: saved.ID})

	room := h.registry.Room(f.Room)
	if room == nil {
		return
	}
	full := &Frame{Type: FrameBroadcast, Room: f.Room, Message: &saved}
	for key, conn := range room.Conns() {
		if key == c.publicKey {
			continue
		}
		_ = conn.Send(full)
	}
}
