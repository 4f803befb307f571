// Package messagesapi implements the two core, non-admin signed mutation
// endpoints spec.md §6 names alongside HistoryAPI's read surface:
// send-messages (a client persisting its own outbound messages directly,
// bypassing the live socket) and delete-message (an owner, not necessarily
// an operator, deleting their own row). Both defer entirely to Store's own
// authorization checks — this package adds no gate of its own beyond
// verifying each message's own signature and block status, following the same
// controller-wraps-interactor shape as adminapi and historyapi.
package messagesapi

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/relaymesh/signalhub/internal/canon"
	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/hub"
	"github.com/relaymesh/signalhub/internal/signing"
	"github.com/relaymesh/signalhub/internal/store"
)

// notifier is the subset of *hub.Hub this package needs: telling live
// connections a message was deleted (a fake stands in for tests).
type notifier interface {
	BroadcastDelete(roomName, messageID string)
}

var _ notifier = (*hub.Hub)(nil)

// MessagesAPI wraps Store's SaveMessages/DeleteMessage with the
// signature-verification and block-check pipeline BroadcastPipeline (C6)
// applies on the live socket, so a client that persists via HTTP instead of
// the websocket gets the same guarantees.
type MessagesAPI struct {
	store    *store.Store
	notifier notifier
	adminKey string
	log      *slog.Logger
}

func New(st *store.Store, n notifier, adminKeyHex string, log *slog.Logger) *MessagesAPI {
	return &MessagesAPI{store: st, notifier: n, adminKey: adminKeyHex, log: log}
}

// SendMessages verifies each message's own signature and block status, then
// persists the ones that pass. allOk is true only if every submitted
// message was valid, unblocked, and (newly or previously) persisted —
// spec.md §6's `{allOk:boolean}` response.
func (m *MessagesAPI) SendMessages(ctx context.Context, room string, msgs []domain.ChatMessage) (bool, error) {
	allOk := true
	valid := make([]domain.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		sig, err := hex.DecodeString(msg.Signature)
		if err != nil {
			m.log.Debug("rejecting send-messages entry with malformed signature", "id", msg.ID)
			allOk = false
			continue
		}
		ok, err := signing.Verify(msg.PublicKey, canon.ChatMessage(msg.ID, msg.Timestamp, msg.Sender, msg.Content, msg.PublicKey), sig)
		if err != nil || !ok {
			m.log.Debug("rejecting send-messages entry with invalid signature", "id", msg.ID)
			allOk = false
			continue
		}
		blocked, err := m.store.IsBlocked(ctx, msg.PublicKey)
		if err != nil {
			return false, err
		}
		if blocked {
			allOk = false
			continue
		}
		valid = append(valid, msg)
	}

	if len(valid) == 0 {
		return allOk, nil
	}
	// SaveMessages silently no-ops a duplicate id onto its pre-existing row
	// rather than erroring, so a lower inserted count than len(valid) is
	// still a success and does not clear allOk.
	if _, err := m.store.SaveMessages(ctx, room, valid); err != nil {
		return false, err
	}
	return allOk, nil
}

// DeleteMessage defers to Store.DeleteMessage's own owner-or-admin,
// constant-time authorization check (spec.md §9(d)); this package supplies
// no gate beyond passing the configured admin key through, matching
// spec.md §8 scenario 4 (owner or admin succeeds, any other key gets false
// with no error and the row remains).
func (m *MessagesAPI) DeleteMessage(ctx context.Context, callerKey, roomName, messageID string) (bool, error) {
	ok, err := m.store.DeleteMessage(ctx, messageID, callerKey, m.adminKey)
	if errors.Is(err, store.ErrUnauthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ok {
		m.notifier.BroadcastDelete(roomName, messageID)
	}
	return ok, nil
}
