package clientsync

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/signalhub/internal/canon"
	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/signing"
)

// Pusher is how Engine gets a signed message onto the wire; a real client
// implements it over its websocket connection to SignalingHub (C5).
type Pusher interface {
	Push(ctx context.Context, room string, msg domain.ChatMessage) error
}

const defaultAckTimeout = 3 * time.Second

// Engine is ClientSyncEngine (C9): it owns no network connection itself,
// only the reconciliation and send-tracking logic layered on top of
// LocalCache, RemoteHistory, and Pusher.
type Engine struct {
	cache         LocalCache
	remote        RemoteHistory
	pusher        Pusher
	retentionDays int

	// AckTimeout is how long Send waits for HandleAck before marking a
	// message FAILED. Exposed for tests; defaults to defaultAckTimeout.
	AckTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan struct{} // message id -> closed on ack
}

func New(cache LocalCache, remote RemoteHistory, pusher Pusher, retentionDays int) *Engine {
	return &Engine{
		cache:         cache,
		remote:        remote,
		pusher:        pusher,
		retentionDays: retentionDays,
		AckTimeout:    defaultAckTimeout,
		pending:       make(map[string]chan struct{}),
	}
}

// Send assigns an id and timestamp, signs the message with kp, appends it
// to the local cache as SENT, and pushes it. If no HandleAck call arrives
// within AckTimeout, the cached copy is flipped to FAILED (spec.md §4.9) —
// the caller learns this by re-reading the cache, not via a return value,
// since the timeout fires after Send has already returned.
func (e *Engine) Send(ctx context.Context, room, sender, content string, kp *signing.KeyPair) (domain.ChatMessage, error) {
	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Sender:    sender,
		Content:   content,
		PublicKey: kp.PublicKeyHex(),
		State:     domain.StateSent,
	}
	sig, err := signing.Sign(kp, canon.ChatMessage(msg.ID, msg.Timestamp, msg.Sender, msg.Content, msg.PublicKey))
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg.Signature = hex.EncodeToString(sig)

	if err := e.appendToCache(ctx, room, msg); err != nil {
		return domain.ChatMessage{}, err
	}

	e.trackAndPush(ctx, room, msg)
	return msg, nil
}

// trackAndPush registers a pending-ack channel, pushes msg, and starts the
// ack-timeout watcher. Used by both Send (new messages) and ResendPending
// (messages that survived a restart still unacknowledged).
func (e *Engine) trackAndPush(ctx context.Context, room string, msg domain.ChatMessage) {
	if err := e.pusher.Push(ctx, room, msg); err != nil {
		e.markState(ctx, room, msg.ID, domain.StateFailed)
		return
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.pending[msg.ID] = done
	e.mu.Unlock()

	go e.watchAck(room, msg.ID, done)
}

func (e *Engine) watchAck(room, id string, done chan struct{}) {
	timeout := e.AckTimeout
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	select {
	case <-done:
		e.markState(context.Background(), room, id, domain.StateSaved)
	case <-time.After(timeout):
		e.markState(context.Background(), room, id, domain.StateFailed)
	}
}

// HandleAck is called when an ack frame (or an incoming broadcast carrying
// the same id) confirms the server persisted msg id. It is a no-op if id
// has no pending watcher (already timed out, or wasn't sent by this
// engine).
func (e *Engine) HandleAck(id string) {
	e.mu.Lock()
	done, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	if ok {
		close(done)
	}
}

func (e *Engine) appendToCache(ctx context.Context, room string, msg domain.ChatMessage) error {
	cached, err := e.cache.Load(ctx, room)
	if err != nil {
		return err
	}
	if _, exists := indexByID(cached, msg.ID); exists {
		return nil
	}
	cached = append(cached, msg)
	return e.cache.Save(ctx, room, cached)
}

func (e *Engine) markState(ctx context.Context, room, id string, state domain.MessageState) {
	cached, err := e.cache.Load(ctx, room)
	if err != nil {
		return
	}
	idx, ok := indexByID(cached, id)
	if !ok {
		return
	}
	cached[idx].State = state
	_ = e.cache.Save(ctx, room, cached)
}

// ResendPending re-pushes every cached SENT message in room that has no
// active ack watcher — the set left behind by a process restart, since an
// in-flight ack timer dies with the process (spec.md §4.9, "resend
// unacknowledged messages on startup or room reopen").
func (e *Engine) ResendPending(ctx context.Context, room string) (int, error) {
	cached, err := e.cache.Load(ctx, room)
	if err != nil {
		return 0, err
	}

	resent := 0
	for _, m := range cached {
		if m.State != domain.StateSent {
			continue
		}
		e.mu.Lock()
		_, active := e.pending[m.ID]
		e.mu.Unlock()
		if active {
			continue
		}
		e.trackAndPush(ctx, room, m)
		resent++
	}
	return resent, nil
}

const (
	pruneThreshold = 0.9
	pruneFraction  = 0.2
)

// PruneIfNeeded implements spec.md §4.9's storage-pruning hook: once
// usageRatio (the client's storage-quota fraction in use) exceeds
// pruneThreshold, it drops the oldest pruneFraction of room's cached
// messages. It reports how many were dropped so the caller can render the
// "storage almost full, N old messages removed" prompt spec.md describes;
// it does not prompt on its own.
func (e *Engine) PruneIfNeeded(ctx context.Context, room string, usageRatio float64) (int, error) {
	if usageRatio <= pruneThreshold {
		return 0, nil
	}
	cached, err := e.cache.Load(ctx, room)
	if err != nil {
		return 0, err
	}
	if len(cached) == 0 {
		return 0, nil
	}

	sort.Slice(cached, func(i, j int) bool { return cached[i].Timestamp < cached[j].Timestamp })
	drop := int(float64(len(cached)) * pruneFraction)
	if drop == 0 {
		drop = 1
	}
	if drop > len(cached) {
		drop = len(cached)
	}
	remaining := cached[drop:]
	if err := e.cache.Save(ctx, room, remaining); err != nil {
		return 0, err
	}
	return drop, nil
}
