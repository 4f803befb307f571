package clientsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/signing"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu       sync.Mutex
	ids      []string
	messages map[string]domain.ChatMessage
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{messages: make(map[string]domain.ChatMessage)}
}

func (f *fakeRemote) MessageIDs(ctx context.Context, roomKey string, sinceTs *int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ids))
	copy(out, f.ids)
	return out, nil
}

func (f *fakeRemote) MessagesByIDs(ctx context.Context, roomKey string, ids []string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatMessage
	for _, id := range ids {
		if m, ok := f.messages[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRemote) addServerMessage(m domain.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, m.ID)
	f.messages[m.ID] = m
}

type fakePusher struct {
	mu      sync.Mutex
	pushed  []domain.ChatMessage
	failIDs map[string]bool
}

func newFakePusher() *fakePusher {
	return &fakePusher{failIDs: make(map[string]bool)}
}

func (p *fakePusher) Push(ctx context.Context, room string, msg domain.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, msg)
	if p.failIDs[msg.ID] {
		return context.DeadlineExceeded
	}
	return nil
}

func TestReconcileFetchesMissingServerMessages(t *testing.T) {
	cache := NewMemoryCache()
	remote := newFakeRemote()
	remote.addServerMessage(domain.ChatMessage{ID: "m1", Timestamp: 1000, Sender: "a", Content: "hi", State: domain.StateSaved})
	e := New(cache, remote, newFakePusher(), 30)

	merged, err := e.Reconcile(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, "m1", merged[0].ID)

	stored, err := cache.Load(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestReconcilePromotesLocalSentToSaved(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Now().UnixMilli()
	require.NoError(t, cache.Save(context.Background(), "r1", []domain.ChatMessage{
		{ID: "m1", Timestamp: now, Sender: "a", Content: "hi", State: domain.StateSent},
	}))
	remote := newFakeRemote()
	remote.addServerMessage(domain.ChatMessage{ID: "m1", Timestamp: now, Sender: "a", Content: "hi", State: domain.StateSaved})
	e := New(cache, remote, newFakePusher(), 30)

	merged, err := e.Reconcile(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, domain.StateSaved, merged[0].State)
}

func TestReconcileDropsStaleSavedMessages(t *testing.T) {
	cache := NewMemoryCache()
	require.NoError(t, cache.Save(context.Background(), "r1", []domain.ChatMessage{
		{ID: "gone", Timestamp: time.Now().UnixMilli(), Sender: "a", Content: "deleted upstream", State: domain.StateSaved},
	}))
	remote := newFakeRemote() // server has nothing
	e := New(cache, remote, newFakePusher(), 30)

	merged, err := e.Reconcile(context.Background(), "r1")
	require.NoError(t, err)
	require.Empty(t, merged)
}

func TestReconcileKeepsUnacknowledgedLocalMessages(t *testing.T) {
	cache := NewMemoryCache()
	require.NoError(t, cache.Save(context.Background(), "r1", []domain.ChatMessage{
		{ID: "pending", Timestamp: time.Now().UnixMilli(), Sender: "a", Content: "not yet acked", State: domain.StateSent},
	}))
	remote := newFakeRemote()
	e := New(cache, remote, newFakePusher(), 30)

	merged, err := e.Reconcile(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, domain.StateSent, merged[0].State)
}

func TestReconcileEvictsMessagesOlderThanRetention(t *testing.T) {
	cache := NewMemoryCache()
	old := time.Now().AddDate(0, 0, -100).UnixMilli()
	require.NoError(t, cache.Save(context.Background(), "r1", []domain.ChatMessage{
		{ID: "old", Timestamp: old, Sender: "a", Content: "ancient", State: domain.StateSaved},
	}))
	remote := newFakeRemote() // server also has nothing for it
	e := New(cache, remote, newFakePusher(), 30)

	merged, err := e.Reconcile(context.Background(), "r1")
	require.NoError(t, err)
	require.Empty(t, merged)
}

func TestSendSignsAndCachesAsSent(t *testing.T) {
	cache := NewMemoryCache()
	remote := newFakeRemote()
	pusher := newFakePusher()
	e := New(cache, remote, pusher, 30)
	e.AckTimeout = 20 * time.Millisecond
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	msg, err := e.Send(context.Background(), "r1", "alice", "hello", kp)
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.NotEmpty(t, msg.Signature)

	stored, err := cache.Load(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, msg.ID, stored[0].ID)
}

func TestSendMarksFailedWhenAckNeverArrives(t *testing.T) {
	cache := NewMemoryCache()
	remote := newFakeRemote()
	pusher := newFakePusher()
	e := New(cache, remote, pusher, 30)
	e.AckTimeout = 10 * time.Millisecond
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	msg, err := e.Send(context.Background(), "r1", "alice", "hello", kp)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, _ := cache.Load(context.Background(), "r1")
		idx, ok := indexByID(stored, msg.ID)
		return ok && stored[idx].State == domain.StateFailed
	}, time.Second, 5*time.Millisecond)
}

func TestSendMarksSavedWhenAckArrives(t *testing.T) {
	cache := NewMemoryCache()
	remote := newFakeRemote()
	pusher := newFakePusher()
	e := New(cache, remote, pusher, 30)
	e.AckTimeout = time.Second
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	msg, err := e.Send(context.Background(), "r1", "alice", "hello", kp)
	require.NoError(t, err)
	e.HandleAck(msg.ID)

	require.Eventually(t, func() bool {
		stored, _ := cache.Load(context.Background(), "r1")
		idx, ok := indexByID(stored, msg.ID)
		return ok && stored[idx].State == domain.StateSaved
	}, time.Second, 5*time.Millisecond)
}

func TestResendPendingRepushesUnackedSentMessages(t *testing.T) {
	cache := NewMemoryCache()
	require.NoError(t, cache.Save(context.Background(), "r1", []domain.ChatMessage{
		{ID: "m1", Timestamp: 1, Sender: "a", Content: "leftover", State: domain.StateSent},
		{ID: "m2", Timestamp: 2, Sender: "a", Content: "already saved", State: domain.StateSaved},
	}))
	remote := newFakeRemote()
	pusher := newFakePusher()
	e := New(cache, remote, pusher, 30)
	e.AckTimeout = time.Second

	n, err := e.ResendPending(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	require.Len(t, pusher.pushed, 1)
	require.Equal(t, "m1", pusher.pushed[0].ID)
}

func TestPruneIfNeededDropsOldestFraction(t *testing.T) {
	cache := NewMemoryCache()
	var msgs []domain.ChatMessage
	for i := 0; i < 10; i++ {
		msgs = append(msgs, domain.ChatMessage{ID: string(rune('a' + i)), Timestamp: int64(i), State: domain.StateSaved})
	}
	require.NoError(t, cache.Save(context.Background(), "r1", msgs))
	e := New(cache, newFakeRemote(), newFakePusher(), 30)

	dropped, err := e.PruneIfNeeded(context.Background(), "r1", 0.95)
	require.NoError(t, err)
	require.Equal(t, 2, dropped)

	remaining, err := cache.Load(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, remaining, 8)
	require.Equal(t, string(rune('a'+2)), remaining[0].ID, "oldest survivors start where the dropped prefix ended")
}

func TestPruneIfNeededNoopsBelowThreshold(t *testing.T) {
	cache := NewMemoryCache()
	require.NoError(t, cache.Save(context.Background(), "r1", []domain.ChatMessage{
		{ID: "m1", Timestamp: 1, State: domain.StateSaved},
	}))
	e := New(cache, newFakeRemote(), newFakePusher(), 30)

	dropped, err := e.PruneIfNeeded(context.Background(), "r1", 0.5)
	require.NoError(t, err)
	require.Equal(t, 0, dropped)
}
