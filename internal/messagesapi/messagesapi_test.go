package messagesapi

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/relaymesh/signalhub/internal/canon"
	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/signing"
	"github.com/relaymesh/signalhub/internal/store"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const adminKey = "admin-key"

type fakeNotifier struct {
	room, messageID string
	calls           int
}

func (f *fakeNotifier) BroadcastDelete(room, messageID string) {
	f.calls++
	f.room, f.messageID = room, messageID
}

func newTestAPI(t *testing.T) (*MessagesAPI, *store.Store, *fakeNotifier) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	st := store.New(db)
	n := &fakeNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, n, adminKey, log), st, n
}

func signedMessage(t *testing.T, kp *signing.KeyPair, id, sender, content string) domain.ChatMessage {
	t.Helper()
	pub := kp.PublicKeyHex()
	sig, err := signing.Sign(kp, canon.ChatMessage(id, 1000, sender, content, pub))
	require.NoError(t, err)
	return domain.ChatMessage{
		ID: id, Timestamp: 1000, Sender: sender, Content: content,
		PublicKey: pub, Signature: hex.EncodeToString(sig),
	}
}

func TestSendMessagesPersistsValidSignedMessages(t *testing.T) {
	api, st, _ := newTestAPI(t)
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	msg := signedMessage(t, kp, "m1", "alice", "hi")
	allOk, err := api.SendMessages(context.Background(), "r1", []domain.ChatMessage{msg})
	require.NoError(t, err)
	require.True(t, allOk)

	got, err := st.GetMessagesByIDs(context.Background(), []string{"m1"}, "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSendMessagesRejectsTamperedSignatureWithoutPersisting(t *testing.T) {
	api, st, _ := newTestAPI(t)
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	msg := signedMessage(t, kp, "m1", "alice", "hi")
	msg.Content = "tampered"
	allOk, err := api.SendMessages(context.Background(), "r1", []domain.ChatMessage{msg})
	require.NoError(t, err)
	require.False(t, allOk)

	got, err := st.GetMessagesByIDs(context.Background(), []string{"m1"}, "r1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSendMessagesDropsBlockedSenderButReportsNotAllOk(t *testing.T) {
	api, st, _ := newTestAPI(t)
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, st.BlockUser(context.Background(), kp.PublicKeyHex()))

	msg := signedMessage(t, kp, "m1", "alice", "hi")
	allOk, err := api.SendMessages(context.Background(), "r1", []domain.ChatMessage{msg})
	require.NoError(t, err)
	require.False(t, allOk)

	got, err := st.GetMessagesByIDs(context.Background(), []string{"m1"}, "r1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDeleteMessageAllowsOwner(t *testing.T) {
	api, st, notifier := newTestAPI(t)
	ctx := context.Background()
	roomID, err := st.GetOrCreateRoom(ctx, "r1")
	require.NoError(t, err)
	_, err = st.PersistMessage(ctx, roomID, domain.ChatMessage{ID: "m1", Timestamp: 1, Sender: "a", Content: "hi", PublicKey: "keyA"})
	require.NoError(t, err)

	deleted, err := api.DeleteMessage(ctx, "keyB", "r1", "m1")
	require.NoError(t, err)
	require.False(t, deleted, "a non-owner, non-admin key must not delete another user's message")
	require.Zero(t, notifier.calls)

	deleted, err = api.DeleteMessage(ctx, "keyA", "r1", "m1")
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, 1, notifier.calls)
}

func TestDeleteMessageAllowsAdmin(t *testing.T) {
	api, st, notifier := newTestAPI(t)
	ctx := context.Background()
	roomID, err := st.GetOrCreateRoom(ctx, "r1")
	require.NoError(t, err)
	_, err = st.PersistMessage(ctx, roomID, domain.ChatMessage{ID: "m4", Timestamp: 1, Sender: "a", Content: "hi", PublicKey: "keyA"})
	require.NoError(t, err)

	deleted, err := api.DeleteMessage(ctx, adminKey, "r1", "m4")
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, 1, notifier.calls)
}
