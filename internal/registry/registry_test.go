package registry

import (
	"testing"

	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed bool
	sent   []any
}

func (f *fakeConn) Send(v any) error {
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestJoinThenSnapshot(t *testing.T) {
	reg := New()
	reg.Join("r1", domain.Participant{User: domain.User{Name: "alice", PublicKey: "pubA"}}, &fakeConn{})

	room := reg.Room("r1")
	require.NotNil(t, room)
	snap := room.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "alice", snap[0].Name)
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	reg := New()
	conn := &fakeConn{}
	reg.Join("r1", domain.Participant{User: domain.User{Name: "alice", PublicKey: "pubA"}}, conn)
	require.True(t, reg.Leave("r1", "pubA", conn))

	require.Nil(t, reg.Room("r1"))
}

func TestLeaveKeepsRoomWithRemainingParticipants(t *testing.T) {
	reg := New()
	connA := &fakeConn{}
	reg.Join("r1", domain.Participant{User: domain.User{Name: "alice", PublicKey: "pubA"}}, connA)
	reg.Join("r1", domain.Participant{User: domain.User{Name: "bob", PublicKey: "pubB"}}, &fakeConn{})
	require.True(t, reg.Leave("r1", "pubA", connA))

	room := reg.Room("r1")
	require.NotNil(t, room)
	require.Len(t, room.Snapshot(), 1)
}

func TestSecondJoinSamePublicKeySupersedesForRouting(t *testing.T) {
	reg := New()
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Join("r1", domain.Participant{User: domain.User{Name: "alice", PublicKey: "pubA"}}, first)
	reg.Join("r1", domain.Participant{User: domain.User{Name: "alice", PublicKey: "pubA"}}, second)

	room := reg.Room("r1")
	conn, ok := room.ConnFor("pubA")
	require.True(t, ok)
	require.Same(t, second, conn)
	require.False(t, first.closed, "the earlier connection is left open, not force-closed")
}

func TestLeaveIsNoopForSupersededConnection(t *testing.T) {
	reg := New()
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Join("r1", domain.Participant{User: domain.User{Name: "alice", PublicKey: "pubA"}}, first)
	reg.Join("r1", domain.Participant{User: domain.User{Name: "alice", PublicKey: "pubA"}}, second)

	require.False(t, reg.Leave("r1", "pubA", first), "leave from the superseded connection must not touch the live entry")

	room := reg.Room("r1")
	require.NotNil(t, room)
	conn, ok := room.ConnFor("pubA")
	require.True(t, ok)
	require.Same(t, second, conn, "the current connection must still be routable")
}
