package signing

import (
	"testing"

	"github.com/relaymesh/signalhub/internal/canon"
	"github.com/stretchr/testify/require"
)

func TestSignThenVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := canon.ChatMessage("m1", 1000, "alice", "hi", kp.PublicKeyHex())
	sig, err := Sign(kp, msg)
	require.NoError(t, err)

	ok, err := Verify(kp.PublicKeyHex(), msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := canon.ChatMessage("m1", 1000, "alice", "hi", kp.PublicKeyHex())
	sig, err := Sign(kp, msg)
	require.NoError(t, err)

	tampered := canon.ChatMessage("m1", 1000, "alice", "bye", kp.PublicKeyHex())
	ok, err := Verify(kp.PublicKeyHex(), tampered, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.False(t, ok)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := canon.ChatMessage("m1", 1000, "alice", "hi", kp1.PublicKeyHex())
	sig, err := Sign(kp1, msg)
	require.NoError(t, err)

	ok, err := Verify(kp2.PublicKeyHex(), msg, sig)
	require.Error(t, err)
	require.False(t, ok)
}

func TestVerifyMalformedKey(t *testing.T) {
	_, err := Verify("not-hex", []byte("data"), []byte("sig"))
	require.ErrorIs(t, err, ErrMalformedKey)
}
