// Package canon produces the deterministic byte sequences that
// internal/signing signs and verifies (spec.md §4.1). Every signable frame
// variant gets exactly one function here; the included fields and their
// order are the wire contract and must never change independently on the
// producing and verifying sides.
package canon

import "strconv"

const sep = "|"

// escape guards against a field value containing the separator from
// colliding with a neighboring field's boundary.
func escape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '|' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func join(parts ...string) []byte {
	buf := make([]byte, 0, 64)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, sep...)
		}
		buf = append(buf, escape(p)...)
	}
	return buf
}

// ChatMessage canonicalizes a chat message's signable fields: id,
// timestamp, sender, content, publicKey. The room, signature, state, and
// attachments are excluded — room and state are routing/server-observed,
// signature is what's being produced, and attachments are carried
// out-of-band of the text content being authenticated.
func ChatMessage(id string, timestampMs int64, sender, content, publicKey string) []byte {
	return join("chat", id, strconv.FormatInt(timestampMs, 10), sender, content, publicKey)
}

// Join canonicalizes a `join` control frame: room, user name, user public
// key. The signature field itself is excluded.
func Join(room, userName, userPublicKey string) []byte {
	return join("join", room, userName, userPublicKey)
}

// Offer canonicalizes an `offer` signaling frame: id, sdp, room, publicKey,
// target name, target public key. `sender` is server-observed and
// excluded, matching spec.md §4.1's "exclude ... transient routing fields
// (sender, target, receive-side annotations)" — the target *identity* is
// part of what the offer commits to, but the frame's routing annotations
// are not.
func Offer(id, sdp, room, publicKey, targetName, targetPublicKey string) []byte {
	return join("offer", id, sdp, room, publicKey, targetName, targetPublicKey)
}
