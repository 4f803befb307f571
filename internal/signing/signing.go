// Package signing implements SignatureService (spec.md §4.2): detached
// Schnorr signatures over secp256k1, using x-only public keys per BIP340 —
// the scheme used across the broader ecosystem of pseudonymous
// signed-message social protocols that spec.md §4.2 treats as the concrete
// algorithm behind the black-box sign/verify contract.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var (
	// ErrInvalidSignature is returned by Verify (never by Sign) when a
	// signature does not validate against the given canonical bytes and
	// public key.
	ErrInvalidSignature = errors.New("signing: invalid signature")
	// ErrMalformedKey is returned when a hex-encoded public or private key
	// cannot be parsed into a curve point / scalar.
	ErrMalformedKey = errors.New("signing: malformed key")
)

// KeyPair is a long-lived identity. Generation and import/export live
// outside this core (spec.md §1); this type exists so Sign has something
// concrete to take.
type KeyPair struct {
	Private *btcec.PrivateKey
}

// GenerateKeyPair is provided for tests and for constructing fixtures; the
// real identity-key generation workflow is out of scope (spec.md §1).
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv}, nil
}

// PublicKeyHex returns the 32-byte x-only public key, hex-encoded, as
// carried on the wire in every signed frame's publicKey field.
func (kp *KeyPair) PublicKeyHex() string {
	pub := kp.Private.PubKey()
	xOnly := schnorr.SerializePubKey(pub)
	return hex.EncodeToString(xOnly)
}

// Sign attaches a detached signature over canonicalBytes using kp's
// private key.
func Sign(kp *KeyPair, canonicalBytes []byte) ([]byte, error) {
	if kp == nil || kp.Private == nil {
		return nil, ErrMalformedKey
	}
	digest := hashForSigning(canonicalBytes)
	sig, err := schnorr.Sign(kp.Private, digest)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Verify reports whether sig is a valid detached signature over
// canonicalBytes for the given hex-encoded x-only public key. A malformed
// key or signature returns (false, ErrMalformedKey) / (false,
// ErrInvalidSignature) respectively rather than panicking.
func Verify(publicKeyHex string, canonicalBytes, sig []byte) (bool, error) {
	pubKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pubKeyBytes) != 32 {
		return false, ErrMalformedKey
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, ErrMalformedKey
	}

	parsedSig, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false, ErrInvalidSignature
	}

	digest := hashForSigning(canonicalBytes)
	if !parsedSig.Verify(digest, pubKey) {
		return false, ErrInvalidSignature
	}
	return true, nil
}

// hashForSigning reduces arbitrary-length canonical bytes to the 32-byte
// digest schnorr.Sign/Verify require.
func hashForSigning(canonicalBytes []byte) []byte {
	sum := sha256.Sum256(canonicalBytes)
	return sum[:]
}
