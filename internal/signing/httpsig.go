package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
)

// PublicKeyHeader is the header carrying the signer's hex-encoded x-only
// public key on signed HTTP requests (spec.md §6).
const PublicKeyHeader = "X-Public-Key"

// SignatureHeader carries the hex-encoded detached signature.
const SignatureHeader = "X-Signature"

var ErrMissingSignatureHeaders = errors.New("signing: request missing signature headers")

// CanonicalizeRequest builds the byte string an HTTP request's signature
// covers: method, path, and a hex SHA-256 digest of the body, joined with
// the same `|` separator internal/canon uses (without its escaping). It
// takes body bytes the caller has already read; restoring r.Body for
// downstream handlers is the caller's job (VerifyRequest does it).
func CanonicalizeRequest(method, path string, body []byte) []byte {
	sum := sha256.Sum256(body)
	buf := make([]byte, 0, len(method)+len(path)+len(sum)*2+2)
	buf = append(buf, method...)
	buf = append(buf, '|')
	buf = append(buf, path...)
	buf = append(buf, '|')
	buf = append(buf, hex.EncodeToString(sum[:])...)
	return buf
}

// VerifyRequest reads r's body (restoring it for later handlers), extracts
// the public key and signature headers, and reports whether the request is
// authentically signed by the embedded public key. It does not check that
// public key against any allow-list; callers (e.g. AdminAPI) do that
// separately.
func VerifyRequest(r *http.Request) (publicKeyHex string, ok bool, err error) {
	publicKeyHex = r.Header.Get(PublicKeyHeader)
	sigHex := r.Header.Get(SignatureHeader)
	if publicKeyHex == "" || sigHex == "" {
		return "", false, ErrMissingSignatureHeaders
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return "", false, err
		}
		r.Body = io.NopCloser(newRewindReader(body))
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return publicKeyHex, false, ErrInvalidSignature
	}

	canonical := CanonicalizeRequest(r.Method, r.URL.Path, body)
	valid, err := Verify(publicKeyHex, canonical, sig)
	if err != nil {
		return publicKeyHex, false, err
	}
	return publicKeyHex, valid, nil
}

type rewindReader struct {
	data []byte
	pos  int
}

func newRewindReader(data []byte) *rewindReader {
	return &rewindReader{data: data}
}

func (r *rewindReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
