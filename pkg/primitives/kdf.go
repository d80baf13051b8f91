package primitives

import (
	"crypto/sha256"
	"io"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// HkdfExpand derives len bytes from ikm using HKDF-SHA256 with the given
// salt and info. Used for per-chunk encryption key derivation.
func HkdfExpand(ikm, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, trustedgeerr.WrapCryptoError(trustedgeerr.KeyGenerationFailed, "HKDF expand failed", err)
	}
	return out, nil
}

// Pbkdf2HmacSha256 derives len bytes from pass/salt using PBKDF2-HMAC-SHA256.
// Used to wrap software-HSM private keys at rest under a user passphrase.
func Pbkdf2HmacSha256(pass, salt []byte, iterations, length int) []byte {
	return pbkdf2.Key(pass, salt, iterations, length, sha256.New)
}
