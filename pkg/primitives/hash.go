package primitives

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
	"lukechampine.com/blake3"
)

// Blake3 hashes data with a 256-bit BLAKE3 digest. Used by the continuity
// chain and the manifest's per-segment hashes.
func Blake3(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Sha256 hashes data with SHA-256.
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashWithAlgorithm dispatches to the hash named by alg, for the generic
// backend Hash operation.
func HashWithAlgorithm(alg HashAlg, data []byte) ([]byte, error) {
	switch alg {
	case HashSha256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case HashSha384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	case HashSha512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	case HashBlake3:
		sum := blake3.Sum256(data)
		return sum[:], nil
	default:
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "unsupported hash algorithm")
	}
}

// ConstantTimeCompare reports whether a and b are equal using a
// constant-time comparison, regardless of byte-level mismatch position.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
