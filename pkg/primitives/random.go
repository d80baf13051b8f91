package primitives

import (
	"crypto/rand"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// RandomBytes draws n bytes from the operating system CSPRNG. This is the
// only source of nonces and fresh key material anywhere in the core.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, trustedgeerr.WrapCryptoError(trustedgeerr.KeyGenerationFailed, "failed to read from CSPRNG", err)
	}
	return buf, nil
}
