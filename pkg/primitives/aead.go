package primitives

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
	"golang.org/x/crypto/chacha20poly1305"
)

func newAEAD(alg SymAlg, key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeyLen {
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "AEAD key must be 32 bytes")
	}

	switch alg {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, trustedgeerr.WrapCryptoError(trustedgeerr.InvalidKey, "failed to construct AES cipher", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, trustedgeerr.WrapCryptoError(trustedgeerr.InvalidKey, "failed to construct GCM mode", err)
		}
		return gcm, nil
	case XChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, trustedgeerr.WrapCryptoError(trustedgeerr.InvalidKey, "failed to construct XChaCha20-Poly1305", err)
		}
		return aead, nil
	default:
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "unsupported AEAD algorithm")
	}
}

// AeadSeal encrypts plaintext under key/nonce, binding aad into the
// authentication tag. The returned ciphertext has the tag appended.
func AeadSeal(alg SymAlg, key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidNonce, "nonce has wrong length for algorithm")
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// AeadOpen decrypts ciphertext (tag included) under key/nonce/aad.
// Returns CryptoError{DecryptionFailed} on any tag mismatch; it never
// distinguishes a wrong key from tampering.
func AeadOpen(alg SymAlg, key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidNonce, "nonce has wrong length for algorithm")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, trustedgeerr.WrapCryptoError(trustedgeerr.DecryptionFailed, "AEAD tag verification failed", err)
	}
	return plaintext, nil
}
