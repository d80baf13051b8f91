package primitives

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// Sign produces a signature over msg using secret, per alg. For EcdsaP256,
// secret is a PKCS#1-free raw P-256 scalar (32 bytes big-endian); for
// Ed25519, secret is the 64-byte seed+public stdlib representation.
func Sign(alg SigAlg, secret, msg []byte) ([]byte, error) {
	switch alg {
	case Ed25519:
		if len(secret) != ed25519.PrivateKeySize {
			return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "Ed25519 secret key must be 64 bytes")
		}
		return ed25519.Sign(ed25519.PrivateKey(secret), msg), nil
	case EcdsaP256:
		priv, err := ecdsaPrivateKeyFromScalar(secret)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256(msg)
		sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
		if err != nil {
			return nil, trustedgeerr.WrapCryptoError(trustedgeerr.SignatureVerificationFailed, "ECDSA sign failed", err)
		}
		return sig, nil
	default:
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "unsupported signature algorithm")
	}
}

// SignPrehashedP256 signs an already-hashed digest with a P-256 scalar
// directly, never re-hashing. No backend in this module calls it; the
// YubiKey backend signs digests on the card through piv-go instead.
func SignPrehashedP256(secret, digest []byte) ([]byte, error) {
	priv, err := ecdsaPrivateKeyFromScalar(secret)
	if err != nil {
		return nil, err
	}
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest)
	if err != nil {
		return nil, trustedgeerr.WrapCryptoError(trustedgeerr.SignatureVerificationFailed, "ECDSA sign failed", err)
	}
	return sig, nil
}

// Verify checks sig over msg under pub, per alg. Constant-time by virtue of
// the stdlib implementations (ed25519.Verify, ecdsa.VerifyASN1).
func Verify(alg SigAlg, pub, msg, sig []byte) (bool, error) {
	switch alg {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize {
			return false, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "Ed25519 public key must be 32 bytes")
		}
		return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
	case EcdsaP256:
		pubKey, err := ecdsaPublicKeyFromUncompressed(pub)
		if err != nil {
			return false, err
		}
		digest := sha256.Sum256(msg)
		return ecdsa.VerifyASN1(pubKey, digest[:], sig), nil
	default:
		return false, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "unsupported signature algorithm")
	}
}

func ecdsaPrivateKeyFromScalar(secret []byte) (*ecdsa.PrivateKey, error) {
	if len(secret) != 32 {
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "ECDSA-P256 secret key must be 32 bytes")
	}
	curve := elliptic.P256()
	priv := new(ecdsa.PrivateKey)
	priv.Curve = curve
	priv.D = new(big.Int).SetBytes(secret)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(secret)
	return priv, nil
}

// EcdsaPublicKeyBytes returns the uncompressed SEC1 point encoding (0x04 || X || Y).
func EcdsaPublicKeyBytes(priv *ecdsa.PrivateKey) []byte {
	return elliptic.Marshal(priv.Curve, priv.PublicKey.X, priv.PublicKey.Y)
}

func ecdsaPublicKeyFromUncompressed(pub []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, pub)
	if x == nil {
		return nil, trustedgeerr.NewCryptoError(trustedgeerr.InvalidKey, "malformed ECDSA-P256 public key")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// GenerateEd25519KeyPair draws a fresh Ed25519 keypair from the CSPRNG.
func GenerateEd25519KeyPair() (pub []byte, secret []byte, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, trustedgeerr.WrapCryptoError(trustedgeerr.KeyGenerationFailed, "Ed25519 key generation failed", err)
	}
	return pubKey, privKey, nil
}

// GenerateEcdsaP256KeyPair draws a fresh ECDSA-P256 keypair from the CSPRNG.
// The returned secret is the raw 32-byte scalar D; pub is the uncompressed point.
func GenerateEcdsaP256KeyPair() (pub []byte, secret []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, trustedgeerr.WrapCryptoError(trustedgeerr.KeyGenerationFailed, "ECDSA-P256 key generation failed", err)
	}
	secretBytes := make([]byte, 32)
	d := priv.D.Bytes()
	copy(secretBytes[32-len(d):], d)
	return EcdsaPublicKeyBytes(priv), secretBytes, nil
}
