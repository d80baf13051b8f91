package softhsm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

func newTestBackend(t *testing.T) *Backend {
	b, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestGenerateKeyPairThenSignAndVerifyRoundTrip(t *testing.T) {
	b := newTestBackend(t)

	result, berr := b.PerformOperation("", backend.NewGenerateKeyPairOp(primitives.AsymEd25519))
	require.Nil(t, berr)
	require.NotEmpty(t, result.KeyPairKeyID)
	require.Len(t, result.KeyPairPublic, 32)

	keyID := backend.KeyID(result.KeyPairKeyID)
	msg := []byte("tamper-evident payload")

	signed, berr := b.PerformOperation(keyID, backend.NewSignOp(msg, primitives.Ed25519))
	require.Nil(t, berr)
	require.NotEmpty(t, signed.Signed)

	verifyOp := backend.NewVerifyOp(msg, signed.Signed, result.KeyPairPublic, primitives.Ed25519)
	verified, berr := b.PerformOperation(keyID, verifyOp)
	require.Nil(t, berr)
	require.True(t, verified.VerifyResult)
}

func TestGenerateKeyPairWithCallerSuppliedIDRejectsPathSeparators(t *testing.T) {
	b := newTestBackend(t)
	_, berr := b.PerformOperation("", backend.NewGenerateKeyPairOp(primitives.AsymEd25519))
	require.Nil(t, berr)

	_, berr = b.generateKeyPair("../escape", primitives.AsymEd25519)
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.OperationFailed, berr.Kind)
}

func TestGenerateKeyPairRejectsDuplicateID(t *testing.T) {
	b := newTestBackend(t)
	_, berr := b.generateKeyPair("fixed-id", primitives.AsymEd25519)
	require.Nil(t, berr)

	_, berr = b.generateKeyPair("fixed-id", primitives.AsymEd25519)
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.OperationFailed, berr.Kind)
}

func TestSignWithUnknownKeyIDReturnsKeyNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, berr := b.PerformOperation("does-not-exist", backend.NewSignOp([]byte("x"), primitives.Ed25519))
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.KeyNotFound, berr.Kind)
}

func TestSignRejectsAlgorithmMismatchedWithKey(t *testing.T) {
	b := newTestBackend(t)
	result, berr := b.generateKeyPair("", primitives.AsymEd25519)
	require.Nil(t, berr)

	_, berr = b.PerformOperation(backend.KeyID(result.KeyPairKeyID), backend.NewSignOp([]byte("x"), primitives.EcdsaP256))
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.OperationFailed, berr.Kind)
}

func TestListKeysReturnsSortedMetadata(t *testing.T) {
	b := newTestBackend(t)
	_, berr := b.generateKeyPair("bravo", primitives.AsymEd25519)
	require.Nil(t, berr)
	_, berr = b.generateKeyPair("alpha", primitives.AsymEcdsaP256)
	require.Nil(t, berr)

	keys, berr := b.ListKeys()
	require.Nil(t, berr)
	require.Len(t, keys, 2)
	require.Equal(t, backend.KeyID("alpha"), keys[0].KeyID)
	require.Equal(t, backend.KeyID("bravo"), keys[1].KeyID)
}

func TestHashSupportsDeclaredAlgorithmsOnly(t *testing.T) {
	b := newTestBackend(t)
	require.True(t, b.SupportsOperation(backend.NewHashOp(nil, primitives.HashSha256)))

	result, berr := b.PerformOperation("", backend.NewHashOp([]byte("data"), primitives.HashSha256))
	require.Nil(t, berr)
	require.Len(t, result.Hashed, 32)
}

func TestBackendInfoAndCapabilities(t *testing.T) {
	b := newTestBackend(t)
	info := b.BackendInfo()
	require.True(t, info.Available)
	require.False(t, info.Hardware)
	require.Equal(t, "software_hsm", info.Name)

	caps := b.GetCapabilities()
	require.True(t, caps.SupportsKeyGen)
	require.False(t, caps.SupportsAttestation)
}

func TestIndexCacheIsAdvisoryAndFallsBackOnMiss(t *testing.T) {
	b, err := New(Config{Dir: t.TempDir(), IndexCacheDir: t.TempDir()})
	require.NoError(t, err)
	defer b.Close()

	result, berr := b.generateKeyPair("cached-key", primitives.AsymEd25519)
	require.Nil(t, berr)

	keys, berr := b.ListKeys()
	require.Nil(t, berr)
	require.Len(t, keys, 1)
	require.Equal(t, backend.KeyID("cached-key"), keys[0].KeyID)
	require.NotEmpty(t, result.KeyPairPublic)
}
