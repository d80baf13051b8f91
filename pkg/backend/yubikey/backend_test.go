package yubikey

import (
	"testing"

	"github.com/go-piv/piv-go/v2/piv"
	"github.com/stretchr/testify/require"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// These tests exercise the fail-closed contract and pure dispatch logic
// without a real card: the Backend's *piv.YubiKey handle (its yk field) is nil unless
// New() actually opens hardware, so a zero-value Backend already models
// "no card inserted" (spec scenario S4) exactly.

func unconnectedBackend() *Backend {
	return &Backend{cfg: Config{MaxPINRetries: defaultMaxPINRetries}}
}

func TestBackendInfoReportsUnavailableWithNoCard(t *testing.T) {
	b := unconnectedBackend()
	info := b.BackendInfo()
	require.False(t, info.Available)
	require.True(t, info.Hardware)
	require.Equal(t, "yubikey", info.Name)
}

func TestSignWithNoCardReturnsHardwareErrorNotSignature(t *testing.T) {
	b := unconnectedBackend()
	result, berr := b.PerformOperation("9c", backend.NewSignOp([]byte("msg"), primitives.EcdsaP256))
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.HardwareError, berr.Kind)
	require.Nil(t, result.Signed)
}

func TestEd25519SignIsAlwaysUnsupportedRegardlessOfSlot(t *testing.T) {
	b := unconnectedBackend()
	for _, slot := range []string{"9a", "9c", "9d", "9e"} {
		_, berr := b.PerformOperation(backend.KeyID(slot), backend.NewSignOp([]byte("msg"), primitives.Ed25519))
		require.NotNil(t, berr)
		require.Equal(t, trustedgeerr.UnsupportedOperation, berr.Kind)
	}
}

func TestInvalidSlotIsKeyNotFound(t *testing.T) {
	b := unconnectedBackend()
	_, berr := slotForKeyID("9f")
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.KeyNotFound, berr.Kind)

	_, berr = b.PerformOperation("9f", backend.NewSignOp([]byte("msg"), primitives.EcdsaP256))
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.KeyNotFound, berr.Kind)
}

func TestSlotParsingIsCaseInsensitive(t *testing.T) {
	slot, berr := slotForKeyID("9C")
	require.Nil(t, berr)
	require.Equal(t, piv.SlotSignature, slot)
}

func TestGenerateKeyPairAndAttestAreUnsupportedNotSilentNoOps(t *testing.T) {
	b := unconnectedBackend()

	_, berr := b.PerformOperation("", backend.NewGenerateKeyPairOp(primitives.AsymEcdsaP256))
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.UnsupportedOperation, berr.Kind)

	_, berr = b.PerformOperation("9c", backend.NewAttestOp([]byte("challenge")))
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.UnsupportedOperation, berr.Kind)

	caps := b.GetCapabilities()
	require.False(t, caps.SupportsKeyGen)
	require.False(t, caps.SupportsAttestation)
	require.True(t, caps.HardwareBacked)
}

func TestListKeysWithNoCardReturnsHardwareError(t *testing.T) {
	b := unconnectedBackend()
	_, berr := b.ListKeys()
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.HardwareError, berr.Kind)
}

func TestGenerateCertificateWithNoCardReturnsHardwareError(t *testing.T) {
	b := unconnectedBackend()
	_, berr := b.GenerateCertificate("9c", "cn=test")
	require.NotNil(t, berr)
	require.Equal(t, trustedgeerr.HardwareError, berr.Kind)
}
