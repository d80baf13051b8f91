package backend

import (
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// KeyID is an opaque identifier scoped to one backend. For the software HSM
// it is a filename-safe string; for the YubiKey PIV backend it must equal
// one of "9a", "9c", "9d", "9e".
type KeyID string

// KeyMetadata describes one key a backend can operate on, as returned by
// ListKeys.
type KeyMetadata struct {
	KeyID       KeyID
	Algorithm   string
	CreatedAt   time.Time
	Description string
	UsageCount  uint64
}

// BackendCapabilities describes what a backend can do. The registry
// consults this before routing an operation to the backend.
type BackendCapabilities struct {
	SymmetricAlgorithms  []primitives.SymAlg
	AsymmetricAlgorithms []primitives.AsymAlg
	SignatureAlgorithms  []primitives.SigAlg
	HashAlgorithms       []primitives.HashAlg
	HardwareBacked       bool
	SupportsAttestation  bool
	SupportsKeyGen       bool
	MaxKeySize           int
}

// BackendInfo reports a backend's identity and current availability.
// Available is a racy snapshot (spec invariant C3): for hardware backends
// it must never be cached past one session's lifetime (invariant I4).
type BackendInfo struct {
	Name      string
	Available bool
	Hardware  bool
}

// Backend is the capability-dispatch contract every key store implements,
// whether software-backed, hardware-backed, or cloud-backed. Every method
// returns a *trustedgeerr.BackendError on failure — never a generic error —
// so callers can discriminate KeyNotFound / UnsupportedOperation /
// HardwareError / InitializationFailed / OperationFailed.
type Backend interface {
	// PerformOperation dispatches op to the key identified by keyID.
	// GetPublicKey, GenerateKeyPair and Attest may not need a specific
	// existing key; callers pass the empty KeyID or a hint as the backend
	// documents.
	PerformOperation(keyID KeyID, op CryptoOperation) (CryptoResult, *trustedgeerr.BackendError)

	// SupportsOperation reports whether this backend can perform op at
	// all (independent of whether keyID exists). Spec property P6: if this
	// returns false, PerformOperation for the same op kind must return
	// UnsupportedOperation.
	SupportsOperation(op CryptoOperation) bool

	GetCapabilities() BackendCapabilities

	BackendInfo() BackendInfo

	ListKeys() ([]KeyMetadata, *trustedgeerr.BackendError)
}
