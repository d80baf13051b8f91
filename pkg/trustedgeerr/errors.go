// Package trustedgeerr defines the hierarchical error taxonomy shared by every
// TrustEdge-Core subsystem. Each subsystem returns its own concrete error type;
// TrustEdgeError wraps whichever one surfaced so callers can either match on
// the concrete type directly or walk the chain with errors.As/errors.Is.
package trustedgeerr

import "fmt"

// CryptoErrorKind enumerates the ways a primitive operation can fail.
type CryptoErrorKind int

const (
	InvalidKey CryptoErrorKind = iota
	EncryptionFailed
	DecryptionFailed
	SignatureVerificationFailed
	KeyGenerationFailed
	InvalidNonce
)

func (k CryptoErrorKind) String() string {
	switch k {
	case InvalidKey:
		return "InvalidKey"
	case EncryptionFailed:
		return "EncryptionFailed"
	case DecryptionFailed:
		return "DecryptionFailed"
	case SignatureVerificationFailed:
		return "SignatureVerificationFailed"
	case KeyGenerationFailed:
		return "KeyGenerationFailed"
	case InvalidNonce:
		return "InvalidNonce"
	default:
		return "Unknown"
	}
}

// CryptoError reports a failure in pkg/primitives. DecryptionFailed never
// distinguishes "wrong key" from "tampered ciphertext" — both look identical
// to a verifier, by design.
type CryptoError struct {
	Kind    CryptoErrorKind
	Message string
	Err     error
}

func (e *CryptoError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("crypto: %s", e.Kind)
	}
	return fmt.Sprintf("crypto: %s: %s", e.Kind, e.Message)
}

func (e *CryptoError) Unwrap() error { return e.Err }

func NewCryptoError(kind CryptoErrorKind, msg string) *CryptoError {
	return &CryptoError{Kind: kind, Message: msg}
}

func WrapCryptoError(kind CryptoErrorKind, msg string, err error) *CryptoError {
	return &CryptoError{Kind: kind, Message: msg, Err: err}
}

// BackendErrorKind enumerates the ways a Backend operation can fail.
type BackendErrorKind int

const (
	KeyNotFound BackendErrorKind = iota
	UnsupportedOperation
	HardwareError
	InitializationFailed
	OperationFailed
)

func (k BackendErrorKind) String() string {
	switch k {
	case KeyNotFound:
		return "KeyNotFound"
	case UnsupportedOperation:
		return "UnsupportedOperation"
	case HardwareError:
		return "HardwareError"
	case InitializationFailed:
		return "InitializationFailed"
	case OperationFailed:
		return "OperationFailed"
	default:
		return "Unknown"
	}
}

// BackendError is the only error type every Backend method may return.
type BackendError struct {
	Kind    BackendErrorKind
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %s", e.Kind)
	}
	return fmt.Sprintf("backend: %s: %s", e.Kind, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

func NewBackendError(kind BackendErrorKind, msg string) *BackendError {
	return &BackendError{Kind: kind, Message: msg}
}

func WrapBackendError(kind BackendErrorKind, msg string, err error) *BackendError {
	return &BackendError{Kind: kind, Message: msg, Err: err}
}

// ArchiveErrorKind enumerates archive read/write/verify failures.
type ArchiveErrorKind int

const (
	ArchiveIO ArchiveErrorKind = iota
	ArchiveManifest
	ArchiveMissingChunk
	ArchiveSignatureMismatch
	ArchiveSchemaMismatch
	ArchiveChain
	ArchiveContentTampered
)

func (k ArchiveErrorKind) String() string {
	switch k {
	case ArchiveIO:
		return "Io"
	case ArchiveManifest:
		return "Manifest"
	case ArchiveMissingChunk:
		return "MissingChunk"
	case ArchiveSignatureMismatch:
		return "SignatureMismatch"
	case ArchiveSchemaMismatch:
		return "SchemaMismatch"
	case ArchiveChain:
		return "Chain"
	case ArchiveContentTampered:
		return "ContentTampered"
	default:
		return "Unknown"
	}
}

type ArchiveError struct {
	Kind    ArchiveErrorKind
	Message string
	Err     error
}

func (e *ArchiveError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("archive: %s", e.Kind)
	}
	return fmt.Sprintf("archive: %s: %s", e.Kind, e.Message)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

func NewArchiveError(kind ArchiveErrorKind, msg string) *ArchiveError {
	return &ArchiveError{Kind: kind, Message: msg}
}

func WrapArchiveError(kind ArchiveErrorKind, msg string, err error) *ArchiveError {
	return &ArchiveError{Kind: kind, Message: msg, Err: err}
}

// ManifestErrorKind enumerates manifest (de)serialization and validation failures.
type ManifestErrorKind int

const (
	ManifestSerialization ManifestErrorKind = iota
	ManifestValidation
)

func (k ManifestErrorKind) String() string {
	if k == ManifestSerialization {
		return "Serialization"
	}
	return "Validation"
}

type ManifestError struct {
	Kind    ManifestErrorKind
	Message string
	Err     error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest: %s: %s", e.Kind, e.Message)
}

func (e *ManifestError) Unwrap() error { return e.Err }

func NewManifestError(kind ManifestErrorKind, msg string) *ManifestError {
	return &ManifestError{Kind: kind, Message: msg}
}

func WrapManifestError(kind ManifestErrorKind, msg string, err error) *ManifestError {
	return &ManifestError{Kind: kind, Message: msg, Err: err}
}

// ChainErrorKind enumerates continuity-chain verification failures.
type ChainErrorKind int

const (
	ChainOutOfOrder ChainErrorKind = iota
	ChainLengthMismatch
	ChainEmpty
)

type ChainError struct {
	Kind  ChainErrorKind
	Index int // meaningful only when Kind == ChainOutOfOrder
}

func (e *ChainError) Error() string {
	switch e.Kind {
	case ChainOutOfOrder:
		return fmt.Sprintf("chain: out of order at segment %d", e.Index)
	case ChainLengthMismatch:
		return "chain: length mismatch"
	case ChainEmpty:
		return "chain: empty chain"
	default:
		return "chain: unknown error"
	}
}

func NewChainOutOfOrder(index int) *ChainError {
	return &ChainError{Kind: ChainOutOfOrder, Index: index}
}

func NewChainError(kind ChainErrorKind) *ChainError {
	return &ChainError{Kind: kind}
}

// TrustEdgeError is the top-level error every public API call returns.
// Exactly one of its fields is non-nil. Use errors.As to recover the
// concrete subsystem error.
type TrustEdgeError struct {
	Crypto   *CryptoError
	Backend  *BackendError
	Archive  *ArchiveError
	Manifest *ManifestError
	Chain    *ChainError
	Io       error
	Json     error
}

func (e *TrustEdgeError) Error() string {
	switch {
	case e.Crypto != nil:
		return e.Crypto.Error()
	case e.Backend != nil:
		return e.Backend.Error()
	case e.Archive != nil:
		return e.Archive.Error()
	case e.Manifest != nil:
		return e.Manifest.Error()
	case e.Chain != nil:
		return e.Chain.Error()
	case e.Io != nil:
		return fmt.Sprintf("io: %s", e.Io)
	case e.Json != nil:
		return fmt.Sprintf("json: %s", e.Json)
	default:
		return "trustedge: unknown error"
	}
}

func (e *TrustEdgeError) Unwrap() error {
	switch {
	case e.Crypto != nil:
		return e.Crypto
	case e.Backend != nil:
		return e.Backend
	case e.Archive != nil:
		return e.Archive
	case e.Manifest != nil:
		return e.Manifest
	case e.Chain != nil:
		return e.Chain
	case e.Io != nil:
		return e.Io
	case e.Json != nil:
		return e.Json
	default:
		return nil
	}
}

func FromCrypto(e *CryptoError) *TrustEdgeError     { return &TrustEdgeError{Crypto: e} }
func FromBackend(e *BackendError) *TrustEdgeError   { return &TrustEdgeError{Backend: e} }
func FromArchive(e *ArchiveError) *TrustEdgeError   { return &TrustEdgeError{Archive: e} }
func FromManifest(e *ManifestError) *TrustEdgeError { return &TrustEdgeError{Manifest: e} }
func FromChain(e *ChainError) *TrustEdgeError       { return &TrustEdgeError{Chain: e} }
func FromIo(err error) *TrustEdgeError              { return &TrustEdgeError{Io: err} }
func FromJson(err error) *TrustEdgeError            { return &TrustEdgeError{Json: err} }
