// Package backend defines the capability-based dispatch contract that
// software and hardware key stores implement: a single tagged
// CryptoOperation request type and a single tagged CryptoResult response
// type, so adding a backend or an operation is purely additive — backends
// never have to stub out methods they don't support.
package backend

import "github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"

// OperationKind tags which variant a CryptoOperation carries.
type OperationKind int

const (
	OpSign OperationKind = iota
	OpVerify
	OpGetPublicKey
	OpGenerateKeyPair
	OpHash
	OpDeriveKey
	OpAttest
)

func (k OperationKind) String() string {
	switch k {
	case OpSign:
		return "Sign"
	case OpVerify:
		return "Verify"
	case OpGetPublicKey:
		return "GetPublicKey"
	case OpGenerateKeyPair:
		return "GenerateKeyPair"
	case OpHash:
		return "Hash"
	case OpDeriveKey:
		return "DeriveKey"
	case OpAttest:
		return "Attest"
	default:
		return "Unknown"
	}
}

// KeyDerivationContext parameterizes a DeriveKey request.
type KeyDerivationContext struct {
	Salt []byte
	Info []byte
	Len  int
}

// CryptoOperation is the tagged request variant dispatched to a Backend.
// Exactly the fields relevant to Kind are populated; callers construct one
// of these with the package-level constructors below rather than setting
// fields directly, so a request can never carry a kind/field mismatch.
type CryptoOperation struct {
	Kind OperationKind

	// Sign / Verify
	Data      []byte
	Signature []byte
	PublicKey []byte
	SigAlg    primitives.SigAlg

	// GenerateKeyPair
	AsymAlg primitives.AsymAlg

	// Hash
	HashAlg primitives.HashAlg

	// DeriveKey
	DeriveCtx KeyDerivationContext

	// Attest
	Challenge []byte
}

func NewSignOp(data []byte, alg primitives.SigAlg) CryptoOperation {
	return CryptoOperation{Kind: OpSign, Data: data, SigAlg: alg}
}

func NewVerifyOp(data, signature, publicKey []byte, alg primitives.SigAlg) CryptoOperation {
	return CryptoOperation{Kind: OpVerify, Data: data, Signature: signature, PublicKey: publicKey, SigAlg: alg}
}

func NewGetPublicKeyOp() CryptoOperation {
	return CryptoOperation{Kind: OpGetPublicKey}
}

func NewGenerateKeyPairOp(alg primitives.AsymAlg) CryptoOperation {
	return CryptoOperation{Kind: OpGenerateKeyPair, AsymAlg: alg}
}

func NewHashOp(data []byte, alg primitives.HashAlg) CryptoOperation {
	return CryptoOperation{Kind: OpHash, Data: data, HashAlg: alg}
}

func NewDeriveKeyOp(ctx KeyDerivationContext) CryptoOperation {
	return CryptoOperation{Kind: OpDeriveKey, DeriveCtx: ctx}
}

func NewAttestOp(challenge []byte) CryptoOperation {
	return CryptoOperation{Kind: OpAttest, Challenge: challenge}
}

// CryptoResult is the tagged response variant returned by a Backend.
// Callers should switch on Kind (which always matches the request's Kind
// on success) before reading fields.
type CryptoResult struct {
	Kind OperationKind

	Signed        []byte
	VerifyResult  bool
	PublicKey     []byte
	KeyPairPublic []byte
	KeyPairKeyID  string
	Hashed        []byte
	DerivedKey    []byte
	Attestation   []byte
}
