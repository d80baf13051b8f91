// Package softhsm implements the file-backed software HSM backend (spec
// §4.C): each key is two files under a configurable directory, a
// {key_id}.meta.json metadata record and a {key_id}.key wrapped private
// key, following the same "each key/version is its own addressable
// artifact" shape the teacher uses for KeyShareVersion persistence
// (pkg/persistence/interface.go), adapted from a KV-indexed store to a
// directory-indexed one because the spec mandates the exact filenames.
package softhsm

import (
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
)

// keyMetadataFile is the on-disk JSON shape of {key_id}.meta.json.
type keyMetadataFile struct {
	KeyID       string    `json:"key_id"`
	Algorithm   string    `json:"algorithm"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`
	UsageCount  uint64    `json:"usage_count"`
	PublicKey   []byte    `json:"public_key"`
}

// wrappedKeyFile is the on-disk JSON shape of {key_id}.key: a
// passphrase-wrapped private key. Salt and nonce travel alongside the
// ciphertext so unwrap doesn't need out-of-band state.
type wrappedKeyFile struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func algToString(alg primitives.AsymAlg) string {
	return alg.String()
}

func algFromString(s string) (primitives.AsymAlg, bool) {
	switch s {
	case "Ed25519":
		return primitives.AsymEd25519, true
	case "EcdsaP256":
		return primitives.AsymEcdsaP256, true
	default:
		return 0, false
	}
}

func sigAlgForAsym(alg primitives.AsymAlg) primitives.SigAlg {
	if alg == primitives.AsymEd25519 {
		return primitives.Ed25519
	}
	return primitives.EcdsaP256
}
