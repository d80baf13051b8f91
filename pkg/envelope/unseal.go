package envelope

import (
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/chain"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// UnsealOptions parameterizes Unseal and VerifyOnly.
type UnsealOptions struct {
	// VerifyKey, if set, must match the manifest's declared device public
	// key; otherwise the manifest's own key is used.
	VerifyKey []byte

	// SharedSecret reconstructs the per-chunk keys identically to Seal.
	// Not required for VerifyOnly.
	SharedSecret []byte
}

// VerifySignatureAndChain runs the two checks shared by Unseal and
// VerifyOnly, and are also all an archive reader can check without a
// decryption key: signature over the canonical manifest, then continuity
// of the manifest's own recorded segment chain. It does not touch chunk
// ciphertext at all — detecting ciphertext tamper requires either the
// decryption key (Unseal, via AEAD failure) or a check of the chunk bytes
// against the manifest's ciphertext_hash (archive.Read). VerifyOnly's
// chunkHashes are compared with the manifest's recorded plaintext hashes
// only, never with the ciphertext.
func VerifySignatureAndChain(env *Envelope, opts UnsealOptions) *trustedgeerr.TrustEdgeError {
	declaredPub := env.Manifest.Device.PublicKey
	if len(opts.VerifyKey) > 0 {
		if !primitives.ConstantTimeCompare(opts.VerifyKey, declaredPub) {
			return trustedgeerr.FromCrypto(trustedgeerr.NewCryptoError(trustedgeerr.SignatureVerificationFailed, "caller-supplied key does not match manifest device.public_key"))
		}
	}

	canonical, err := env.Manifest.ToCanonicalBytes()
	if err != nil {
		return trustedgeerr.FromManifest(err.(*trustedgeerr.ManifestError))
	}

	sigAlg := sigAlgForKeyLen(declaredPub)
	ok, verr := primitives.Verify(sigAlg, declaredPub, canonical, env.Signature)
	if verr != nil {
		return trustedgeerr.FromCrypto(verr.(*trustedgeerr.CryptoError))
	}
	if !ok {
		return trustedgeerr.FromCrypto(trustedgeerr.NewCryptoError(trustedgeerr.SignatureVerificationFailed, "manifest signature does not verify"))
	}

	links := make([]chain.Link, len(env.Manifest.Segments))
	for i, s := range env.Manifest.Segments {
		links[i] = chain.Link{SegmentHash: s.Blake3Hash, ContinuityHash: s.ContinuityHash}
	}
	if cerr := chain.VerifyRecorded(links); cerr != nil {
		return trustedgeerr.FromChain(cerr)
	}

	return nil
}

// sigAlgForKeyLen infers the signature algorithm from the declared public
// key's length, since the manifest does not carry an explicit algorithm
// tag: 32 bytes is Ed25519, the uncompressed P-256 point (65 bytes) is
// EcdsaP256.
func sigAlgForKeyLen(pub []byte) primitives.SigAlg {
	if len(pub) == 32 {
		return primitives.Ed25519
	}
	return primitives.EcdsaP256
}

// Unseal verifies an envelope's signature and continuity chain, then
// decrypts every chunk in order and concatenates the plaintext. A wrong
// key surfaces as either SignatureVerificationFailed or DecryptionFailed;
// there is no fallback path and no partial output.
func Unseal(env *Envelope, opts UnsealOptions) ([]byte, *trustedgeerr.TrustEdgeError) {
	if terr := VerifySignatureAndChain(env, opts); terr != nil {
		return nil, terr
	}

	var out []byte
	for _, ch := range env.Chunks {
		info := buildKDFInfo(env.SenderPub, env.RecipientPub, ch.Sequence)
		key, err := primitives.HkdfExpand(opts.SharedSecret, ch.Salt, info, primitives.AEADKeyLen)
		if err != nil {
			return nil, trustedgeerr.FromCrypto(err.(*trustedgeerr.CryptoError))
		}

		symAlg := primitives.XChaCha20Poly1305
		if len(ch.Nonce) == primitives.AESGCMNonceLen {
			symAlg = primitives.AES256GCM
		}

		plain, err := primitives.AeadOpen(symAlg, key, ch.Nonce, ch.Aad, ch.Ciphertext)
		primitives.Zeroize(key)
		if err != nil {
			return nil, trustedgeerr.FromCrypto(err.(*trustedgeerr.CryptoError))
		}
		out = append(out, plain...)
	}

	return out, nil
}

// VerifyOnly checks the manifest signature and continuity chain, then
// compares chunkHashes — a caller-trusted, independently obtained list of
// the original plaintext segment hashes, in sequence order — against the
// manifest's recorded hashes. No decryption key is required. When the
// caller has no independent hash list to check, use
// VerifySignatureAndChain directly instead of passing an empty slice here.
func VerifyOnly(env *Envelope, chunkHashes [][]byte, opts UnsealOptions) *trustedgeerr.TrustEdgeError {
	if terr := VerifySignatureAndChain(env, opts); terr != nil {
		return terr
	}
	if len(chunkHashes) != len(env.Manifest.Segments) {
		return trustedgeerr.FromChain(trustedgeerr.NewChainError(trustedgeerr.ChainLengthMismatch))
	}
	for i, s := range env.Manifest.Segments {
		if !primitives.ConstantTimeCompare(chunkHashes[i], s.Blake3Hash) {
			return trustedgeerr.FromChain(trustedgeerr.NewChainOutOfOrder(i))
		}
	}
	return nil
}
