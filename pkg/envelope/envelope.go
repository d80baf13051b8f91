// Package envelope implements the sealing and unsealing protocol: chunked
// AEAD encryption under per-chunk derived keys, a signed canonical
// manifest, and a continuity chain binding the chunk sequence together.
// Backend dispatch follows the teacher's AttestationManager pattern
// (internal/operator/operator.go) of routing a request through a single
// capability-checked interface rather than type-switching on a concrete
// backend — here that interface is pkg/backend.Backend.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/chain"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// EncryptedChunk is one sealed segment's wire/disk representation.
type EncryptedChunk struct {
	Sequence       uint64
	Salt           []byte // HKDF salt for this chunk's derived key
	Nonce          []byte
	Ciphertext     []byte
	ManifestDigest []byte
	Aad            []byte
	Timestamp      time.Time
}

// Envelope is a complete sealed artifact: a signed manifest and its
// ordered sealed chunks.
type Envelope struct {
	Manifest     *manifest.Manifest
	Signature    []byte
	Chunks       []EncryptedChunk
	SenderPub    []byte
	RecipientPub []byte
}

// Metadata carries the caller-supplied descriptive fields a seal populates
// into the manifest's device/capture sections.
type Metadata struct {
	DeviceID        string
	CaptureStarted  time.Time
	CaptureFormat   string
	SegmentDuration float64 // seconds attributed to each full-size chunk
}

// SealOptions parameterizes Seal. There is no SenderPub field: the sender
// is always the device whose key signs the manifest, so its public key
// (fetched from Backend) is used as the sender identity for both the HKDF
// info string and the AAD binding.
type SealOptions struct {
	Backend      backend.Backend
	KeyID        backend.KeyID
	SigAlg       primitives.SigAlg
	SymAlg       primitives.SymAlg
	RecipientPub []byte
	ChunkSize    int // 0 means primitives.DefaultChunkSize
	Meta         Metadata
	SharedSecret []byte // IKM for per-chunk key derivation
}

// Seal chunks payload, encrypts each chunk under a freshly derived key and
// nonce, builds and signs a canonical manifest, and returns the completed
// envelope. Sealing is not restartable on partial failure: if any chunk
// fails to encrypt, no partial envelope is returned.
func Seal(payload []byte, opts SealOptions) (*Envelope, *trustedgeerr.TrustEdgeError) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = primitives.DefaultChunkSize
	}
	symAlg := opts.SymAlg

	pubKeyResult, berr := opts.Backend.PerformOperation(opts.KeyID, backend.NewGetPublicKeyOp())
	if berr != nil {
		return nil, trustedgeerr.FromBackend(berr)
	}
	devicePub := pubKeyResult.PublicKey

	chunks := chunkPayload(payload, chunkSize)

	manifestDigestPlaceholder, err := ComputeManifestDigest(devicePub, opts.Meta.DeviceID, opts.Meta.CaptureFormat, chunkSize)
	if err != nil {
		return nil, trustedgeerr.FromManifest(trustedgeerr.WrapManifestError(trustedgeerr.ManifestSerialization, "failed to compute placeholder manifest digest", err))
	}

	sealed := make([]EncryptedChunk, len(chunks))
	segments := make([]manifest.Segment, len(chunks))
	prevContinuity := chain.Genesis
	now := opts.Meta.CaptureStarted
	segDuration := opts.Meta.SegmentDuration

	for i, plain := range chunks {
		salt, err := primitives.RandomBytes(primitives.HKDFSaltLen)
		if err != nil {
			return nil, trustedgeerr.FromCrypto(trustedgeerr.WrapCryptoError(trustedgeerr.KeyGenerationFailed, "failed to draw HKDF salt", err))
		}
		info := buildKDFInfo(devicePub, opts.RecipientPub, uint64(i))
		key, err := primitives.HkdfExpand(opts.SharedSecret, salt, info, primitives.AEADKeyLen)
		if err != nil {
			return nil, trustedgeerr.FromCrypto(err.(*trustedgeerr.CryptoError))
		}

		nonce, err := primitives.RandomBytes(primitives.NonceLenForAlgorithm(symAlg))
		if err != nil {
			primitives.Zeroize(key)
			return nil, trustedgeerr.FromCrypto(trustedgeerr.WrapCryptoError(trustedgeerr.KeyGenerationFailed, "failed to draw nonce", err))
		}

		aad := buildAAD(devicePub, opts.RecipientPub, nonce, manifestDigestPlaceholder, uint64(i))
		ciphertext, err := primitives.AeadSeal(symAlg, key, nonce, aad, plain)
		primitives.Zeroize(key)
		if err != nil {
			return nil, trustedgeerr.FromCrypto(err.(*trustedgeerr.CryptoError))
		}

		sealed[i] = EncryptedChunk{
			Sequence:       uint64(i),
			Salt:           salt,
			Nonce:          nonce,
			Ciphertext:     ciphertext,
			ManifestDigest: manifestDigestPlaceholder,
			Aad:            aad,
			Timestamp:      time.Now().UTC(),
		}

		segHash := chain.SegmentHash(plain)
		continuity := chain.Next(prevContinuity, segHash)
		prevContinuity = continuity

		ciphertextHash := primitives.Blake3(ciphertext)

		start := float64(i) * segDuration
		segments[i] = manifest.Segment{
			ChunkFile:       chunkFileName(i),
			Blake3Hash:      segHash,
			CiphertextHash:  ciphertextHash[:],
			StartTime:       start,
			DurationSeconds: segDurationFor(segDuration, len(plain), chunkSize),
			ContinuityHash:  continuity,
			Nonce:           nonce,
			Salt:            salt,
		}
	}

	m := &manifest.Manifest{
		Device: manifest.Device{ID: opts.Meta.DeviceID, PublicKey: devicePub},
		Capture: manifest.Capture{
			StartedAt:       now,
			DurationSeconds: segments[len(segments)-1].StartTime + segments[len(segments)-1].DurationSeconds,
			Format:          opts.Meta.CaptureFormat,
		},
		ChunkSize: chunkSize,
		Segments:  segments,
	}

	if verr := m.Validate(); verr != nil {
		return nil, trustedgeerr.FromManifest(verr)
	}

	canonical, err := m.ToCanonicalBytes()
	if err != nil {
		return nil, trustedgeerr.FromManifest(err.(*trustedgeerr.ManifestError))
	}

	sig, berr := opts.Backend.PerformOperation(opts.KeyID, backend.NewSignOp(canonical, opts.SigAlg))
	if berr != nil {
		return nil, trustedgeerr.FromBackend(berr)
	}
	m.SetSignature(sig.Signed)

	return &Envelope{
		Manifest:     m,
		Signature:    sig.Signed,
		Chunks:       sealed,
		SenderPub:    devicePub,
		RecipientPub: opts.RecipientPub,
	}, nil
}

func chunkPayload(payload []byte, chunkSize int) [][]byte {
	if len(payload) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for offset := 0; offset < len(payload); offset += chunkSize {
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[offset:end])
	}
	return chunks
}

func chunkFileName(i int) string {
	return paddedSequence(i) + ".bin"
}

// paddedSequence zero-pads a chunk sequence number to the archive format's
// minimum width of 5 digits.
func paddedSequence(i int) string {
	digits := "00000"
	s := itoa(i)
	if len(s) >= len(digits) {
		return s
	}
	return digits[:len(digits)-len(s)] + s
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

func segDurationFor(nominal float64, plainLen, chunkSize int) float64 {
	if plainLen < chunkSize {
		// Last, short chunk: scale its claimed duration proportionally so
		// capture.duration_seconds reflects actual content, not padding.
		if chunkSize == 0 {
			return 0
		}
		return nominal * float64(plainLen) / float64(chunkSize)
	}
	return nominal
}

func buildKDFInfo(senderPub, recipientPub []byte, sequence uint64) []byte {
	info := make([]byte, 0, len(senderPub)+len(recipientPub)+8)
	info = append(info, senderPub...)
	info = append(info, recipientPub...)
	info = append(info, leUint64(sequence)...)
	return info
}

func buildAAD(senderPub, recipientPub, nonce, manifestDigest []byte, sequence uint64) []byte {
	aad := make([]byte, 0, len(senderPub)+len(recipientPub)+len(nonce)+len(manifestDigest)+8)
	aad = append(aad, senderPub...)
	aad = append(aad, recipientPub...)
	aad = append(aad, nonce...)
	aad = append(aad, manifestDigest...)
	aad = append(aad, leUint64(sequence)...)
	return aad
}

func leUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// ComputeManifestDigest computes the AAD binding value chunks are sealed
// under. It covers exactly the manifest fields fixed before any chunk is
// processed — device identity, capture descriptor, chunk size —
// deliberately excluding segments[] and capture.duration_seconds, both of
// which only become known once every chunk has been sealed. Unsealing (and
// archive reassembly) recomputes the identical value from the loaded
// manifest's own device/capture/chunk_size fields, so it never needs to be
// persisted anywhere beyond the chunk's own in-memory aad record.
func ComputeManifestDigest(devicePub []byte, deviceID, captureFormat string, chunkSize int) ([]byte, error) {
	tree := map[string]interface{}{
		"chunk_size": chunkSize,
		"device": map[string]interface{}{
			"id":         deviceID,
			"public_key": devicePub,
		},
		"capture_format": captureFormat,
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	sum := primitives.Blake3(b)
	return sum[:], nil
}

// AssembleFromDisk rebuilds an in-memory Envelope from a loaded manifest,
// its detached signature, and the raw chunk ciphertext bytes read from an
// archive's chunks/ directory (in sequence order). recipientPub is
// supplied by the caller rather than recovered from disk, the same way
// SharedSecret already is for Unseal: a recipient always knows their own
// public key out of band, so the archive format doesn't need to persist
// it. The sender's identity, by contrast, is always the manifest's own
// device.public_key, so it round-trips for free.
func AssembleFromDisk(m *manifest.Manifest, signature []byte, chunkCiphertexts [][]byte, recipientPub []byte) (*Envelope, *trustedgeerr.TrustEdgeError) {
	if len(chunkCiphertexts) != len(m.Segments) {
		return nil, trustedgeerr.FromChain(trustedgeerr.NewChainError(trustedgeerr.ChainLengthMismatch))
	}

	senderPub := m.Device.PublicKey
	digest, err := ComputeManifestDigest(senderPub, m.Device.ID, m.Capture.Format, m.ChunkSize)
	if err != nil {
		return nil, trustedgeerr.FromManifest(trustedgeerr.WrapManifestError(trustedgeerr.ManifestSerialization, "failed to recompute manifest digest", err))
	}

	chunks := make([]EncryptedChunk, len(m.Segments))
	for i, s := range m.Segments {
		aad := buildAAD(senderPub, recipientPub, s.Nonce, digest, uint64(i))
		chunks[i] = EncryptedChunk{
			Sequence:       uint64(i),
			Salt:           s.Salt,
			Nonce:          s.Nonce,
			Ciphertext:     chunkCiphertexts[i],
			ManifestDigest: digest,
			Aad:            aad,
		}
	}

	return &Envelope{
		Manifest:     m,
		Signature:    signature,
		Chunks:       chunks,
		SenderPub:    senderPub,
		RecipientPub: recipientPub,
	}, nil
}
