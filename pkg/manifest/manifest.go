// Package manifest implements the canonical metadata record a sealed
// envelope signs over: device identity, capture info, and the ordered
// per-segment continuity chain. Canonicalization follows the teacher's
// keccak-over-packed-fields approach to stable signed bytes (pkg/merkle),
// generalized from a fixed ABI-style packing to JSON because the manifest
// has a variable-length, evolving field set that a packed encoding can't
// express without a schema version bump on every change.
package manifest

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// Device identifies the signer of a manifest.
type Device struct {
	ID        string
	PublicKey []byte
}

// Capture describes the original source material a sealed payload was
// captured from.
type Capture struct {
	StartedAt       time.Time
	DurationSeconds float64
	Format          string
}

// Segment is the manifest-level record for one sealed chunk. Nonce and
// Salt travel here, signed along with everything else, rather than in a
// separate sidecar: the archive format persists only manifest.json, the
// chunk ciphertexts, and the detached signature, so there is nowhere else
// for a reader to recover the per-chunk values needed to re-derive the
// decryption key. Binding them into the signed manifest also means a
// swapped nonce is caught by signature verification, not silently
// accepted.
//
// Blake3Hash and CiphertextHash cover different bytes and serve different
// readers. Blake3Hash is BLAKE3(plaintext chunk) and feeds the continuity
// chain (chain.SegmentHash/chain.Next) exactly like the chain's own
// sequence needs: a chain over plaintext content, not over a transport
// detail like the AEAD nonce. CiphertextHash is BLAKE3(chunk_file bytes on
// disk) and lets Read/VerifyOnly detect an archive whose chunk file was
// tampered with in place (same-length substitution) without needing to
// decrypt anything. Both are covered by the manifest signature, so neither
// can be forged without the signing key.
type Segment struct {
	ChunkFile       string
	Blake3Hash      []byte
	CiphertextHash  []byte
	StartTime       float64
	DurationSeconds float64
	ContinuityHash  []byte
	Nonce           []byte
	Salt            []byte
}

// Manifest is the canonical metadata a sealed envelope's signature covers.
// Signature is populated only after signing, via SetSignature, and is
// excluded from ToCanonicalBytes regardless of whether it is set.
type Manifest struct {
	Device    Device
	Capture   Capture
	ChunkSize int
	Segments  []Segment
	Signature []byte
}

// SetSignature is the only mutator that injects a detached signature into
// a manifest for persistence; it never affects ToCanonicalBytes.
func (m *Manifest) SetSignature(sig []byte) {
	m.Signature = sig
}

// ToCanonicalBytes renders the manifest as JSON with alphabetically sorted
// object keys, fixed 6-digit decimal precision on duration/time fields, and
// the signature field omitted, so the same logical manifest always signs
// and re-serializes to identical bytes. encoding/json sorts map[string]*
// keys alphabetically during Marshal, which is what gives per-object key
// ordering here without a hand-rolled encoder.
func (m *Manifest) ToCanonicalBytes() ([]byte, error) {
	segments := make([]map[string]interface{}, len(m.Segments))
	for i, s := range m.Segments {
		segments[i] = map[string]interface{}{
			"chunk_file":       s.ChunkFile,
			"blake3_hash":      hexutil.Bytes(s.Blake3Hash),
			"ciphertext_hash":  hexutil.Bytes(s.CiphertextHash),
			"start_time":       FixedDecimal(s.StartTime),
			"duration_seconds": FixedDecimal(s.DurationSeconds),
			"continuity_hash":  hexutil.Bytes(s.ContinuityHash),
			"nonce":            hexutil.Bytes(s.Nonce),
			"salt":             hexutil.Bytes(s.Salt),
		}
	}

	tree := map[string]interface{}{
		"device": map[string]interface{}{
			"id":         m.Device.ID,
			"public_key": hexutil.Bytes(m.Device.PublicKey),
		},
		"capture": map[string]interface{}{
			"started_at":       m.Capture.StartedAt.UTC().Format(time.RFC3339Nano),
			"duration_seconds": FixedDecimal(m.Capture.DurationSeconds),
			"format":           m.Capture.Format,
		},
		"chunk_size": m.ChunkSize,
		"segments":   segments,
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return nil, trustedgeerr.WrapManifestError(trustedgeerr.ManifestSerialization, "failed to marshal canonical manifest", err)
	}
	return out, nil
}

// Digest returns the BLAKE3 digest of the manifest's canonical bytes. The
// per-chunk AAD binding value is computed separately (see
// envelope.ComputeManifestDigest), and archive.DeriveID hashes the
// canonical bytes itself rather than calling Digest.
func (m *Manifest) Digest() ([]byte, error) {
	b, err := m.ToCanonicalBytes()
	if err != nil {
		return nil, err
	}
	sum := primitives.Blake3(b)
	return sum[:], nil
}

type diskSegment struct {
	ChunkFile       string        `json:"chunk_file"`
	Blake3Hash      hexutil.Bytes `json:"blake3_hash"`
	CiphertextHash  hexutil.Bytes `json:"ciphertext_hash"`
	StartTime       FixedDecimal  `json:"start_time"`
	DurationSeconds FixedDecimal  `json:"duration_seconds"`
	ContinuityHash  hexutil.Bytes `json:"continuity_hash"`
	Nonce           hexutil.Bytes `json:"nonce"`
	Salt            hexutil.Bytes `json:"salt"`
}

// diskRecord is the on-disk JSON shape of manifest.json: the canonical
// fields plus the (now populated) signature, laid out for human-legible
// round-tripping rather than for canonicalization.
type diskRecord struct {
	Device struct {
		ID        string        `json:"id"`
		PublicKey hexutil.Bytes `json:"public_key"`
	} `json:"device"`
	Capture struct {
		StartedAt       time.Time    `json:"started_at"`
		DurationSeconds FixedDecimal `json:"duration_seconds"`
		Format          string       `json:"format"`
	} `json:"capture"`
	ChunkSize int           `json:"chunk_size"`
	Segments  []diskSegment `json:"segments"`
	Signature hexutil.Bytes `json:"signature,omitempty"`
}

// MarshalForDisk renders the manifest including its signature, for
// persistence as archive/manifest.json.
func (m *Manifest) MarshalForDisk() ([]byte, error) {
	var rec diskRecord
	rec.Device.ID = m.Device.ID
	rec.Device.PublicKey = m.Device.PublicKey
	rec.Capture.StartedAt = m.Capture.StartedAt.UTC()
	rec.Capture.DurationSeconds = FixedDecimal(m.Capture.DurationSeconds)
	rec.Capture.Format = m.Capture.Format
	rec.ChunkSize = m.ChunkSize
	rec.Signature = m.Signature

	rec.Segments = make([]diskSegment, len(m.Segments))
	for i, s := range m.Segments {
		rec.Segments[i] = diskSegment{
			ChunkFile:       s.ChunkFile,
			Blake3Hash:      s.Blake3Hash,
			CiphertextHash:  s.CiphertextHash,
			StartTime:       FixedDecimal(s.StartTime),
			DurationSeconds: FixedDecimal(s.DurationSeconds),
			ContinuityHash:  s.ContinuityHash,
			Nonce:           s.Nonce,
			Salt:            s.Salt,
		}
	}

	out, err := json.Marshal(rec)
	if err != nil {
		return nil, trustedgeerr.WrapManifestError(trustedgeerr.ManifestSerialization, "failed to marshal manifest for disk", err)
	}
	return out, nil
}

// FromDisk parses a manifest.json record, including its signature.
func FromDisk(data []byte) (*Manifest, error) {
	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, trustedgeerr.WrapManifestError(trustedgeerr.ManifestSerialization, "failed to parse manifest", err)
	}

	m := &Manifest{
		Device:    Device{ID: rec.Device.ID, PublicKey: []byte(rec.Device.PublicKey)},
		Capture:   Capture{StartedAt: rec.Capture.StartedAt, DurationSeconds: float64(rec.Capture.DurationSeconds), Format: rec.Capture.Format},
		ChunkSize: rec.ChunkSize,
		Signature: []byte(rec.Signature),
	}
	m.Segments = make([]Segment, len(rec.Segments))
	for i, s := range rec.Segments {
		m.Segments[i] = Segment{
			ChunkFile:       s.ChunkFile,
			Blake3Hash:      []byte(s.Blake3Hash),
			CiphertextHash:  []byte(s.CiphertextHash),
			StartTime:       float64(s.StartTime),
			DurationSeconds: float64(s.DurationSeconds),
			ContinuityHash:  []byte(s.ContinuityHash),
			Nonce:           []byte(s.Nonce),
			Salt:            []byte(s.Salt),
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
