package manifest

import (
	"fmt"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

const blake3HashLen = 32

// Validate rejects a manifest that doesn't meet the structural rules a
// signature alone can't express: required fields present, chunk_size
// positive, a non-empty dense segment sequence (segment i's chunk_file is
// the zero-padded "%05d.bin" name for i), correctly sized hashes, and a
// non-empty device key. The device key's length and encoding are not
// checked.
func (m *Manifest) Validate() *trustedgeerr.ManifestError {
	if m.Device.ID == "" {
		return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "device.id is required")
	}
	if len(m.Device.PublicKey) == 0 {
		return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "device.public_key is required")
	}
	if m.Capture.Format == "" {
		return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "capture.format is required")
	}
	if m.ChunkSize <= 0 {
		return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "chunk_size must be positive")
	}
	if len(m.Segments) == 0 {
		return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segments must not be empty")
	}

	for i, s := range m.Segments {
		if s.ChunkFile == "" {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segment has empty chunk_file")
		}
		if s.ChunkFile != fmt.Sprintf("%05d.bin", i) {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segments are not contiguous: unexpected chunk_file "+s.ChunkFile)
		}
		if len(s.Blake3Hash) != blake3HashLen {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segment has malformed blake3_hash length")
		}
		if len(s.CiphertextHash) != blake3HashLen {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segment has malformed ciphertext_hash length")
		}
		if len(s.ContinuityHash) != blake3HashLen {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segment has malformed continuity_hash length")
		}
		if len(s.Nonce) == 0 {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segment has empty nonce")
		}
		if len(s.Salt) == 0 {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segment has empty salt")
		}
		if s.DurationSeconds < 0 {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segment duration_seconds must not be negative")
		}
		if i > 0 && s.StartTime < m.Segments[i-1].StartTime {
			return trustedgeerr.NewManifestError(trustedgeerr.ManifestValidation, "segments are not in non-decreasing start_time order")
		}
	}

	return nil
}
