// Package archive materializes a sealed envelope as a `.trst` directory
// tree on disk and reads it back. The writer follows the same
// write-the-risky-part-first discipline as the software HSM's key store
// (pkg/backend/softhsm/store.go persistNewKey): chunks land before the
// manifest, and the manifest lands before its detached signature, so a
// process killed mid-write never leaves a signed manifest pointing at
// missing chunk data.
package archive

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/envelope"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

const (
	manifestFileName  = "manifest.json"
	signatureFileName = "manifest.sig"
	chunkFileDigits   = 5
)

// DeriveID computes the archive's canonical directory name from the
// manifest's canonical bytes: "clip-" followed by the first 16 hex
// characters of its BLAKE3 digest.
func DeriveID(canonicalManifestBytes []byte) string {
	sum := primitives.Blake3(canonicalManifestBytes)
	return "clip-" + hex.EncodeToString(sum[:])[:16]
}

// Write creates <parentDir>/<id>.trst and populates it from env, where id
// is derived from the manifest's own canonical bytes. Returns the full
// archive directory path on success.
func Write(parentDir string, env *envelope.Envelope) (string, *trustedgeerr.ArchiveError) {
	canonical, err := env.Manifest.ToCanonicalBytes()
	if err != nil {
		return "", trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveManifest, "failed to canonicalize manifest", err)
	}
	id := DeriveID(canonical)
	dir := filepath.Join(parentDir, id+".trst")

	if err := os.MkdirAll(filepath.Join(dir, "chunks"), 0o755); err != nil {
		return "", trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to create archive directories", err)
	}

	for i, ch := range env.Chunks {
		path := filepath.Join(dir, "chunks", chunkFileName(i))
		if err := os.WriteFile(path, ch.Ciphertext, 0o644); err != nil {
			return "", trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to write chunk file "+path, err)
		}
	}

	diskBytes, err := env.Manifest.MarshalForDisk()
	if err != nil {
		return "", trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveManifest, "failed to marshal manifest for disk", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), diskBytes, 0o644); err != nil {
		return "", trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to write manifest.json", err)
	}

	sigDir := filepath.Join(dir, "signatures")
	if err := os.MkdirAll(sigDir, 0o755); err != nil {
		return "", trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to create signatures directory", err)
	}
	if err := os.WriteFile(filepath.Join(sigDir, signatureFileName), env.Signature, 0o644); err != nil {
		return "", trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to write detached signature", err)
	}

	return dir, nil
}

// checkChunkSizes enforces spec §9's open question on verify-only chunk
// size checking: every non-final chunk's on-disk ciphertext must equal
// manifest.chunk_size plus the AEAD tag overhead exactly; the final chunk
// must not exceed it. This catches truncation or padding that a hash
// comparison alone could miss if an attacker also recomputed hashes (which
// they can't without the signing key, but the check is cheap and the spec
// calls for it explicitly).
func checkChunkSizes(env *envelope.Envelope) *trustedgeerr.ArchiveError {
	want := env.Manifest.ChunkSize + primitives.AEADTagLen
	last := len(env.Chunks) - 1
	for i, ch := range env.Chunks {
		n := len(ch.Ciphertext)
		if i == last {
			if n > want {
				return trustedgeerr.NewArchiveError(trustedgeerr.ArchiveSchemaMismatch,
					fmt.Sprintf("final chunk %d is %d bytes, exceeds chunk_size+tag %d", i, n, want))
			}
			continue
		}
		if n != want {
			return trustedgeerr.NewArchiveError(trustedgeerr.ArchiveSchemaMismatch,
				fmt.Sprintf("chunk %d is %d bytes, expected exactly chunk_size+tag %d", i, n, want))
		}
	}
	return nil
}

func chunkFileName(i int) string {
	s := strconv.Itoa(i)
	if len(s) < chunkFileDigits {
		s = strings.Repeat("0", chunkFileDigits-len(s)) + s
	}
	return s + ".bin"
}

// listChunkFiles returns the chunk filenames under dir/chunks, sorted
// ascending, without validating count or naming against any manifest.
func listChunkFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "chunks"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read loads a `.trst` directory tree back into an in-memory envelope.
// recipientPub is the caller's own public key, the same value that would
// be passed as SealOptions.RecipientPub at seal time; it is never
// persisted on disk (see envelope.AssembleFromDisk) so the caller must
// supply it again here.
//
// Read enforces the archive's structural contract before handing anything
// to the caller: every chunk file named in manifest.json must exist, the
// chunk count on disk must match len(manifest.Segments) exactly, and each
// chunk file's on-disk bytes must hash to its segment's ciphertext_hash —
// catching a same-length substitution that checkChunkSizes's length check
// alone would miss. Read does not verify the manifest signature or
// continuity chain — that is this package's own VerifyOnly, or the
// caller's own call to envelope.Unseal / envelope.VerifyOnly against the
// returned envelope.
func Read(dir string, recipientPub []byte) (*envelope.Envelope, *trustedgeerr.ArchiveError) {
	manifestPath := filepath.Join(dir, manifestFileName)
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to read manifest.json", err)
	}
	m, merr := manifest.FromDisk(manifestBytes)
	if merr != nil {
		return nil, trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveManifest, "failed to parse manifest.json", merr)
	}

	canonical, cerr := m.ToCanonicalBytes()
	if cerr != nil {
		return nil, trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveManifest, "failed to canonicalize loaded manifest", cerr)
	}
	wantID := DeriveID(canonical) + ".trst"
	if gotID := filepath.Base(dir); gotID != wantID {
		return nil, trustedgeerr.NewArchiveError(trustedgeerr.ArchiveSchemaMismatch,
			fmt.Sprintf("archive directory %q does not match manifest-derived id %q", gotID, wantID))
	}

	sigPath := filepath.Join(dir, "signatures", signatureFileName)
	signature, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to read detached signature", err)
	}

	chunkNames, err := listChunkFiles(dir)
	if err != nil {
		return nil, trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveIO, "failed to list chunk files", err)
	}
	if len(chunkNames) != len(m.Segments) {
		return nil, trustedgeerr.NewArchiveError(trustedgeerr.ArchiveSchemaMismatch,
			fmt.Sprintf("archive has %d chunk files but manifest declares %d segments", len(chunkNames), len(m.Segments)))
	}

	ciphertexts := make([][]byte, len(m.Segments))
	for i, seg := range m.Segments {
		wantName := chunkFileName(i)
		if seg.ChunkFile != wantName {
			return nil, trustedgeerr.NewArchiveError(trustedgeerr.ArchiveSchemaMismatch,
				fmt.Sprintf("segment %d declares chunk_file %q, expected %q", i, seg.ChunkFile, wantName))
		}
		path := filepath.Join(dir, "chunks", seg.ChunkFile)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveMissingChunk, "missing chunk file "+seg.ChunkFile, err)
		}

		got := primitives.Blake3(data)
		if !primitives.ConstantTimeCompare(got[:], seg.CiphertextHash) {
			return nil, trustedgeerr.NewArchiveError(trustedgeerr.ArchiveContentTampered,
				fmt.Sprintf("chunk file %q content does not match manifest ciphertext_hash", seg.ChunkFile))
		}

		ciphertexts[i] = data
	}

	env, terr := envelope.AssembleFromDisk(m, signature, ciphertexts, recipientPub)
	if terr != nil {
		return nil, trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveManifest, "failed to reassemble envelope from disk", terr)
	}
	return env, nil
}

// VerifyOnly loads the archive at dir — enforcing Read's schema checks
// (chunk presence, naming, count, and ciphertext_hash against the
// manifest) — then verifies the manifest signature and continuity chain
// via envelope.VerifySignatureAndChain. This is the full audit an archive
// can receive without a decryption key: a chunk file tampered with in
// place is caught by Read's ciphertext_hash check, and a tampered
// ciphertext_hash value in the manifest itself is caught here by
// signature verification, since ciphertext_hash is a signed manifest
// field. It cannot detect plaintext-level corruption that survives
// re-encryption under the legitimate key, which requires decrypting (see
// Unseal) or an externally trusted plaintext hash list (see
// envelope.VerifyOnly).
func VerifyOnly(dir string, recipientPub []byte) *trustedgeerr.ArchiveError {
	env, aerr := Read(dir, recipientPub)
	if aerr != nil {
		return aerr
	}

	if aerr := checkChunkSizes(env); aerr != nil {
		return aerr
	}

	terr := envelope.VerifySignatureAndChain(env, envelope.UnsealOptions{})
	if terr == nil {
		return nil
	}
	switch {
	case terr.Crypto != nil:
		return trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveSignatureMismatch, "manifest signature verification failed", terr)
	case terr.Chain != nil:
		return trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveChain, "continuity chain verification failed", terr)
	default:
		return trustedgeerr.WrapArchiveError(trustedgeerr.ArchiveManifest, "archive verification failed", terr)
	}
}
