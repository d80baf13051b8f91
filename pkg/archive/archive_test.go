package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/envelope"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// memBackend is a minimal in-memory Ed25519 backend double, mirroring the
// one in pkg/envelope's own tests; kept local here rather than exported
// from pkg/envelope to avoid growing that package's public surface just
// for test scaffolding.
type memBackend struct {
	pub    []byte
	secret []byte
}

func newMemBackend(t *testing.T) *memBackend {
	pub, secret, err := primitives.GenerateEd25519KeyPair()
	require.NoError(t, err)
	return &memBackend{pub: pub, secret: secret}
}

func (b *memBackend) PerformOperation(keyID backend.KeyID, op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	switch op.Kind {
	case backend.OpGetPublicKey:
		return backend.CryptoResult{Kind: op.Kind, PublicKey: b.pub}, nil
	case backend.OpSign:
		sig, err := primitives.Sign(op.SigAlg, b.secret, op.Data)
		if err != nil {
			return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "sign failed", err)
		}
		return backend.CryptoResult{Kind: op.Kind, Signed: sig}, nil
	default:
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation, "unsupported in test backend")
	}
}

func (b *memBackend) SupportsOperation(op backend.CryptoOperation) bool {
	return op.Kind == backend.OpGetPublicKey || op.Kind == backend.OpSign
}

func (b *memBackend) GetCapabilities() backend.BackendCapabilities { return backend.BackendCapabilities{} }
func (b *memBackend) BackendInfo() backend.BackendInfo             { return backend.BackendInfo{Name: "mem", Available: true} }
func (b *memBackend) ListKeys() ([]backend.KeyMetadata, *trustedgeerr.BackendError) {
	return nil, nil
}

func sealedEnvelope(t *testing.T, payload []byte, chunkSize int) *envelope.Envelope {
	be := newMemBackend(t)
	env, terr := envelope.Seal(payload, envelope.SealOptions{
		Backend:      be,
		SigAlg:       primitives.Ed25519,
		SymAlg:       primitives.XChaCha20Poly1305,
		RecipientPub: []byte("recipient-pub"),
		ChunkSize:    chunkSize,
		SharedSecret: []byte("a-shared-secret-for-hkdf"),
		Meta: envelope.Metadata{
			DeviceID:        "edge-cam-01",
			CaptureStarted:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			CaptureFormat:   "raw",
			SegmentDuration: 1.0,
		},
	})
	require.Nil(t, terr)
	return env
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	env := sealedEnvelope(t, payload, 4096)

	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	loaded, aerr := Read(dir, env.RecipientPub)
	require.Nil(t, aerr)

	out, terr := envelope.Unseal(loaded, envelope.UnsealOptions{SharedSecret: []byte("a-shared-secret-for-hkdf")})
	require.Nil(t, terr)
	require.Equal(t, payload, out)
}

func TestWriteProducesStableDirectoryID(t *testing.T) {
	env := sealedEnvelope(t, []byte("hello, edge\n"), 0)
	parent := t.TempDir()
	dir, aerr := Write(parent, env)
	require.Nil(t, aerr)

	canonical, err := env.Manifest.ToCanonicalBytes()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(parent, DeriveID(canonical)+".trst"), dir)
}

func TestVerifyOnlyAcceptsUntamperedArchive(t *testing.T) {
	env := sealedEnvelope(t, []byte("hello, edge\n"), 0)
	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	require.Nil(t, VerifyOnly(dir, env.RecipientPub))
}

func TestVerifyOnlyDetectsTamperedManifestSignature(t *testing.T) {
	env := sealedEnvelope(t, []byte("hello, edge\n"), 0)
	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	sigPath := filepath.Join(dir, "signatures", signatureFileName)
	sig, err := os.ReadFile(sigPath)
	require.NoError(t, err)
	sig[0] ^= 0xFF
	require.NoError(t, os.WriteFile(sigPath, sig, 0o644))

	aerr = VerifyOnly(dir, env.RecipientPub)
	require.NotNil(t, aerr)
	require.Equal(t, trustedgeerr.ArchiveSignatureMismatch, aerr.Kind)
}

func TestReadDetectsMissingChunkFile(t *testing.T) {
	payload := make([]byte, 10000)
	env := sealedEnvelope(t, payload, 4096)
	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	require.NoError(t, os.Remove(filepath.Join(dir, "chunks", chunkFileName(1))))

	_, aerr = Read(dir, env.RecipientPub)
	require.NotNil(t, aerr)
	require.Equal(t, trustedgeerr.ArchiveSchemaMismatch, aerr.Kind)
}

func TestReadDetectsChunkCountSchemaMismatch(t *testing.T) {
	payload := make([]byte, 10000)
	env := sealedEnvelope(t, payload, 4096)
	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunks", "00099.bin"), []byte("extra"), 0o644))

	_, aerr = Read(dir, env.RecipientPub)
	require.NotNil(t, aerr)
	require.Equal(t, trustedgeerr.ArchiveSchemaMismatch, aerr.Kind)
}

func TestVerifyOnlyDetectsTruncatedNonFinalChunk(t *testing.T) {
	payload := make([]byte, 10000)
	env := sealedEnvelope(t, payload, 4096)
	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	path := filepath.Join(dir, "chunks", chunkFileName(0))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o644))

	// Truncation changes the chunk file's bytes, so Read's ciphertext_hash
	// check (run before checkChunkSizes even gets a chance) is what catches
	// this, not the length check.
	aerr = VerifyOnly(dir, env.RecipientPub)
	require.NotNil(t, aerr)
	require.Equal(t, trustedgeerr.ArchiveContentTampered, aerr.Kind)
}

func TestReadDetectsSameLengthChunkContentTampering(t *testing.T) {
	payload := make([]byte, 10000)
	env := sealedEnvelope(t, payload, 4096)
	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	path := filepath.Join(dir, "chunks", chunkFileName(0))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, aerr = Read(dir, env.RecipientPub)
	require.NotNil(t, aerr)
	require.Equal(t, trustedgeerr.ArchiveContentTampered, aerr.Kind)

	aerr = VerifyOnly(dir, env.RecipientPub)
	require.NotNil(t, aerr)
	require.Equal(t, trustedgeerr.ArchiveContentTampered, aerr.Kind)
}

func TestWriteOrdersChunksBeforeManifestBeforeSignature(t *testing.T) {
	env := sealedEnvelope(t, []byte("hello, edge\n"), 0)
	dir, aerr := Write(t.TempDir(), env)
	require.Nil(t, aerr)

	chunkInfo, err := os.Stat(filepath.Join(dir, "chunks", chunkFileName(0)))
	require.NoError(t, err)
	manifestInfo, err := os.Stat(filepath.Join(dir, manifestFileName))
	require.NoError(t, err)
	sigInfo, err := os.Stat(filepath.Join(dir, "signatures", signatureFileName))
	require.NoError(t, err)

	require.False(t, manifestInfo.ModTime().Before(chunkInfo.ModTime()))
	require.False(t, sigInfo.ModTime().Before(manifestInfo.ModTime()))
}
