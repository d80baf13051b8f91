package softhsm

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub003/internal/keyindex"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config configures a Backend instance.
type Config struct {
	// Dir is the directory holding {key_id}.meta.json / {key_id}.key files.
	Dir string
	// Passphrase wraps/unwraps private keys at rest. Held only for the
	// process lifetime; never written to disk.
	Passphrase string
	// IndexCacheDir, if set, enables the optional Badger-backed key index
	// (internal/keyindex) so ListKeys doesn't have to open every metadata
	// file. Advisory only: ListKeys always scans the directory, and a key
	// with no index entry (or no index at all) is read from its metadata
	// file.
	IndexCacheDir string
	Logger        *zap.Logger
}

// Backend is the file-backed software HSM (spec §4.C).
type Backend struct {
	dir        string
	passphrase string
	logger     *zap.Logger
	index      *keyindex.Index // nil if not configured
}

var _ backend.Backend = (*Backend)(nil)

// New constructs a software HSM backend rooted at cfg.Dir, creating the
// directory if necessary. Construction only fails on a filesystem error —
// unlike hardware backends, there is no "absent device" case.
func New(cfg Config) (*Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := ensureDir(cfg.Dir); err != nil {
		return nil, err
	}

	b := &Backend{
		dir:        cfg.Dir,
		passphrase: cfg.Passphrase,
		logger:     cfg.Logger,
	}

	if cfg.IndexCacheDir != "" {
		idx, err := keyindex.Open(cfg.IndexCacheDir, cfg.Logger)
		if err != nil {
			// Advisory cache: failing to open it degrades to directory
			// scans, it never fails backend construction.
			cfg.Logger.Warn("software HSM key index cache unavailable, falling back to directory scans", zap.Error(err))
		} else {
			b.index = idx
		}
	}

	return b, nil
}

func (b *Backend) Close() {
	if b.index != nil {
		_ = b.index.Close()
	}
}

func (b *Backend) BackendInfo() backend.BackendInfo {
	return backend.BackendInfo{Name: "software_hsm", Available: true, Hardware: false}
}

func (b *Backend) GetCapabilities() backend.BackendCapabilities {
	return backend.BackendCapabilities{
		AsymmetricAlgorithms: []primitives.AsymAlg{primitives.AsymEd25519, primitives.AsymEcdsaP256},
		SignatureAlgorithms:  []primitives.SigAlg{primitives.Ed25519, primitives.EcdsaP256},
		HashAlgorithms:       []primitives.HashAlg{primitives.HashSha256, primitives.HashSha384, primitives.HashSha512},
		HardwareBacked:       false,
		SupportsAttestation:  false,
		SupportsKeyGen:       true,
		MaxKeySize:           64,
	}
}

func (b *Backend) SupportsOperation(op backend.CryptoOperation) bool {
	switch op.Kind {
	case backend.OpSign, backend.OpVerify:
		return op.SigAlg == primitives.Ed25519 || op.SigAlg == primitives.EcdsaP256
	case backend.OpGetPublicKey, backend.OpGenerateKeyPair:
		return true
	case backend.OpHash:
		return op.HashAlg == primitives.HashSha256 || op.HashAlg == primitives.HashSha384 || op.HashAlg == primitives.HashSha512
	default:
		return false
	}
}

func (b *Backend) PerformOperation(keyID backend.KeyID, op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	if !b.SupportsOperation(op) {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation,
			"software_hsm does not support "+op.Kind.String()+" for the requested algorithm")
	}

	switch op.Kind {
	case backend.OpGenerateKeyPair:
		return b.generateKeyPair(keyID, op.AsymAlg)
	case backend.OpSign:
		return b.sign(keyID, op)
	case backend.OpVerify:
		return b.verify(op)
	case backend.OpGetPublicKey:
		return b.getPublicKey(keyID)
	case backend.OpHash:
		hashed, err := primitives.HashWithAlgorithm(op.HashAlg, op.Data)
		if err != nil {
			return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "hash failed", err)
		}
		return backend.CryptoResult{Kind: backend.OpHash, Hashed: hashed}, nil
	default:
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation, "unhandled operation: "+op.Kind.String())
	}
}

func (b *Backend) generateKeyPair(keyID backend.KeyID, alg primitives.AsymAlg) (backend.CryptoResult, *trustedgeerr.BackendError) {
	id := string(keyID)
	if id == "" {
		id = uuid.New().String()
	} else if strings.ContainsAny(id, "/\\.") {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.OperationFailed, "key id must be filename-safe: "+id)
	}

	if _, err := os.Stat(metaPath(b.dir, id)); err == nil {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.OperationFailed, "key id already exists: "+id)
	}

	release, lockErr := acquireLock(b.dir, id)
	if lockErr != nil {
		return backend.CryptoResult{}, lockErr
	}
	defer release()

	var pub, secret []byte
	var err error
	if alg == primitives.AsymEd25519 {
		pub, secret, err = primitives.GenerateEd25519KeyPair()
	} else {
		pub, secret, err = primitives.GenerateEcdsaP256KeyPair()
	}
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "key generation failed", err)
	}
	defer primitives.Zeroize(secret)

	wrapped, err := wrapPrivateKey(b.passphrase, secret)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to wrap private key", err)
	}

	meta := keyMetadataFile{
		KeyID:     id,
		Algorithm: algToString(alg),
		CreatedAt: time.Now().UTC(),
		PublicKey: pub,
	}
	if err := persistNewKey(b.dir, meta, wrapped); err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to persist new key", err)
	}

	if b.index != nil {
		_ = b.index.Put(id, keyindex.Entry{Algorithm: meta.Algorithm, CreatedAt: meta.CreatedAt, PublicKey: pub})
	}

	return backend.CryptoResult{Kind: backend.OpGenerateKeyPair, KeyPairPublic: pub, KeyPairKeyID: id}, nil
}

func (b *Backend) sign(keyID backend.KeyID, op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	id := string(keyID)

	release, lockErr := acquireLock(b.dir, id)
	if lockErr != nil {
		return backend.CryptoResult{}, lockErr
	}
	defer release()

	meta, berr := loadMetadata(b.dir, id)
	if berr != nil {
		return backend.CryptoResult{}, berr
	}
	alg, ok := algFromString(meta.Algorithm)
	if !ok {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.OperationFailed, "corrupted key metadata: unknown algorithm "+meta.Algorithm)
	}
	if sigAlgForAsym(alg) != op.SigAlg {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.OperationFailed, "key "+id+" is "+meta.Algorithm+", cannot sign as "+op.SigAlg.String())
	}

	wrapped, berr := loadWrappedKey(b.dir, id)
	if berr != nil {
		return backend.CryptoResult{}, berr
	}
	secret, berr := unwrapPrivateKey(b.passphrase, *wrapped)
	if berr != nil {
		return backend.CryptoResult{}, berr
	}
	defer primitives.Zeroize(secret)

	sig, err := primitives.Sign(op.SigAlg, secret, op.Data)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "sign failed", err)
	}

	meta.UsageCount++
	if berr := saveMetadata(b.dir, *meta); berr != nil {
		return backend.CryptoResult{}, berr
	}
	if b.index != nil {
		_ = b.index.Put(id, keyindex.Entry{Algorithm: meta.Algorithm, CreatedAt: meta.CreatedAt, PublicKey: meta.PublicKey, UsageCount: meta.UsageCount})
	}

	return backend.CryptoResult{Kind: backend.OpSign, Signed: sig}, nil
}

func (b *Backend) verify(op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	ok, err := primitives.Verify(op.SigAlg, op.PublicKey, op.Data, op.Signature)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "verify failed", err)
	}
	return backend.CryptoResult{Kind: backend.OpVerify, VerifyResult: ok}, nil
}

func (b *Backend) getPublicKey(keyID backend.KeyID) (backend.CryptoResult, *trustedgeerr.BackendError) {
	meta, berr := loadMetadata(b.dir, string(keyID))
	if berr != nil {
		return backend.CryptoResult{}, berr
	}
	return backend.CryptoResult{Kind: backend.OpGetPublicKey, PublicKey: meta.PublicKey}, nil
}

// ListKeys scans the key store directory for .meta.json files. The
// directory listing itself is always authoritative — it is what decides
// which key IDs exist — but per-key metadata is read from the index cache
// when present, falling back to the metadata file itself on a cache miss
// or corrupt entry. This keeps the set of listed keys correct even with a
// missing, stale, or unopenable index, while still avoiding most of the
// per-key file reads when the cache is warm. A cached entry's values are
// returned as stored; they are not compared against the metadata file.
func (b *Backend) ListKeys() ([]backend.KeyMetadata, *trustedgeerr.BackendError) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to list key store directory", err)
	}

	var result []backend.KeyMetadata
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		keyID := strings.TrimSuffix(name, ".meta.json")

		if b.index != nil {
			if cached, ok, err := b.index.Get(keyID); err == nil && ok {
				result = append(result, backend.KeyMetadata{
					KeyID:      backend.KeyID(keyID),
					Algorithm:  cached.Algorithm,
					CreatedAt:  cached.CreatedAt,
					UsageCount: cached.UsageCount,
				})
				continue
			}
		}

		meta, berr := loadMetadata(b.dir, keyID)
		if berr != nil {
			b.logger.Warn("skipping unreadable key metadata", zap.String("key_id", keyID), zap.Error(berr))
			continue
		}
		result = append(result, backend.KeyMetadata{
			KeyID:      backend.KeyID(keyID),
			Algorithm:  meta.Algorithm,
			CreatedAt:  meta.CreatedAt,
			UsageCount: meta.UsageCount,
		})
		if b.index != nil {
			_ = b.index.Put(keyID, keyindex.Entry{Algorithm: meta.Algorithm, CreatedAt: meta.CreatedAt, PublicKey: meta.PublicKey, UsageCount: meta.UsageCount})
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].KeyID < result[j].KeyID })
	return result, nil
}
