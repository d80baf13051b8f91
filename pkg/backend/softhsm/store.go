package softhsm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

func metaPath(dir, keyID string) string { return filepath.Join(dir, keyID+".meta.json") }
func keyPath(dir, keyID string) string  { return filepath.Join(dir, keyID+".key") }
func lockPath(dir, keyID string) string { return filepath.Join(dir, keyID+".lock") }

// acquireLock takes the per-key advisory lock file, retrying briefly on
// contention, per spec §5 ("one writer at a time via a per-key lock file").
func acquireLock(dir, keyID string) (release func(), berr *trustedgeerr.BackendError) {
	path := lockPath(dir, keyID)
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to create key lock file", err)
		}
		if time.Now().After(deadline) {
			return nil, trustedgeerr.NewBackendError(trustedgeerr.OperationFailed, "timed out waiting for key lock: "+keyID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// writeAtomic writes data to path via a temp file + rename, so a reader
// never observes a partially-written file.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// persistNewKey writes the key file then the metadata file, in that order,
// so a crash between the two leaves an orphan .key file invisible to
// ListKeys (which only scans .meta.json) rather than a .meta.json pointing
// at a missing key — satisfying "either both files appear, or neither [is
// usable]" (spec §4.C).
func persistNewKey(dir string, meta keyMetadataFile, wrapped wrappedKeyFile) error {
	keyBytes, err := json.Marshal(wrapped)
	if err != nil {
		return err
	}
	if err := writeAtomic(keyPath(dir, meta.KeyID), keyBytes); err != nil {
		return err
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		_ = os.Remove(keyPath(dir, meta.KeyID))
		return err
	}
	return writeAtomic(metaPath(dir, meta.KeyID), metaBytes)
}

func loadMetadata(dir, keyID string) (*keyMetadataFile, *trustedgeerr.BackendError) {
	raw, err := os.ReadFile(metaPath(dir, keyID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, trustedgeerr.NewBackendError(trustedgeerr.KeyNotFound, "no such key: "+keyID)
		}
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to read key metadata", err)
	}
	var meta keyMetadataFile
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "corrupted key metadata: "+keyID, err)
	}
	return &meta, nil
}

func loadWrappedKey(dir, keyID string) (*wrappedKeyFile, *trustedgeerr.BackendError) {
	raw, err := os.ReadFile(keyPath(dir, keyID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, trustedgeerr.NewBackendError(trustedgeerr.KeyNotFound, "no such key: "+keyID)
		}
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to read wrapped key", err)
	}
	var wrapped wrappedKeyFile
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "corrupted key file: "+keyID, err)
	}
	return &wrapped, nil
}

func saveMetadata(dir string, meta keyMetadataFile) *trustedgeerr.BackendError {
	raw, err := json.Marshal(meta)
	if err != nil {
		return trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to marshal key metadata", err)
	}
	if err := writeAtomic(metaPath(dir, meta.KeyID), raw); err != nil {
		return trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to persist key metadata", err)
	}
	return nil
}

// wrapPrivateKey encrypts secret under a PBKDF2-derived key with a fresh
// salt and nonce.
func wrapPrivateKey(passphrase string, secret []byte) (wrappedKeyFile, error) {
	salt, err := primitives.RandomBytes(primitives.PBKDF2SaltLen)
	if err != nil {
		return wrappedKeyFile{}, err
	}
	nonce, err := primitives.RandomBytes(primitives.NonceLenForAlgorithm(primitives.XChaCha20Poly1305))
	if err != nil {
		return wrappedKeyFile{}, err
	}
	key := primitives.Pbkdf2HmacSha256([]byte(passphrase), salt, primitives.PBKDF2Iterations, primitives.AEADKeyLen)
	defer primitives.Zeroize(key)

	ciphertext, err := primitives.AeadSeal(primitives.XChaCha20Poly1305, key, nonce, []byte("softhsm-key-wrap/v1"), secret)
	if err != nil {
		return wrappedKeyFile{}, err
	}
	return wrappedKeyFile{Salt: salt, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// unwrapPrivateKey reverses wrapPrivateKey. Returns CryptoError{DecryptionFailed}
// (wrapped as BackendError{OperationFailed}) on a wrong passphrase.
func unwrapPrivateKey(passphrase string, wrapped wrappedKeyFile) ([]byte, *trustedgeerr.BackendError) {
	key := primitives.Pbkdf2HmacSha256([]byte(passphrase), wrapped.Salt, primitives.PBKDF2Iterations, primitives.AEADKeyLen)
	defer primitives.Zeroize(key)

	secret, err := primitives.AeadOpen(primitives.XChaCha20Poly1305, key, wrapped.Nonce, []byte("softhsm-key-wrap/v1"), wrapped.Ciphertext)
	if err != nil {
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to unwrap private key (wrong passphrase?)", err)
	}
	return secret, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key store directory %s: %w", dir, err)
	}
	return nil
}
