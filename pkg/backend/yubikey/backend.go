// Package yubikey implements a Backend over a YubiKey's PIV applet,
// generalizing the teacher's capability-gated, fail-closed hardware
// backend shape (mirrored here from pkg/backend/softhsm's structure,
// since the teacher repo itself has no PC/SC-backed key store) to a real
// external, fallible device. Every hardware-touching method is guarded by
// ensureConnected and serialized behind one mutex, since the card can only
// perform one operation at a time.
package yubikey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/go-piv/piv-go/v2/piv"
	"go.uber.org/zap"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

const defaultMaxPINRetries = 3

// Config configures a Backend instance.
type Config struct {
	// Reader, if non-empty, selects the PC/SC reader whose name contains
	// this substring. Empty means "use the first card piv.Cards() lists".
	Reader string
	// PIN, if non-empty, is verified before every sign. Held only in
	// process memory; never logged, never serialized.
	PIN string
	// MaxPINRetries bounds this backend's own wrong-PIN counter, separate
	// from (and tighter than, by default) the card's own PIN retry
	// counter. Defaults to 3.
	MaxPINRetries int
	Logger        *zap.Logger
}

// Backend is a Backend implementation over a YubiKey PIV applet. yk is nil
// whenever no card is connected; every method re-derives availability
// rather than trusting a cached flag, per the fail-closed contract no
// hardware backend may violate.
type Backend struct {
	mu  sync.Mutex
	yk  *piv.YubiKey
	cfg Config

	pinFailures int
}

var _ backend.Backend = (*Backend)(nil)

// New opens a connection to a matching PIV card if one is present.
// Construction does not fail when no card is inserted or no card matches
// cfg.Reader — BackendInfo().Available simply reports false and every
// hardware-requiring operation returns HardwareError, exactly as spec
// scenario S4 requires. It returns an error only when the PC/SC service
// itself cannot be queried at all, which the registry's with_defaults
// bootstrap treats as a reason to skip registering this backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxPINRetries <= 0 {
		cfg.MaxPINRetries = defaultMaxPINRetries
	}

	b := &Backend{cfg: cfg}
	cards, err := piv.Cards()
	if err != nil {
		return nil, fmt.Errorf("failed to query PC/SC service: %w", err)
	}

	for _, card := range cards {
		if cfg.Reader != "" && !strings.Contains(strings.ToLower(card), strings.ToLower(cfg.Reader)) {
			continue
		}
		yk, err := piv.Open(card)
		if err != nil {
			cfg.Logger.Warn("failed to open candidate PIV card", zap.String("reader", card), zap.Error(err))
			continue
		}
		b.yk = yk
		break
	}

	if b.yk == nil {
		cfg.Logger.Warn("no YubiKey PIV card found; backend constructed unavailable")
	}
	return b, nil
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.yk != nil {
		_ = b.yk.Close()
		b.yk = nil
	}
}

// ensureConnected is the private guard every hardware-touching operation
// calls first. Caller must hold b.mu.
func (b *Backend) ensureConnected() *trustedgeerr.BackendError {
	if b.yk == nil {
		return trustedgeerr.NewBackendError(trustedgeerr.HardwareError, "YubiKey not connected")
	}
	return nil
}

// BackendInfo probes the card on every call rather than returning a cached
// flag (spec invariant I4: hardware availability is never cached past one
// check). A failed probe drops the stale handle so the next operation
// re-attempts ensureConnected cleanly instead of spinning on a dead handle.
func (b *Backend) BackendInfo() backend.BackendInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := backend.BackendInfo{Name: "yubikey", Hardware: true}
	if b.yk == nil {
		return info
	}
	if _, err := b.yk.Serial(); err != nil {
		_ = b.yk.Close()
		b.yk = nil
		return info
	}
	info.Available = true
	return info
}

func (b *Backend) GetCapabilities() backend.BackendCapabilities {
	return backend.BackendCapabilities{
		AsymmetricAlgorithms: []primitives.AsymAlg{primitives.AsymEcdsaP256},
		SignatureAlgorithms:  []primitives.SigAlg{primitives.EcdsaP256},
		HardwareBacked:       true,
		SupportsAttestation:  false,
		SupportsKeyGen:       false,
		MaxKeySize:           64,
	}
}

// SupportsOperation reports Ed25519 as unsupported irrespective of slot
// (spec property P9 — PIV hardware has no Ed25519 applet), and
// GenerateKeyPair/Attest as unsupported per spec §4.D's "not silently
// no-ops" requirement, even though PerformOperation also rejects them.
func (b *Backend) SupportsOperation(op backend.CryptoOperation) bool {
	switch op.Kind {
	case backend.OpSign, backend.OpVerify:
		return op.SigAlg == primitives.EcdsaP256
	case backend.OpGetPublicKey:
		return true
	default:
		return false
	}
}

func (b *Backend) PerformOperation(keyID backend.KeyID, op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	switch op.Kind {
	case backend.OpGenerateKeyPair:
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation,
			"yubikey does not support on-device key generation until the PIV library exposes PIN/touch policy types; provision slots out of band")
	case backend.OpAttest:
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation,
			"yubikey does not support attestation until the PIV library exposes the required policy types; provision slots out of band")
	}

	if !b.SupportsOperation(op) {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation,
			"yubikey does not support "+op.Kind.String()+" for the requested algorithm; Ed25519 has no PIV applet, try a software backend")
	}

	slot, berr := slotForKeyID(keyID)
	if berr != nil {
		return backend.CryptoResult{}, berr
	}

	switch op.Kind {
	case backend.OpSign:
		return b.sign(slot, op)
	case backend.OpVerify:
		return b.verify(op)
	case backend.OpGetPublicKey:
		return b.getPublicKey(slot)
	default:
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation, "unhandled operation: "+op.Kind.String())
	}
}

// slotForKeyID parses keyID case-insensitively into one of the four valid
// PIV slots. Any other string is KeyNotFound, matching spec §4.D's "Invalid
// PIV slot" wording.
func slotForKeyID(keyID backend.KeyID) (piv.Slot, *trustedgeerr.BackendError) {
	switch strings.ToLower(string(keyID)) {
	case "9a":
		return piv.SlotAuthentication, nil
	case "9c":
		return piv.SlotSignature, nil
	case "9d":
		return piv.SlotKeyManagement, nil
	case "9e":
		return piv.SlotCardAuthentication, nil
	default:
		return piv.Slot{}, trustedgeerr.NewBackendError(trustedgeerr.KeyNotFound, "Invalid PIV slot: "+string(keyID))
	}
}

// sign hashes op.Data with SHA-256 in this process, then asks the card to
// sign the pre-hashed digest — the PIV applet never sees raw message data,
// matching spec §4.D. PIN verification (if configured) happens implicitly
// inside yk.PrivateKey via piv.KeyAuth; a wrong PIN surfaces as *piv.AuthErr,
// which this backend turns into its own bounded retry counter separate from
// the card's.
func (b *Backend) sign(slot piv.Slot, op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if berr := b.ensureConnected(); berr != nil {
		return backend.CryptoResult{}, berr
	}
	if b.pinFailures >= b.cfg.MaxPINRetries {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.HardwareError,
			fmt.Sprintf("PIN verification failed after %d attempts; device may be locked — reset via PUK", b.cfg.MaxPINRetries))
	}

	cert, err := b.yk.Certificate(slot)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.HardwareError, "failed to read slot certificate", err)
	}

	var auth piv.KeyAuth
	if b.cfg.PIN != "" {
		auth.PIN = b.cfg.PIN
	}
	signer, err := b.yk.PrivateKey(slot, cert.PublicKey, auth)
	if err != nil {
		if _, ok := err.(*piv.AuthErr); ok {
			b.pinFailures++
			if b.pinFailures >= b.cfg.MaxPINRetries {
				return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.HardwareError,
					fmt.Sprintf("PIN verification failed after %d attempts; device may be locked — reset via PUK", b.cfg.MaxPINRetries))
			}
			return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.HardwareError, "PIN verification failed")
		}
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.HardwareError, "failed to open card signer", err)
	}

	cryptoSigner, ok := signer.(crypto.Signer)
	if !ok {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.HardwareError, "card returned a non-signer private key handle")
	}

	digest := sha256.Sum256(op.Data)
	sig, err := cryptoSigner.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.HardwareError, "PIV sign failed", err)
	}

	b.pinFailures = 0
	return backend.CryptoResult{Kind: backend.OpSign, Signed: sig}, nil
}

func (b *Backend) verify(op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	ok, err := primitives.Verify(op.SigAlg, op.PublicKey, op.Data, op.Signature)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "verify failed", err)
	}
	return backend.CryptoResult{Kind: backend.OpVerify, VerifyResult: ok}, nil
}

func (b *Backend) getPublicKey(slot piv.Slot) (backend.CryptoResult, *trustedgeerr.BackendError) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if berr := b.ensureConnected(); berr != nil {
		return backend.CryptoResult{}, berr
	}

	cert, err := b.yk.Certificate(slot)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.HardwareError, "failed to read slot certificate", err)
	}
	ecdsaPub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.HardwareError, "slot key is not ECDSA")
	}

	return backend.CryptoResult{
		Kind:      backend.OpGetPublicKey,
		PublicKey: elliptic.Marshal(ecdsaPub.Curve, ecdsaPub.X, ecdsaPub.Y),
	}, nil
}

// ListKeys enumerates the four PIV slots, reporting only those with a
// readable certificate — an empty slot is simply omitted, not an error.
func (b *Backend) ListKeys() ([]backend.KeyMetadata, *trustedgeerr.BackendError) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if berr := b.ensureConnected(); berr != nil {
		return nil, berr
	}

	slots := []struct {
		id   string
		slot piv.Slot
	}{
		{"9a", piv.SlotAuthentication},
		{"9c", piv.SlotSignature},
		{"9d", piv.SlotKeyManagement},
		{"9e", piv.SlotCardAuthentication},
	}

	var result []backend.KeyMetadata
	for _, s := range slots {
		cert, err := b.yk.Certificate(s.slot)
		if err != nil {
			continue
		}
		result = append(result, backend.KeyMetadata{
			KeyID:     backend.KeyID(s.id),
			Algorithm: primitives.EcdsaP256.String(),
			CreatedAt: cert.NotBefore,
		})
	}
	return result, nil
}

// GenerateCertificate issues a self-signed X.509 certificate for slot's
// key, with the signing step delegated back to the card through a
// crypto.Signer the card itself holds. All ASN.1/DER work is delegated to
// crypto/x509; no manual tag manipulation happens here. The embedded
// public key is always the one read from the hardware slot, never a
// caller-supplied value, so the invariant "cert pubkey == slot pubkey"
// (spec property P8) holds by construction rather than by a downstream
// check.
func (b *Backend) GenerateCertificate(keyID backend.KeyID, subjectCN string) ([]byte, *trustedgeerr.BackendError) {
	slot, berr := slotForKeyID(keyID)
	if berr != nil {
		return nil, berr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if berr := b.ensureConnected(); berr != nil {
		return nil, berr
	}
	if b.pinFailures >= b.cfg.MaxPINRetries {
		return nil, trustedgeerr.NewBackendError(trustedgeerr.HardwareError,
			fmt.Sprintf("PIN verification failed after %d attempts; device may be locked — reset via PUK", b.cfg.MaxPINRetries))
	}

	existing, err := b.yk.Certificate(slot)
	if err != nil {
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.HardwareError, "failed to read slot certificate", err)
	}

	var auth piv.KeyAuth
	if b.cfg.PIN != "" {
		auth.PIN = b.cfg.PIN
	}
	signer, err := b.yk.PrivateKey(slot, existing.PublicKey, auth)
	if err != nil {
		if _, ok := err.(*piv.AuthErr); ok {
			b.pinFailures++
			return nil, trustedgeerr.NewBackendError(trustedgeerr.HardwareError, "PIN verification failed")
		}
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.HardwareError, "failed to open card signer", err)
	}
	cryptoSigner, ok := signer.(crypto.Signer)
	if !ok {
		return nil, trustedgeerr.NewBackendError(trustedgeerr.HardwareError, "card returned a non-signer private key handle")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to generate certificate serial", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: subjectCN},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, existing.PublicKey, cryptoSigner)
	if err != nil {
		return nil, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to create self-signed certificate", err)
	}

	b.pinFailures = 0
	return der, nil
}
