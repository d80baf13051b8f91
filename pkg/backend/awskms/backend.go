// Package awskms implements a cloud HSM-style Backend over AWS KMS,
// generalizing the teacher's AWS key management surface
// (internal/aws.LoadAWSConfig, internal/keyGenerator/awsKms) from
// Ethereum-specific secp256k1 signing keys to the plain NIST P-256 keys
// this library's signature algorithm enum supports. Region/profile
// resolution keeps the teacher's Kubernetes-aware logic verbatim; key
// creation, signing, and public key retrieval are narrowed to what
// Backend's capability surface needs.
package awskms

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// Config configures a Backend instance.
type Config struct {
	// Region overrides the SDK's default region resolution when non-empty.
	Region string
	Logger *zap.Logger
}

// Backend is a Backend implementation over AWS KMS: KeyID values are KMS
// key ARNs or aliases rather than locally-generated identifiers.
type Backend struct {
	logger    *zap.Logger
	awsConfig aws.Config
	client    *kms.Client

	mu        sync.RWMutex
	available bool
}

var _ backend.Backend = (*Backend)(nil)

// New resolves AWS credentials and region following the teacher's
// Kubernetes-aware profile selection, then probes reachability with one
// sts.GetCallerIdentity call. Construction never fails on an unreachable
// KMS endpoint — it degrades to Available: false instead, the same
// fail-closed contract the YubiKey backend follows for an absent device.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var opts []func(*awsconfig.LoadOptions) error
	if !isInKubernetes() {
		opts = append(opts, awsconfig.WithSharedConfigProfile(resolveProfile()))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve AWS config: %w", err)
	}

	b := &Backend{
		logger:    cfg.Logger,
		awsConfig: awsCfg,
		client:    kms.NewFromConfig(awsCfg),
	}
	b.Ping(ctx)
	return b, nil
}

// isInKubernetes mirrors the teacher's internal/aws.isInKubernetes check.
func isInKubernetes() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}

func resolveProfile() string {
	if p := os.Getenv("AWS_PROFILE"); p != "" {
		return p
	}
	return "default"
}

// Ping re-issues sts.GetCallerIdentity and updates the snapshot BackendInfo
// returns. Available is never re-verified implicitly on every operation
// (spec invariant I4 forbids pretending hardware/cloud reachability is
// durable) — callers needing a fresher signal call Ping explicitly.
func (b *Backend) Ping(ctx context.Context) bool {
	_, err := sts.NewFromConfig(b.awsConfig).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	ok := err == nil
	if err != nil {
		b.logger.Warn("AWS KMS backend unreachable", zap.Error(err))
	}
	b.mu.Lock()
	b.available = ok
	b.mu.Unlock()
	return ok
}

func (b *Backend) BackendInfo() backend.BackendInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return backend.BackendInfo{Name: "aws_kms", Available: b.available, Hardware: false}
}

func (b *Backend) GetCapabilities() backend.BackendCapabilities {
	return backend.BackendCapabilities{
		AsymmetricAlgorithms: []primitives.AsymAlg{primitives.AsymEcdsaP256},
		SignatureAlgorithms:  []primitives.SigAlg{primitives.EcdsaP256},
		HardwareBacked:       false,
		SupportsAttestation:  false,
		SupportsKeyGen:       true,
		MaxKeySize:           64,
	}
}

// SupportsOperation reports true only for sign, get-public-key and
// generate-key-pair, which KMS's API surface exposes, plus verify, which
// runs locally against the supplied public key. Hash and
// DeriveKey are deliberately unsupported — KMS has no raw hash or HKDF
// endpoint — exercising the same "backends never implement unsupported
// methods" contract the YubiKey backend demonstrates for attestation.
func (b *Backend) SupportsOperation(op backend.CryptoOperation) bool {
	switch op.Kind {
	case backend.OpSign, backend.OpVerify:
		return op.SigAlg == primitives.EcdsaP256
	case backend.OpGetPublicKey, backend.OpGenerateKeyPair:
		return true
	default:
		return false
	}
}

func (b *Backend) PerformOperation(keyID backend.KeyID, op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	if !b.SupportsOperation(op) {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation,
			"aws_kms does not support "+op.Kind.String())
	}

	ctx := context.Background()
	switch op.Kind {
	case backend.OpGenerateKeyPair:
		return b.generateKeyPair(ctx)
	case backend.OpSign:
		return b.sign(ctx, keyID, op)
	case backend.OpVerify:
		return b.verify(op)
	case backend.OpGetPublicKey:
		return b.getPublicKey(ctx, keyID)
	default:
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation, "unhandled operation: "+op.Kind.String())
	}
}

func (b *Backend) generateKeyPair(ctx context.Context) (backend.CryptoResult, *trustedgeerr.BackendError) {
	out, err := b.client.CreateKey(ctx, &kms.CreateKeyInput{
		KeyUsage: types.KeyUsageTypeSignVerify,
		KeySpec:  types.KeySpecEccNistP256,
	})
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "CreateKey failed", err)
	}
	keyID := aws.ToString(out.KeyMetadata.KeyId)

	pubResult, berr := b.getPublicKey(ctx, backend.KeyID(keyID))
	if berr != nil {
		return backend.CryptoResult{}, berr
	}

	return backend.CryptoResult{
		Kind:          backend.OpGenerateKeyPair,
		KeyPairPublic: pubResult.PublicKey,
		KeyPairKeyID:  keyID,
	}, nil
}

func (b *Backend) sign(ctx context.Context, keyID backend.KeyID, op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	digest := primitives.Sha256(op.Data)
	out, err := b.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(string(keyID)),
		Message:          digest[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "Sign failed for key "+string(keyID), err)
	}
	// KMS returns an ASN.1 DER ECDSA signature directly, the same encoding
	// ecdsa.VerifyASN1 (and this library's primitives.Verify) expects, so
	// no re-encoding is needed here unlike the teacher's secp256k1 path,
	// which had to reconstruct a recoverable r||s||v signature by brute
	// forcing the recovery id against Ecrecover.
	return backend.CryptoResult{Kind: backend.OpSign, Signed: out.Signature}, nil
}

func (b *Backend) verify(op backend.CryptoOperation) (backend.CryptoResult, *trustedgeerr.BackendError) {
	ok, err := primitives.Verify(op.SigAlg, op.PublicKey, op.Data, op.Signature)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "verify failed", err)
	}
	return backend.CryptoResult{Kind: backend.OpVerify, VerifyResult: ok}, nil
}

func (b *Backend) getPublicKey(ctx context.Context, keyID backend.KeyID) (backend.CryptoResult, *trustedgeerr.BackendError) {
	out, err := b.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(string(keyID))})
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "GetPublicKey failed for key "+string(keyID), err)
	}

	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return backend.CryptoResult{}, trustedgeerr.WrapBackendError(trustedgeerr.OperationFailed, "failed to parse KMS public key", err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return backend.CryptoResult{}, trustedgeerr.NewBackendError(trustedgeerr.OperationFailed, "KMS key is not an ECDSA public key")
	}

	return backend.CryptoResult{
		Kind:      backend.OpGetPublicKey,
		PublicKey: elliptic.Marshal(ecdsaPub.Curve, ecdsaPub.X, ecdsaPub.Y),
	}, nil
}

// ListKeys is unsupported: KMS's ListKeys API paginates over every key in
// the account, not just ones this library created, and attributing
// KeyMetadata.Algorithm/CreatedAt would require a DescribeKey round trip
// per key. Rather than return a misleading partial listing, this backend
// reports the operation unsupported; callers track their own KMS key IDs.
func (b *Backend) ListKeys() ([]backend.KeyMetadata, *trustedgeerr.BackendError) {
	return nil, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation, "aws_kms does not support list_keys; track key ARNs externally")
}
