// Command trustedge-demo is a thin usage demonstration, not a CLI product:
// it shows how a caller wires a backend, seals a payload into a signed
// envelope, writes it to a .trst archive directory, and reads/verifies/
// unseals it back. Flag layout follows the teacher's cmd/kmsServer/main.go
// (urfave/cli/v2, Env-sourced flags from pkg/config).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/archive"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend/registry"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend/softhsm"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/config"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/envelope"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/logger"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	registrycache "github.com/TrustEdge-Labs/trustedge-sub003/pkg/registry/cache"
)

const sharedSecretUsage = "demo purposes only: in a real deployment this comes out of an ECDH/KEM exchange with the recipient, never a flag"

const softHSMBackendName = "software_hsm"

func main() {
	app := &cli.App{
		Name:  "trustedge-demo",
		Usage: "demonstrates sealing, archiving, verifying and unsealing a TrustEdge-Core envelope",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hsm-dir",
				Usage:   "software HSM directory (created if missing)",
				EnvVars: []string{config.EnvSoftHSMDir},
				Value:   "./trustedge-demo-hsm",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{config.EnvLogLevel},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "log-format",
				EnvVars: []string{config.EnvLogFormat},
				Value:   "console",
			},
			&cli.StringFlag{
				Name:    "registry-cache-addr",
				Usage:   "optional Redis address for the shared backend capability/key-list cache (unset disables caching)",
				EnvVars: []string{config.EnvRegistryCacheAddr},
			},
		},
		Commands: []*cli.Command{
			sealAndArchiveCommand(),
			verifyCommand(),
			unsealCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func sealAndArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "seal",
		Usage: "seal a file's contents and write it to a .trst archive directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Required: true, Usage: "path to the plaintext payload"},
			&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "parent directory the .trst archive is created under"},
			&cli.StringFlag{Name: "device-id", Value: "edge-cam-01"},
			&cli.StringFlag{Name: "shared-secret", Required: true, Usage: sharedSecretUsage},
		},
		Action: func(c *cli.Context) error {
			l, err := newLogger(c)
			if err != nil {
				return err
			}
			defer func() { _ = l.Sync() }()

			be, err := softhsm.New(softhsm.Config{Dir: c.String("hsm-dir"), Logger: l})
			if err != nil {
				return fmt.Errorf("failed to open software HSM: %w", err)
			}
			defer be.Close()

			reg, closeCache, err := buildRegistry(c, l, be)
			if err != nil {
				return err
			}
			defer closeCache()

			ctx := context.Background()
			caps, berr := reg.GetCapabilities(ctx, softHSMBackendName)
			if berr != nil {
				return fmt.Errorf("failed to read backend capabilities: %w", berr)
			}
			l.Sugar().Infow("software HSM capabilities", "max_key_size", caps.MaxKeySize, "supports_key_gen", caps.SupportsKeyGen)

			keyID, devicePub, err := ensureDeviceKey(ctx, reg, be)
			if err != nil {
				return err
			}

			payload, err := os.ReadFile(c.String("in"))
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}

			opts := envelope.SealOptions{
				Backend:      be,
				KeyID:        keyID,
				SigAlg:       primitives.Ed25519,
				SymAlg:       primitives.XChaCha20Poly1305,
				RecipientPub: devicePub, // demo: seal to self so `unseal` below can decrypt it
				SharedSecret: []byte(c.String("shared-secret")),
				Meta: envelope.Metadata{
					DeviceID:        c.String("device-id"),
					CaptureFormat:   "raw",
					SegmentDuration: 1.0,
				},
			}

			env, terr := envelope.Seal(payload, opts)
			if terr != nil {
				return fmt.Errorf("seal failed: %w", terr)
			}

			dir, aerr := archive.Write(c.String("out-dir"), env)
			if aerr != nil {
				return fmt.Errorf("archive write failed: %w", aerr)
			}

			l.Sugar().Infow("sealed and archived", "dir", dir, "chunks", len(env.Chunks), "device_pub", devicePub)
			fmt.Println(dir)
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "verify a .trst archive's signature and continuity chain without decrypting it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Required: true, Usage: "path to the .trst archive directory"},
			&cli.StringFlag{Name: "recipient-pub", Required: true, Usage: "the raw recipient public key bytes used at seal time"},
		},
		Action: func(c *cli.Context) error {
			if aerr := archive.VerifyOnly(c.String("dir"), []byte(c.String("recipient-pub"))); aerr != nil {
				return fmt.Errorf("verification failed: %w", aerr)
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func unsealCommand() *cli.Command {
	return &cli.Command{
		Name:  "unseal",
		Usage: "read a .trst archive back and decrypt its payload to stdout",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Required: true},
			&cli.StringFlag{Name: "recipient-pub", Required: true},
			&cli.StringFlag{Name: "shared-secret", Required: true, Usage: sharedSecretUsage},
		},
		Action: func(c *cli.Context) error {
			env, aerr := archive.Read(c.String("dir"), []byte(c.String("recipient-pub")))
			if aerr != nil {
				return fmt.Errorf("archive read failed: %w", aerr)
			}

			payload, terr := envelope.Unseal(env, envelope.UnsealOptions{
				SharedSecret: []byte(c.String("shared-secret")),
			})
			if terr != nil {
				return fmt.Errorf("unseal failed: %w", terr)
			}

			_, err := os.Stdout.Write(payload)
			return err
		},
	}
}

// ensureDeviceKey reuses a single demo signing key across invocations, so
// `seal` followed by `unseal`/`verify` in separate process runs works
// against the same --hsm-dir instead of minting (and losing) a new key
// every run. The existing-key lookup goes through reg.ListKeys rather than
// be.ListKeys directly, so a configured registry cache is actually
// exercised by the one command that needs a key list.
func ensureDeviceKey(ctx context.Context, reg *registry.Registry, be *softhsm.Backend) (backend.KeyID, []byte, error) {
	keys, berr := reg.ListKeys(ctx, softHSMBackendName)
	if berr != nil {
		return "", nil, fmt.Errorf("failed to list existing keys: %w", berr)
	}
	if len(keys) > 0 {
		result, berr := be.PerformOperation(keys[0].KeyID, backend.NewGetPublicKeyOp())
		if berr != nil {
			return "", nil, fmt.Errorf("failed to read existing device public key: %w", berr)
		}
		return keys[0].KeyID, result.PublicKey, nil
	}

	result, berr := be.PerformOperation("", backend.NewGenerateKeyPairOp(primitives.AsymEd25519))
	if berr != nil {
		return "", nil, fmt.Errorf("failed to generate device key: %w", berr)
	}
	return backend.KeyID(result.KeyPairKeyID), result.KeyPairPublic, nil
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	return logger.New(logger.Config{Level: c.String("log-level"), Format: c.String("log-format")})
}

// buildRegistry wraps be in a single-backend registry, wiring a Redis-backed
// capability/key-list cache when --registry-cache-addr is set. The returned
// close func shuts down the cache connection (a no-op when none was built)
// and must be called regardless of whether the cache was used.
func buildRegistry(c *cli.Context, l *zap.Logger, be *softhsm.Backend) (*registry.Registry, func(), error) {
	addr := c.String("registry-cache-addr")
	if addr == "" {
		reg := registry.New(l)
		reg.Register(softHSMBackendName, be)
		return reg, func() {}, nil
	}

	rc, err := registrycache.New(registrycache.Config{Addr: addr, Logger: l})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to registry cache: %w", err)
	}

	reg := registry.NewWithCache(l, rc)
	reg.Register(softHSMBackendName, be)
	return reg, func() { _ = rc.Close() }, nil
}
