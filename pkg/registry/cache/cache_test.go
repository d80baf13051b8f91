package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
)

// getTestRedisAddress mirrors the teacher's persistence/redis test helper:
// override with REDIS_TEST_ADDRESS, otherwise assume a local default.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func requireCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Config{Addr: getTestRedisAddress(), DB: 15, TTL: time.Minute})
	if err != nil {
		t.Skipf("redis not available at %s: %v", getTestRedisAddress(), err)
	}
	return c
}

func TestCapabilitiesRoundTrip(t *testing.T) {
	c := requireCache(t)
	defer c.Close()
	ctx := context.Background()

	caps := backend.BackendCapabilities{
		AsymmetricAlgorithms: []primitives.AsymAlg{primitives.AsymEcdsaP256},
		SignatureAlgorithms:  []primitives.SigAlg{primitives.EcdsaP256},
		HardwareBacked:       false,
		SupportsKeyGen:       true,
		MaxKeySize:           64,
	}
	require.NoError(t, c.PutCapabilities(ctx, "aws_kms", caps))

	got, ok, err := c.GetCapabilities(ctx, "aws_kms")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, caps, got)
}

func TestListKeysRoundTrip(t *testing.T) {
	c := requireCache(t)
	defer c.Close()
	ctx := context.Background()

	keys := []backend.KeyMetadata{
		{KeyID: "alpha", Algorithm: "Ed25519", UsageCount: 3},
		{KeyID: "beta", Algorithm: "EcdsaP256", UsageCount: 0},
	}
	require.NoError(t, c.PutListKeys(ctx, "software_hsm", keys))

	got, ok, err := c.GetListKeys(ctx, "software_hsm")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	require.Equal(t, keys[0].KeyID, got[0].KeyID)
}

func TestGetOnMissIsNotAnError(t *testing.T) {
	c := requireCache(t)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.GetCapabilities(ctx, "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.GetListKeys(ctx, "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidateClearsBothEntries(t *testing.T) {
	c := requireCache(t)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.PutCapabilities(ctx, "software_hsm", backend.BackendCapabilities{}))
	require.NoError(t, c.PutListKeys(ctx, "software_hsm", []backend.KeyMetadata{{KeyID: "x"}}))
	require.NoError(t, c.Invalidate(ctx, "software_hsm"))

	_, ok, err := c.GetCapabilities(ctx, "software_hsm")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.GetListKeys(ctx, "software_hsm")
	require.NoError(t, err)
	require.False(t, ok)
}

// Never part of the cached surface: BackendInfo.Available must never be
// serialized through this cache (I4), so there is intentionally no
// PutBackendInfo/GetBackendInfo pair to test.
func TestCacheHasNoAvailabilityCachingSurface(t *testing.T) {
	c := requireCache(t)
	defer c.Close()
	_ = c
}
