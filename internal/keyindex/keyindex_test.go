package keyindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	idx, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer idx.Close()

	entry := Entry{Algorithm: "Ed25519", CreatedAt: time.Now().UTC(), PublicKey: []byte{1, 2, 3}, UsageCount: 4}
	require.NoError(t, idx.Put("key-a", entry))

	got, ok, err := idx.Get("key-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Algorithm, got.Algorithm)
	require.Equal(t, entry.PublicKey, got.PublicKey)
	require.Equal(t, entry.UsageCount, got.UsageCount)
}

func TestGetMissingReturnsNotOk(t *testing.T) {
	idx, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer idx.Close()

	_, ok, err := idx.Get("does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRemovesEntry(t *testing.T) {
	idx, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Put("key-b", Entry{Algorithm: "EcdsaP256"}))
	require.NoError(t, idx.Delete("key-b"))

	_, ok, err := idx.Get("key-b")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReopenPersistsData(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Put("key-c", Entry{Algorithm: "Ed25519"}))
	require.NoError(t, idx.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get("key-c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Ed25519", got.Algorithm)
}
