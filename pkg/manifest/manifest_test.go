package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Device: Device{ID: "edge-cam-01", PublicKey: []byte{1, 2, 3, 4}},
		Capture: Capture{
			StartedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			DurationSeconds: 12.5,
			Format:          "raw",
		},
		ChunkSize: 4096,
		Segments: []Segment{
			{
				ChunkFile:       "00000.bin",
				Blake3Hash:      make([]byte, 32),
				CiphertextHash:  make([]byte, 32),
				StartTime:       0,
				DurationSeconds: 6.25,
				ContinuityHash:  make([]byte, 32),
				Nonce:           []byte{1, 2, 3},
				Salt:            []byte{4, 5, 6},
			},
			{
				ChunkFile:       "00001.bin",
				Blake3Hash:      make([]byte, 32),
				CiphertextHash:  make([]byte, 32),
				StartTime:       6.25,
				DurationSeconds: 6.25,
				ContinuityHash:  make([]byte, 32),
				Nonce:           []byte{7, 8, 9},
				Salt:            []byte{10, 11, 12},
			},
		},
	}
}

func TestToCanonicalBytesIsDeterministic(t *testing.T) {
	m := sampleManifest()
	b1, err := m.ToCanonicalBytes()
	require.NoError(t, err)
	b2, err := m.ToCanonicalBytes()
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestToCanonicalBytesExcludesSignature(t *testing.T) {
	m := sampleManifest()
	before, err := m.ToCanonicalBytes()
	require.NoError(t, err)

	m.SetSignature([]byte("a-detached-signature"))
	after, err := m.ToCanonicalBytes()
	require.NoError(t, err)

	require.Equal(t, before, after)
	require.NotContains(t, string(after), "signature")
}

func TestMarshalForDiskIncludesSignature(t *testing.T) {
	m := sampleManifest()
	m.SetSignature([]byte("a-detached-signature"))
	out, err := m.MarshalForDisk()
	require.NoError(t, err)
	require.Contains(t, string(out), "signature")
}

func TestFromDiskRoundTrip(t *testing.T) {
	m := sampleManifest()
	m.SetSignature([]byte{9, 9, 9})
	disk, err := m.MarshalForDisk()
	require.NoError(t, err)

	loaded, err := FromDisk(disk)
	require.NoError(t, err)
	require.Equal(t, m.Device.ID, loaded.Device.ID)
	require.Equal(t, m.Signature, loaded.Signature)
	require.Len(t, loaded.Segments, 2)

	canonical1, err := m.ToCanonicalBytes()
	require.NoError(t, err)
	canonical2, err := loaded.ToCanonicalBytes()
	require.NoError(t, err)
	require.Equal(t, canonical1, canonical2)
}

func TestValidateRejectsEmptySegments(t *testing.T) {
	m := sampleManifest()
	m.Segments = nil
	err := m.Validate()
	require.NotNil(t, err)
}

func TestValidateRejectsNonPositiveChunkSize(t *testing.T) {
	m := sampleManifest()
	m.ChunkSize = 0
	err := m.Validate()
	require.NotNil(t, err)
}

func TestValidateRejectsMalformedHashLength(t *testing.T) {
	m := sampleManifest()
	m.Segments[0].Blake3Hash = []byte{1, 2, 3}
	err := m.Validate()
	require.NotNil(t, err)
}

func TestValidateRejectsMissingDeviceID(t *testing.T) {
	m := sampleManifest()
	m.Device.ID = ""
	err := m.Validate()
	require.NotNil(t, err)
}

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	m := sampleManifest()
	require.Nil(t, m.Validate())
}

func TestFixedDecimalPrecision(t *testing.T) {
	d := FixedDecimal(1.0 / 3.0)
	out, err := d.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "0.333333", string(out))
}
