package primitives

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAeadRoundTrip(t *testing.T) {
	for _, alg := range []SymAlg{AES256GCM, XChaCha20Poly1305} {
		key, err := RandomBytes(AEADKeyLen)
		require.NoError(t, err)
		nonce, err := RandomBytes(NonceLenForAlgorithm(alg))
		require.NoError(t, err)
		aad := []byte("associated-data")
		plaintext := []byte("hello, edge\n")

		ciphertext, err := AeadSeal(alg, key, nonce, aad, plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, ciphertext)

		recovered, err := AeadOpen(alg, key, nonce, aad, ciphertext)
		require.NoError(t, err)
		require.Equal(t, plaintext, recovered)
	}
}

func TestAeadOpenFailsOnTamper(t *testing.T) {
	key, _ := RandomBytes(AEADKeyLen)
	nonce, _ := RandomBytes(NonceLenForAlgorithm(AES256GCM))
	aad := []byte("aad")
	ciphertext, err := AeadSeal(AES256GCM, key, nonce, aad, []byte("payload"))
	require.NoError(t, err)

	ciphertext[0] ^= 0xFF
	_, err = AeadOpen(AES256GCM, key, nonce, aad, ciphertext)
	require.Error(t, err)
}

func TestAeadOpenFailsOnWrongKey(t *testing.T) {
	key1, _ := RandomBytes(AEADKeyLen)
	key2, _ := RandomBytes(AEADKeyLen)
	nonce, _ := RandomBytes(NonceLenForAlgorithm(XChaCha20Poly1305))
	aad := []byte("aad")
	ciphertext, err := AeadSeal(XChaCha20Poly1305, key1, nonce, aad, []byte("payload"))
	require.NoError(t, err)

	_, err = AeadOpen(XChaCha20Poly1305, key2, nonce, aad, ciphertext)
	require.Error(t, err)
}

func TestEd25519SignVerify(t *testing.T) {
	pub, secret, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("sign me")
	sig, err := Sign(Ed25519, secret, msg)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	ok, err := Verify(Ed25519, pub, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify(Ed25519, pub, []byte("different"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEcdsaP256SignVerify(t *testing.T) {
	pub, secret, err := GenerateEcdsaP256KeyPair()
	require.NoError(t, err)

	msg := []byte("sign me too")
	sig, err := Sign(EcdsaP256, secret, msg)
	require.NoError(t, err)

	ok, err := Verify(EcdsaP256, pub, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBlake3Deterministic(t *testing.T) {
	h1 := Blake3([]byte("chunk"))
	h2 := Blake3([]byte("chunk"))
	require.Equal(t, h1, h2)

	h3 := Blake3([]byte("different chunk"))
	require.NotEqual(t, h1, h3)
}

func TestHkdfExpandDeterministic(t *testing.T) {
	ikm := []byte("ikm-material")
	salt := []byte("0123456789abcdef")
	info := []byte("info")

	out1, err := HkdfExpand(ikm, salt, info, 32)
	require.NoError(t, err)
	out2, err := HkdfExpand(ikm, salt, info, 32)
	require.NoError(t, err)
	require.Equal(t, out1, out2)

	out3, err := HkdfExpand(ikm, salt, []byte("other-info"), 32)
	require.NoError(t, err)
	require.NotEqual(t, out1, out3)
}

func TestSecretRedaction(t *testing.T) {
	s := NewSecret([]byte("super-secret"))
	require.Equal(t, "Secret(REDACTED)", s.String())

	_, err := s.MarshalJSON()
	require.Error(t, err)

	s.Destroy()
	require.Nil(t, s.Expose())
}
