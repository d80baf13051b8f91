package primitives

// NonceLen is the nonce length, in bytes, of the default chunk AEAD
// (XChaCha20-Poly1305). AES-256-GCM chunks use AESGCMNonceLen instead;
// see NonceLenForAlgorithm.
const NonceLen = 24

// AESGCMNonceLen is the nonce length, in bytes, for AES-256-GCM.
const AESGCMNonceLen = 12

// DefaultChunkSize is the size, in bytes, of a plaintext chunk before sealing.
const DefaultChunkSize = 4 * 1024

// PBKDF2Iterations is the iteration count used to wrap software-HSM private
// keys at rest under a user passphrase.
const PBKDF2Iterations = 600_000

// PBKDF2SaltLen is the salt length, in bytes, for PBKDF2 key wrapping.
const PBKDF2SaltLen = 16

// HKDFSaltLen is the salt length, in bytes, for per-chunk key derivation.
const HKDFSaltLen = 16

// AEADKeyLen is the symmetric key length, in bytes, for both supported AEADs.
const AEADKeyLen = 32

// GenesisSeed domain-separates the continuity chain's first link from an
// attacker-chosen "previous hash". It is never used for anything else.
var GenesisSeed = []byte("trustedge-core/continuity-chain/genesis/v1")

// AEADTagLen is the authentication tag length, in bytes, appended to every
// chunk ciphertext by both supported AEAD algorithms.
const AEADTagLen = 16
