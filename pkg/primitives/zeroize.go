package primitives

// Zeroize overwrites b with zeros in place. Best-effort: Go's garbage
// collector may have already copied the backing array elsewhere, but this
// is the same best-effort contract every pure-Go secret-zeroing library
// offers, and it removes the value from the slice callers still hold.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Secret wraps a byte slice that must never be logged, serialized, or
// printed in full. Its String/GoString are redacted; callers reach the
// underlying bytes only through Expose, and should Zeroize after use.
type Secret struct {
	bytes []byte
}

func NewSecret(b []byte) *Secret {
	return &Secret{bytes: b}
}

// Expose returns the wrapped bytes. Callers must not retain the slice past
// the operation it was needed for.
func (s *Secret) Expose() []byte {
	if s == nil {
		return nil
	}
	return s.bytes
}

// Destroy zeroizes the wrapped bytes and drops the reference.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	Zeroize(s.bytes)
	s.bytes = nil
}

func (s *Secret) String() string {
	return "Secret(REDACTED)"
}

func (s *Secret) GoString() string {
	return "Secret(REDACTED)"
}

// MarshalJSON intentionally refuses to serialize secret material — any
// encoding/json use on a struct embedding *Secret will error loudly rather
// than silently leaking key bytes to disk or the wire.
func (s *Secret) MarshalJSON() ([]byte, error) {
	return nil, errSecretNotSerializable
}

var errSecretNotSerializable = secretSerializationError{}

type secretSerializationError struct{}

func (secretSerializationError) Error() string {
	return "trustedge: secret-bearing values do not implement value-preserving serialization"
}
