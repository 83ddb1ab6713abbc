package clip

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// FingerprintSize is the digest length in bytes.
const FingerprintSize = blake2b.Size256

// Fingerprint is the content-addressed dedupe key of a payload.
type Fingerprint [FingerprintSize]byte

// FingerprintOf hashes the exact byte representation of c with BLAKE2b-256.
// The digest depends on nothing but the payload bytes.
func FingerprintOf(c Content) Fingerprint {
	if c == nil {
		return blake2b.Sum256(nil)
	}
	return blake2b.Sum256(c.Bytes())
}

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns an abbreviated hex form for log lines.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:6])
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(b []byte) error {
	parsed, err := ParseFingerprint(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint decodes a hex fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("decode fingerprint: %w", err)
	}
	if len(b) != FingerprintSize {
		return f, fmt.Errorf("fingerprint has %d bytes, want %d", len(b), FingerprintSize)
	}
	copy(f[:], b)
	return f, nil
}
