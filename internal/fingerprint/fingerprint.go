package fingerprint

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var errTrailingData = errors.New("unexpected data after JSON value")

// Fingerprint is the hex-encoded HMAC-SHA256 of a canonical payload.
type Fingerprint string

// Short returns the first 8 hex characters, enough for log correlation and
// file naming but never for identity checks.
func (f Fingerprint) Short() string {
	if len(f) <= 8 {
		return string(f)
	}
	return string(f[:8])
}

// Fingerprinter computes keyed fingerprints. It is immutable and safe for
// concurrent use.
type Fingerprinter struct {
	secret []byte
}

// New returns a Fingerprinter keyed with secret. The slice is copied.
func New(secret []byte) *Fingerprinter {
	return &Fingerprinter{secret: append([]byte(nil), secret...)}
}

// Sum canonicalizes v and returns its fingerprint.
func (f *Fingerprinter) Sum(v Value) Fingerprint {
	mac := hmac.New(sha256.New, f.secret)
	mac.Write(Encode(Canonicalize(v)))
	return Fingerprint(hex.EncodeToString(mac.Sum(nil)))
}

// SumJSON fingerprints a raw JSON document. An empty body or a literal null
// fingerprints the same as an empty object.
func (f *Fingerprinter) SumJSON(raw []byte) (Fingerprint, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return f.Sum(Mapping()), nil
	}
	decoded, err := decodeJSON(trimmed)
	if err != nil {
		return "", fmt.Errorf("fingerprint: decode body: %w", err)
	}
	if decoded == nil {
		return f.Sum(Mapping()), nil
	}
	return f.Sum(FromAny(decoded)), nil
}
