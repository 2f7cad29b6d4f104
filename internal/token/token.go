// Package token issues and verifies compact, expiring, tamper-evident download
// tokens.
//
// Wire format:
//
//	<base64url(payload JSON)>.<base64url(HMAC-SHA256(secret, payload segment))>
//
// Both segments use unpadded URL-safe base64. Tokens are stateless: validity
// is a pure function of the MAC and the embedded expiry, so rotating the secret
// invalidates every outstanding token at once.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrInvalid is the single failure signal returned by Verify. Malformed,
// forged and expired tokens are deliberately indistinguishable.
var ErrInvalid = errors.New("invalid token")

const separator = "."

var b64 = base64.RawURLEncoding.Strict()

// Payload is the signed claim set.
type Payload struct {
	// Name is the artifact (file) the token grants access to.
	Name string `json:"name"`
	// Expiry is the last valid instant, in seconds since the Unix epoch.
	Expiry int64 `json:"exp"`
}

// wirePayload distinguishes an absent expiry from a zero one.
type wirePayload struct {
	Name   string `json:"name"`
	Expiry *int64 `json:"exp"`
}

// SignedToken is the structured form of a token: the encoded payload segment
// exactly as transmitted, and the raw MAC bytes over it.
type SignedToken struct {
	Payload []byte
	MAC     []byte
}

// Encode renders t in wire format.
func Encode(t SignedToken) string {
	return string(t.Payload) + separator + b64.EncodeToString(t.MAC)
}

// Decode splits a wire token into its segments. It checks shape only; the
// MAC is not verified here.
func Decode(s string) (SignedToken, error) {
	parts := strings.Split(s, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SignedToken{}, ErrInvalid
	}
	mac, err := b64.DecodeString(parts[1])
	if err != nil {
		return SignedToken{}, ErrInvalid
	}
	return SignedToken{Payload: []byte(parts[0]), MAC: mac}, nil
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec signs and verifies tokens with a shared secret. It is safe for
// concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec returns a Codec keyed with secret. The slice is copied.
func NewCodec(secret []byte, opts ...Option) *Codec {
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Sign encodes and signs p.
func (c *Codec) Sign(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	seg := []byte(b64.EncodeToString(raw))
	return Encode(SignedToken{Payload: seg, MAC: c.mac(seg)}), nil
}

// Issue signs a token for name that expires ttl from now and returns the
// token with its expiry.
func (c *Codec) Issue(name string, ttl time.Duration) (string, time.Time, error) {
	exp := c.now().Add(ttl).Truncate(time.Second)
	tok, err := c.Sign(Payload{Name: name, Expiry: exp.Unix()})
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Verify checks the MAC and expiry of tok and returns its payload. Any
// failure yields ErrInvalid.
func (c *Codec) Verify(tok string) (Payload, error) {
	st, err := Decode(tok)
	if err != nil {
		return Payload{}, ErrInvalid
	}
	if !hmac.Equal(st.MAC, c.mac(st.Payload)) {
		return Payload{}, ErrInvalid
	}

	raw, err := b64.DecodeString(string(st.Payload))
	if err != nil {
		return Payload{}, ErrInvalid
	}
	var wp wirePayload
	if err := json.Unmarshal(raw, &wp); err != nil {
		return Payload{}, ErrInvalid
	}
	if wp.Expiry == nil || *wp.Expiry < c.now().Unix() {
		return Payload{}, ErrInvalid
	}
	return Payload{Name: wp.Name, Expiry: *wp.Expiry}, nil
}

func (c *Codec) mac(seg []byte) []byte {
	m := hmac.New(sha256.New, c.secret)
	m.Write(seg)
	return m.Sum(nil)
}
