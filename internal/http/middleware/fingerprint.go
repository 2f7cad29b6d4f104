// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file computes the request fingerprint used for duplicate suppression.
// The raw JSON body is canonicalized and HMAC'd; headers and the query string
// never contribute. The body is restored so handlers can bind it as usual.
package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-quote-backend/internal/fingerprint"
)

const (
	ctxKeyFingerprint = "quote.fingerprint"

	// DefaultMaxBodyBytes bounds the body read for fingerprinting.
	DefaultMaxBodyBytes = 1 << 20
)

// FingerprintOptions configures Fingerprint.
type FingerprintOptions struct {
	// MaxBytes caps the body size. Values <= 0 default to 1 MiB.
	MaxBytes int64
}

// GetFingerprint returns the fingerprint stored by Fingerprint.
func GetFingerprint(c *gin.Context) (fingerprint.Fingerprint, bool) {
	v, ok := c.Get(ctxKeyFingerprint)
	if !ok {
		return "", false
	}
	fp, _ := v.(fingerprint.Fingerprint)
	return fp, fp != ""
}

// Fingerprint reads the request body, stores its fingerprint in the context
// and rewinds the body.
//
// Responses:
//   - 413 when the body exceeds MaxBytes
//   - 400 when the body is not valid JSON
func Fingerprint(fpr *fingerprint.Fingerprinter, opts FingerprintOptions) gin.HandlerFunc {
	max := opts.MaxBytes
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		var raw []byte
		if c.Request.Body != nil {
			b, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, max))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					abortJSON(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
					return
				}
				abortJSON(c, http.StatusBadRequest, "bad_request", "unreadable request body")
				return
			}
			raw = b
		}

		fp, err := fpr.SumJSON(raw)
		if err != nil {
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}

		c.Set(ctxKeyFingerprint, fp)
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		c.Next()
	}
}

// abortJSON writes the error envelope shared with the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
