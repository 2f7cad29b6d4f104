// Package services defines the business logic for quote delivery and
// artifact download. This file centralizes service-level error values so
// that they can be consistently returned by service methods and checked by
// callers with errors.Is.
//
// Translation into user-facing messages and HTTP status codes is performed
// at the handler layer.
package services

import "errors"

// Quote submission errors.
var (
	// ErrInvalidQuote wraps a validation failure of the inbound request.
	ErrInvalidQuote = errors.New("invalid quote request")

	// ErrRenderFailed indicates the PDF could not be produced. The
	// fingerprint is released so a retry is processed again.
	ErrRenderFailed = errors.New("render failed")

	// ErrStoreFailed indicates the rendered artifact could not be persisted.
	ErrStoreFailed = errors.New("artifact storage failed")

	// ErrDeliveryFailed is returned when every send of an attempt failed and
	// nothing had been delivered for the fingerprint before. It is retryable.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Download errors. Token failures are deliberately coarse.
var (
	// ErrTokenMissing is returned when no token accompanies a download.
	ErrTokenMissing = errors.New("token missing")

	// ErrTokenInvalid covers malformed, forged, expired and mismatched tokens.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrArtifactNotFound is returned when a valid token names a missing file.
	ErrArtifactNotFound = errors.New("artifact not found")
)
