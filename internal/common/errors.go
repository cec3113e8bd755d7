// Package common defines shared sentinel errors used across the server
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenInvalid deliberately covers never-issued, expired and
	// already-used magic tokens; the three cases must stay
	// indistinguishable to callers.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSessionExpired marks a session credential past its lifetime.
	ErrSessionExpired = errors.New("session expired")

	// ErrDecryption is returned whenever authenticated decryption cannot
	// be completed: tag mismatch, wrong key, malformed components.
	ErrDecryption = errors.New("decryption error")

	// Input validation errors (e.g. answer too short).
	ErrValidation = errors.New("validation error")

	// ErrDuplicateIdentity signals an email collision on signup paths.
	ErrDuplicateIdentity = errors.New("identity already exists")

	// Questionnaire lifecycle errors.
	ErrAlreadyCompleted = errors.New("questionnaire already completed")
)
